package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/sarchlab/wavefreq/operators"
	"github.com/sarchlab/wavefreq/workpool"
)

// workerCmd is started by process pools. It reads jobs on stdin and writes
// results on stdout, so it must never print anything else there.
var workerCmd = &cobra.Command{
	Use:    workpool.WorkerArg,
	Short:  "Serve subproblem jobs on stdin and stdout.",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		log.SetOutput(os.Stderr)
		log.SetPrefix(fmt.Sprintf("worker %d", os.Getpid()))

		return workpool.Serve(
			cmd.Context(),
			cmd.InOrStdin(),
			os.Stdout,
			operators.NewRegistry().Constructor(),
		)
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
