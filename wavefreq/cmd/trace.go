package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/sarchlab/wavefreq/datarecording"
	"github.com/sarchlab/wavefreq/tracing"
)

var traceCmd = &cobra.Command{
	Use:   "trace <trace.sqlite3>",
	Short: "Summarize a trace written by run --record.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		failed, _ := cmd.Flags().GetBool("failed")

		return traceReport(cmd.Context(), cmd.OutOrStdout(), args[0], failed)
	},
}

func init() {
	traceCmd.Flags().Bool("failed", false, "also list the failed jobs")
	rootCmd.AddCommand(traceCmd)
}

func traceReport(ctx context.Context, out io.Writer, path string, failed bool) error {
	reader, err := datarecording.NewReader(path)
	if err != nil {
		return err
	}
	defer reader.Close()

	traces, err := tracing.NewTraceReader(reader)
	if err != nil {
		return err
	}

	dispatches, err := traces.Dispatches(ctx)
	if err != nil {
		return err
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("dispatch", "mode", "jobs", "solve time", "wall time", "error")

	for _, d := range dispatches {
		jobs, err := traces.Jobs(ctx, tracing.JobQuery{DispatchID: d.DispatchID})
		if err != nil {
			return err
		}

		solve := 0.0
		for _, j := range jobs {
			solve += j.Elapsed
		}

		t.Row(
			d.DispatchID,
			d.Mode,
			fmt.Sprintf("%d/%d", d.Completed, d.Total),
			secondsString(solve),
			secondsString(d.EndTime-d.StartTime),
			d.Err,
		)
	}

	fmt.Fprintln(out, t.String())

	if !failed {
		return nil
	}

	jobs, err := traces.Jobs(ctx, tracing.JobQuery{FailedOnly: true})
	if err != nil {
		return err
	}

	f := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("dispatch", "job", "freq", "error")

	for _, j := range jobs {
		f.Row(
			j.DispatchID,
			strconv.Itoa(j.JobIndex),
			formatFreq(complex(j.FreqReal, j.FreqImag)),
			j.Err,
		)
	}

	fmt.Fprintln(out, f.String())

	return nil
}

func secondsString(s float64) string {
	return time.Duration(s * float64(time.Second)).Round(time.Microsecond).String()
}
