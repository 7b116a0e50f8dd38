package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/sarchlab/wavefreq/project"
	"github.com/sarchlab/wavefreq/subproblem"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <project.hcl>",
	Short: "Show the subproblems of a project without solving them.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		return inspectProject(cmd.OutOrStdout(), args[0], asJSON)
	},
}

func init() {
	inspectCmd.Flags().Bool("json", false, "print JSON instead of a table")
	rootCmd.AddCommand(inspectCmd)
}

type subproblemSummary struct {
	Freq      string  `json:"freq"`
	Rows      int     `json:"rows"`
	Cols      int     `json:"cols"`
	NNZ       int     `json:"nnz"`
	Lower     int     `json:"lower_bandwidth"`
	Upper     int     `json:"upper_bandwidth"`
	Operator  string  `json:"operator"`
	FreeSurf  [4]bool `json:"free_surface"`
	Sources   int     `json:"sources"`
	Receivers int     `json:"receivers"`
}

func summarize(mf *subproblem.MultiFreq) ([]subproblemSummary, error) {
	subs, err := mf.Subproblems()
	if err != nil {
		return nil, err
	}

	out := make([]subproblemSummary, 0, len(subs))

	for _, d := range subs {
		a, err := d.A()
		if err != nil {
			return nil, err
		}

		rows, cols := a.Dims()
		lower, upper := a.Bandwidth()
		cfg := d.Config()

		out = append(out, subproblemSummary{
			Freq:      formatFreq(d.Freq()),
			Rows:      rows,
			Cols:      cols,
			NNZ:       a.NNZ(),
			Lower:     lower,
			Upper:     upper,
			Operator:  cfg.Operator,
			FreeSurf:  cfg.FreeSurf,
			Sources:   len(cfg.Geometry.Sources),
			Receivers: len(cfg.Geometry.Receivers),
		})
	}

	return out, nil
}

func inspectProject(out io.Writer, path string, asJSON bool) error {
	p, err := project.Load(path)
	if err != nil {
		return err
	}

	mf, err := buildMultiFreq(p, runSettings{Pool: poolSync}.merge(p.Run))
	if err != nil {
		return err
	}

	summaries, err := summarize(mf)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")

		return enc.Encode(summaries)
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("freq", "operator", "size", "nnz", "band")

	for _, s := range summaries {
		t.Row(
			s.Freq,
			s.Operator,
			fmt.Sprintf("%dx%d", s.Rows, s.Cols),
			strconv.Itoa(s.NNZ),
			fmt.Sprintf("%d/%d", s.Lower, s.Upper),
		)
	}

	fmt.Fprintln(out, t.String())
	fmt.Fprintf(out, "mode: %s\n", mf.Dispatcher().Mode())

	return nil
}
