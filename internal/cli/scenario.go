package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/stockbook/internal/harness"
)

// ScenarioOptions holds flags for the scenario command.
type ScenarioOptions struct {
	*RootOptions
	GoldenDir string
	Update    bool
}

// ScenarioReport is the outcome of one scenario run from the CLI.
type ScenarioReport struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Golden string   `json:"golden,omitempty"` // "match" | "mismatch" | "missing" | "updated"
	Errors []string `json:"errors,omitempty"`
}

// ScenarioSummary is the data payload of the scenario command.
type ScenarioSummary struct {
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Scenarios []ScenarioReport `json:"scenarios"`
}

// NewScenarioCommand creates the scenario command.
func NewScenarioCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScenarioOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scenario <dir>",
		Short: "Run YAML shop scenarios against a scratch store",
		Long: `Run every *.yaml scenario in dir. Each scenario gets its own temporary
store and a fixed clock, so traces are reproducible.

With --golden, each trace is also compared to <golden>/<name>.golden;
--update rewrites those files instead.

Examples:
  stockbook scenario ./scenarios
  stockbook scenario ./scenarios --golden ./scenarios/golden --update`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, cmd, args[0])
		},
	}
	cmd.Flags().StringVar(&opts.GoldenDir, "golden", "", "directory of golden trace files")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "rewrite golden files from this run")
	return cmd
}

func runScenarios(opts *ScenarioOptions, cmd *cobra.Command, dir string) error {
	if opts.Update && opts.GoldenDir == "" {
		return errUsage("--update requires --golden")
	}
	scenarios, err := harness.LoadDir(dir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenarios", err)
	}
	if len(scenarios) == 0 {
		return errUsage("no scenarios found in %s", dir)
	}

	logger := opts.app.Logger.Named("harness")
	summary := ScenarioSummary{Scenarios: make([]ScenarioReport, 0, len(scenarios))}
	for _, s := range scenarios {
		result, err := harness.Run(cmd.Context(), s, harness.WithLogger(logger))
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("scenario %s", s.Name), err)
		}

		rep := ScenarioReport{Name: s.Name, Pass: result.Pass, Errors: result.Errors}
		if opts.GoldenDir != "" {
			if rep.Golden, err = checkGolden(opts, s.Name, result); err != nil {
				return err
			}
			if rep.Golden == "mismatch" || rep.Golden == "missing" {
				rep.Pass = false
				rep.Errors = append(rep.Errors, fmt.Sprintf("golden trace %s", rep.Golden))
			}
		}

		if rep.Pass {
			summary.Passed++
		} else {
			summary.Failed++
		}
		summary.Scenarios = append(summary.Scenarios, rep)
	}

	if err := opts.formatter(cmd).Render(summary, func(w io.Writer) {
		for _, rep := range summary.Scenarios {
			mark := "✓"
			if !rep.Pass {
				mark = "✗"
			}
			fmt.Fprintf(w, "%s %s\n", mark, rep.Name)
			for _, e := range rep.Errors {
				fmt.Fprintf(w, "    %s\n", e)
			}
		}
		fmt.Fprintf(w, "\n%d passed, %d failed\n", summary.Passed, summary.Failed)
	}); err != nil {
		return err
	}

	if summary.Failed > 0 {
		// Already reported; only the exit code is left to set.
		return &silentExit{code: ExitFailure}
	}
	return nil
}

func checkGolden(opts *ScenarioOptions, name string, result *harness.Result) (string, error) {
	data, err := harness.MarshalSnapshot(name, result)
	if err != nil {
		return "", WrapExitError(ExitCommandError, "failed to marshal trace", err)
	}
	path := filepath.Join(opts.GoldenDir, name+".golden")

	if opts.Update {
		if err := os.MkdirAll(opts.GoldenDir, 0o755); err != nil {
			return "", WrapExitError(ExitCommandError, "failed to create golden dir", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return "", WrapExitError(ExitCommandError, "failed to write golden file", err)
		}
		return "updated", nil
	}

	want, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "missing", nil
	}
	if err != nil {
		return "", WrapExitError(ExitCommandError, "failed to read golden file", err)
	}
	if !bytes.Equal(want, data) {
		return "mismatch", nil
	}
	return "match", nil
}
