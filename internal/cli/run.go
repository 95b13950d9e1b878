package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/cadstore/internal/harness"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	Snapshots string // directory for <scenario>.golden snapshots
	Mailbox   int
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run <scenario|dir>...",
		Short: "Run scenario files against an in-process store",
		Long: `Run YAML scenarios against a fresh in-process store.

Each scenario drives one or more users through protocol commands and checks
the resulting responses, update messages and documents. Directories are
searched recursively for *.yaml and *.yml files.

With --snapshots, the canonical trace of every scenario is written to
<dir>/<scenario>.golden.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(cmd, rootOpts, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.Snapshots, "snapshots", "", "directory to write canonical run snapshots to")
	cmd.Flags().IntVar(&opts.Mailbox, "mailbox", harness.DefaultMailboxCapacity, "mailbox capacity per scenario user")

	return cmd
}

func runScenarios(cmd *cobra.Command, rootOpts *RootOptions, opts *RunOptions, paths []string) error {
	formatter := &OutputFormatter{
		Format:    rootOpts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   rootOpts.Verbose,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	suite, err := harness.RunSuite(ctx, paths, harness.WithMailboxCapacity(opts.Mailbox))
	if err != nil {
		var notFound *harness.ScenarioNotFoundError
		if errors.As(err, &notFound) {
			_ = formatter.Error(err, map[string]string{"path": notFound.Path})
			return WrapExitError(ExitCommandError, "scenario not found", err)
		}
		_ = formatter.Error(err, nil)
		return WrapExitError(ExitCommandError, "failed to run scenarios", err)
	}

	if opts.Snapshots != "" {
		if err := writeSnapshots(opts.Snapshots, suite); err != nil {
			return WrapExitError(ExitCommandError, "failed to write snapshots", err)
		}
		formatter.VerboseLog("wrote snapshots to %s", opts.Snapshots)
	}

	if err := formatter.Success(suite, formatSuite(suite, rootOpts.Verbose)); err != nil {
		return err
	}
	if suite.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenarios failed", suite.Failed, suite.Total))
	}
	return nil
}

func writeSnapshots(dir string, suite *harness.SuiteResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, o := range suite.Scenarios {
		if o.Result == nil {
			continue
		}
		name := snapshotName(o)
		data, err := harness.NewSnapshot(name, o.Result).Encode()
		if err != nil {
			return fmt.Errorf("encoding %s: %w", o.Path, err)
		}
		if err := os.WriteFile(filepath.Join(dir, name+".golden"), data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func snapshotName(o harness.ScenarioOutcome) string {
	if o.Name != "" {
		return o.Name
	}
	return strings.TrimSuffix(filepath.Base(o.Path), filepath.Ext(o.Path))
}

func formatSuite(suite *harness.SuiteResult, verbose bool) string {
	var b strings.Builder
	for _, o := range suite.Scenarios {
		mark := "✓"
		if !o.Pass {
			mark = "✗"
		}
		fmt.Fprintf(&b, "%s %s (%s)\n", mark, snapshotName(o), o.Path)
		if o.Pass && !verbose {
			continue
		}
		for _, e := range o.Errors {
			fmt.Fprintf(&b, "    %s\n", e)
		}
	}
	fmt.Fprintf(&b, "\n%d scenarios, %d passed, %d failed", suite.Total, suite.Passed, suite.Failed)
	return b.String()
}
