package cli

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/roach88/cadstore/internal/codec"
	"github.com/roach88/cadstore/internal/entity"
)

// NewDumpCommand creates the dump command.
func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump <path>",
		Short: "Print a stored project as canonical JSON",
		Long: `Load a project and print its document in canonical form: keys sorted,
no insignificant whitespace, entities ordered by id. Two dumps of the same
project are byte-identical.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runDump(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	router, err := newRouter(ctx, opts.Config)
	if err != nil {
		return err
	}
	defer router.Close()

	data, err := router.Load(ctx, path)
	if err != nil {
		_ = formatter.Error(err, map[string]string{"path": path})
		return WrapExitError(ExitFailure, "failed to load project", err)
	}
	ents, err := entity.Registry().DecodeDocument(data)
	if err != nil {
		_ = formatter.Error(err, map[string]string{"path": path})
		return WrapExitError(ExitFailure, "failed to decode project", err)
	}
	doc, err := codec.EncodeDocument(ents)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to encode project", err)
	}
	formatter.VerboseLog("dumping %d objects from %s (hash %s)", len(ents), path, codec.Hash(doc))

	if opts.Format == "json" {
		return formatter.Success(map[string]any{
			"path":     path,
			"objects":  len(ents),
			"hash":     codec.Hash(doc),
			"document": json.RawMessage(doc),
		}, "")
	}
	_, err = cmd.OutOrStdout().Write(append(doc, '\n'))
	return err
}
