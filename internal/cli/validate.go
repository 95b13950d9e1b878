package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/cadstore/internal/codec"
	"github.com/roach88/cadstore/internal/config"
	"github.com/roach88/cadstore/internal/deps"
	"github.com/roach88/cadstore/internal/engine"
	"github.com/roach88/cadstore/internal/model"
	"github.com/roach88/cadstore/internal/persist"
)

// ValidationResult reports the structure of a stored project.
type ValidationResult struct {
	Valid    bool             `json:"valid"`
	Path     string           `json:"path"`
	Objects  int              `json:"objects"`
	Kinds    map[string]int   `json:"kinds"`
	Edges    int              `json:"edges"`
	Dangling []deps.Edge      `json:"dangling,omitempty"`
	Cycles   []model.ObjectID `json:"cycles,omitempty"`
	Hash     string           `json:"hash"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <path>",
		Short: "Check a stored project for broken references",
		Long: `Load a project and check its dependency graph.

A project is valid when every entity decodes, every reference points at an
existing feature and no entity depends on itself through its references.
Paths use the same forms as open_file: plain files, file.db#project for
SQLite and s3://bucket/key when S3 is configured.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
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

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	e, err := engine.Open(ctx, router, path, model.UserID{}, discard{}, engine.WithLogger(quiet))
	if err != nil {
		_ = formatter.Error(err, map[string]string{"path": path})
		return WrapExitError(ExitFailure, "validation failed", err)
	}

	result, err := validateEngine(path, e)
	if err != nil {
		_ = formatter.Error(err, nil)
		return WrapExitError(ExitFailure, "validation failed", err)
	}
	formatter.VerboseLog("loaded %d objects with %d edges from %s", result.Objects, result.Edges, path)

	if err := formatter.Success(result, formatValidation(result)); err != nil {
		return err
	}
	if !result.Valid {
		return NewExitError(ExitFailure, "project has broken references")
	}
	return nil
}

func validateEngine(path string, e *engine.Engine) (*ValidationResult, error) {
	kinds := make(map[string]int)
	if err := e.Store().Iterate(func(ent model.Entity) error {
		kinds[ent.Kind()]++
		return nil
	}); err != nil {
		return nil, err
	}
	doc, err := e.Document()
	if err != nil {
		return nil, err
	}
	dangling := e.Dangling()
	cycles := e.Cycles()
	return &ValidationResult{
		Valid:    len(dangling) == 0 && len(cycles) == 0,
		Path:     path,
		Objects:  e.Store().Len(),
		Kinds:    kinds,
		Edges:    e.Graph().Len(),
		Dangling: dangling,
		Cycles:   cycles,
		Hash:     codec.Hash(doc),
	}, nil
}

func formatValidation(r *ValidationResult) string {
	var b strings.Builder
	if r.Valid {
		fmt.Fprintf(&b, "✓ %s is valid\n", r.Path)
	} else {
		fmt.Fprintf(&b, "✗ %s has broken references\n", r.Path)
	}
	fmt.Fprintf(&b, "  objects: %d", r.Objects)
	for _, kind := range slices.Sorted(maps.Keys(r.Kinds)) {
		fmt.Fprintf(&b, " %s=%d", kind, r.Kinds[kind])
	}
	fmt.Fprintf(&b, "\n  edges:   %d\n", r.Edges)
	for _, edge := range r.Dangling {
		fmt.Fprintf(&b, "  dangling: %s -> %s\n", edge.Subscriber, edge.Publisher)
	}
	for _, id := range r.Cycles {
		fmt.Fprintf(&b, "  cycle:    %s\n", id)
	}
	fmt.Fprintf(&b, "  hash:    %s", r.Hash)
	return b.String()
}

// newRouter builds the storage router, enabling S3 when the config file
// at configPath names a region or endpoint.
func newRouter(ctx context.Context, configPath string) (*persist.Router, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	var opts []persist.RouterOption
	if cfg.S3Enabled() {
		s3, err := persist.NewS3(ctx, cfg.S3)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to configure s3", err)
		}
		opts = append(opts, persist.WithS3(s3))
	}
	return persist.NewRouter(opts...), nil
}

// discard drops update messages rendered while loading.
type discard struct{}

func (discard) Send(model.UserID, model.UpdateMessage) error { return nil }
func (discard) SendAll(model.UpdateMessage)                  {}
