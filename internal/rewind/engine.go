package rewind

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/schaermu/mtime-rewind/internal/scan"
	"github.com/schaermu/mtime-rewind/internal/state"
)

// Options configures an Engine.
type Options struct {
	Scan    scan.Options
	Workers int // fingerprint workers; <= 0 uses NumCPU

	// Applier overrides the filesystem applier. Ignored in dry-run mode.
	Applier Applier
}

// Engine runs one scan, reconcile, apply and save cycle over a root.
type Engine struct {
	root    string
	store   state.Store
	opts    Options
	applier Applier
	logger  *slog.Logger
	dryRun  bool
}

// NewEngine creates a new engine. root must be absolute.
func NewEngine(root string, store state.Store, opts Options, logger *slog.Logger, dryRun bool) *Engine {
	applier := opts.Applier
	if applier == nil {
		applier = FSApplier{}
	}
	if dryRun {
		applier = NoopApplier{}
	}

	return &Engine{
		root:    root,
		store:   store,
		opts:    opts,
		applier: applier,
		logger:  logger,
		dryRun:  dryRun,
	}
}

// Run executes the complete cycle. Per-file failures are collected in the
// report; only structural failures are returned as errors. Cancellation is
// honoured until rewinds start, after which the run completes so the saved
// state matches what was applied.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	e.logger.Info("starting reconciliation",
		"root", e.root,
		"state", e.store.Path(),
		"dry_run", e.dryRun)

	report := &Report{
		Root:      e.root,
		StatePath: e.store.Path(),
		DryRun:    e.dryRun,
	}

	prev, err := e.loadState(ctx)
	if err != nil {
		return nil, err
	}
	report.FirstRun = prev == nil

	cur, err := e.scan(ctx, report)
	if err != nil {
		return nil, err
	}

	actions, next := Reconcile(prev, cur)
	report.Actions = actions
	report.Removed = Removed(prev, cur)

	e.logPlan(report)

	e.applyPlan(report)

	if e.dryRun {
		e.logger.Info("dry-run complete, no changes applied")
		return report, nil
	}

	// The rewinds already happened, so the save must not be abandoned.
	if err := e.store.Save(context.WithoutCancel(ctx), next); err != nil {
		return nil, fmt.Errorf("failed to save state: %w", err)
	}
	e.logger.Info("wrote state", "path", e.store.Path(), "files", len(next))

	e.logger.Info("reconciliation completed",
		"rewound", report.Rewound(),
		"failed", report.Failed())
	return report, nil
}

// loadState returns the previous snapshot, or nil on first run.
func (e *Engine) loadState(ctx context.Context) (state.Snapshot, error) {
	prev, err := e.store.Load(ctx)
	if errors.Is(err, state.ErrStateNotFound) {
		e.logger.Info("no previous state, recording baseline", "path", e.store.Path())
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	e.logger.Info("loaded previous state", "path", e.store.Path(), "files", len(prev))
	return prev, nil
}

// scan enumerates and fingerprints the tree, recording per-file failures.
func (e *Engine) scan(ctx context.Context, report *Report) (state.Snapshot, error) {
	paths, walkErrs, err := scan.Walk(e.root, scan.NewExcluder(e.root, e.opts.Scan))
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate files: %w", err)
	}
	e.logger.Debug("enumerated files", "count", len(paths))

	cur, hashErrs, err := scan.Collect(ctx, e.root, paths, e.opts.Workers)
	if err != nil {
		return nil, fmt.Errorf("failed to compute hashes: %w", err)
	}

	report.ReadErrors = append(report.ReadErrors, walkErrs...)
	report.ReadErrors = append(report.ReadErrors, hashErrs...)
	for _, fe := range report.ReadErrors {
		e.logger.Warn("skipping unreadable file", "path", fe.Path, "op", fe.Op, "error", fe.Err)
	}

	e.logger.Info("computed hashes", "files", len(cur))
	return cur, nil
}

// logPlan logs how many files fall into each kind of action.
func (e *Engine) logPlan(report *Report) {
	args := make([]any, 0, 2*len(Kinds)+2)
	for _, k := range Kinds {
		args = append(args, k.String(), report.Count(k))
	}
	args = append(args, "removed", len(report.Removed))
	e.logger.Info("reconciliation plan", args...)
}

// applyPlan hands every rewind to the applier, continuing past failures. In
// dry-run mode the applier is a NoopApplier and the lines are prefixed.
func (e *Engine) applyPlan(report *Report) {
	prefix := ""
	if e.dryRun {
		prefix = "[dry-run] "
	}

	for _, a := range report.Actions {
		switch a.Kind {
		case Rewind:
			verb := "rewinding mtime"
			if e.dryRun {
				verb = "would rewind"
			}
			e.logger.Info(prefix+verb,
				"path", a.Path,
				"from", a.Observed,
				"to", a.Mtime)
			if err := e.applier.Apply(e.root, a); err != nil {
				e.logger.Warn(prefix+"failed to rewind mtime", "path", a.Path, "error", err)
				report.ApplyErrors = append(report.ApplyErrors, &FileError{Path: a.Path, Op: scan.OpRewind, Err: err})
			}
		case AdoptChanged:
			e.logger.Debug(prefix+"adopting changed file", "path", a.Path)
		case AdoptNew:
			e.logger.Debug(prefix+"tracking new file", "path", a.Path)
		}
	}
	for _, p := range report.Removed {
		e.logger.Debug(prefix+"forgetting removed file", "path", p)
	}
}
