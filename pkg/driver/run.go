package driver

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/epicbuild/epic/pkg/engine"
	"github.com/epicbuild/epic/pkg/stores"
	"github.com/epicbuild/epic/pkg/telemetry"
)

// runRecorder ties one driver command to its telemetry scope and history
// record. History failures are logged and never fail the command.
type runRecorder struct {
	id      string
	command string
	ctx     context.Context
	logger  *zerolog.Logger

	scope *telemetry.RunScope
	store stores.Store
	keep  int
}

func (d *Driver) beginRun(ctx context.Context, command string) *runRecorder {
	id := uuid.New().String()
	scope := d.tel.BeginRun(ctx, id, command, d.cfg.Root)
	r := &runRecorder{
		id:      id,
		command: command,
		ctx:     scope.Ctx,
		logger:  scope.Logger.Zerolog(),
		scope:   scope,
		keep:    d.cfg.History.Keep,
	}

	if d.cfg.History.Enabled {
		store, err := stores.Open(ctx, stores.Config{Path: d.cfg.HistoryPath()})
		if err != nil {
			r.logger.Warn().Err(err).Msg("Build history unavailable")
		} else {
			r.store = store
			err := store.CreateRun(ctx, &stores.Run{
				ID:          id,
				Root:        d.cfg.Root,
				Command:     command,
				Toolchain:   d.cfg.Toolchain,
				BuildConfig: d.cfg.BuildConfigString(),
				Status:      engine.RunStatusRunning,
				StartedAt:   d.opts.Now(),
			})
			if err != nil {
				r.logger.Warn().Err(err).Msg("Failed to record run")
				_ = store.Close()
				r.store = nil
			}
		}
	}

	r.logger.Info().Msg("Run started")
	return r
}

func (r *runRecorder) appendStep(step *stores.Step) {
	if r.store == nil {
		return
	}
	step.RunID = r.id
	// Record even when the build context was cancelled.
	if err := r.store.AppendStep(context.WithoutCancel(r.ctx), step); err != nil {
		r.logger.Warn().Err(err).Str("vertex", step.Vertex).Msg("Failed to record step")
	}
}

// finish closes the telemetry scope and the history record.
func (r *runRecorder) finish(summary engine.RunSummary, err error) {
	status := engine.RunStatusSucceeded
	kind := ""
	switch {
	case err == nil:
	case r.ctx.Err() != nil:
		// Only the caller's context decides cancellation; an operator timeout
		// is a failure.
		status = engine.RunStatusCancelled
		kind = "cancelled"
	default:
		status = engine.RunStatusFailed
		kind = string(engine.KindOf(err))
	}

	r.scope.End(string(status), summary.Executed, summary.Skipped, kind, err)

	event := r.logger.Info()
	if err != nil {
		event = r.logger.Error().Err(err).Str("kind", kind)
	}
	event.
		Str("status", string(status)).
		Int("executed", summary.Executed).
		Int("skipped", summary.Skipped).
		Msg("Run finished")

	if r.store == nil {
		return
	}
	defer r.store.Close()

	ctx := context.WithoutCancel(r.ctx)
	var errMsg *string
	if err != nil {
		msg := err.Error()
		errMsg = &msg
	}
	if ferr := r.store.FinishRun(ctx, r.id, status, summary, errMsg); ferr != nil {
		r.logger.Warn().Err(ferr).Msg("Failed to record run result")
	}
	if pruned, perr := r.store.PruneRuns(ctx, r.keep); perr != nil {
		r.logger.Warn().Err(perr).Msg("Failed to prune build history")
	} else if pruned > 0 {
		r.logger.Debug().Int64("pruned", pruned).Msg("Pruned build history")
	}
}
