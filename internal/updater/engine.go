package updater

import (
	"context"
	"fmt"

	"github.com/sycured/podhawk/internal/logging"
	"github.com/sycured/podhawk/internal/metrics"
	"github.com/sycured/podhawk/internal/runtime"
)

// State enumerates the phases of one container swap. Terminal states are
// StateCommitted (old container gone, new one live) and StateRolledBack
// (new container stopped but retained, old one live again). No state is
// re-entered; each container is processed exactly once per run.
type State int

const (
	StateStopping State = iota
	StateStarting
	StateHealthChecking
	StateCommitted
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StateStopping:
		return "stopping"
	case StateStarting:
		return "starting"
	case StateHealthChecking:
		return "health-checking"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled-back"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Result reports the outcome of one swap.
type Result struct {
	State   State
	Verdict runtime.Verdict
	NewID   string
}

// Engine runs the recreate-validate-rollback workflow for one container at
// a time. It never recurses: failures during rollback are logged for the
// operator, not retried, to avoid unbounded retry storms.
type Engine struct {
	rt      runtime.Runtime
	retries int
}

// NewEngine builds an engine with the given healthcheck attempt budget.
func NewEngine(rt runtime.Runtime, retries int) *Engine {
	if retries < 1 {
		retries = 1
	}
	return &Engine{rt: rt, retries: retries}
}

// Update swaps the task's old container for a new one started from its
// spec. The returned error is non-nil only when the new container never
// started; validation failures resolve to a clean StateRolledBack result.
func (e *Engine) Update(ctx context.Context, task runtime.Task) (Result, error) {
	log := logging.Get()
	var (
		newID   string
		verdict runtime.Verdict
	)

	st := StateStopping
	for {
		switch st {
		case StateStopping:
			log.Info().Str("old", task.OldID).Msg("stopping old container")
			out, err := e.rt.Stop(ctx, task.OldID)
			e.logOutput("stop", task.OldID, out)
			if err != nil {
				// The engine may already consider it stopped; proceed.
				log.Warn().Err(err).Str("old", task.OldID).Msg("stop failed; continuing")
			}
			st = StateStarting

		case StateStarting:
			log.Info().Str("old", task.OldID).Str("cmdline", task.CommandLine).Msg("starting new container")
			id, err := e.rt.Run(ctx, task)
			if err != nil {
				// Fatal for this container only: nothing to validate.
				// Restore the old container so no service is lost.
				log.Error().Err(err).Str("old", task.OldID).Msg("new container failed to start; restarting old")
				out, startErr := e.rt.Start(ctx, task.OldID)
				e.logOutput("start", task.OldID, out)
				if startErr != nil {
					log.Warn().Err(startErr).Str("old", task.OldID).Msg("failed restarting old container; operator intervention required")
				}
				metrics.IncStartFailure()
				return Result{State: StateStarting}, fmt.Errorf("start new container for %s: %w", task.OldID, err)
			}
			newID = id
			log.Info().Str("new", newID).Msg("new container started")
			st = StateHealthChecking

		case StateHealthChecking:
			verdict = e.healthCheck(ctx, newID)
			log.Info().Str("new", newID).Str("verdict", verdict.String()).Msg("healthcheck verdict")
			if verdict == runtime.Unhealthy {
				st = StateRolledBack
			} else {
				st = StateCommitted
			}

		case StateCommitted:
			if verdict == runtime.NotApplicable {
				log.Warn().Str("new", newID).Msg("no healthcheck defined in this image; continuing at your own risk")
			}
			log.Info().Str("old", task.OldID).Msg("removing old container")
			out, err := e.rt.Remove(ctx, task.OldID)
			e.logOutput("remove", task.OldID, out)
			if err != nil {
				// New container is live; a leftover old container is a
				// cleanup problem, not a failed update.
				log.Warn().Err(err).Str("old", task.OldID).Msg("failed removing old container")
			}
			metrics.IncCommit()
			return Result{State: StateCommitted, Verdict: verdict, NewID: newID}, nil

		case StateRolledBack:
			log.Warn().Str("new", newID).Str("old", task.OldID).Msg("healthcheck failed; rolling back")
			log.Info().Str("new", newID).Msg("new container forced to stop and not removed to permit log analysis")
			out, err := e.rt.Stop(ctx, newID)
			e.logOutput("stop", newID, out)
			if err != nil {
				log.Warn().Err(err).Str("new", newID).Msg("failed stopping new container during rollback")
			}
			out, err = e.rt.Start(ctx, task.OldID)
			e.logOutput("start", task.OldID, out)
			if err != nil {
				log.Warn().Err(err).Str("old", task.OldID).Msg("failed restarting old container during rollback; operator intervention required")
			}
			metrics.IncRollback()
			return Result{State: StateRolledBack, Verdict: verdict, NewID: newID}, nil
		}
	}
}

// healthCheck probes the new container up to the attempt budget. A "no
// defined healthcheck" report short-circuits to NotApplicable without
// consuming remaining attempts; otherwise the last attempt's classification
// is the verdict. Earlier failures do not veto a final-attempt success, and
// vice versa.
func (e *Engine) healthCheck(ctx context.Context, containerID string) runtime.Verdict {
	verdict := runtime.Unhealthy
	for i := 0; i < e.retries; i++ {
		out, err := e.rt.Healthcheck(ctx, containerID)
		logging.Get().Info().Str("container", containerID).Int("attempt", i+1).Int("budget", e.retries).Str("output", out).Msg("healthcheck probe")
		if err != nil {
			logging.Get().Warn().Err(err).Str("container", containerID).Msg("healthcheck probe failed to run")
			verdict = runtime.Unhealthy
			continue
		}
		v := runtime.Classify(out)
		if v == runtime.NotApplicable {
			return runtime.NotApplicable
		}
		verdict = v
	}
	return verdict
}

// logOutput surfaces a runtime command's output for operator visibility.
func (e *Engine) logOutput(op, containerID, out string) {
	if out == "" {
		return
	}
	logging.Get().Info().Str("op", op).Str("container", containerID).Str("output", out).Msg("runtime command output")
}
