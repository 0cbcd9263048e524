// Package updater contains the update pass: image update detection, the
// container reconciler, and the recreate-validate-rollback engine.
package updater

import (
	"context"
	"time"

	"github.com/sycured/podhawk/internal/config"
	"github.com/sycured/podhawk/internal/logging"
	"github.com/sycured/podhawk/internal/metrics"
	"github.com/sycured/podhawk/internal/recreate"
	"github.com/sycured/podhawk/internal/runtime"
	"github.com/sycured/podhawk/internal/state"
)

// Terminal messages for a reconciliation pass. Every path is a normal
// completion; the message tells the operator which one.
const (
	MsgNoImage         = "no image"
	MsgNoImageToUpdate = "no image to update"
	MsgNoContainer     = "no container found"
	MsgJobsDone        = "jobs done"
)

// Runner executes one full update pass, strictly sequentially: images are
// pulled one at a time, then each affected container completes its whole
// state machine before the next one begins. The sequencing is the sole
// concurrency-safety mechanism against the shared engine state.
type Runner struct {
	rt       runtime.Runtime
	cfg      *config.Config
	detector *Detector
	engine   *Engine
	journal  *state.Journal
	Now      func() time.Time // injectable clock for testing
}

// NewRunner wires a runner. resolver and precheck may be nil to disable
// policy resolution and the digest pre-check.
func NewRunner(cfg *config.Config, rt runtime.Runtime, resolver TagResolver, precheck DigestChecker, journal *state.Journal) *Runner {
	if !cfg.DigestPrecheck {
		precheck = nil
	}
	return &Runner{
		rt:       rt,
		cfg:      cfg,
		detector: NewDetector(rt, cfg.Policies, resolver, precheck),
		engine:   NewEngine(rt, cfg.HealthcheckRetries),
		journal:  journal,
		Now:      time.Now,
	}
}

// Run performs one pass and returns the terminal message.
func (r *Runner) Run(ctx context.Context) string {
	log := logging.Get()
	// the closure defers the clock read to completion time
	defer func() { metrics.SetLastRun(r.Now()) }()

	log.Info().Msg("gathering information about running containers")
	containers, err := r.rt.ListContainers(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed listing containers")
		return MsgNoContainer
	}

	log.Info().Msg("gathering information about images")
	images, err := r.rt.ListImages(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed listing images")
		return MsgNoImage
	}
	if len(images) == 0 {
		return MsgNoImage
	}

	log.Info().Int("images", len(images)).Msg("updating images")
	updates := r.detector.Detect(ctx, images)
	if len(updates) == 0 {
		return MsgNoImageToUpdate
	}
	log.Info().Int("updated", len(updates)).Msg("images updated")

	if len(containers) == 0 {
		return MsgNoContainer
	}

	log.Info().Msg("inspecting running containers")
	for _, cand := range Select(containers, updates) {
		r.recreateOne(ctx, cand)
	}
	return MsgJobsDone
}

// recreateOne runs the whole swap workflow for a single candidate. Failures
// abort only this container; the batch continues.
func (r *Runner) recreateOne(ctx context.Context, cand Candidate) {
	log := logging.Get()
	log.Info().Str("container", cand.Container.ID).Str("target", cand.Target).Msg("recreating container")

	task, err := recreate.Extract(ctx, r.rt, cand.Container, cand.Target)
	if err != nil {
		log.Error().Err(err).Str("container", cand.Container.ID).Msg("failed extracting recreation spec; skipping container")
		return
	}

	if r.cfg.DryRun {
		log.Info().Str("container", cand.Container.ID).Str("cmdline", task.CommandLine).Msg("dry-run: update available (skipping recreate)")
		return
	}

	if r.journal != nil {
		if err := r.journal.Add(state.SwapRecord{OldID: task.OldID, Image: cand.Target, Timestamp: r.Now()}); err != nil {
			log.Warn().Err(err).Str("container", task.OldID).Msg("failed journaling swap")
		}
	}

	start := r.Now()
	result, err := r.engine.Update(ctx, task)
	if err != nil {
		log.Error().Err(err).Str("container", task.OldID).Msg("failed to update container")
	} else {
		metrics.ObserveSwapDuration(r.Now().Sub(start).Seconds())
		log.Info().Str("container", task.OldID).Str("state", result.State.String()).Str("verdict", result.Verdict.String()).Msg("container swap finished")
	}

	if r.journal != nil {
		if err := r.journal.Remove(task.OldID); err != nil {
			log.Warn().Err(err).Str("container", task.OldID).Msg("failed clearing swap journal entry")
		}
	}
}

// WarnLeftoverSwaps logs journal entries left behind by an interrupted run.
// No automatic recovery is attempted; an operator must inspect the engine
// state and intervene.
func WarnLeftoverSwaps(journal *state.Journal) {
	if journal == nil {
		return
	}
	records, err := journal.All()
	if err != nil {
		logging.Get().Warn().Err(err).Msg("failed reading swap journal")
		return
	}
	for _, rec := range records {
		logging.Get().Warn().
			Str("old", rec.OldID).
			Str("image", rec.Image).
			Time("since", rec.Timestamp).
			Msg("interrupted swap found in journal; inspect container state manually")
	}
}
