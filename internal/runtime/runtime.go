// Package runtime defines the narrow adapter interface Podhawk uses to talk
// to a container engine, plus the point-in-time types exchanged across that
// boundary. Core logic depends only on this package, never on a concrete
// engine, so it stays testable with a fake collaborator.
package runtime

import "context"

// Runtime is the container engine boundary. Implementations surface every
// command's output as a log line; callers treat non-nil errors as
// per-item failures and continue with the rest of the batch.
type Runtime interface {
	// ListImages returns the tracked images. Untagged images are skipped.
	ListImages(ctx context.Context) ([]ImageRef, error)
	// ListContainers returns current container snapshots, running or not.
	ListContainers(ctx context.Context) ([]ContainerSnapshot, error)
	// Inspect returns the structured metadata needed to recreate a container.
	Inspect(ctx context.Context, containerID string) (Inspection, error)
	// Pull fetches an image by name:tag and returns the resulting content ID.
	Pull(ctx context.Context, nameTag string) (string, error)
	// Stop stops a container and returns the engine's output.
	Stop(ctx context.Context, containerID string) (string, error)
	// Start starts an existing (stopped) container.
	Start(ctx context.Context, containerID string) (string, error)
	// Run starts a new detached container described by the task and returns
	// the new container's ID.
	Run(ctx context.Context, task Task) (string, error)
	// Remove deletes a container permanently.
	Remove(ctx context.Context, containerID string) (string, error)
	// Healthcheck probes a container once and returns the engine's raw
	// status text. Classify translates that text into a verdict.
	Healthcheck(ctx context.Context, containerID string) (string, error)
}

// Task describes one container recreation: the container to replace and the
// specification of its replacement. Built once per update pass and consumed
// exactly once by the engine.
type Task struct {
	OldID string
	Spec  Spec
	// CommandLine is the rendered Spec, as passed to `run -d` by the CLI
	// adapter and logged for operator visibility.
	CommandLine string
}
