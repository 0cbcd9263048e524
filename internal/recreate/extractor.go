// Package recreate derives a faithful recreation specification from a
// container's inspected state. A bad spec risks losing running service, so
// extraction fails loudly on malformed inspection data instead of emitting
// a partial spec.
package recreate

import (
	"context"
	"fmt"
	"strings"

	"github.com/sycured/podhawk/internal/logging"
	"github.com/sycured/podhawk/internal/runtime"
)

// envDenylist holds the variables container engines inject at start.
// Carrying them into the replacement would double-apply engine defaults.
var envDenylist = map[string]struct{}{
	"PATH":           {},
	"TERM":           {},
	"HOSTNAME":       {},
	"container":      {},
	"GODEBUG":        {},
	"XDG_CACHE_HOME": {},
	"HOME":           {},
}

// FilterEnv returns a new slice with engine-injected variables removed.
// Order and encoding of the remaining entries are preserved; the filter is
// idempotent.
func FilterEnv(env []string) []string {
	out := make([]string, 0, len(env))
	for _, e := range env {
		key := e
		if i := strings.IndexByte(e, '='); i >= 0 {
			key = e[:i]
		}
		if _, denied := envDenylist[key]; denied {
			continue
		}
		out = append(out, e)
	}
	return out
}

// BuildSpec validates inspection data and produces the recreation spec for
// a replacement running the given image reference.
func BuildSpec(insp runtime.Inspection, image string) (runtime.Spec, error) {
	if image == "" {
		return runtime.Spec{}, fmt.Errorf("build spec: empty image reference")
	}
	for _, m := range insp.Mounts {
		if m.Source == "" || m.Destination == "" {
			return runtime.Spec{}, fmt.Errorf("build spec: malformed mount %q:%q", m.Source, m.Destination)
		}
	}
	for _, e := range insp.Env {
		if !strings.Contains(e, "=") {
			return runtime.Spec{}, fmt.Errorf("build spec: malformed env entry %q", e)
		}
	}
	for _, p := range insp.Ports {
		if p.ContainerPort == "" || p.HostPort == "" {
			return runtime.Spec{}, fmt.Errorf("build spec: malformed port binding %+v", p)
		}
	}
	return runtime.Spec{
		Mounts:        insp.Mounts,
		Env:           FilterEnv(insp.Env),
		Ports:         insp.Ports,
		RestartPolicy: insp.RestartPolicy,
		Image:         image,
		Args:          insp.Args,
	}, nil
}

// Extract inspects a running container and builds the task recreating it
// from the given image reference. Read-only: the single side effect is the
// inspect query.
func Extract(ctx context.Context, rt runtime.Runtime, c runtime.ContainerSnapshot, image string) (runtime.Task, error) {
	insp, err := rt.Inspect(ctx, c.ID)
	if err != nil {
		return runtime.Task{}, fmt.Errorf("inspect container %s: %w", c.ID, err)
	}
	spec, err := BuildSpec(insp, image)
	if err != nil {
		return runtime.Task{}, fmt.Errorf("container %s: %w", c.ID, err)
	}
	task := runtime.Task{OldID: c.ID, Spec: spec, CommandLine: spec.CommandLine()}
	logging.Get().Debug().Str("container", c.ID).Str("cmdline", task.CommandLine).Msg("extracted recreation spec")
	return task, nil
}
