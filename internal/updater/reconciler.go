package updater

import "github.com/sycured/podhawk/internal/runtime"

// Candidate pairs a running container with the image reference its
// replacement should run.
type Candidate struct {
	Container runtime.ContainerSnapshot
	Target    string
}

// Select returns the running containers whose image matches an updated
// reference, paired with that update's target. Pure filter: deterministic,
// order-preserving with respect to the container list, no side effects.
func Select(containers []runtime.ContainerSnapshot, updates []ImageUpdate) []Candidate {
	targets := make(map[string]string, len(updates))
	for _, u := range updates {
		targets[u.Ref] = u.Target
	}
	out := make([]Candidate, 0, len(containers))
	for _, c := range containers {
		if !c.IsRunning() {
			continue
		}
		if target, ok := targets[c.Image]; ok {
			out = append(out, Candidate{Container: c, Target: target})
		}
	}
	return out
}
