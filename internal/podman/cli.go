// Package podman implements the runtime adapter by shelling out to the
// podman binary and decoding its JSON output. It is the default adapter;
// process invocation is abstracted behind an injectable command runner so
// the decoding and argument construction stay testable.
package podman

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/sycured/podhawk/internal/logging"
	"github.com/sycured/podhawk/internal/runtime"
)

// execFunc runs a command and returns its combined output.
type execFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func combinedOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// CLI is the podman command-line adapter.
type CLI struct {
	bin  string
	exec execFunc
}

// New returns an adapter invoking the given podman binary.
func New(bin string) *CLI {
	if bin == "" {
		bin = "podman"
	}
	return &CLI{bin: bin, exec: combinedOutput}
}

var _ runtime.Runtime = (*CLI)(nil)

func (c *CLI) run(ctx context.Context, args ...string) (string, error) {
	out, err := c.exec(ctx, c.bin, args...)
	text := strings.TrimSpace(string(out))
	if err != nil {
		return text, fmt.Errorf("%s %s: %w (output: %s)", c.bin, strings.Join(args, " "), err, text)
	}
	return text, nil
}

// imageJSON matches `podman images --format json`. Decoding is
// case-insensitive, covering both historic lowercase and current
// capitalized field names.
type imageJSON struct {
	ID     string   `json:"id"`
	Names  []string `json:"names"`
	Digest string   `json:"digest"`
}

func (c *CLI) ListImages(ctx context.Context) ([]runtime.ImageRef, error) {
	out, err := c.run(ctx, "images", "--format", "json")
	if err != nil {
		return nil, err
	}
	var imgs []imageJSON
	if err := json.Unmarshal([]byte(out), &imgs); err != nil {
		return nil, fmt.Errorf("decode images listing: %w", err)
	}
	refs := make([]runtime.ImageRef, 0, len(imgs))
	for _, img := range imgs {
		if len(img.Names) == 0 {
			// untagged (dangling) image; nothing to pull by name
			continue
		}
		refs = append(refs, runtime.ImageRef{ID: img.ID, Name: img.Names[0], Digest: img.Digest})
	}
	return refs, nil
}

// psJSON matches `podman ps --format json`.
type psJSON struct {
	ID     string            `json:"id"`
	Image  string            `json:"image"`
	Status string            `json:"status"`
	State  string            `json:"state"`
	Labels map[string]string `json:"labels"`
}

func (c *CLI) ListContainers(ctx context.Context) ([]runtime.ContainerSnapshot, error) {
	out, err := c.run(ctx, "ps", "--format", "json")
	if err != nil {
		return nil, err
	}
	var list []psJSON
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		return nil, fmt.Errorf("decode container listing: %w", err)
	}
	snaps := make([]runtime.ContainerSnapshot, 0, len(list))
	for _, entry := range list {
		status := entry.Status
		if status == "" {
			status = entry.State
		}
		snaps = append(snaps, runtime.ContainerSnapshot{
			ID:     entry.ID,
			Image:  entry.Image,
			Status: status,
			Labels: entry.Labels,
		})
	}
	return snaps, nil
}

// inspectJSON matches one element of `podman inspect --format json`.
type inspectJSON struct {
	ImageName string `json:"ImageName"`
	Args      []string
	Config    struct {
		Env    []string
		Labels map[string]string
	}
	HostConfig struct {
		RestartPolicy struct {
			Name string
		}
	}
	Mounts []struct {
		Source      string
		Destination string
	}
	NetworkSettings struct {
		Ports map[string][]struct {
			HostIP   string `json:"HostIp"`
			HostPort string `json:"HostPort"`
		}
	}
}

func (c *CLI) Inspect(ctx context.Context, containerID string) (runtime.Inspection, error) {
	out, err := c.run(ctx, "inspect", "--format", "json", containerID)
	if err != nil {
		return runtime.Inspection{}, err
	}
	var arr []inspectJSON
	if err := json.Unmarshal([]byte(out), &arr); err != nil {
		return runtime.Inspection{}, fmt.Errorf("decode inspect output for %s: %w", containerID, err)
	}
	if len(arr) == 0 {
		return runtime.Inspection{}, fmt.Errorf("inspect %s: empty result", containerID)
	}
	raw := arr[0]

	insp := runtime.Inspection{
		Image:         raw.ImageName,
		Env:           raw.Config.Env,
		RestartPolicy: raw.HostConfig.RestartPolicy.Name,
		Args:          raw.Args,
		Labels:        raw.Config.Labels,
	}
	for _, m := range raw.Mounts {
		insp.Mounts = append(insp.Mounts, runtime.Mount{Source: m.Source, Destination: m.Destination})
	}
	insp.Ports = flattenPorts(raw)
	return insp, nil
}

// flattenPorts turns podman's "80/tcp" keyed port map into an ordered
// binding list. Keys are sorted for deterministic output.
func flattenPorts(raw inspectJSON) []runtime.PortBinding {
	keys := make([]string, 0, len(raw.NetworkSettings.Ports))
	for k := range raw.NetworkSettings.Ports {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []runtime.PortBinding
	for _, k := range keys {
		containerPort := strings.SplitN(k, "/", 2)[0]
		for _, b := range raw.NetworkSettings.Ports[k] {
			out = append(out, runtime.PortBinding{
				HostIP:        b.HostIP,
				HostPort:      b.HostPort,
				ContainerPort: containerPort,
			})
		}
	}
	return out
}

func (c *CLI) Pull(ctx context.Context, nameTag string) (string, error) {
	out, err := c.run(ctx, "pull", "-q", nameTag)
	if err != nil {
		return "", err
	}
	// -q prints the image ID as the last (only) line
	lines := strings.Split(out, "\n")
	return strings.TrimSpace(lines[len(lines)-1]), nil
}

func (c *CLI) Stop(ctx context.Context, containerID string) (string, error) {
	return c.run(ctx, "stop", containerID)
}

func (c *CLI) Start(ctx context.Context, containerID string) (string, error) {
	return c.run(ctx, "start", containerID)
}

func (c *CLI) Run(ctx context.Context, task runtime.Task) (string, error) {
	args := append([]string{"run", "-d"}, task.Spec.Render()...)
	out, err := c.run(ctx, args...)
	if err != nil {
		return "", err
	}
	lines := strings.Split(out, "\n")
	newID := strings.TrimSpace(lines[len(lines)-1])
	if newID == "" {
		return "", fmt.Errorf("run: no container id in output %q", out)
	}
	return newID, nil
}

func (c *CLI) Remove(ctx context.Context, containerID string) (string, error) {
	return c.run(ctx, "rm", containerID)
}

// Healthcheck probes a container once. podman exits non-zero for unhealthy
// containers and for images without a healthcheck; in both cases the status
// text carries the answer, so output is returned for classification and the
// exit error is only surfaced when there is no output at all.
func (c *CLI) Healthcheck(ctx context.Context, containerID string) (string, error) {
	out, err := c.run(ctx, "healthcheck", "run", containerID)
	if err != nil && out == "" {
		return "", err
	}
	if err != nil {
		logging.Get().Debug().Str("container", containerID).Str("output", out).Msg("healthcheck probe exited non-zero")
	}
	return out, nil
}
