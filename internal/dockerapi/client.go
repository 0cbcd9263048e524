// Package dockerapi implements the runtime adapter on the Docker Engine
// API. Podman exposes a compatible socket, so the same adapter drives
// either engine when the CLI path is not wanted.
package dockerapi

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	containertypes "github.com/docker/docker/api/types/container"
	imageapi "github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/sycured/podhawk/internal/logging"
	"github.com/sycured/podhawk/internal/runtime"
)

// engineAPI is the narrow slice of the SDK client the adapter needs.
// Keeping it an interface lets tests substitute a fake engine.
type engineAPI interface {
	ImageList(ctx context.Context, options imageapi.ListOptions) ([]imageapi.Summary, error)
	ImagePull(ctx context.Context, refStr string, options imageapi.PullOptions) (io.ReadCloser, error)
	ImageInspectWithRaw(ctx context.Context, image string) (types.ImageInspect, []byte, error)
	ContainerList(ctx context.Context, options containertypes.ListOptions) ([]types.Container, error)
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	ContainerCreate(ctx context.Context, config *containertypes.Config, hostConfig *containertypes.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (containertypes.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options containertypes.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options containertypes.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options containertypes.RemoveOptions) error
}

const (
	healthPollRetries  = 30
	healthPollInterval = 2 * time.Second
)

// Client is the Engine API runtime adapter.
type Client struct {
	api          engineAPI
	pollInterval time.Duration
	pollRetries  int
}

var _ runtime.Runtime = (*Client)(nil)

// NewClient connects using the environment (DOCKER_HOST et al) and
// negotiates the API version with the engine.
func NewClient() (*Client, error) {
	c, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("engine client: %w", err)
	}
	return &Client{api: c, pollInterval: healthPollInterval, pollRetries: healthPollRetries}, nil
}

func (c *Client) ListImages(ctx context.Context) ([]runtime.ImageRef, error) {
	summaries, err := c.api.ImageList(ctx, imageapi.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	refs := make([]runtime.ImageRef, 0, len(summaries))
	for _, s := range summaries {
		if len(s.RepoTags) == 0 || s.RepoTags[0] == "<none>:<none>" {
			continue
		}
		digest := ""
		if len(s.RepoDigests) > 0 {
			digest = s.RepoDigests[0]
		}
		refs = append(refs, runtime.ImageRef{ID: s.ID, Name: s.RepoTags[0], Digest: digest})
	}
	return refs, nil
}

func (c *Client) ListContainers(ctx context.Context) ([]runtime.ContainerSnapshot, error) {
	list, err := c.api.ContainerList(ctx, containertypes.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}
	snaps := make([]runtime.ContainerSnapshot, 0, len(list))
	for _, ctn := range list {
		status := ctn.Status
		if status == "" {
			status = ctn.State
		}
		snaps = append(snaps, runtime.ContainerSnapshot{
			ID:     ctn.ID,
			Image:  ctn.Image,
			Status: status,
			Labels: ctn.Labels,
		})
	}
	return snaps, nil
}

func (c *Client) Inspect(ctx context.Context, containerID string) (runtime.Inspection, error) {
	insp, err := c.api.ContainerInspect(ctx, containerID)
	if err != nil {
		return runtime.Inspection{}, fmt.Errorf("inspect container %s: %w", containerID, err)
	}
	out := runtime.Inspection{Args: insp.Args}
	if insp.Config != nil {
		out.Image = insp.Config.Image
		out.Env = insp.Config.Env
		out.Labels = insp.Config.Labels
	}
	if insp.HostConfig != nil {
		out.RestartPolicy = string(insp.HostConfig.RestartPolicy.Name)
	}
	for _, m := range insp.Mounts {
		out.Mounts = append(out.Mounts, runtime.Mount{Source: m.Source, Destination: m.Destination})
	}
	if insp.NetworkSettings != nil {
		out.Ports = flattenPortMap(insp.NetworkSettings.Ports)
	}
	return out, nil
}

// flattenPortMap orders bindings by container port for deterministic output.
func flattenPortMap(pm nat.PortMap) []runtime.PortBinding {
	keys := make([]string, 0, len(pm))
	for k := range pm {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	var out []runtime.PortBinding
	for _, k := range keys {
		port := nat.Port(k)
		for _, b := range pm[port] {
			out = append(out, runtime.PortBinding{
				HostIP:        b.HostIP,
				HostPort:      b.HostPort,
				ContainerPort: port.Port(),
			})
		}
	}
	return out
}

func (c *Client) Pull(ctx context.Context, nameTag string) (string, error) {
	logging.Get().Info().Str("image", nameTag).Msg("pulling image")
	rc, err := c.api.ImagePull(ctx, nameTag, imageapi.PullOptions{})
	if err != nil {
		return "", fmt.Errorf("image pull %s: %w", nameTag, err)
	}
	defer rc.Close()
	// consume stream to completion
	_, _ = io.Copy(io.Discard, rc)

	inspected, _, err := c.api.ImageInspectWithRaw(ctx, nameTag)
	if err != nil {
		return "", fmt.Errorf("inspect image %s: %w", nameTag, err)
	}
	return inspected.ID, nil
}

func (c *Client) Stop(ctx context.Context, containerID string) (string, error) {
	if err := c.api.ContainerStop(ctx, containerID, containertypes.StopOptions{}); err != nil {
		return "", fmt.Errorf("stop container %s: %w", containerID, err)
	}
	return containerID, nil
}

func (c *Client) Start(ctx context.Context, containerID string) (string, error) {
	if err := c.api.ContainerStart(ctx, containerID, containertypes.StartOptions{}); err != nil {
		return "", fmt.Errorf("start container %s: %w", containerID, err)
	}
	return containerID, nil
}

func (c *Client) Run(ctx context.Context, task runtime.Task) (string, error) {
	spec := task.Spec
	cfg := &containertypes.Config{
		Image: spec.Image,
		Env:   spec.Env,
		Cmd:   spec.Args,
	}
	hostCfg := &containertypes.HostConfig{}
	for _, m := range spec.Mounts {
		hostCfg.Binds = append(hostCfg.Binds, m.Source+":"+m.Destination)
	}
	if spec.RestartPolicy != "" {
		hostCfg.RestartPolicy = containertypes.RestartPolicy{
			Name: containertypes.RestartPolicyMode(spec.RestartPolicy),
		}
	}
	if len(spec.Ports) > 0 {
		exposed := nat.PortSet{}
		bindings := nat.PortMap{}
		for _, p := range spec.Ports {
			port := nat.Port(p.ContainerPort + "/tcp")
			exposed[port] = struct{}{}
			bindings[port] = append(bindings[port], nat.PortBinding{
				HostIP:   p.HostIP,
				HostPort: p.HostPort,
			})
		}
		cfg.ExposedPorts = exposed
		hostCfg.PortBindings = bindings
	}

	resp, err := c.api.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("create container from %s: %w", spec.Image, err)
	}
	if err := c.api.ContainerStart(ctx, resp.ID, containertypes.StartOptions{}); err != nil {
		return "", fmt.Errorf("start container %s: %w", resp.ID, err)
	}
	return resp.ID, nil
}

func (c *Client) Remove(ctx context.Context, containerID string) (string, error) {
	if err := c.api.ContainerRemove(ctx, containerID, containertypes.RemoveOptions{}); err != nil {
		return "", fmt.Errorf("remove container %s: %w", containerID, err)
	}
	return containerID, nil
}

// Healthcheck reads the engine's own health state instead of invoking a
// probe process. Containers without a configured healthcheck report as
// much so the caller can skip verification. A fresh container stays in
// "starting" until its first probe interval elapses; that is not a verdict
// yet, so the adapter polls until the state resolves. A container still
// starting when the budget runs out counts as a failed probe.
func (c *Client) Healthcheck(ctx context.Context, containerID string) (string, error) {
	interval := c.pollInterval
	if interval <= 0 {
		interval = healthPollInterval
	}
	retries := c.pollRetries
	if retries < 1 {
		retries = healthPollRetries
	}
	for attempt := 0; ; attempt++ {
		insp, err := c.api.ContainerInspect(ctx, containerID)
		if err != nil {
			return "", fmt.Errorf("inspect container %s: %w", containerID, err)
		}
		if insp.State == nil || insp.State.Health == nil {
			return fmt.Sprintf("container %s has no defined healthcheck", containerID), nil
		}
		status := strings.ToLower(insp.State.Health.Status)
		if status != "starting" {
			return status, nil
		}
		if attempt >= retries {
			return "", fmt.Errorf("container %s health still starting after %d polls", containerID, retries)
		}
		logging.Get().Debug().Str("container", containerID).Int("attempt", attempt+1).Msg("health state still starting; waiting")
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(interval):
		}
	}
}
