package runtime

import "strings"

// ImageRef is a point-in-time fact about a local image. Identity is the
// content ID: a changed ID for the same name:tag means the image was updated.
type ImageRef struct {
	ID   string
	Name string
	// Digest is the repo digest when the engine reports one; it feeds the
	// optional remote pre-check and may be empty.
	Digest string
}

// ContainerSnapshot is a point-in-time fact about a container, produced by
// listing. Only running containers are eligible for recreation.
type ContainerSnapshot struct {
	ID     string
	Image  string
	Status string
	Labels map[string]string
}

// IsRunning reports whether the snapshot's status indicates a running
// container. Podman's ps reports either an uptime ("Up 3 hours") or a
// bare state ("running") depending on version.
func (c ContainerSnapshot) IsRunning() bool {
	return strings.Contains(c.Status, "Up") || strings.EqualFold(c.Status, "running")
}

// Mount is a source-to-destination bind preserved across recreation.
type Mount struct {
	Source      string
	Destination string
}

// PortBinding maps a host port to a container port. HostIP may be empty.
type PortBinding struct {
	HostIP        string
	HostPort      string
	ContainerPort string
}

// Inspection is the structured metadata the engine exposes for one
// container, in the shape the spec extractor consumes.
type Inspection struct {
	Image         string
	Mounts        []Mount
	Env           []string
	Ports         []PortBinding
	RestartPolicy string
	Args          []string
	Labels        map[string]string
}

// Spec is the reconstructed configuration needed to start an equivalent
// replacement container: the recreation specification.
type Spec struct {
	Mounts        []Mount
	Env           []string
	Ports         []PortBinding
	RestartPolicy string
	Image         string
	Args          []string
}

// Render returns the argument vector recreating the container: mounts, env,
// ports, restart policy, image, then the original invocation arguments.
// Empty categories contribute no tokens at all.
func (s Spec) Render() []string {
	args := make([]string, 0, 2*(len(s.Mounts)+len(s.Env)+len(s.Ports))+2+len(s.Args))
	for _, m := range s.Mounts {
		args = append(args, "-v", m.Source+":"+m.Destination)
	}
	for _, e := range s.Env {
		args = append(args, "-e", e)
	}
	for _, p := range s.Ports {
		args = append(args, "-p", p.Format())
	}
	if s.RestartPolicy != "" {
		args = append(args, "--restart="+s.RestartPolicy)
	}
	args = append(args, s.Image)
	args = append(args, s.Args...)
	return args
}

// CommandLine returns the rendered spec as a single space-joined string.
func (s Spec) CommandLine() string {
	return strings.Join(s.Render(), " ")
}

// Format renders the binding as host:container, prefixed with the host IP
// when one is set.
func (p PortBinding) Format() string {
	if p.HostIP != "" {
		return p.HostIP + ":" + p.HostPort + ":" + p.ContainerPort
	}
	return p.HostPort + ":" + p.ContainerPort
}
