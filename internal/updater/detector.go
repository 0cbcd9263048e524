package updater

import (
	"context"
	"strings"

	"github.com/sycured/podhawk/internal/logging"
	"github.com/sycured/podhawk/internal/metrics"
	"github.com/sycured/podhawk/internal/runtime"
)

// ImageUpdate records one image found to have a newer version. Ref is the
// reference containers currently run; Target is the reference replacements
// should run. They differ only when a semver policy resolved a newer tag.
type ImageUpdate struct {
	Ref    string
	Target string
}

// TagResolver resolves a semver policy against the registry and returns the
// best matching image reference.
type TagResolver interface {
	Resolve(ctx context.Context, image, policy string) (string, error)
}

// DigestChecker reports whether the remote manifest digest still matches a
// locally recorded one, allowing the pull to be skipped.
type DigestChecker interface {
	Unchanged(ctx context.Context, image, localDigest string) (bool, error)
}

// Detector pulls each tracked image and determines which ones changed.
type Detector struct {
	rt       runtime.Runtime
	policies map[string]string
	resolver TagResolver   // nil disables policy resolution
	precheck DigestChecker // nil disables the remote digest pre-check
}

// NewDetector builds a detector. resolver and precheck may be nil.
func NewDetector(rt runtime.Runtime, policies map[string]string, resolver TagResolver, precheck DigestChecker) *Detector {
	return &Detector{rt: rt, policies: policies, resolver: resolver, precheck: precheck}
}

// Detect evaluates every tracked image in input order and returns the
// updated ones, preserving that order. A failure on one image never aborts
// evaluation of the rest.
func (d *Detector) Detect(ctx context.Context, images []runtime.ImageRef) []ImageUpdate {
	updates := make([]ImageUpdate, 0)
	for _, img := range images {
		logging.Get().Info().Str("image", img.Name).Msg("evaluating image")
		target := d.resolveTarget(ctx, img)
		// The resolver normalizes the repository host (docker.io becomes
		// index.docker.io), so only the tag tells whether the policy picked
		// something newer than what the container already runs.
		if tagOf(target) != tagOf(img.Name) {
			// A newer tag always means an update, no ID comparison needed.
			if _, err := d.pull(ctx, target); err != nil {
				continue
			}
			logging.Get().Info().Str("image", img.Name).Str("target", target).Msg("image updated to newer tag")
			updates = append(updates, ImageUpdate{Ref: img.Name, Target: target})
			continue
		}
		if d.remoteUnchanged(ctx, img) {
			continue
		}
		pulledID, err := d.pull(ctx, img.Name)
		if err != nil {
			continue
		}
		if pulledID != img.ID {
			logging.Get().Info().Str("image", img.Name).Str("old_id", img.ID).Str("new_id", pulledID).Msg("image updated")
			updates = append(updates, ImageUpdate{Ref: img.Name, Target: img.Name})
		}
	}
	return updates
}

// resolveTarget applies a configured semver policy, if any. Resolution
// failures fall back to the current reference.
func (d *Detector) resolveTarget(ctx context.Context, img runtime.ImageRef) string {
	if d.resolver == nil || len(d.policies) == 0 {
		return img.Name
	}
	policy, ok := d.policies[repoOf(img.Name)]
	if !ok || policy == "" {
		return img.Name
	}
	resolved, err := d.resolver.Resolve(ctx, img.Name, policy)
	if err != nil {
		logging.Get().Warn().Err(err).Str("image", img.Name).Str("policy", policy).Msg("semver policy resolution failed; keeping current tag")
		return img.Name
	}
	return resolved
}

// remoteUnchanged runs the optional digest pre-check. Any error falls back
// to pulling.
func (d *Detector) remoteUnchanged(ctx context.Context, img runtime.ImageRef) bool {
	if d.precheck == nil || img.Digest == "" {
		return false
	}
	unchanged, err := d.precheck.Unchanged(ctx, img.Name, img.Digest)
	if err != nil {
		logging.Get().Debug().Err(err).Str("image", img.Name).Msg("digest pre-check failed; pulling anyway")
		return false
	}
	if unchanged {
		logging.Get().Debug().Str("image", img.Name).Msg("remote digest unchanged; skipping pull")
		metrics.IncPrecheckSkip()
	}
	return unchanged
}

func (d *Detector) pull(ctx context.Context, image string) (string, error) {
	id, err := d.rt.Pull(ctx, image)
	if err != nil {
		logging.Get().Error().Err(err).Str("image", image).Msg("failed pulling image")
		metrics.IncImagePullFailure()
		return "", err
	}
	metrics.IncImagePullSuccess()
	return id, nil
}

// tagOf returns the tag portion of an image reference, empty when none or
// when the reference is digest-pinned.
func tagOf(image string) string {
	if strings.Contains(image, "@") {
		return ""
	}
	lastSlash := strings.LastIndex(image, "/")
	lastColon := strings.LastIndex(image, ":")
	if lastColon == -1 || lastColon < lastSlash {
		return ""
	}
	return image[lastColon+1:]
}

// repoOf strips the tag from an image reference, "registry/repo:tag" to
// "registry/repo". Digest-pinned references are returned unchanged.
func repoOf(image string) string {
	if strings.Contains(image, "@") {
		return image
	}
	lastSlash := strings.LastIndex(image, "/")
	lastColon := strings.LastIndex(image, ":")
	if lastColon == -1 || lastColon < lastSlash {
		return image
	}
	return image[:lastColon]
}
