// Package registry talks to image registries without an engine: it
// resolves semver tag policies against the live tag list and compares
// remote digests so unchanged images can skip the pull entirely.
package registry

import (
	"context"
	"fmt"
	"sort"

	mvc "github.com/Masterminds/semver/v3"
	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
)

// listTagsFunc lists all tags of a repository. Tests substitute a canned
// implementation; production uses the registry API.
type listTagsFunc func(ctx context.Context, repo name.Repository) ([]string, error)

type Resolver struct {
	// relies on standard docker config (~/.docker/config.json)
	keychain authn.Keychain
	listTags listTagsFunc
}

func NewResolver() *Resolver {
	r := &Resolver{keychain: authn.DefaultKeychain}
	r.listTags = func(ctx context.Context, repo name.Repository) ([]string, error) {
		return remote.List(repo, remote.WithAuthFromKeychain(r.keychain), remote.WithContext(ctx))
	}
	return r
}

// Resolve returns the best matching image tag for the policy constraint.
// image: "postgres:14.1", policy: "14.x" or "^14.0" -> "postgres:14.5"
// when 14.5 is the highest matching tag in the registry.
func (r *Resolver) Resolve(ctx context.Context, image string, policy string) (string, error) {
	constraint, err := mvc.NewConstraint(policy)
	if err != nil {
		return "", fmt.Errorf("invalid semver policy %q: %w", policy, err)
	}

	ref, err := name.ParseReference(image)
	if err != nil {
		return "", fmt.Errorf("invalid image reference %q: %w", image, err)
	}
	repo := ref.Context()

	tags, err := r.listTags(ctx, repo)
	if err != nil {
		return "", fmt.Errorf("list tags for %s: %w", repo.Name(), err)
	}

	tag, err := selectHighestTag(tags, constraint)
	if err != nil {
		return "", fmt.Errorf("%w for %s", err, repo.Name())
	}
	return fmt.Sprintf("%s:%s", repo.Name(), tag), nil
}

// selectHighestTag filters tags against the constraint and returns the
// highest matching one, preserving the registry's exact formatting
// (e.g. "v1.0" vs "1.0").
func selectHighestTag(tags []string, constraint *mvc.Constraints) (string, error) {
	var versions []*mvc.Version
	originalTags := make(map[string]string)

	for _, t := range tags {
		v, err := mvc.NewVersion(t)
		if err != nil {
			continue // skip non-semver tags (e.g. "latest", "alpine")
		}
		if constraint.Check(v) {
			versions = append(versions, v)
			originalTags[v.Original()] = t
		}
	}
	if len(versions) == 0 {
		return "", fmt.Errorf("no tags matching policy %q", constraint.String())
	}

	sort.Sort(mvc.Collection(versions))
	highest := versions[len(versions)-1]

	tag := originalTags[highest.Original()]
	if tag == "" {
		tag = highest.Original()
	}
	return tag, nil
}
