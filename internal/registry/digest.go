package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/remote"
)

// headFunc fetches the manifest descriptor of a reference without
// downloading any layers.
type headFunc func(ctx context.Context, ref name.Reference) (*v1.Descriptor, error)

// Checker answers whether the registry still serves the digest a local
// image was pulled from.
type Checker struct {
	keychain authn.Keychain
	head     headFunc
}

func NewChecker() *Checker {
	c := &Checker{keychain: authn.DefaultKeychain}
	c.head = func(ctx context.Context, ref name.Reference) (*v1.Descriptor, error) {
		return remote.Head(ref, remote.WithAuthFromKeychain(c.keychain), remote.WithContext(ctx))
	}
	return c
}

// Unchanged reports whether the remote manifest digest for the reference
// equals localDigest. A mismatch or an empty local digest means a pull
// is warranted.
func (c *Checker) Unchanged(ctx context.Context, image string, localDigest string) (bool, error) {
	if localDigest == "" {
		return false, nil
	}
	ref, err := name.ParseReference(image)
	if err != nil {
		return false, fmt.Errorf("invalid image reference %q: %w", image, err)
	}
	desc, err := c.head(ctx, ref)
	if err != nil {
		return false, fmt.Errorf("head %s: %w", image, err)
	}
	return digestMatches(desc.Digest.String(), localDigest), nil
}

// digestMatches compares a remote manifest digest against the local digest
// string, which engines report either bare ("sha256:...") or repo-qualified
// ("repo@sha256:...").
func digestMatches(remoteDigest, localDigest string) bool {
	if i := strings.LastIndex(localDigest, "@"); i >= 0 {
		localDigest = localDigest[i+1:]
	}
	return remoteDigest == localDigest
}
