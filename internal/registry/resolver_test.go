package registry

import (
	"context"
	"errors"
	"testing"

	mvc "github.com/Masterminds/semver/v3"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
)

func TestSelectHighestTag(t *testing.T) {
	cases := []struct {
		name    string
		tags    []string
		policy  string
		want    string
		wantErr bool
	}{
		{
			name:   "caret constraint picks highest minor",
			tags:   []string{"14.1", "14.5", "15.0", "latest"},
			policy: "^14.0",
			want:   "14.5",
		},
		{
			name:   "wildcard constraint",
			tags:   []string{"1.0.0", "1.2.3", "2.0.0"},
			policy: "1.x",
			want:   "1.2.3",
		},
		{
			name:   "preserves v prefix",
			tags:   []string{"v1.0.0", "v1.1.0"},
			policy: ">=1.0.0",
			want:   "v1.1.0",
		},
		{
			name:   "non-semver tags skipped",
			tags:   []string{"alpine", "bullseye", "3.19"},
			policy: "^3.0",
			want:   "3.19",
		},
		{
			name:    "nothing matches",
			tags:    []string{"1.0.0", "latest"},
			policy:  "^2.0",
			wantErr: true,
		},
		{
			name:    "empty tag list",
			tags:    nil,
			policy:  "^1.0",
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			constraint, err := mvc.NewConstraint(tc.policy)
			if err != nil {
				t.Fatalf("constraint: %v", err)
			}
			got, err := selectHighestTag(tc.tags, constraint)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("selectHighestTag: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestResolveUsesTagList(t *testing.T) {
	r := &Resolver{listTags: func(_ context.Context, repo name.Repository) ([]string, error) {
		return []string{"14.1", "14.5", "15.0"}, nil
	}}
	got, err := r.Resolve(context.Background(), "postgres:14.1", "^14.0")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := "index.docker.io/library/postgres:14.5"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestResolveInvalidPolicy(t *testing.T) {
	r := &Resolver{}
	if _, err := r.Resolve(context.Background(), "postgres:14.1", "not a policy"); err == nil {
		t.Fatal("expected error for invalid policy")
	}
}

func TestResolveListFailure(t *testing.T) {
	r := &Resolver{listTags: func(_ context.Context, _ name.Repository) ([]string, error) {
		return nil, errors.New("registry unreachable")
	}}
	if _, err := r.Resolve(context.Background(), "postgres:14.1", "^14.0"); err == nil {
		t.Fatal("expected error when tag listing fails")
	}
}

func TestCheckerUnchanged(t *testing.T) {
	digest := "sha256:0000000000000000000000000000000000000000000000000000000000000001"
	hash, err := v1.NewHash(digest)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	c := &Checker{head: func(_ context.Context, _ name.Reference) (*v1.Descriptor, error) {
		return &v1.Descriptor{Digest: hash}, nil
	}}
	ctx := context.Background()

	unchanged, err := c.Unchanged(ctx, "nginx:latest", digest)
	if err != nil {
		t.Fatalf("Unchanged: %v", err)
	}
	if !unchanged {
		t.Error("matching digest should report unchanged")
	}

	unchanged, err = c.Unchanged(ctx, "nginx:latest", "docker.io/library/nginx@"+digest)
	if err != nil {
		t.Fatalf("Unchanged repo-qualified: %v", err)
	}
	if !unchanged {
		t.Error("repo-qualified digest should match after trimming")
	}

	unchanged, err = c.Unchanged(ctx, "nginx:latest", "sha256:0000000000000000000000000000000000000000000000000000000000000002")
	if err != nil {
		t.Fatalf("Unchanged mismatch: %v", err)
	}
	if unchanged {
		t.Error("different digest should report changed")
	}
}

func TestCheckerEmptyLocalDigest(t *testing.T) {
	c := &Checker{head: func(_ context.Context, _ name.Reference) (*v1.Descriptor, error) {
		t.Fatal("head should not be called for empty local digest")
		return nil, nil
	}}
	unchanged, err := c.Unchanged(context.Background(), "nginx:latest", "")
	if err != nil {
		t.Fatalf("Unchanged: %v", err)
	}
	if unchanged {
		t.Error("empty local digest can never be unchanged")
	}
}

func TestCheckerHeadFailure(t *testing.T) {
	c := &Checker{head: func(_ context.Context, _ name.Reference) (*v1.Descriptor, error) {
		return nil, errors.New("registry unreachable")
	}}
	if _, err := c.Unchanged(context.Background(), "nginx:latest", "sha256:abc"); err == nil {
		t.Fatal("expected error when head fails")
	}
}
