package updater

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"github.com/sycured/podhawk/internal/runtime"
)

func TestDetectorCollectsChangedImages(t *testing.T) {
	fr := &fakeRuntime{
		pullIDs: map[string]string{
			"nginx:latest": "sha256:new",
			"redis:7":      "sha256:same",
		},
	}
	d := NewDetector(fr, nil, nil, nil)

	images := []runtime.ImageRef{
		{ID: "sha256:old", Name: "nginx:latest"},
		{ID: "sha256:same", Name: "redis:7"},
	}
	got := d.Detect(context.Background(), images)
	want := []ImageUpdate{{Ref: "nginx:latest", Target: "nginx:latest"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Detect() = %v, want %v", got, want)
	}
}

func TestDetectorPullFailureDoesNotAbortBatch(t *testing.T) {
	fr := &fakeRuntime{
		pullIDs:  map[string]string{"b:1": "sha256:new-b"},
		pullErrs: map[string]error{"a:1": fmt.Errorf("registry unreachable")},
	}
	d := NewDetector(fr, nil, nil, nil)

	images := []runtime.ImageRef{
		{ID: "sha256:a", Name: "a:1"},
		{ID: "sha256:b", Name: "b:1"},
	}
	got := d.Detect(context.Background(), images)
	want := []ImageUpdate{{Ref: "b:1", Target: "b:1"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("pull failure for a:1 must not shadow b:1; got %v", got)
	}
}

func TestDetectorPreservesInputOrder(t *testing.T) {
	fr := &fakeRuntime{
		pullIDs: map[string]string{
			"a:1": "sha256:new-a",
			"b:1": "sha256:new-b",
			"c:1": "sha256:new-c",
		},
	}
	d := NewDetector(fr, nil, nil, nil)

	images := []runtime.ImageRef{
		{ID: "sha256:a", Name: "a:1"},
		{ID: "sha256:b", Name: "b:1"},
		{ID: "sha256:c", Name: "c:1"},
	}
	got := d.Detect(context.Background(), images)
	want := []ImageUpdate{
		{Ref: "a:1", Target: "a:1"},
		{Ref: "b:1", Target: "b:1"},
		{Ref: "c:1", Target: "c:1"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Detect() = %v, want deterministic input order %v", got, want)
	}
}

type fakeResolver struct {
	resolved string
	err      error
}

func (f *fakeResolver) Resolve(ctx context.Context, image, policy string) (string, error) {
	return f.resolved, f.err
}

func TestDetectorPolicyResolvesNewTag(t *testing.T) {
	fr := &fakeRuntime{pullIDs: map[string]string{"postgres:14.5": "sha256:new"}}
	policies := map[string]string{"postgres": "14.x"}
	d := NewDetector(fr, policies, &fakeResolver{resolved: "postgres:14.5"}, nil)

	images := []runtime.ImageRef{{ID: "sha256:old", Name: "postgres:14.1"}}
	got := d.Detect(context.Background(), images)
	want := []ImageUpdate{{Ref: "postgres:14.1", Target: "postgres:14.5"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Detect() = %v, want %v", got, want)
	}
}

func TestDetectorPolicySameTagNormalizedRepo(t *testing.T) {
	// The live resolver reconstructs references from the normalized registry
	// host, so selecting the tag already running must not read as an update.
	fr := &fakeRuntime{
		pullIDs: map[string]string{"docker.io/library/postgres:14.1": "sha256:same"},
	}
	policies := map[string]string{"docker.io/library/postgres": "14.x"}
	d := NewDetector(fr, policies, &fakeResolver{resolved: "index.docker.io/library/postgres:14.1"}, nil)

	images := []runtime.ImageRef{{ID: "sha256:same", Name: "docker.io/library/postgres:14.1"}}
	got := d.Detect(context.Background(), images)
	if len(got) != 0 {
		t.Fatalf("same tag under a normalized repo is not an update; got %v", got)
	}
	for _, op := range fr.ops {
		if op == "pull index.docker.io/library/postgres:14.1" {
			t.Fatal("detector must pull the engine-reported reference, not the normalized one")
		}
	}

	// the plain ID comparison still applies on that path
	fr2 := &fakeRuntime{
		pullIDs: map[string]string{"docker.io/library/postgres:14.1": "sha256:new"},
	}
	d2 := NewDetector(fr2, policies, &fakeResolver{resolved: "index.docker.io/library/postgres:14.1"}, nil)
	got = d2.Detect(context.Background(), images)
	want := []ImageUpdate{{Ref: "docker.io/library/postgres:14.1", Target: "docker.io/library/postgres:14.1"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Detect() = %v, want %v", got, want)
	}
}

func TestDetectorPolicyFailureFallsBackToDigest(t *testing.T) {
	fr := &fakeRuntime{pullIDs: map[string]string{"postgres:14.1": "sha256:new"}}
	policies := map[string]string{"postgres": "14.x"}
	d := NewDetector(fr, policies, &fakeResolver{err: fmt.Errorf("registry listing failed")}, nil)

	images := []runtime.ImageRef{{ID: "sha256:old", Name: "postgres:14.1"}}
	got := d.Detect(context.Background(), images)
	want := []ImageUpdate{{Ref: "postgres:14.1", Target: "postgres:14.1"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Detect() = %v, want fallback to plain pull %v", got, want)
	}
}

type fakeChecker struct {
	unchanged bool
	err       error
	calls     int
}

func (f *fakeChecker) Unchanged(ctx context.Context, image, localDigest string) (bool, error) {
	f.calls++
	return f.unchanged, f.err
}

func TestDetectorPrecheckSkipsPull(t *testing.T) {
	fr := &fakeRuntime{}
	fc := &fakeChecker{unchanged: true}
	d := NewDetector(fr, nil, nil, fc)

	images := []runtime.ImageRef{{ID: "sha256:a", Name: "a:1", Digest: "sha256:digest-a"}}
	got := d.Detect(context.Background(), images)
	if len(got) != 0 {
		t.Fatalf("expected no updates, got %v", got)
	}
	if fc.calls != 1 {
		t.Fatalf("expected 1 pre-check call, got %d", fc.calls)
	}
	for _, op := range fr.ops {
		if op == "pull a:1" {
			t.Fatal("pull must be skipped when remote digest is unchanged")
		}
	}
}

func TestDetectorPrecheckErrorFallsBackToPull(t *testing.T) {
	fr := &fakeRuntime{pullIDs: map[string]string{"a:1": "sha256:new"}}
	fc := &fakeChecker{err: fmt.Errorf("HEAD failed")}
	d := NewDetector(fr, nil, nil, fc)

	images := []runtime.ImageRef{{ID: "sha256:a", Name: "a:1", Digest: "sha256:digest-a"}}
	got := d.Detect(context.Background(), images)
	want := []ImageUpdate{{Ref: "a:1", Target: "a:1"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Detect() = %v, want %v", got, want)
	}
}

func TestTagOf(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"nginx:latest", "latest"},
		{"docker.io/library/nginx:1.25", "1.25"},
		{"index.docker.io/library/nginx:1.25", "1.25"},
		{"localhost:5000/app:v2", "v2"},
		{"localhost:5000/app", ""},
		{"nginx", ""},
		{"repo@sha256:abc", ""},
	}
	for _, tt := range tests {
		if got := tagOf(tt.in); got != tt.want {
			t.Errorf("tagOf(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRepoOf(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"nginx:latest", "nginx"},
		{"docker.io/library/nginx:1.25", "docker.io/library/nginx"},
		{"localhost:5000/app:v2", "localhost:5000/app"},
		{"localhost:5000/app", "localhost:5000/app"},
		{"nginx", "nginx"},
		{"repo@sha256:abc", "repo@sha256:abc"},
	}
	for _, tt := range tests {
		if got := repoOf(tt.in); got != tt.want {
			t.Errorf("repoOf(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
