package artifact

import (
	"context"
	"testing"
	"time"

	"github.com/matzehuels/tracekit/pkg/cache"
	"github.com/matzehuels/tracekit/pkg/errors"
)

func TestCreateGetRelease(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, nil, 0)
	defer s.Close()

	a, err := s.Create(ctx, "photo.svg", "image/svg+xml", []byte("<svg/>"))
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if a.Handle == "" {
		t.Fatal("Create should assign a handle")
	}

	got, err := s.Get(ctx, a.Handle)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Filename != "photo.svg" || got.MediaType != "image/svg+xml" || string(got.Data) != "<svg/>" {
		t.Errorf("Get = %+v", got)
	}

	if err := s.Release(ctx, a.Handle); err != nil {
		t.Fatalf("Release error: %v", err)
	}
	if _, err := s.Get(ctx, a.Handle); !errors.Is(err, errors.ErrCodeArtifactNotFound) {
		t.Errorf("Get after Release error = %v, want ARTIFACT_NOT_FOUND", err)
	}

	if err := s.Release(ctx, a.Handle); err != nil {
		t.Errorf("second Release error: %v", err)
	}
	if err := s.Release(ctx, ""); err != nil {
		t.Errorf("Release(\"\") error: %v", err)
	}
}

func TestHandlesAreUnique(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, nil, 0)
	a, _ := s.Create(ctx, "a.svg", "image/svg+xml", nil)
	b, _ := s.Create(ctx, "a.svg", "image/svg+xml", nil)
	if a.Handle == b.Handle {
		t.Error("handles must be unique")
	}
}

func TestScopedKeys(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryCache()
	s := NewStore(c, cache.NewScopedKeyer(nil, "tracekit:"), time.Minute)

	a, err := s.Create(ctx, "a.svg", "image/svg+xml", []byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	if _, hit, _ := c.Get(ctx, "tracekit:artifact:"+a.Handle); !hit {
		t.Error("artifact should be stored under the scoped key")
	}
}
