package cache_test

import (
	"context"
	"testing"

	"github.com/n9te9/federation-benchmark/cache"
)

func TestNoop(t *testing.T) {
	ctx := context.Background()
	var c cache.KeyValueCache = cache.Noop{}

	if err := c.Set(ctx, "plan:{ me { id } }", "value"); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	got, ok, err := c.Get(ctx, "plan:{ me { id } }")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if ok || got != nil {
		t.Errorf("Get() = (%v, %v), want (nil, false)", got, ok)
	}

	deleted, err := c.Delete(ctx, "plan:{ me { id } }")
	if err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if !deleted {
		t.Error("Delete() = false, want true")
	}

	deleted, err = c.Delete(ctx, "never-set")
	if err != nil || !deleted {
		t.Errorf("Delete(never-set) = (%v, %v), want (true, nil)", deleted, err)
	}
}
