package memory

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"testing"

	"datamarket/internal/blob/core"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	if s.Driver() != core.DriverMemory {
		t.Fatalf("unexpected driver %s", s.Driver())
	}
	meta := map[string]string{"dataset": "ds-1"}
	info, err := s.Put(ctx, "proofs/ds-1/a", bytes.NewReader([]byte("data")), core.PutOptions{ContentType: "text/plain", Metadata: meta})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	sum := sha256.Sum256([]byte("data"))
	if info.ETag != hex.EncodeToString(sum[:]) || info.Size != 4 {
		t.Fatalf("unexpected info %#v", info)
	}
	meta["dataset"] = "mutated"
	head, err := s.Head(ctx, "proofs/ds-1/a")
	if err != nil || head.Metadata["dataset"] != "ds-1" {
		t.Fatalf("metadata should be isolated from caller: %#v %v", head, err)
	}
	_, rc, err := s.Get(ctx, "proofs/ds-1/a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	if string(b) != "data" {
		t.Fatalf("unexpected payload %q", b)
	}
	if _, err := s.Put(ctx, "proofs/ds-1/a", bytes.NewReader(nil), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if _, _, err := s.Get(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreListOrdersByKey(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, k := range []string{"p/b", "p/a", "q/c"} {
		if _, err := s.Put(ctx, k, bytes.NewReader([]byte(k)), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	list, _ := s.List(ctx, "p/")
	if len(list) != 2 || list[0].Key != "p/a" || list[1].Key != "p/b" {
		t.Fatalf("unexpected list %#v", list)
	}
	all, _ := s.List(ctx, "")
	if len(all) != 3 {
		t.Fatalf("expected all blobs, got %d", len(all))
	}
}

func TestMemoryStorePutHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New().Put(ctx, "k", bytes.NewReader(nil), core.PutOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}
