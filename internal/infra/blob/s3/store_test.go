package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"datamarket/internal/blob/core"
)

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected bucket error")
	}
}

func TestNewWithStaticCredentials(t *testing.T) {
	s, err := New(context.Background(), Config{Bucket: "proofs", Endpoint: "http://localhost:9000", PathStyle: true, AccessKeyID: "minio", SecretAccessKey: "minio123"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if s.Driver() != core.DriverS3 || s.bucket != "proofs" {
		t.Fatalf("unexpected store %#v", s)
	}
}

func TestMockStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMockForTests()
	info, err := s.Put(ctx, "proofs/ds/abc", bytes.NewReader([]byte("payload")), core.PutOptions{ContentType: "application/json", Metadata: map[string]string{"dataset": "ds"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != int64(len("payload")) || info.ContentType != "application/json" || info.ETag == "" {
		t.Fatalf("unexpected info %#v", info)
	}
	if info.Metadata["dataset"] != "ds" {
		t.Fatalf("expected metadata round trip, got %#v", info.Metadata)
	}
	_, rc, err := s.Get(ctx, "proofs/ds/abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "payload" {
		t.Fatalf("unexpected body %q", body)
	}
	if _, err := s.Put(ctx, "proofs/ds/abc", bytes.NewReader([]byte("other")), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func TestMockStoreNotFoundAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMockForTests()
	if _, err := s.Head(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected head ErrNotFound, got %v", err)
	}
	if _, _, err := s.Get(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected get ErrNotFound, got %v", err)
	}
	if existed, err := s.Delete(ctx, "missing"); err != nil || existed {
		t.Fatalf("expected missing delete, got %v %v", existed, err)
	}
	if _, err := s.Put(ctx, "k", bytes.NewReader([]byte("v")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if existed, err := s.Delete(ctx, "k"); err != nil || !existed {
		t.Fatalf("expected delete of existing key, got %v %v", existed, err)
	}
}

func TestMockStoreListPaginates(t *testing.T) {
	ctx := context.Background()
	s := newMockStore(2)
	for i := 4; i >= 0; i-- {
		if _, err := s.Put(ctx, fmt.Sprintf("p/%d", i), bytes.NewReader([]byte("x")), core.PutOptions{}); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	if _, err := s.Put(ctx, "q/other", bytes.NewReader([]byte("x")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	list, err := s.List(ctx, "p/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 5 {
		t.Fatalf("expected 5 keys across pages, got %d", len(list))
	}
	for i, info := range list {
		if info.Key != fmt.Sprintf("p/%d", i) {
			t.Fatalf("unexpected order %#v", list)
		}
	}
}

func TestDecodeChunked(t *testing.T) {
	raw := []byte("3;chunk-signature=abc\r\nfoo\r\n2\r\nba\r\n0\r\nx-amz-checksum-crc32:AAAA\r\n\r\n")
	got, err := decodeChunked(raw)
	if err != nil || string(got) != "fooba" {
		t.Fatalf("unexpected decode %q %v", got, err)
	}
	if _, err := decodeChunked([]byte("zz\r\n")); err == nil {
		t.Fatalf("expected bad size error")
	}
}
