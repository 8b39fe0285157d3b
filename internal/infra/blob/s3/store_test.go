package s3

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"grovecore/internal/blob/core"
)

func TestMockPutGetHeadDelete(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()
	if store.Driver() != core.DriverS3 {
		t.Fatalf("expected s3 driver")
	}

	info, err := store.Put(ctx, "snapshots/2026-08/ledger.json", bytes.NewReader([]byte(`[{"period":"2026-08"}]`)), core.PutOptions{ContentType: "application/json"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "snapshots/2026-08/ledger.json" || info.Size == 0 {
		t.Fatalf("unexpected info %+v", info)
	}

	if _, err := store.Put(ctx, "snapshots/2026-08/ledger.json", bytes.NewReader([]byte("x")), core.PutOptions{}); err == nil {
		t.Fatalf("expected duplicate put error")
	}

	head, err := store.Head(ctx, "snapshots/2026-08/ledger.json")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if head.ContentType != "application/json" {
		t.Fatalf("content type %q", head.ContentType)
	}

	got, rc, err := store.Get(ctx, "snapshots/2026-08/ledger.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	_ = rc.Close()
	if !strings.Contains(string(data), "2026-08") || got.Size != int64(len(data)) {
		t.Fatalf("unexpected body %q info %+v", data, got)
	}

	if ok, err := store.Delete(ctx, "snapshots/2026-08/ledger.json"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if _, err := store.Head(ctx, "snapshots/2026-08/ledger.json"); err == nil {
		t.Fatalf("expected head error after delete")
	}
}

func TestMockListByPrefix(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()
	for _, key := range []string{"snapshots/2026-07/ledger.json", "snapshots/2026-08/ledger.json", "other/file"} {
		if _, err := store.Put(ctx, key, bytes.NewReader([]byte("data")), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	list, err := store.List(ctx, "snapshots/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(list))
	}
	if list[0].Key != "snapshots/2026-07/ledger.json" || list[1].Key != "snapshots/2026-08/ledger.json" {
		t.Fatalf("unexpected keys %v", list)
	}
}

func TestPresignURL(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()
	url, err := store.PresignURL(ctx, "some/key", core.SignedURLOptions{})
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if !strings.Contains(url, "some/key") || !strings.Contains(url, "X-Amz-Signature") {
		t.Fatalf("unexpected presigned url %q", url)
	}
	if _, err := store.PresignURL(ctx, "some/key", core.SignedURLOptions{Method: "DELETE"}); err != core.ErrUnsupported {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected bucket error")
	}
}

func TestOpenFromEnvRequiresBucket(t *testing.T) {
	t.Setenv("GROVECORE_BLOB_S3_BUCKET", "")
	if _, err := OpenFromEnv(context.Background()); err == nil {
		t.Fatalf("expected missing bucket error")
	}
}
