package fs

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"grovecore/internal/blob/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestPutGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if store.Driver() != core.DriverFilesystem {
		t.Fatalf("expected fs driver")
	}

	info, err := store.Put(ctx, "snapshots/2026-08/ledger.csv", bytes.NewReader([]byte("a,b\n1,2\n")), core.PutOptions{
		ContentType: "text/csv",
		Metadata:    map[string]string{"period": "2026-08"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 8 || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}

	got, rc, err := store.Get(ctx, "snapshots/2026-08/ledger.csv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	_ = rc.Close()
	if string(data) != "a,b\n1,2\n" {
		t.Fatalf("content mismatch %q", data)
	}
	if got.ContentType != "text/csv" || got.Metadata["period"] != "2026-08" || got.ETag != info.ETag {
		t.Fatalf("metadata mismatch %+v", got)
	}

	if _, err := store.Put(ctx, "snapshots/2026-08/ledger.csv", bytes.NewReader([]byte("x")), core.PutOptions{}); err == nil {
		t.Fatalf("expected duplicate put error")
	}
}

func TestHeadListDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for _, key := range []string{"snapshots/2026-07/ledger.json", "snapshots/2026-08/ledger.json", "misc/readme.txt"} {
		if _, err := store.Put(ctx, key, bytes.NewReader([]byte("data")), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}

	if _, err := store.Head(ctx, "snapshots/2026-07/ledger.json"); err != nil {
		t.Fatalf("head: %v", err)
	}
	if _, err := store.Head(ctx, "missing"); err == nil {
		t.Fatalf("expected head error")
	}

	list, err := store.List(ctx, "snapshots/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Key != "snapshots/2026-07/ledger.json" {
		t.Fatalf("unexpected list %+v", list)
	}

	ok, err := store.Delete(ctx, "misc/readme.txt")
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	ok, err = store.Delete(ctx, "misc/readme.txt")
	if err != nil || ok {
		t.Fatalf("second delete should be false, got %v %v", ok, err)
	}
}

func TestKeySanitization(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for _, key := range []string{"", "  ", "../escape", "/absolute", "a/../../b"} {
		if _, err := store.Put(ctx, key, bytes.NewReader([]byte("x")), core.PutOptions{}); err == nil {
			t.Fatalf("key %q should be rejected", key)
		}
	}
}

func TestPresignURL(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	url, err := store.PresignURL(ctx, "some/key", core.SignedURLOptions{})
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if !strings.HasSuffix(url, "/some/key") {
		t.Fatalf("unexpected url %q", url)
	}
	if _, err := store.PresignURL(ctx, "some/key", core.SignedURLOptions{Method: "PUT"}); err != core.ErrUnsupported {
		t.Fatalf("expected ErrUnsupported for PUT, got %v", err)
	}
}

func TestDefaultRootCreated(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	if _, err := New(""); err != nil {
		t.Fatalf("New with default root: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "blobdata")); err != nil {
		t.Fatalf("default root not created: %v", err)
	}
}
