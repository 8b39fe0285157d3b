package core

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"grovecore/internal/blob"
)

func TestArchiveFreezesLedger(t *testing.T) {
	frozen := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	svc := newTestService(t, WithNow(func() time.Time { return frozen }))
	ctx := context.Background()
	seedZone(t, svc, "zone-a")
	seedDeal(t, svc, "deal-1")
	ids := plantGroup(t, svc, "zone-a", 5)
	if _, err := svc.Reserve(ctx, ids[:2], "deal-1"); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	blobs := blob.NewMemory()
	archiver := NewArchiver(svc, blobs)
	res, err := archiver.Archive(ctx, "2026-01")
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if res.Rows != 1 || len(res.Artifacts) != 2 {
		t.Fatalf("unexpected archive result: %+v", res)
	}

	rows, err := svc.MonthlySnapshot(ctx, "2026-01")
	if err != nil {
		t.Fatalf("monthly snapshot: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one snapshot row, got %d", len(rows))
	}
	if rows[0].Counts.Total != 5 || rows[0].Counts.Reserved != 2 {
		t.Fatalf("snapshot counts wrong: %+v", rows[0].Counts)
	}
	if !rows[0].ArchivedAt.Equal(frozen) {
		t.Fatalf("archived at = %s, want %s", rows[0].ArchivedAt, frozen)
	}
	if periods := svc.SnapshotPeriods(ctx); len(periods) != 1 || periods[0] != "2026-01" {
		t.Fatalf("periods = %v", periods)
	}

	// Snapshot reads stay frozen while live state moves on.
	if _, err := svc.Unreserve(ctx, ids[:2]); err != nil {
		t.Fatalf("unreserve: %v", err)
	}
	rows, err = svc.MonthlySnapshot(ctx, "2026-01")
	if err != nil {
		t.Fatalf("monthly snapshot after change: %v", err)
	}
	if rows[0].Counts.Reserved != 2 {
		t.Fatalf("archived period drifted: %+v", rows[0].Counts)
	}
}

func TestArchiveOverwritesPeriod(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	seedZone(t, svc, "zone-a")
	plantGroup(t, svc, "zone-a", 2)

	blobs := blob.NewMemory()
	archiver := NewArchiver(svc, blobs)
	if _, err := archiver.Archive(ctx, "2026-03"); err != nil {
		t.Fatalf("first archive: %v", err)
	}
	plantGroup(t, svc, "zone-a", 3)
	if _, err := archiver.Archive(ctx, "2026-03"); err != nil {
		t.Fatalf("re-archive: %v", err)
	}

	rows, err := svc.MonthlySnapshot(ctx, "2026-03")
	if err != nil {
		t.Fatalf("monthly snapshot: %v", err)
	}
	if len(rows) != 1 || rows[0].Counts.Total != 5 {
		t.Fatalf("re-archive did not overwrite: %+v", rows)
	}

	infos, err := blobs.List(ctx, "snapshots/2026-03/")
	if err != nil {
		t.Fatalf("list artifacts: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected two artifacts after overwrite, got %d", len(infos))
	}
	_, reader, err := blobs.Get(ctx, "snapshots/2026-03/ledger.json")
	if err != nil {
		t.Fatalf("get artifact: %v", err)
	}
	defer func() { _ = reader.Close() }()
	payload, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	var exported []SnapshotRow
	if err := json.Unmarshal(payload, &exported); err != nil {
		t.Fatalf("decode artifact: %v", err)
	}
	if len(exported) != 1 || exported[0].Counts.Total != 5 {
		t.Fatalf("artifact holds stale data: %+v", exported)
	}
}

func TestArchiveRejectsBadPeriod(t *testing.T) {
	svc := newTestService(t)
	archiver := NewArchiver(svc, nil)
	for _, period := range []string{"", "2026", "2026-13", "march"} {
		if _, err := archiver.Archive(context.Background(), period); err == nil {
			t.Fatalf("expected error for period %q", period)
		}
	}
}

func TestArchiveWithoutBlobStore(t *testing.T) {
	svc := newTestService(t)
	seedZone(t, svc, "zone-a")
	plantGroup(t, svc, "zone-a", 1)
	archiver := NewArchiver(svc, nil)
	res, err := archiver.Archive(context.Background(), "2026-05")
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if res.Rows != 1 || len(res.Artifacts) != 0 {
		t.Fatalf("unexpected result without blob store: %+v", res)
	}
}
