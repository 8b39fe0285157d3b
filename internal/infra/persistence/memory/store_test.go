package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"grovecore/pkg/domain"
)

func seedZone(t *testing.T, store *Store) string {
	t.Helper()
	var zoneID string
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		zone, err := tx.CreateZone(Zone{Name: "North field"})
		if err != nil {
			return err
		}
		zoneID = zone.ID
		return nil
	})
	if err != nil {
		t.Fatalf("seed zone: %v", err)
	}
	return zoneID
}

func TestStoreRunInTransactionAndSnapshots(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	zoneID := seedZone(t, store)

	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		if _, ok := tx.FindTag("missing"); ok {
			t.Fatalf("expected missing tag lookup")
		}
		created, err := tx.CreateTag(Tag{ZoneID: zoneID, SpeciesID: "oak", SizeLabel: "200-250"})
		if err != nil {
			return err
		}
		if created.ID == "" {
			t.Fatalf("expected generated ID")
		}
		if created.Status != domain.StatusInZone {
			t.Fatalf("expected default status in_zone, got %s", created.Status)
		}
		view := tx.Snapshot()
		if len(view.ListTags()) != 1 {
			t.Fatalf("snapshot mismatch")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run transaction: %v", err)
	}
	if len(store.ListTags()) != 1 {
		t.Fatalf("expected persisted tag")
	}

	snapshot := store.ExportState()
	store.ImportState(Snapshot{})
	if len(store.ListTags()) != 0 {
		t.Fatalf("expected cleared state")
	}
	store.ImportState(snapshot)
	if len(store.ListTags()) != 1 {
		t.Fatalf("expected restored state")
	}
	if err := store.View(ctx, func(view TransactionView) error {
		if len(view.ListTags()) != 1 {
			return fmt.Errorf("expected tag in view")
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
	if store.RulesEngine() == nil {
		t.Fatalf("expected rules engine")
	}
}

func TestCreateTagRequiresZone(t *testing.T) {
	store := NewStore(nil)
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateTag(Tag{ZoneID: "nope", SpeciesID: "oak", SizeLabel: "150-200"})
		return err
	})
	var unknown domain.UnknownReferenceError
	if !errors.As(err, &unknown) || unknown.Entity != domain.EntityZone {
		t.Fatalf("expected unknown zone reference, got %v", err)
	}
}

func TestFailedTransactionLeavesStateUntouched(t *testing.T) {
	store := NewStore(nil)
	zoneID := seedZone(t, store)

	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.CreateTag(Tag{ZoneID: zoneID, SpeciesID: "oak", SizeLabel: "200-250"}); err != nil {
			return err
		}
		return fmt.Errorf("boom")
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if len(store.ListTags()) != 0 {
		t.Fatalf("aborted transaction must not leak tags")
	}
}

type blockingRule struct{}

func (blockingRule) Name() string { return "always_block" }

func (blockingRule) Evaluate(_ context.Context, _ domain.RuleView, _ []domain.Change) (domain.Result, error) {
	return domain.Result{Violations: []domain.Violation{{
		Rule:     "always_block",
		Severity: domain.SeverityBlock,
		Message:  "no",
	}}}, nil
}

func TestBlockingRulePreventsCommit(t *testing.T) {
	engine := domain.NewRulesEngine()
	store := NewStore(engine)
	engine.Register(blockingRule{})

	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateZone(Zone{Name: "blocked"})
		return err
	})
	if _, ok := err.(domain.RuleViolationError); !ok {
		t.Fatalf("expected rule violation error, got %v", err)
	}
	if err := store.View(context.Background(), func(view TransactionView) error {
		if len(view.ListZones()) != 0 {
			return fmt.Errorf("blocked transaction leaked state")
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestUpdateTagTracksStatusChange(t *testing.T) {
	store := NewStore(nil)
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	store.SetNowFunc(func() time.Time { return base })
	zoneID := seedZone(t, store)

	var tagID string
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		created, err := tx.CreateTag(Tag{ZoneID: zoneID, SpeciesID: "oak", SizeLabel: "200-250"})
		if err != nil {
			return err
		}
		tagID = created.ID
		return nil
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	later := base.Add(48 * time.Hour)
	store.SetNowFunc(func() time.Time { return later })
	_, err = store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.UpdateTag(tagID, func(tag *Tag) error {
			tag.Status = domain.StatusSelectedForDig
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	tag, ok := store.GetTag(tagID)
	if !ok {
		t.Fatalf("expected tag")
	}
	if !tag.StatusChangedAt.Equal(later) {
		t.Fatalf("expected status_changed_at %v, got %v", later, tag.StatusChangedAt)
	}

	// A mutation that does not touch status keeps the marker.
	evenLater := later.Add(time.Hour)
	store.SetNowFunc(func() time.Time { return evenLater })
	_, err = store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.UpdateTag(tagID, func(tag *Tag) error {
			tag.SizeLabel = "250-300"
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("regrade: %v", err)
	}
	tag, _ = store.GetTag(tagID)
	if !tag.StatusChangedAt.Equal(later) {
		t.Fatalf("regrade must not move status_changed_at")
	}
	if !tag.UpdatedAt.Equal(evenLater) {
		t.Fatalf("expected updated_at to advance")
	}
}

func TestPutSnapshotOverwritesPeriodDeterministically(t *testing.T) {
	store := NewStore(nil)
	rows := []SnapshotRow{{
		Group:  domain.GroupKey{ZoneID: "z1", SpeciesID: "oak", SizeLabel: "200-250"},
		Counts: domain.GroupCounts{Total: 3, Available: 3},
	}}
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		return tx.PutSnapshot("2026-02", rows)
	})
	if err != nil {
		t.Fatalf("put snapshot: %v", err)
	}
	rows[0].Counts.Total = 5
	_, err = store.RunInTransaction(context.Background(), func(tx Transaction) error {
		return tx.PutSnapshot("2026-02", rows)
	})
	if err != nil {
		t.Fatalf("rewrite snapshot: %v", err)
	}
	stored, ok := store.GetSnapshot("2026-02")
	if !ok || len(stored) != 1 {
		t.Fatalf("expected one archived row")
	}
	if stored[0].Counts.Total != 5 {
		t.Fatalf("expected overwrite, got total %d", stored[0].Counts.Total)
	}
	if stored[0].Period != "2026-02" {
		t.Fatalf("expected period stamped on row")
	}
	periods := store.ListSnapshotPeriods()
	if len(periods) != 1 || periods[0] != "2026-02" {
		t.Fatalf("unexpected periods %v", periods)
	}
}

func TestMigrateSnapshotNormalizesAssociations(t *testing.T) {
	dirty := Snapshot{
		Tags: map[string]Tag{
			"t1": {
				Base:      domain.Base{ID: "t1"},
				ZoneID:    "z1",
				SpeciesID: "oak",
				SizeLabel: "200-250",
				Status:    domain.StatusInZone,
				DealID:    strPtr("gone"),
			},
			"t2": {
				Base:      domain.Base{ID: "t2"},
				ZoneID:    "z1",
				SpeciesID: "oak",
				SizeLabel: "200-250",
				Status:    domain.TagStatus("???"),
			},
		},
	}
	store := NewStore(nil)
	store.ImportState(dirty)
	t1, _ := store.GetTag("t1")
	if t1.DealID != nil {
		t.Fatalf("expected stale deal reference cleared")
	}
	t2, _ := store.GetTag("t2")
	if t2.Status != domain.StatusInZone {
		t.Fatalf("expected unknown status normalized, got %s", t2.Status)
	}
}

func strPtr(s string) *string { return &s }
