package domain

import "testing"

func tagWith(zone, species, size string, status TagStatus) Tag {
	return Tag{
		Base:      Base{ID: zone + species + size + string(status)},
		ZoneID:    zone,
		SpeciesID: species,
		SizeLabel: size,
		Status:    status,
	}
}

func TestComputeLedgerGroupsAndCounts(t *testing.T) {
	tags := []Tag{
		tagWith("z1", "oak", "200-250", StatusInZone),
		tagWith("z1", "oak", "200-250", StatusReserved),
		tagWith("z1", "oak", "200-250", StatusRootPrune2),
		tagWith("z1", "oak", "250-300", StatusDug),
		tagWith("z2", "pine", "200-250", StatusDead),
	}
	rows := ComputeLedger(tags)
	if len(rows) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(rows))
	}
	first := rows[0]
	if first.Group.ZoneID != "z1" || first.Group.SizeLabel != "200-250" {
		t.Fatalf("unexpected sort order: %+v", first.Group)
	}
	c := first.Counts
	if c.Total != 3 || c.Available != 1 || c.Reserved != 1 || c.Prep != 1 {
		t.Fatalf("unexpected counts: %+v", c)
	}
	if c.StatusSum() != c.Total {
		t.Fatalf("conservation broken: sum %d total %d", c.StatusSum(), c.Total)
	}
	if got := rows[1].Counts.Dug; got != 1 {
		t.Fatalf("expected dug count 1, got %d", got)
	}
}

func TestComputeLedgerIsDeterministic(t *testing.T) {
	tags := []Tag{
		tagWith("z2", "pine", "150-200", StatusInZone),
		tagWith("z1", "oak", "200-250", StatusShipped),
		tagWith("z1", "oak", "150-200", StatusInZone),
	}
	a := ComputeLedger(tags)
	b := ComputeLedger(tags)
	if len(a) != len(b) {
		t.Fatalf("length mismatch")
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("row %d differs between recomputations", i)
		}
	}
}

func TestCommittedExcludesFinalDispositions(t *testing.T) {
	counts := GroupCounts{Reserved: 2, DigOrdered: 1, Dug: 1, Shipped: 1, Planted: 4, Dead: 1}
	if got := counts.Committed(); got != 5 {
		t.Fatalf("expected committed 5, got %d", got)
	}
}

func TestTagLocationClearsOffFarm(t *testing.T) {
	tag := tagWith("z1", "oak", "200-250", StatusInZone)
	if loc := tag.Location(); loc == nil || *loc != "z1" {
		t.Fatalf("expected on-farm location z1")
	}
	tag.Status = StatusShipped
	if tag.Location() != nil {
		t.Fatalf("shipped tag must have no location")
	}
	if tag.Group().ZoneID != "z1" {
		t.Fatalf("group key must keep the origin zone")
	}
}
