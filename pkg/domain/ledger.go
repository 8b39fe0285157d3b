package domain

import (
	"sort"
	"time"
)

// GroupKey is the dimension tuple at which inventory quantities are aggregated
// and reservation capacity is enforced. Two tags sharing a key are
// interchangeable for counting purposes even though each keeps its identity.
// Aggregation uses the finest grain reservations are made at, so height and
// grade are part of the key; coarse views roll rows up after the fact.
type GroupKey struct {
	ZoneID      string `json:"zone_id"`
	SpeciesID   string `json:"species_id"`
	SizeLabel   string `json:"size_label"`
	HeightLabel string `json:"height_label,omitempty"`
	GradeID     string `json:"grade_id,omitempty"`
}

// GroupCounts holds the per-status tag counts for one dimension group.
// The counts are derived from tag rows, never mutated independently; the sum
// of every per-status count always equals Total.
type GroupCounts struct {
	Total      int `json:"total_qty"`
	Available  int `json:"available_qty"`
	Prep       int `json:"prep_qty"`
	Reserved   int `json:"reserved_qty"`
	DigOrdered int `json:"dig_ordered_qty"`
	Dug        int `json:"dug_qty"`
	Shipped    int `json:"shipped_qty"`
	Planted    int `json:"planted_qty"`
	Rehab      int `json:"rehab_qty"`
	Dead       int `json:"dead_qty"`
	Cancelled  int `json:"cancelled_qty"`
}

// Committed returns the number of tags promised away from the group: reserved,
// dig-ordered, dug, or shipped. The reservation guard holds Committed <= Total.
func (c GroupCounts) Committed() int {
	return c.Reserved + c.DigOrdered + c.Dug + c.Shipped
}

// StatusSum re-adds the per-status counts; it must equal Total.
func (c GroupCounts) StatusSum() int {
	return c.Available + c.Prep + c.Reserved + c.DigOrdered + c.Dug +
		c.Shipped + c.Planted + c.Rehab + c.Dead + c.Cancelled
}

// LedgerRow pairs a dimension group with its derived counts.
type LedgerRow struct {
	Group  GroupKey    `json:"group"`
	Counts GroupCounts `json:"counts"`
}

// SnapshotRow is one archived ledger row, immutable once written for a period.
type SnapshotRow struct {
	Period     string      `json:"period"`
	Group      GroupKey    `json:"group"`
	Counts     GroupCounts `json:"counts"`
	ArchivedAt time.Time   `json:"archived_at"`
}

// add folds one tag status into the counts.
func (c *GroupCounts) add(status TagStatus) {
	c.Total++
	switch status {
	case StatusInZone, StatusReadyToLift:
		c.Available++
	case StatusSelectedForDig, StatusRootPrune1, StatusRootPrune2, StatusRootPrune3, StatusRootPrune4:
		c.Prep++
	case StatusReserved:
		c.Reserved++
	case StatusDigOrdered:
		c.DigOrdered++
	case StatusDug:
		c.Dug++
	case StatusShipped:
		c.Shipped++
	case StatusPlanted:
		c.Planted++
	case StatusRehab:
		c.Rehab++
	case StatusDead:
		c.Dead++
	case StatusCancelled:
		c.Cancelled++
	}
}

// ComputeLedger derives the aggregate ledger from a full set of tag rows.
// Rows come back in a deterministic order so repeated computation over the
// same tags yields identical output.
func ComputeLedger(tags []Tag) []LedgerRow {
	grouped := make(map[GroupKey]*GroupCounts)
	for _, tag := range tags {
		key := tag.Group()
		counts, ok := grouped[key]
		if !ok {
			counts = &GroupCounts{}
			grouped[key] = counts
		}
		counts.add(tag.Status)
	}
	rows := make([]LedgerRow, 0, len(grouped))
	for key, counts := range grouped {
		rows = append(rows, LedgerRow{Group: key, Counts: *counts})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Group.less(rows[j].Group) })
	return rows
}

func (k GroupKey) less(other GroupKey) bool {
	if k.ZoneID != other.ZoneID {
		return k.ZoneID < other.ZoneID
	}
	if k.SpeciesID != other.SpeciesID {
		return k.SpeciesID < other.SpeciesID
	}
	if k.SizeLabel != other.SizeLabel {
		return k.SizeLabel < other.SizeLabel
	}
	if k.HeightLabel != other.HeightLabel {
		return k.HeightLabel < other.HeightLabel
	}
	return k.GradeID < other.GradeID
}
