// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by grovecore.
package domain

import (
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityTag identifies an individually tracked tree tag record.
	EntityTag EntityType = "tag"
	// EntityZone identifies a growing zone record.
	EntityZone EntityType = "zone"
	// EntityDeal identifies a sales deal record.
	EntityDeal EntityType = "deal"
	// EntityDigOrder identifies a dig work-order record.
	EntityDigOrder EntityType = "dig_order"
	// EntityShipment identifies a shipment record.
	EntityShipment EntityType = "shipment"
	// EntitySnapshot identifies an archived ledger snapshot record.
	EntitySnapshot EntityType = "snapshot"
)

// TagStatus represents the canonical lifecycle states of a tagged tree.
type TagStatus string

// Canonical tag lifecycle statuses. A tag holds exactly one status at a time;
// the status is the single source of truth for lifecycle position.
const (
	// StatusInZone indicates a tree standing in its zone, sellable.
	StatusInZone TagStatus = "in_zone"
	// StatusSelectedForDig marks a tree picked for the dig-preparation pipeline.
	StatusSelectedForDig TagStatus = "selected_for_dig"
	StatusRootPrune1     TagStatus = "root_prune_1"
	StatusRootPrune2     TagStatus = "root_prune_2"
	StatusRootPrune3     TagStatus = "root_prune_3"
	StatusRootPrune4     TagStatus = "root_prune_4"
	// StatusReadyToLift indicates preparation is complete; the tree is sellable.
	StatusReadyToLift TagStatus = "ready_to_lift"
	// StatusReserved soft-commits the tag to a deal.
	StatusReserved TagStatus = "reserved"
	// StatusDigOrdered commits the tag to a dig work order.
	StatusDigOrdered TagStatus = "dig_ordered"
	// StatusDug indicates the tree has been physically lifted.
	StatusDug TagStatus = "dug"
	// StatusShipped indicates the tree has left the farm.
	StatusShipped TagStatus = "shipped"
	// StatusPlanted is the terminal success disposition at the buyer's site.
	StatusPlanted TagStatus = "planted"
	// StatusRehab parks a tree for recovery; it returns to in_zone.
	StatusRehab TagStatus = "rehab"
	// StatusDead is the terminal loss disposition.
	StatusDead TagStatus = "dead"
	// StatusCancelled voids a tag without declaring physical loss.
	StatusCancelled TagStatus = "cancelled"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tag represents one physical tree unit tracked through its lifecycle.
//
// ZoneID names the zone the tree was tagged in and keys ledger aggregation for
// the whole lifecycle, including after the tree leaves the farm; Location
// reports the current physical placement. Tags are never deleted: terminal
// statuses keep the row so historical group totals stay stable.
type Tag struct {
	Base
	ZoneID          string    `json:"zone_id"`
	SpeciesID       string    `json:"species_id"`
	SizeLabel       string    `json:"size_label"`
	HeightLabel     string    `json:"height_label,omitempty"`
	GradeID         string    `json:"grade_id,omitempty"`
	Status          TagStatus `json:"status"`
	DealID          *string   `json:"deal_id,omitempty"`
	DigOrderID      *string   `json:"dig_order_id,omitempty"`
	ShipmentID      *string   `json:"shipment_id,omitempty"`
	CancelReason    string    `json:"cancel_reason,omitempty"`
	StatusChangedAt time.Time `json:"status_changed_at"`
}

// Location returns the tag's current physical zone, or nil once the tree has
// left the farm (shipped or planted).
func (t Tag) Location() *string {
	switch t.Status {
	case StatusShipped, StatusPlanted:
		return nil
	}
	zone := t.ZoneID
	return &zone
}

// Group returns the dimension key this tag is aggregated under.
func (t Tag) Group() GroupKey {
	return GroupKey{
		ZoneID:      t.ZoneID,
		SpeciesID:   t.SpeciesID,
		SizeLabel:   t.SizeLabel,
		HeightLabel: t.HeightLabel,
		GradeID:     t.GradeID,
	}
}

// Zone captures a physical growing zone.
type Zone struct {
	Base
	Name string `json:"name"`
}

// Deal references a sales deal that tags can be reserved against.
type Deal struct {
	Base
	Reference string `json:"reference"`
	Customer  string `json:"customer,omitempty"`
}

// DigOrderStatus enumerates dig work-order workflow states.
type DigOrderStatus string

// Canonical dig-order statuses.
const (
	DigOrderPlanned    DigOrderStatus = "planned"
	DigOrderInProgress DigOrderStatus = "in_progress"
	DigOrderDone       DigOrderStatus = "done"
)

// DigOrder is a work order to physically remove a set of trees from a zone by
// a target date. Qty records the expected count and is reconciled against the
// tags actually dug under the order.
type DigOrder struct {
	Base
	ZoneID  string         `json:"zone_id"`
	Qty     int            `json:"qty"`
	DueDate *time.Time     `json:"due_date,omitempty"`
	Status  DigOrderStatus `json:"status"`
}

// Shipment references an outbound truck load that dug trees leave on.
type Shipment struct {
	Base
	Reference string     `json:"reference"`
	ShippedAt *time.Time `json:"shipped_at,omitempty"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported operations captured in the audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
