package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateTag(Tag) (Tag, error)
	UpdateTag(id string, mutator func(*Tag) error) (Tag, error)
	CreateZone(Zone) (Zone, error)
	CreateDeal(Deal) (Deal, error)
	CreateDigOrder(DigOrder) (DigOrder, error)
	UpdateDigOrder(id string, mutator func(*DigOrder) error) (DigOrder, error)
	CreateShipment(Shipment) (Shipment, error)
	// PutSnapshot replaces the archived ledger rows for a period. Archives are
	// append-only across periods; re-archiving one period overwrites that
	// period deterministically.
	PutSnapshot(period string, rows []SnapshotRow) error
	FindTag(id string) (Tag, bool)
	FindZone(id string) (Zone, bool)
	FindDeal(id string) (Deal, bool)
	FindDigOrder(id string) (DigOrder, bool)
	FindShipment(id string) (Shipment, bool)
}

// TransactionView provides read-only access to snapshot data for rules and
// reads.
type TransactionView interface {
	RuleView
	GetSnapshot(period string) ([]SnapshotRow, bool)
	ListSnapshotPeriods() []string
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetTag(id string) (Tag, bool)
	ListTags() []Tag
	ListDigOrders() []DigOrder
	GetSnapshot(period string) ([]SnapshotRow, bool)
	ListSnapshotPeriods() []string
}
