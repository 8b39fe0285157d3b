// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"grovecore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Tag aliases domain.Tag for in-memory persistence operations.
	Tag = domain.Tag
	// Zone aliases domain.Zone.
	Zone = domain.Zone
	// Deal aliases domain.Deal.
	Deal = domain.Deal
	// DigOrder aliases domain.DigOrder.
	DigOrder = domain.DigOrder
	// Shipment aliases domain.Shipment.
	Shipment = domain.Shipment
	// SnapshotRow aliases domain.SnapshotRow.
	SnapshotRow = domain.SnapshotRow
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	tags      map[string]Tag
	zones     map[string]Zone
	deals     map[string]Deal
	digOrders map[string]DigOrder
	shipments map[string]Shipment
	snapshots map[string][]SnapshotRow
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Tags      map[string]Tag           `json:"tags"`
	Zones     map[string]Zone          `json:"zones"`
	Deals     map[string]Deal          `json:"deals"`
	DigOrders map[string]DigOrder      `json:"dig_orders"`
	Shipments map[string]Shipment      `json:"shipments"`
	Snapshots map[string][]SnapshotRow `json:"snapshots"`
}

func newMemoryState() memoryState {
	return memoryState{
		tags:      make(map[string]Tag),
		zones:     make(map[string]Zone),
		deals:     make(map[string]Deal),
		digOrders: make(map[string]DigOrder),
		shipments: make(map[string]Shipment),
		snapshots: make(map[string][]SnapshotRow),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.tags {
		cloned.tags[k] = cloneTag(v)
	}
	for k, v := range s.zones {
		cloned.zones[k] = v
	}
	for k, v := range s.deals {
		cloned.deals[k] = v
	}
	for k, v := range s.digOrders {
		cloned.digOrders[k] = cloneDigOrder(v)
	}
	for k, v := range s.shipments {
		cloned.shipments[k] = cloneShipment(v)
	}
	for k, v := range s.snapshots {
		cloned.snapshots[k] = append([]SnapshotRow(nil), v...)
	}
	return cloned
}

func cloneTag(t Tag) Tag {
	cp := t
	cp.DealID = cloneStringPtr(t.DealID)
	cp.DigOrderID = cloneStringPtr(t.DigOrderID)
	cp.ShipmentID = cloneStringPtr(t.ShipmentID)
	return cp
}

func cloneDigOrder(d DigOrder) DigOrder {
	cp := d
	if d.DueDate != nil {
		due := *d.DueDate
		cp.DueDate = &due
	}
	return cp
}

func cloneShipment(s Shipment) Shipment {
	cp := s
	if s.ShippedAt != nil {
		at := *s.ShippedAt
		cp.ShippedAt = &at
	}
	return cp
}

func cloneStringPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Tags:      make(map[string]Tag, len(state.tags)),
		Zones:     make(map[string]Zone, len(state.zones)),
		Deals:     make(map[string]Deal, len(state.deals)),
		DigOrders: make(map[string]DigOrder, len(state.digOrders)),
		Shipments: make(map[string]Shipment, len(state.shipments)),
		Snapshots: make(map[string][]SnapshotRow, len(state.snapshots)),
	}
	for k, v := range state.tags {
		s.Tags[k] = cloneTag(v)
	}
	for k, v := range state.zones {
		s.Zones[k] = v
	}
	for k, v := range state.deals {
		s.Deals[k] = v
	}
	for k, v := range state.digOrders {
		s.DigOrders[k] = cloneDigOrder(v)
	}
	for k, v := range state.shipments {
		s.Shipments[k] = cloneShipment(v)
	}
	for k, v := range state.snapshots {
		s.Snapshots[k] = append([]SnapshotRow(nil), v...)
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Tags {
		state.tags[k] = cloneTag(v)
	}
	for k, v := range s.Zones {
		state.zones[k] = v
	}
	for k, v := range s.Deals {
		state.deals[k] = v
	}
	for k, v := range s.DigOrders {
		state.digOrders[k] = cloneDigOrder(v)
	}
	for k, v := range s.Shipments {
		state.shipments[k] = cloneShipment(v)
	}
	for k, v := range s.Snapshots {
		state.snapshots[k] = append([]SnapshotRow(nil), v...)
	}
	return state
}

// migrateSnapshot normalizes legacy snapshots before import: nil maps become
// empty, association fields not allowed for the tag's status are dropped, and
// dig orders get a default status.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Tags == nil {
		snapshot.Tags = map[string]Tag{}
	}
	if snapshot.Zones == nil {
		snapshot.Zones = map[string]Zone{}
	}
	if snapshot.Deals == nil {
		snapshot.Deals = map[string]Deal{}
	}
	if snapshot.DigOrders == nil {
		snapshot.DigOrders = map[string]DigOrder{}
	}
	if snapshot.Shipments == nil {
		snapshot.Shipments = map[string]Shipment{}
	}
	if snapshot.Snapshots == nil {
		snapshot.Snapshots = map[string][]SnapshotRow{}
	}

	for id, order := range snapshot.DigOrders {
		if order.Status == "" {
			order.Status = domain.DigOrderPlanned
		}
		if order.Qty < 0 {
			order.Qty = 0
		}
		snapshot.DigOrders[id] = order
	}

	dealExists := func(id *string) bool {
		if id == nil {
			return false
		}
		_, ok := snapshot.Deals[*id]
		return ok
	}
	orderExists := func(id *string) bool {
		if id == nil {
			return false
		}
		_, ok := snapshot.DigOrders[*id]
		return ok
	}
	shipmentExists := func(id *string) bool {
		if id == nil {
			return false
		}
		_, ok := snapshot.Shipments[*id]
		return ok
	}

	for id, tag := range snapshot.Tags {
		if !domain.KnownStatus(tag.Status) {
			tag.Status = domain.StatusInZone
		}
		switch {
		case domain.RequiresDeal(tag.Status), domain.RequiresDigOrder(tag.Status), tag.Status == domain.StatusShipped:
			// forward pipeline keeps whatever references still resolve
		default:
			tag.DealID = nil
			tag.DigOrderID = nil
			tag.ShipmentID = nil
		}
		if tag.DealID != nil && !dealExists(tag.DealID) {
			tag.DealID = nil
		}
		if tag.DigOrderID != nil && !orderExists(tag.DigOrderID) {
			tag.DigOrderID = nil
		}
		if tag.ShipmentID != nil && !shipmentExists(tag.ShipmentID) {
			tag.ShipmentID = nil
		}
		if tag.StatusChangedAt.IsZero() {
			tag.StatusChangedAt = tag.UpdatedAt
		}
		snapshot.Tags[id] = tag
	}
	return snapshot
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// SetNowFunc overrides the time provider; tests use it to pin timestamps.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

// transaction represents a mutation set applied to the store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

// transactionView exposes a read-only snapshot of the transactional state.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListTags returns all tags within the snapshot in a deterministic order.
func (v transactionView) ListTags() []Tag {
	out := make([]Tag, 0, len(v.state.tags))
	for _, t := range v.state.tags {
		out = append(out, cloneTag(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindTag retrieves a tag by ID from the snapshot.
func (v transactionView) FindTag(id string) (Tag, bool) {
	t, ok := v.state.tags[id]
	if !ok {
		return Tag{}, false
	}
	return cloneTag(t), true
}

// ListDigOrders returns all dig orders in the snapshot.
func (v transactionView) ListDigOrders() []DigOrder {
	out := make([]DigOrder, 0, len(v.state.digOrders))
	for _, d := range v.state.digOrders {
		out = append(out, cloneDigOrder(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindDigOrder retrieves a dig order by ID from the snapshot.
func (v transactionView) FindDigOrder(id string) (DigOrder, bool) {
	d, ok := v.state.digOrders[id]
	if !ok {
		return DigOrder{}, false
	}
	return cloneDigOrder(d), true
}

// FindDeal retrieves a deal by ID from the snapshot.
func (v transactionView) FindDeal(id string) (Deal, bool) {
	d, ok := v.state.deals[id]
	return d, ok
}

// FindShipment retrieves a shipment by ID from the snapshot.
func (v transactionView) FindShipment(id string) (Shipment, bool) {
	sh, ok := v.state.shipments[id]
	if !ok {
		return Shipment{}, false
	}
	return cloneShipment(sh), true
}

// FindZone retrieves a zone by ID from the snapshot.
func (v transactionView) FindZone(id string) (Zone, bool) {
	z, ok := v.state.zones[id]
	return z, ok
}

// ListZones returns all zones in the snapshot.
func (v transactionView) ListZones() []Zone {
	out := make([]Zone, 0, len(v.state.zones))
	for _, z := range v.state.zones {
		out = append(out, z)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Ledger derives the aggregate counts from the tags in the snapshot.
func (v transactionView) Ledger() []domain.LedgerRow {
	tags := make([]Tag, 0, len(v.state.tags))
	for _, t := range v.state.tags {
		tags = append(tags, t)
	}
	return domain.ComputeLedger(tags)
}

// GetSnapshot returns the archived rows for a period.
func (v transactionView) GetSnapshot(period string) ([]SnapshotRow, bool) {
	rows, ok := v.state.snapshots[period]
	if !ok {
		return nil, false
	}
	return append([]SnapshotRow(nil), rows...), true
}

// ListSnapshotPeriods returns all archived periods in ascending order.
func (v transactionView) ListSnapshotPeriods() []string {
	out := make([]string, 0, len(v.state.snapshots))
	for period := range v.state.snapshots {
		out = append(out, period)
	}
	sort.Strings(out)
	return out
}

// RunInTransaction executes fn within a transactional copy of the store state.
// The copy is swapped in only when fn succeeds and no blocking rule fires, so
// readers never observe a partially applied batch.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

// GetTag returns a tag by id from committed state.
func (s *Store) GetTag(id string) (Tag, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.state.tags[id]
	if !ok {
		return Tag{}, false
	}
	return cloneTag(t), true
}

// ListTags returns all committed tags in a deterministic order.
func (s *Store) ListTags() []Tag {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Tag, 0, len(s.state.tags))
	for _, t := range s.state.tags {
		out = append(out, cloneTag(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListDigOrders returns all committed dig orders.
func (s *Store) ListDigOrders() []DigOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]DigOrder, 0, len(s.state.digOrders))
	for _, d := range s.state.digOrders {
		out = append(out, cloneDigOrder(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetSnapshot returns the archived ledger rows for a period.
func (s *Store) GetSnapshot(period string) ([]SnapshotRow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, ok := s.state.snapshots[period]
	if !ok {
		return nil, false
	}
	return append([]SnapshotRow(nil), rows...), true
}

// ListSnapshotPeriods returns all archived periods in ascending order.
func (s *Store) ListSnapshotPeriods() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.state.snapshots))
	for period := range s.state.snapshots {
		out = append(out, period)
	}
	sort.Strings(out)
	return out
}

// recordChange appends an audit entry to the transaction.
func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// CreateTag stores a new tag within the transaction.
func (tx *transaction) CreateTag(t Tag) (Tag, error) {
	if t.ID == "" {
		t.ID = tx.store.newID()
	}
	if _, exists := tx.state.tags[t.ID]; exists {
		return Tag{}, fmt.Errorf("tag %q already exists", t.ID)
	}
	if t.Status == "" {
		t.Status = domain.StatusInZone
	}
	if !domain.KnownStatus(t.Status) {
		return Tag{}, fmt.Errorf("tag %q: unknown status %q", t.ID, t.Status)
	}
	if _, ok := tx.state.zones[t.ZoneID]; !ok {
		return Tag{}, domain.UnknownReferenceError{Entity: domain.EntityZone, ID: t.ZoneID}
	}
	t.CreatedAt = tx.now
	t.UpdatedAt = tx.now
	t.StatusChangedAt = tx.now
	tx.state.tags[t.ID] = cloneTag(t)
	tx.recordChange(Change{Entity: domain.EntityTag, Action: domain.ActionCreate, After: cloneTag(t)})
	return cloneTag(t), nil
}

// UpdateTag mutates a tag using the provided mutator function.
func (tx *transaction) UpdateTag(id string, mutator func(*Tag) error) (Tag, error) {
	current, ok := tx.state.tags[id]
	if !ok {
		return Tag{}, domain.UnknownReferenceError{Entity: domain.EntityTag, ID: id}
	}
	before := cloneTag(current)
	if err := mutator(&current); err != nil {
		return Tag{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	if current.Status != before.Status {
		current.StatusChangedAt = tx.now
	}
	tx.state.tags[id] = cloneTag(current)
	tx.recordChange(Change{Entity: domain.EntityTag, Action: domain.ActionUpdate, Before: before, After: cloneTag(current)})
	return cloneTag(current), nil
}

// CreateZone stores a new zone within the transaction.
func (tx *transaction) CreateZone(z Zone) (Zone, error) {
	if z.ID == "" {
		z.ID = tx.store.newID()
	}
	if _, exists := tx.state.zones[z.ID]; exists {
		return Zone{}, fmt.Errorf("zone %q already exists", z.ID)
	}
	z.CreatedAt = tx.now
	z.UpdatedAt = tx.now
	tx.state.zones[z.ID] = z
	tx.recordChange(Change{Entity: domain.EntityZone, Action: domain.ActionCreate, After: z})
	return z, nil
}

// CreateDeal stores a new deal within the transaction.
func (tx *transaction) CreateDeal(d Deal) (Deal, error) {
	if d.ID == "" {
		d.ID = tx.store.newID()
	}
	if _, exists := tx.state.deals[d.ID]; exists {
		return Deal{}, fmt.Errorf("deal %q already exists", d.ID)
	}
	d.CreatedAt = tx.now
	d.UpdatedAt = tx.now
	tx.state.deals[d.ID] = d
	tx.recordChange(Change{Entity: domain.EntityDeal, Action: domain.ActionCreate, After: d})
	return d, nil
}

// CreateDigOrder stores a new dig order within the transaction.
func (tx *transaction) CreateDigOrder(d DigOrder) (DigOrder, error) {
	if d.ID == "" {
		d.ID = tx.store.newID()
	}
	if _, exists := tx.state.digOrders[d.ID]; exists {
		return DigOrder{}, fmt.Errorf("dig order %q already exists", d.ID)
	}
	if _, ok := tx.state.zones[d.ZoneID]; !ok {
		return DigOrder{}, domain.UnknownReferenceError{Entity: domain.EntityZone, ID: d.ZoneID}
	}
	if d.Qty < 0 {
		return DigOrder{}, fmt.Errorf("dig order %q: negative qty %d", d.ID, d.Qty)
	}
	if d.Status == "" {
		d.Status = domain.DigOrderPlanned
	}
	d.CreatedAt = tx.now
	d.UpdatedAt = tx.now
	tx.state.digOrders[d.ID] = cloneDigOrder(d)
	tx.recordChange(Change{Entity: domain.EntityDigOrder, Action: domain.ActionCreate, After: cloneDigOrder(d)})
	return cloneDigOrder(d), nil
}

// UpdateDigOrder mutates a dig order using the provided mutator function.
func (tx *transaction) UpdateDigOrder(id string, mutator func(*DigOrder) error) (DigOrder, error) {
	current, ok := tx.state.digOrders[id]
	if !ok {
		return DigOrder{}, domain.UnknownReferenceError{Entity: domain.EntityDigOrder, ID: id}
	}
	before := cloneDigOrder(current)
	if err := mutator(&current); err != nil {
		return DigOrder{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.digOrders[id] = cloneDigOrder(current)
	tx.recordChange(Change{Entity: domain.EntityDigOrder, Action: domain.ActionUpdate, Before: before, After: cloneDigOrder(current)})
	return cloneDigOrder(current), nil
}

// CreateShipment stores a new shipment within the transaction.
func (tx *transaction) CreateShipment(sh Shipment) (Shipment, error) {
	if sh.ID == "" {
		sh.ID = tx.store.newID()
	}
	if _, exists := tx.state.shipments[sh.ID]; exists {
		return Shipment{}, fmt.Errorf("shipment %q already exists", sh.ID)
	}
	sh.CreatedAt = tx.now
	sh.UpdatedAt = tx.now
	tx.state.shipments[sh.ID] = cloneShipment(sh)
	tx.recordChange(Change{Entity: domain.EntityShipment, Action: domain.ActionCreate, After: cloneShipment(sh)})
	return cloneShipment(sh), nil
}

// PutSnapshot replaces the archived rows for a period.
func (tx *transaction) PutSnapshot(period string, rows []SnapshotRow) error {
	if period == "" {
		return fmt.Errorf("snapshot period required")
	}
	stored := make([]SnapshotRow, len(rows))
	copy(stored, rows)
	for i := range stored {
		stored[i].Period = period
		if stored[i].ArchivedAt.IsZero() {
			stored[i].ArchivedAt = tx.now
		}
	}
	tx.state.snapshots[period] = stored
	tx.recordChange(Change{Entity: domain.EntitySnapshot, Action: domain.ActionUpdate, After: period})
	return nil
}

// FindTag exposes tag lookup within the transaction scope.
func (tx *transaction) FindTag(id string) (Tag, bool) {
	t, ok := tx.state.tags[id]
	if !ok {
		return Tag{}, false
	}
	return cloneTag(t), true
}

// FindZone exposes zone lookup within the transaction scope.
func (tx *transaction) FindZone(id string) (Zone, bool) {
	z, ok := tx.state.zones[id]
	return z, ok
}

// FindDeal exposes deal lookup within the transaction scope.
func (tx *transaction) FindDeal(id string) (Deal, bool) {
	d, ok := tx.state.deals[id]
	return d, ok
}

// FindDigOrder exposes dig-order lookup within the transaction scope.
func (tx *transaction) FindDigOrder(id string) (DigOrder, bool) {
	d, ok := tx.state.digOrders[id]
	if !ok {
		return DigOrder{}, false
	}
	return cloneDigOrder(d), true
}

// FindShipment exposes shipment lookup within the transaction scope.
func (tx *transaction) FindShipment(id string) (Shipment, bool) {
	sh, ok := tx.state.shipments[id]
	if !ok {
		return Shipment{}, false
	}
	return cloneShipment(sh), true
}
