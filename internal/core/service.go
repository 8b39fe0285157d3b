package core

import (
	"context"
	"fmt"
	"time"

	"grovecore/pkg/domain"
)

// Service exposes the transactional lifecycle operations for tagged trees.
// Every mutating operation runs as a single store transaction over its whole
// batch: either every tag transitions or none does.
type Service struct {
	store    PersistentStore
	logger   Logger
	metrics  MetricsRecorder
	tracer   Tracer
	now      func() time.Time
	alertCfg AlertConfig
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:    store,
		logger:   noopLogger{},
		metrics:  noopMetrics{},
		tracer:   noopTracer{},
		now:      func() time.Time { return time.Now().UTC() },
		alertCfg: DefaultAlertConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// DefaultRulesEngine returns an engine with the standard commit-time rules
// registered: transition legality, reservation capacity, and ledger
// conservation.
func DefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(StatusTransitionRule())
	engine.Register(ReservationCapacityRule())
	engine.Register(LedgerConservationRule())
	return engine
}

// begin instruments an operation: it starts a trace span and returns the
// completion callback feeding metrics and logs.
func (s *Service) begin(ctx context.Context, op string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, op)
	return ctx, func(err error) {
		s.metrics.Observe(ctx, op, err == nil, time.Since(start))
		span.End(err)
		if err != nil {
			s.logger.Warn("stock operation failed", "operation", op, "error", err)
		} else {
			s.logger.Debug("stock operation committed", "operation", op)
		}
	}
}

// CreateZone persists a new growing zone.
func (s *Service) CreateZone(ctx context.Context, zone Zone) (Zone, Result, error) {
	var created Zone
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreateZone(zone)
		return err
	})
	return created, res, err
}

// CreateDeal persists a new sales deal.
func (s *Service) CreateDeal(ctx context.Context, deal Deal) (Deal, Result, error) {
	var created Deal
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreateDeal(deal)
		return err
	})
	return created, res, err
}

// CreateDigOrder persists a new dig work order.
func (s *Service) CreateDigOrder(ctx context.Context, order DigOrder) (DigOrder, Result, error) {
	var created DigOrder
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreateDigOrder(order)
		return err
	})
	return created, res, err
}

// CreateShipment persists a new shipment record.
func (s *Service) CreateShipment(ctx context.Context, shipment Shipment) (Shipment, Result, error) {
	var created Shipment
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreateShipment(shipment)
		return err
	})
	return created, res, err
}

// PlantingInput describes a planting event registering new tags.
type PlantingInput struct {
	ZoneID      string `json:"zone_id"`
	SpeciesID   string `json:"species_id"`
	SizeLabel   string `json:"size_label"`
	HeightLabel string `json:"height_label,omitempty"`
	GradeID     string `json:"grade_id,omitempty"`
	Count       int    `json:"count"`
}

// RegisterPlanting creates Count tags in the given dimension group, all in
// status in_zone.
func (s *Service) RegisterPlanting(ctx context.Context, input PlantingInput) (tags []Tag, err error) {
	ctx, done := s.begin(ctx, "register_planting")
	defer func() { done(err) }()

	if input.Count <= 0 {
		err = fmt.Errorf("planting count must be positive, got %d", input.Count)
		return nil, err
	}
	if input.SpeciesID == "" || input.SizeLabel == "" {
		err = fmt.Errorf("species and size are required")
		return nil, err
	}
	_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		for i := 0; i < input.Count; i++ {
			created, createErr := tx.CreateTag(Tag{
				ZoneID:      input.ZoneID,
				SpeciesID:   input.SpeciesID,
				SizeLabel:   input.SizeLabel,
				HeightLabel: input.HeightLabel,
				GradeID:     input.GradeID,
				Status:      StatusInZone,
			})
			if createErr != nil {
				return createErr
			}
			tags = append(tags, created)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tags, nil
}

// Regrade updates the size label and grade of a tag still standing in its
// zone. Other statuses refuse re-grading.
func (s *Service) Regrade(ctx context.Context, tagID, sizeLabel, gradeID string) (tag Tag, err error) {
	ctx, done := s.begin(ctx, "regrade")
	defer func() { done(err) }()

	_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var updateErr error
		tag, updateErr = tx.UpdateTag(tagID, func(t *Tag) error {
			if t.Status != StatusInZone {
				return fmt.Errorf("tag %s: regrade requires in_zone, status is %s", t.ID, t.Status)
			}
			if sizeLabel != "" {
				t.SizeLabel = sizeLabel
			}
			t.GradeID = gradeID
			return nil
		})
		return updateErr
	})
	if err != nil {
		return Tag{}, err
	}
	return tag, nil
}

// LedgerFilter narrows ledger reads to matching dimension groups. Empty
// fields match everything.
type LedgerFilter struct {
	ZoneID    string
	SpeciesID string
	SizeLabel string
	GradeID   string
}

func (f LedgerFilter) matches(k GroupKey) bool {
	if f.ZoneID != "" && f.ZoneID != k.ZoneID {
		return false
	}
	if f.SpeciesID != "" && f.SpeciesID != k.SpeciesID {
		return false
	}
	if f.SizeLabel != "" && f.SizeLabel != k.SizeLabel {
		return false
	}
	if f.GradeID != "" && f.GradeID != k.GradeID {
		return false
	}
	return true
}

// Ledger returns the derived aggregate rows for groups matching the filter.
// Reads never error on missing data; an unmatched filter yields no rows.
func (s *Service) Ledger(ctx context.Context, filter LedgerFilter) ([]LedgerRow, error) {
	var rows []LedgerRow
	err := s.store.View(ctx, func(view TransactionView) error {
		for _, row := range view.Ledger() {
			if filter.matches(row.Group) {
				rows = append(rows, row)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Alerts evaluates the operational alert rules against current ledger state.
// The filter narrows evaluation to matching dimension groups; an empty filter
// evaluates everything.
func (s *Service) Alerts(ctx context.Context, filter LedgerFilter) ([]Alert, error) {
	var alerts []Alert
	err := s.store.View(ctx, func(view TransactionView) error {
		var rows []LedgerRow
		for _, row := range view.Ledger() {
			if filter.matches(row.Group) {
				rows = append(rows, row)
			}
		}
		var tags []Tag
		for _, tag := range view.ListTags() {
			if filter.matches(tag.Group()) {
				tags = append(tags, tag)
			}
		}
		alerts = EvaluateAlerts(rows, tags, s.alertCfg, s.now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return alerts, nil
}

// MonthlySnapshot returns the archived ledger rows for the given period.
// Unknown periods yield an empty result, not an error.
func (s *Service) MonthlySnapshot(_ context.Context, period string) ([]SnapshotRow, error) {
	rows, ok := s.store.GetSnapshot(period)
	if !ok {
		return []SnapshotRow{}, nil
	}
	return rows, nil
}

// SnapshotPeriods lists all archived periods in ascending order.
func (s *Service) SnapshotPeriods(_ context.Context) []string {
	return s.store.ListSnapshotPeriods()
}

// GetTag returns a single tag from committed state.
func (s *Service) GetTag(_ context.Context, id string) (Tag, bool) {
	return s.store.GetTag(id)
}
