package core

import (
	"context"
	"fmt"

	"grovecore/pkg/domain"
)

// transitionRequest describes one batch lifecycle operation. validate runs
// before the status edge check so typed reference errors surface first;
// mutate applies the association updates alongside the status change.
type transitionRequest struct {
	op     string
	target TagStatus
	// guarded ops grow the committed quantity of a group and must clear
	// the reservation guard before any tag moves.
	guarded  bool
	validate func(tx Transaction, tag Tag) error
	mutate   func(t *Tag)
}

// applyTransition moves every tag in the batch to the request target inside
// one transaction. The first failing tag aborts the whole batch; on success
// the returned count equals the batch size.
func (s *Service) applyTransition(ctx context.Context, req transitionRequest, tagIDs []string) (n int, err error) {
	ctx, done := s.begin(ctx, req.op)
	defer func() { done(err) }()

	if len(tagIDs) == 0 {
		return 0, nil
	}
	_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		tags := make([]Tag, 0, len(tagIDs))
		seen := make(map[string]struct{}, len(tagIDs))
		for _, id := range tagIDs {
			if _, dup := seen[id]; dup {
				return fmt.Errorf("tag %s listed twice in batch", id)
			}
			seen[id] = struct{}{}
			tag, ok := tx.FindTag(id)
			if !ok {
				return domain.UnknownReferenceError{Entity: EntityTag, ID: id}
			}
			tags = append(tags, tag)
		}
		if req.guarded {
			if guardErr := checkReservationCapacity(tx.Snapshot(), tags); guardErr != nil {
				return guardErr
			}
		}
		for _, tag := range tags {
			if req.validate != nil {
				if validateErr := req.validate(tx, tag); validateErr != nil {
					return validateErr
				}
			}
			if !domain.CanTransition(tag.Status, req.target) {
				return domain.IllegalTransitionError{TagID: tag.ID, From: tag.Status, To: req.target}
			}
			if _, updateErr := tx.UpdateTag(tag.ID, func(t *Tag) error {
				t.Status = req.target
				if req.mutate != nil {
					req.mutate(t)
				}
				return nil
			}); updateErr != nil {
				return updateErr
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(tagIDs), nil
}

// checkReservationCapacity refuses batches that would commit more tags from
// a dimension group than the group has available. Tags already committed do
// not consume additional capacity when moved along the pipeline.
func checkReservationCapacity(view domain.RuleView, batch []Tag) error {
	requested := make(map[GroupKey]int)
	for _, tag := range batch {
		if domain.IsCommitted(tag.Status) {
			continue
		}
		requested[tag.Group()]++
	}
	for _, row := range view.Ledger() {
		n := requested[row.Group]
		if n == 0 {
			continue
		}
		if n > row.Counts.Available {
			return domain.OversellError{Group: row.Group, Requested: n, Available: row.Counts.Available}
		}
	}
	return nil
}

// Reserve commits the tags to a deal. Every tag must be sellable and the
// whole batch must fit the available quantity of each dimension group.
// Returns the number of tags reserved.
func (s *Service) Reserve(ctx context.Context, tagIDs []string, dealID string) (int, error) {
	return s.applyTransition(ctx, transitionRequest{
		op:      "reserve",
		target:  StatusReserved,
		guarded: true,
		validate: func(tx Transaction, _ Tag) error {
			if _, ok := tx.FindDeal(dealID); !ok {
				return domain.UnknownReferenceError{Entity: EntityDeal, ID: dealID}
			}
			return nil
		},
		mutate: func(t *Tag) {
			t.DealID = &dealID
		},
	}, tagIDs)
}

// Unreserve releases reserved tags back to in_zone and detaches the deal.
func (s *Service) Unreserve(ctx context.Context, tagIDs []string) (int, error) {
	return s.applyTransition(ctx, transitionRequest{
		op:     "unreserve",
		target: StatusInZone,
		validate: func(_ Transaction, tag Tag) error {
			if tag.Status != StatusReserved {
				return domain.IllegalTransitionError{TagID: tag.ID, From: tag.Status, To: StatusInZone}
			}
			return nil
		},
		mutate: func(t *Tag) {
			t.DealID = nil
		},
	}, tagIDs)
}

// SetDigOrdered attaches the tags to a dig order. Reserved tags keep their
// deal; uncommitted tags must clear the reservation guard first.
func (s *Service) SetDigOrdered(ctx context.Context, tagIDs []string, digOrderID string) (int, error) {
	return s.applyTransition(ctx, transitionRequest{
		op:      "set_dig_ordered",
		target:  StatusDigOrdered,
		guarded: true,
		validate: func(tx Transaction, tag Tag) error {
			order, ok := tx.FindDigOrder(digOrderID)
			if !ok {
				return domain.UnknownReferenceError{Entity: EntityDigOrder, ID: digOrderID}
			}
			if order.ZoneID != "" && order.ZoneID != tag.ZoneID {
				return domain.AssociationMismatchError{TagID: tag.ID, Field: "zone_id", Want: order.ZoneID, Got: tag.ZoneID}
			}
			return nil
		},
		mutate: func(t *Tag) {
			t.DigOrderID = &digOrderID
		},
	}, tagIDs)
}

// MarkDug records the tags as lifted out of the ground and advances the dig
// order status once work starts and once its quantity is met. Returns the
// number of tags dug.
func (s *Service) MarkDug(ctx context.Context, tagIDs []string, digOrderID string) (n int, err error) {
	ctx, done := s.begin(ctx, "mark_dug")
	defer func() { done(err) }()

	if len(tagIDs) == 0 {
		return 0, nil
	}
	_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		if _, ok := tx.FindDigOrder(digOrderID); !ok {
			return domain.UnknownReferenceError{Entity: EntityDigOrder, ID: digOrderID}
		}
		for _, id := range tagIDs {
			tag, ok := tx.FindTag(id)
			if !ok {
				return domain.UnknownReferenceError{Entity: EntityTag, ID: id}
			}
			if tag.DigOrderID == nil || *tag.DigOrderID != digOrderID {
				got := ""
				if tag.DigOrderID != nil {
					got = *tag.DigOrderID
				}
				return domain.AssociationMismatchError{TagID: tag.ID, Field: "dig_order_id", Want: digOrderID, Got: got}
			}
			if !domain.CanTransition(tag.Status, StatusDug) {
				return domain.IllegalTransitionError{TagID: tag.ID, From: tag.Status, To: StatusDug}
			}
			if _, updateErr := tx.UpdateTag(id, func(t *Tag) error {
				t.Status = StatusDug
				return nil
			}); updateErr != nil {
				return updateErr
			}
		}
		_, updateErr := tx.UpdateDigOrder(digOrderID, func(o *DigOrder) error {
			dug := 0
			for _, t := range tx.Snapshot().ListTags() {
				if t.DigOrderID != nil && *t.DigOrderID == o.ID && t.Status == StatusDug {
					dug++
				}
			}
			switch {
			case o.Qty > 0 && dug >= o.Qty:
				o.Status = DigOrderDone
			case dug > 0:
				o.Status = DigOrderInProgress
			}
			return nil
		})
		return updateErr
	})
	if err != nil {
		return 0, err
	}
	return len(tagIDs), nil
}

// MarkShipped attaches dug tags to an outbound shipment. Shipped tags no
// longer occupy a physical zone location.
func (s *Service) MarkShipped(ctx context.Context, tagIDs []string, shipmentID string) (int, error) {
	return s.applyTransition(ctx, transitionRequest{
		op:     "mark_shipped",
		target: StatusShipped,
		validate: func(tx Transaction, _ Tag) error {
			if _, ok := tx.FindShipment(shipmentID); !ok {
				return domain.UnknownReferenceError{Entity: EntityShipment, ID: shipmentID}
			}
			return nil
		},
		mutate: func(t *Tag) {
			t.ShipmentID = &shipmentID
		},
	}, tagIDs)
}

// MarkPlanted closes out shipped tags as planted at the customer under the
// deal that sold them.
func (s *Service) MarkPlanted(ctx context.Context, tagIDs []string, dealID string) (int, error) {
	return s.applyTransition(ctx, transitionRequest{
		op:     "mark_planted",
		target: StatusPlanted,
		validate: func(tx Transaction, tag Tag) error {
			if _, ok := tx.FindDeal(dealID); !ok {
				return domain.UnknownReferenceError{Entity: EntityDeal, ID: dealID}
			}
			if tag.DealID == nil || *tag.DealID != dealID {
				got := ""
				if tag.DealID != nil {
					got = *tag.DealID
				}
				return domain.AssociationMismatchError{TagID: tag.ID, Field: "deal_id", Want: dealID, Got: got}
			}
			return nil
		},
	}, tagIDs)
}

// Cancel retires tags that will never progress further. Terminal tags
// cannot be cancelled again.
func (s *Service) Cancel(ctx context.Context, tagIDs []string, reason string) (int, error) {
	return s.applyTransition(ctx, transitionRequest{
		op:     "cancel",
		target: StatusCancelled,
		mutate: func(t *Tag) {
			t.DealID = nil
			t.DigOrderID = nil
			t.ShipmentID = nil
			t.CancelReason = reason
		},
	}, tagIDs)
}

// SetStatus moves tags along the preparation chain or into a side branch.
// Statuses that carry commercial associations require their dedicated
// operation and are rejected here.
func (s *Service) SetStatus(ctx context.Context, tagIDs []string, target TagStatus, note string) (int, error) {
	if !domain.KnownStatus(target) {
		return 0, fmt.Errorf("unknown tag status %q", target)
	}
	if domain.IsCommitted(target) || target == StatusPlanted || target == StatusCancelled {
		return 0, fmt.Errorf("status %s requires its dedicated operation", target)
	}
	if note != "" {
		s.logger.Info("manual status change", "target", string(target), "note", note, "tags", len(tagIDs))
	}
	return s.applyTransition(ctx, transitionRequest{
		op:     "set_status",
		target: target,
		mutate: func(t *Tag) {
			t.DealID = nil
			t.DigOrderID = nil
			t.ShipmentID = nil
		},
	}, tagIDs)
}
