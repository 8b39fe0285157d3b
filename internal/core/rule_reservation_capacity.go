package core

import (
	"context"
	"fmt"

	"grovecore/pkg/domain"
)

// ReservationCapacityRule blocks commits that leave any dimension group with
// more committed tags than it holds in total. The per-operation guard checks
// availability up front; this rule is the commit-time backstop.
func ReservationCapacityRule() domain.Rule {
	return reservationCapacityRule{}
}

type reservationCapacityRule struct{}

func (reservationCapacityRule) Name() string { return "reservation_capacity" }

func (reservationCapacityRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	if !touchesTags(changes) {
		return res, nil
	}
	for _, row := range view.Ledger() {
		if committed := row.Counts.Committed(); committed > row.Counts.Total {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "reservation_capacity",
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("group %s/%s/%s committed %d exceeds total %d", row.Group.ZoneID, row.Group.SpeciesID, row.Group.SizeLabel, committed, row.Counts.Total),
				Entity:   EntityTag,
			})
		}
	}
	return res, nil
}

func touchesTags(changes []domain.Change) bool {
	for _, change := range changes {
		if change.Entity == EntityTag {
			return true
		}
	}
	return false
}
