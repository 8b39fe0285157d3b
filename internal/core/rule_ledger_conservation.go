package core

import (
	"context"
	"fmt"

	"grovecore/pkg/domain"
)

// LedgerConservationRule verifies that every derived ledger row still sums
// its status buckets to the group total. A mismatch means a counting bug,
// so it blocks the commit rather than warn.
func LedgerConservationRule() domain.Rule {
	return ledgerConservationRule{}
}

type ledgerConservationRule struct{}

func (ledgerConservationRule) Name() string { return "ledger_conservation" }

func (ledgerConservationRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	if !touchesTags(changes) {
		return res, nil
	}
	for _, row := range view.Ledger() {
		if sum := row.Counts.StatusSum(); sum != row.Counts.Total {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "ledger_conservation",
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("group %s/%s/%s status sum %d does not match total %d", row.Group.ZoneID, row.Group.SpeciesID, row.Group.SizeLabel, sum, row.Counts.Total),
				Entity:   EntityTag,
			})
		}
	}
	return res, nil
}
