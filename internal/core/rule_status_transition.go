package core

import (
	"context"
	"fmt"

	"grovecore/pkg/domain"
)

// StatusTransitionRule blocks any tag update whose status change is not an
// edge of the lifecycle graph, and any status value outside the known set.
func StatusTransitionRule() domain.Rule {
	return statusTransitionRule{}
}

type statusTransitionRule struct{}

func (statusTransitionRule) Name() string { return "status_transition" }

func (statusTransitionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != EntityTag {
			continue
		}
		after, ok := change.After.(Tag)
		if !ok {
			continue
		}
		if !domain.KnownStatus(after.Status) {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "status_transition",
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("tag %s set to unknown status %s", after.ID, after.Status),
				Entity:   EntityTag,
				EntityID: after.ID,
			})
			continue
		}
		if change.Action != ActionUpdate {
			continue
		}
		before, ok := change.Before.(Tag)
		if !ok || before.Status == after.Status {
			continue
		}
		if !domain.CanTransition(before.Status, after.Status) {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "status_transition",
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("tag %s cannot move from %s to %s", after.ID, before.Status, after.Status),
				Entity:   EntityTag,
				EntityID: after.ID,
			})
		}
	}
	return res, nil
}
