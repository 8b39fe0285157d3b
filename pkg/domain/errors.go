package domain

import "fmt"

// IllegalTransitionError reports a requested status change that is not on the
// allowed edge list for the tag's current status.
type IllegalTransitionError struct {
	TagID string
	From  TagStatus
	To    TagStatus
}

func (e IllegalTransitionError) Error() string {
	return fmt.Sprintf("tag %s: illegal transition %s -> %s", e.TagID, e.From, e.To)
}

// OversellError reports a transition that would push a dimension group's
// committed quantity past its total.
type OversellError struct {
	Group     GroupKey
	Requested int
	Available int
}

func (e OversellError) Error() string {
	return fmt.Sprintf("group %s/%s/%s: requested %d, available %d",
		e.Group.ZoneID, e.Group.SpeciesID, e.Group.SizeLabel, e.Requested, e.Available)
}

// UnknownReferenceError reports a supplied id that does not resolve to an
// existing record.
type UnknownReferenceError struct {
	Entity EntityType
	ID     string
}

func (e UnknownReferenceError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// AssociationMismatchError reports an operation whose reference id does not
// match the association recorded on the tag.
type AssociationMismatchError struct {
	TagID string
	Field string
	Want  string
	Got   string
}

func (e AssociationMismatchError) Error() string {
	return fmt.Sprintf("tag %s: %s is %q, not %q", e.TagID, e.Field, e.Got, e.Want)
}
