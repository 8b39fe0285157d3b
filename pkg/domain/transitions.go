package domain

// The tag lifecycle is a closed state machine. Edges not present in the table
// below are illegal; TransitionEngine operations and the status transition
// rule both consult the same table so the two can never disagree.

// prepChain orders the dig-preparation pipeline. Adjacent states are mutually
// reachable so a mis-staged tree can be walked back.
var prepChain = []TagStatus{
	StatusInZone,
	StatusSelectedForDig,
	StatusRootPrune1,
	StatusRootPrune2,
	StatusRootPrune3,
	StatusRootPrune4,
	StatusReadyToLift,
}

var transitionEdges = buildTransitionEdges()

func buildTransitionEdges() map[TagStatus]map[TagStatus]struct{} {
	edges := make(map[TagStatus]map[TagStatus]struct{}, len(AllStatuses()))
	add := func(from, to TagStatus) {
		set, ok := edges[from]
		if !ok {
			set = make(map[TagStatus]struct{})
			edges[from] = set
		}
		set[to] = struct{}{}
	}

	for i := 0; i < len(prepChain)-1; i++ {
		add(prepChain[i], prepChain[i+1])
		add(prepChain[i+1], prepChain[i])
	}

	// Reservation against a deal, from either sellable state.
	add(StatusInZone, StatusReserved)
	add(StatusReadyToLift, StatusReserved)
	add(StatusReserved, StatusInZone) // unreserve

	// Dig commitment, with or without a prior reservation.
	add(StatusInZone, StatusDigOrdered)
	add(StatusReadyToLift, StatusDigOrdered)
	add(StatusReserved, StatusDigOrdered)

	add(StatusDigOrdered, StatusDug)
	add(StatusDug, StatusShipped)
	add(StatusShipped, StatusPlanted)

	// Side branches reachable from every non-terminal state.
	for _, s := range AllStatuses() {
		if IsTerminal(s) || s == StatusRehab {
			continue
		}
		add(s, StatusRehab)
		add(s, StatusDead)
		add(s, StatusCancelled)
	}
	add(StatusRehab, StatusInZone)
	add(StatusRehab, StatusDead)
	add(StatusRehab, StatusCancelled)

	return edges
}

// AllStatuses returns every status in the lifecycle, in pipeline order.
func AllStatuses() []TagStatus {
	return []TagStatus{
		StatusInZone,
		StatusSelectedForDig,
		StatusRootPrune1,
		StatusRootPrune2,
		StatusRootPrune3,
		StatusRootPrune4,
		StatusReadyToLift,
		StatusReserved,
		StatusDigOrdered,
		StatusDug,
		StatusShipped,
		StatusPlanted,
		StatusRehab,
		StatusDead,
		StatusCancelled,
	}
}

// KnownStatus reports whether s is a member of the lifecycle.
func KnownStatus(s TagStatus) bool {
	for _, known := range AllStatuses() {
		if s == known {
			return true
		}
	}
	return false
}

// CanTransition reports whether the directed edge from -> to is legal.
func CanTransition(from, to TagStatus) bool {
	set, ok := transitionEdges[from]
	if !ok {
		return false
	}
	_, ok = set[to]
	return ok
}

// IsTerminal reports whether s admits no further transitions.
func IsTerminal(s TagStatus) bool {
	switch s {
	case StatusPlanted, StatusDead, StatusCancelled:
		return true
	}
	return false
}

// IsSellable reports whether a tag in s can be reserved or dig-ordered
// directly.
func IsSellable(s TagStatus) bool {
	return s == StatusInZone || s == StatusReadyToLift
}

// IsCommitted reports whether s counts against a group's reservation
// capacity: the tree is promised away but still part of the group total.
func IsCommitted(s TagStatus) bool {
	switch s {
	case StatusReserved, StatusDigOrdered, StatusDug, StatusShipped:
		return true
	}
	return false
}

// RequiresDeal reports whether a tag in s must carry a deal reference.
func RequiresDeal(s TagStatus) bool {
	switch s {
	case StatusReserved, StatusPlanted:
		return true
	}
	return false
}

// RequiresDigOrder reports whether a tag in s must carry a dig-order reference.
func RequiresDigOrder(s TagStatus) bool {
	return s == StatusDigOrdered || s == StatusDug
}

// RequiresShipment reports whether a tag in s must carry a shipment reference.
func RequiresShipment(s TagStatus) bool {
	return s == StatusShipped || s == StatusPlanted
}
