package core

import "grovecore/pkg/domain"

type (
	EntityType         = domain.EntityType
	TagStatus          = domain.TagStatus
	DigOrderStatus     = domain.DigOrderStatus
	Severity           = domain.Severity
	Base               = domain.Base
	Tag                = domain.Tag
	Zone               = domain.Zone
	Deal               = domain.Deal
	DigOrder           = domain.DigOrder
	Shipment           = domain.Shipment
	GroupKey           = domain.GroupKey
	GroupCounts        = domain.GroupCounts
	LedgerRow          = domain.LedgerRow
	SnapshotRow        = domain.SnapshotRow
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	Rule               = domain.Rule
	RuleView           = domain.RuleView
	RulesEngine        = domain.RulesEngine
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
	RuleViolationError = domain.RuleViolationError
)

const (
	EntityTag      = domain.EntityTag
	EntityZone     = domain.EntityZone
	EntityDeal     = domain.EntityDeal
	EntityDigOrder = domain.EntityDigOrder
	EntityShipment = domain.EntityShipment
	EntitySnapshot = domain.EntitySnapshot
)

const (
	StatusInZone         = domain.StatusInZone
	StatusSelectedForDig = domain.StatusSelectedForDig
	StatusRootPrune1     = domain.StatusRootPrune1
	StatusRootPrune2     = domain.StatusRootPrune2
	StatusRootPrune3     = domain.StatusRootPrune3
	StatusRootPrune4     = domain.StatusRootPrune4
	StatusReadyToLift    = domain.StatusReadyToLift
	StatusReserved       = domain.StatusReserved
	StatusDigOrdered     = domain.StatusDigOrdered
	StatusDug            = domain.StatusDug
	StatusShipped        = domain.StatusShipped
	StatusPlanted        = domain.StatusPlanted
	StatusRehab          = domain.StatusRehab
	StatusDead           = domain.StatusDead
	StatusCancelled      = domain.StatusCancelled
)

const (
	DigOrderPlanned    = domain.DigOrderPlanned
	DigOrderInProgress = domain.DigOrderInProgress
	DigOrderDone       = domain.DigOrderDone
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)
