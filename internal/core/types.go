package core

import "datamarket/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Base               = domain.Base
	Principal          = domain.Principal
	PlatformConfig     = domain.PlatformConfig
	Dataset            = domain.Dataset
	Purchase           = domain.Purchase
	License            = domain.License
	UsageRights        = domain.UsageRights
	AccessType         = domain.AccessType
	Digest             = domain.Digest
	LedgerEntry        = domain.LedgerEntry
	Balance            = domain.Balance
	Event              = domain.Event
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	Rule               = domain.Rule
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)

const (
	EntityPlatformConfig = domain.EntityPlatformConfig
	EntityDataset        = domain.EntityDataset
	EntityPurchase       = domain.EntityPurchase
	EntityBalance        = domain.EntityBalance
	EntityLedgerEntry    = domain.EntityLedgerEntry
	EntityEvent          = domain.EntityEvent
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

// NewRulesEngine constructs an empty engine.
func NewRulesEngine() *RulesEngine { return domain.NewRulesEngine() }
