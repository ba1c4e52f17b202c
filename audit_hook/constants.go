package audithook

// Action constants for audit events.
const (
	// Account actions
	ActionAccountCreated = "account.created"
	ActionAccountUpdated = "account.updated"
	ActionOwnerChanged   = "account.owner_changed"
	ActionProxyChanged   = "account.proxy_changed"

	// Delegation actions
	ActionDelegationSet = "delegation.set"

	// Recovery actions
	ActionRecoveryRequested       = "recovery.requested"
	ActionRecoveryCanceled        = "recovery.canceled"
	ActionAccountRecovered        = "recovery.completed"
	ActionRecoveryChangeRequested = "recovery.change_requested"
	ActionRecoveryAccountChanged  = "recovery.account_changed"

	// Rejections
	ActionAuthorityRejected = "authority.rejected"
	ActionDuplicateRequest  = "request.duplicate"

	// Chain actions
	ActionBlockReverted = "block.reverted"
)

// Resource constants for audit events.
const (
	ResourceAccount     = "account"
	ResourceDelegation  = "delegation"
	ResourceRecovery    = "recovery"
	ResourceTransaction = "transaction"
	ResourceBlock       = "block"
)

// Category constants for audit events.
const (
	CategoryAccount  = "account"
	CategoryStake    = "stake"
	CategorySecurity = "security"
	CategoryChain    = "chain"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
