package enums

type LedgerAction string

const (
	LedgerActionAdded    LedgerAction = "added"
	LedgerActionConsumed LedgerAction = "consumed"
	LedgerActionReset    LedgerAction = "reset"
)
