package app

// Event types emitted over ABCI for external auditing and indexing. They are
// observational only; nothing in the core reads them back.
const (
	EventTypeBankMinted = "BankMinted"
	EventTypeBankSent   = "BankSent"

	EventTypeAccountRegistered = "AccountRegistered"

	EventTypeRoundOpened     = "RoundOpened"
	EventTypeBetPlaced       = "BetPlaced"
	EventTypeOutcomeRevealed = "OutcomeRevealed"
	EventTypePayoutClaimed   = "PayoutClaimed"
	EventTypePotReclaimed    = "PotReclaimed"
)
