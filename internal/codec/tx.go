package codec

import (
	"encoding/json"
	"fmt"
)

// TxEnvelope is the v0 transaction container.
//
// CometBFT transactions are opaque bytes. For v0 localnet we use JSON-encoded
// txs to move fast; this is NOT the final protocol encoding.
type TxEnvelope struct {
	// Basic routing.
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`

	// v0 tx auth (optional):
	// - Nonce: included in the signed message for replay protection (must increase per signer).
	// - Signer: logical signer id (the account the tx acts for).
	// - Sig: Ed25519 signature over (type, nonce, signer, sha256(value)).
	//
	// Note: This is still a scaffold; it is NOT the final protocol encoding.
	Nonce  string `json:"nonce,omitempty"`
	Signer string `json:"signer,omitempty"`
	Sig    []byte `json:"sig,omitempty"`
}

func DecodeTxEnvelope(txBytes []byte) (TxEnvelope, error) {
	var env TxEnvelope
	if err := json.Unmarshal(txBytes, &env); err != nil {
		return TxEnvelope{}, fmt.Errorf("invalid tx json: %w", err)
	}
	if env.Type == "" {
		return TxEnvelope{}, fmt.Errorf("missing tx.type")
	}
	return env, nil
}

// ---- Bank ----

type BankMintTx struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

type BankSendTx struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// ---- Auth (v0) ----

// v0: account pubkey registration for tx authentication.
type AuthRegisterAccountTx struct {
	Account string `json:"account"`
	PubKey  []byte `json:"pubKey"` // base64 (32 bytes)
}

// ---- Roulette ----

// RouletteOpenRoundTx publishes a commitment and opens the betting window.
// Operator only.
type RouletteOpenRoundTx struct {
	Operator       string `json:"operator"`
	Commitment     []byte `json:"commitment"` // base64 (32 bytes), sha256 of the secret
	DurationBlocks uint64 `json:"durationBlocks"`
}

// RoulettePlaceBetTx accumulates a stake on one slot of the open round.
// Re-placing on the same slot adds to the existing stake.
type RoulettePlaceBetTx struct {
	Bettor string `json:"bettor"`
	Slot   uint32 `json:"slot"`
	Amount uint64 `json:"amount"`
}

// RouletteRevealTx discloses the committed secret once the close height has
// passed. Callable by anyone, not only the operator, so a non-responsive
// operator cannot hold finished rounds hostage.
type RouletteRevealTx struct {
	Caller  string `json:"caller,omitempty"`
	RoundID uint64 `json:"roundId"`
	Secret  []byte `json:"secret"` // base64
}

// RouletteClaimTx pays the caller their proportional share of the pot for a
// winning stake. At most one successful claim per (round, bettor, slot).
type RouletteClaimTx struct {
	Claimer string `json:"claimer"`
	RoundID uint64 `json:"roundId"`
	Slot    uint32 `json:"slot"`
}

// RouletteReclaimPotTx returns an unwinnable pot to the operator. Only
// permitted when no stake sits on the derived outcome slot.
type RouletteReclaimPotTx struct {
	Operator string `json:"operator"`
	RoundID  uint64 `json:"roundId"`
}
