package app

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	abci "github.com/cometbft/cometbft/abci/types"

	"onchainroulette/internal/codec"
	"onchainroulette/internal/state"
	"onchainroulette/internal/wheel"
)

// rouletteOpenRound starts a new round under a published commitment.
//
// Only one round may be open or awaiting reveal at a time: the previous round
// must be revealed before a new one opens, so wagering and reveal windows
// never overlap.
func rouletteOpenRound(st *state.State, height int64, env codec.TxEnvelope, msg codec.RouletteOpenRoundTx) (*abci.ExecTxResult, error) {
	if st == nil {
		return nil, fmt.Errorf("state is nil")
	}
	if err := requireOperator(st, env, msg.Operator); err != nil {
		return nil, err
	}
	if len(msg.Commitment) != sha256.Size {
		return nil, fmt.Errorf("%w: commitment must be %d bytes", ErrParse, sha256.Size)
	}
	if msg.DurationBlocks < 1 {
		return nil, fmt.Errorf("%w: durationBlocks must be >= 1", ErrInvalidDuration)
	}
	if cur := st.CurrentRound(); cur != nil && !cur.Revealed {
		return nil, fmt.Errorf("%w: round %d not yet revealed", ErrRoundInProgress, cur.ID)
	}
	closeHeight, err := addHeightChecked(height, msg.DurationBlocks, "close height")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDuration, err)
	}

	id := st.NextRoundID
	st.NextRoundID++
	r := &state.Round{
		ID:          id,
		Commitment:  append([]byte(nil), msg.Commitment...),
		OpenHeight:  height,
		CloseHeight: closeHeight,
		SlotTotals:  map[uint32]uint64{},
		Bets:        map[string]map[uint32]uint64{},
	}
	st.Rounds[id] = r

	return okEvent(EventTypeRoundOpened, map[string]string{
		"roundId":     fmt.Sprintf("%d", id),
		"commitment":  hex.EncodeToString(r.Commitment),
		"openHeight":  fmt.Sprintf("%d", r.OpenHeight),
		"closeHeight": fmt.Sprintf("%d", r.CloseHeight),
	}), nil
}

// roulettePlaceBet accumulates a stake on one slot of the open round and
// moves the amount into vault custody. All validation happens before any
// state write.
func roulettePlaceBet(st *state.State, height int64, env codec.TxEnvelope, msg codec.RoulettePlaceBetTx) (*abci.ExecTxResult, error) {
	if st == nil {
		return nil, fmt.Errorf("state is nil")
	}
	if msg.Bettor == "" {
		return nil, fmt.Errorf("%w: missing bettor", ErrParse)
	}
	if err := requireAccountAuth(st, env, msg.Bettor); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	if msg.Slot >= st.Params.WheelSize {
		return nil, fmt.Errorf("%w: slot %d, wheel size %d", ErrInvalidSlot, msg.Slot, st.Params.WheelSize)
	}
	cur := st.CurrentRound()
	if cur == nil || cur.Revealed {
		return nil, fmt.Errorf("%w: betting requires an open round", ErrNoActiveRound)
	}
	if height > cur.CloseHeight {
		return nil, fmt.Errorf("%w: round %d closed at height %d", ErrBettingClosed, cur.ID, cur.CloseHeight)
	}
	if msg.Amount < st.Params.MinStake {
		return nil, fmt.Errorf("%w: amount %d below minimum %d", ErrStakeTooSmall, msg.Amount, st.Params.MinStake)
	}
	if msg.Amount > ^uint64(0)-cur.Pot {
		return nil, fmt.Errorf("%w: pot overflow", ErrTransferFailed)
	}

	if err := st.Debit(msg.Bettor, msg.Amount); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := st.Credit(state.VaultAccount, msg.Amount); err != nil {
		// Undo the debit so a failed transfer leaves no trace.
		_ = st.Credit(msg.Bettor, msg.Amount)
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	cur.AddStake(msg.Bettor, msg.Slot, msg.Amount)

	return okEvent(EventTypeBetPlaced, map[string]string{
		"roundId":   fmt.Sprintf("%d", cur.ID),
		"bettor":    msg.Bettor,
		"slot":      fmt.Sprintf("%d", msg.Slot),
		"amount":    fmt.Sprintf("%d", msg.Amount),
		"slotTotal": fmt.Sprintf("%d", cur.SlotTotals[msg.Slot]),
		"pot":       fmt.Sprintf("%d", cur.Pot),
	}), nil
}

// rouletteReveal publishes the committed secret and fixes the outcome.
//
// Anyone may call it once the timing and commitment conditions hold, which
// keeps finished rounds from being held hostage by a silent operator. The
// entropy for the close height may already have fallen out of the retention
// window; the reveal then proceeds with the degenerate zero value and flags
// the event, trading unpredictability for availability.
func rouletteReveal(st *state.State, height int64, msg codec.RouletteRevealTx) (*abci.ExecTxResult, error) {
	if st == nil {
		return nil, fmt.Errorf("state is nil")
	}
	r := st.Rounds[msg.RoundID]
	if r == nil {
		return nil, fmt.Errorf("%w: round %d", ErrRoundNotFound, msg.RoundID)
	}
	if r.Revealed {
		return nil, fmt.Errorf("%w: round %d", ErrAlreadyRevealed, r.ID)
	}
	if height <= r.CloseHeight {
		return nil, fmt.Errorf("%w: betting open until height %d", ErrRevealTooEarly, r.CloseHeight)
	}
	if !wheel.VerifyCommitment(r.Commitment, msg.Secret) {
		return nil, fmt.Errorf("%w: round %d", ErrCommitmentMismatch, r.ID)
	}

	entropy, degraded := st.EntropyAt(r.CloseHeight)
	outcome, err := wheel.Derive(msg.Secret, entropy, r.ID, st.Params.WheelSize)
	if err != nil {
		return nil, fmt.Errorf("derive outcome: %w", err)
	}

	r.Revealed = true
	r.Secret = append([]byte(nil), msg.Secret...)
	r.Entropy = entropy
	r.Outcome = outcome

	return okEvent(EventTypeOutcomeRevealed, map[string]string{
		"roundId":         fmt.Sprintf("%d", r.ID),
		"slot":            fmt.Sprintf("%d", outcome),
		"entropy":         hex.EncodeToString(entropy),
		"entropyDegraded": fmt.Sprintf("%t", degraded),
		"pot":             fmt.Sprintf("%d", r.Pot),
	}), nil
}
