package app

import (
	"fmt"
	"math/bits"

	abci "github.com/cometbft/cometbft/abci/types"

	"onchainroulette/internal/codec"
	"onchainroulette/internal/state"
	"onchainroulette/internal/wheel"
)

// proportionalPayout computes floor(pot * stake / aggregate) without
// overflowing the 128-bit intermediate product. Requires 0 < stake <=
// aggregate, which bounds the quotient by pot.
func proportionalPayout(pot, stake, aggregate uint64) uint64 {
	if pot == 0 || stake == 0 || aggregate == 0 {
		return 0
	}
	hi, lo := bits.Mul64(pot, stake)
	q, _ := bits.Div64(hi, lo, aggregate)
	return q
}

// rouletteClaim pays the caller their share of the pot for a winning stake.
//
// The outcome slot is re-derived on every claim from the round's stored secret
// and pinned entropy rather than read from a cache; derivation is idempotent so
// this is observably equivalent. Each payout is a fraction of the full recorded
// pot: the pot is not decremented by claims, and floor division may leave a
// small remainder in the vault. That dust is accepted leakage, never
// redistributed.
func rouletteClaim(st *state.State, env codec.TxEnvelope, msg codec.RouletteClaimTx) (*abci.ExecTxResult, error) {
	if st == nil {
		return nil, fmt.Errorf("state is nil")
	}
	if msg.Claimer == "" {
		return nil, fmt.Errorf("%w: missing claimer", ErrParse)
	}
	if err := requireAccountAuth(st, env, msg.Claimer); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	r := st.Rounds[msg.RoundID]
	if r == nil {
		return nil, fmt.Errorf("%w: round %d", ErrRoundNotFound, msg.RoundID)
	}
	if !r.Revealed {
		return nil, fmt.Errorf("%w: round %d", ErrRoundNotRevealed, r.ID)
	}
	outcome, err := wheel.Derive(r.Secret, r.Entropy, r.ID, st.Params.WheelSize)
	if err != nil {
		return nil, fmt.Errorf("derive outcome: %w", err)
	}
	if msg.Slot != outcome {
		return nil, fmt.Errorf("%w: slot %d, outcome %d", ErrNotWinningSlot, msg.Slot, outcome)
	}
	stake := r.Stake(msg.Claimer, msg.Slot)
	if stake == 0 {
		return nil, fmt.Errorf("%w: no stake on round %d slot %d", ErrNoStake, r.ID, msg.Slot)
	}

	payout := proportionalPayout(r.Pot, stake, r.SlotTotals[outcome])

	// Consume the stake before moving funds so a re-entrant or duplicate claim
	// finds nothing; roll it back if the transfer cannot complete.
	r.ZeroStake(msg.Claimer, msg.Slot)
	if err := st.Debit(state.VaultAccount, payout); err != nil {
		r.RestoreStake(msg.Claimer, msg.Slot, stake)
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := st.Credit(msg.Claimer, payout); err != nil {
		_ = st.Credit(state.VaultAccount, payout)
		r.RestoreStake(msg.Claimer, msg.Slot, stake)
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	return okEvent(EventTypePayoutClaimed, map[string]string{
		"roundId": fmt.Sprintf("%d", r.ID),
		"claimer": msg.Claimer,
		"slot":    fmt.Sprintf("%d", msg.Slot),
		"stake":   fmt.Sprintf("%d", stake),
		"payout":  fmt.Sprintf("%d", payout),
	}), nil
}

// rouletteReclaimPot returns an unwinnable pot to the operator. It is gated
// to the structurally-no-winner case: any stake on the outcome slot blocks it
// forever. A second reclaim finds a zero pot and transfers nothing.
func rouletteReclaimPot(st *state.State, env codec.TxEnvelope, msg codec.RouletteReclaimPotTx) (*abci.ExecTxResult, error) {
	if st == nil {
		return nil, fmt.Errorf("state is nil")
	}
	if err := requireOperator(st, env, msg.Operator); err != nil {
		return nil, err
	}
	r := st.Rounds[msg.RoundID]
	if r == nil {
		return nil, fmt.Errorf("%w: round %d", ErrRoundNotFound, msg.RoundID)
	}
	if !r.Revealed {
		return nil, fmt.Errorf("%w: round %d", ErrRoundNotRevealed, r.ID)
	}
	outcome, err := wheel.Derive(r.Secret, r.Entropy, r.ID, st.Params.WheelSize)
	if err != nil {
		return nil, fmt.Errorf("derive outcome: %w", err)
	}
	if r.SlotTotals[outcome] > 0 {
		return nil, fmt.Errorf("%w: %d staked on outcome slot %d", ErrWinnersExist, r.SlotTotals[outcome], outcome)
	}

	amount := r.Pot
	if amount > 0 {
		if err := st.Debit(state.VaultAccount, amount); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
		if err := st.Credit(msg.Operator, amount); err != nil {
			_ = st.Credit(state.VaultAccount, amount)
			return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
		r.Pot = 0
	}

	return okEvent(EventTypePotReclaimed, map[string]string{
		"roundId": fmt.Sprintf("%d", r.ID),
		"amount":  fmt.Sprintf("%d", amount),
	}), nil
}
