package app

import (
	"testing"

	"onchainroulette/internal/state"
	"onchainroulette/internal/wheel"
)

func TestOpenRound_OperatorOnly(t *testing.T) {
	a := newTestApp(t)

	res := a.deliverTx(txBytes(t, "roulette/open_round", map[string]any{
		"operator":       "mallory",
		"commitment":     wheel.CommitmentFor([]byte("abc")),
		"durationBlocks": 5,
	}), 1)
	mustFail(t, res, ErrPermissionDenied)

	if a.st.NextRoundID != 1 || len(a.st.Rounds) != 0 {
		t.Fatalf("failed open must not allocate a round")
	}
}

func TestOpenRound_InvalidDuration(t *testing.T) {
	a := newTestApp(t)

	res := a.deliverTx(txBytes(t, "roulette/open_round", map[string]any{
		"operator":       testOperator,
		"commitment":     wheel.CommitmentFor([]byte("abc")),
		"durationBlocks": 0,
	}), 1)
	mustFail(t, res, ErrInvalidDuration)
}

func TestOpenRound_AllocatesSequentialIDs(t *testing.T) {
	a := newTestApp(t)

	id := openTestRound(t, a, 1, []byte("abc"), 5)
	if id != 1 {
		t.Fatalf("first round id=%d want=1 (id 0 is reserved)", id)
	}
	r := a.st.Rounds[id]
	if r.OpenHeight != 1 || r.CloseHeight != 6 || r.Pot != 0 {
		t.Fatalf("unexpected round: %+v", r)
	}
	if r.Status(1) != state.RoundOpen {
		t.Fatalf("new round must be open")
	}
}

func TestOpenRound_RoundInProgress(t *testing.T) {
	a := newTestApp(t)

	openTestRound(t, a, 1, []byte("abc"), 5)

	// Still open.
	res := a.deliverTx(txBytes(t, "roulette/open_round", map[string]any{
		"operator":       testOperator,
		"commitment":     wheel.CommitmentFor([]byte("next")),
		"durationBlocks": 5,
	}), 2)
	mustFail(t, res, ErrRoundInProgress)

	// Past the close height but unrevealed: still in progress.
	res = a.deliverTx(txBytes(t, "roulette/open_round", map[string]any{
		"operator":       testOperator,
		"commitment":     wheel.CommitmentFor([]byte("next")),
		"durationBlocks": 5,
	}), 50)
	mustFail(t, res, ErrRoundInProgress)

	// Revealed: the next round may open.
	mustOk(t, a.deliverTx(txBytes(t, "roulette/reveal", map[string]any{
		"roundId": 1,
		"secret":  []byte("abc"),
	}), 50))
	id := openTestRound(t, a, 51, []byte("next"), 5)
	if id != 2 {
		t.Fatalf("second round id=%d want=2", id)
	}
}

func TestPlaceBet_Validation(t *testing.T) {
	a := newTestApp(t)
	mintTestTokens(t, a, 1, "alice", 1000)

	// No round opened yet.
	res := a.deliverTx(txBytes(t, "roulette/place_bet", map[string]any{"bettor": "alice", "slot": 7, "amount": 100}), 1)
	mustFail(t, res, ErrNoActiveRound)

	openTestRound(t, a, 1, []byte("abc"), 5)

	res = a.deliverTx(txBytes(t, "roulette/place_bet", map[string]any{"bettor": "alice", "slot": 37, "amount": 100}), 2)
	mustFail(t, res, ErrInvalidSlot)

	a.st.Params.MinStake = 10
	res = a.deliverTx(txBytes(t, "roulette/place_bet", map[string]any{"bettor": "alice", "slot": 7, "amount": 9}), 2)
	mustFail(t, res, ErrStakeTooSmall)
	a.st.Params.MinStake = 1

	// Insufficient funds surface as a transfer failure.
	res = a.deliverTx(txBytes(t, "roulette/place_bet", map[string]any{"bettor": "poor", "slot": 7, "amount": 100}), 2)
	mustFail(t, res, ErrTransferFailed)

	if a.st.Rounds[1].Pot != 0 {
		t.Fatalf("failed bets must not touch the pot")
	}
	if got := a.st.Balance("alice"); got != 1000 {
		t.Fatalf("failed bets must not move funds; balance=%d", got)
	}
}

func TestPlaceBet_BettingClosed(t *testing.T) {
	a := newTestApp(t)
	mintTestTokens(t, a, 1, "alice", 1000)
	openTestRound(t, a, 1, []byte("abc"), 5) // closes at height 6

	// The close height itself still accepts bets.
	mustOk(t, a.deliverTx(txBytes(t, "roulette/place_bet", map[string]any{"bettor": "alice", "slot": 7, "amount": 100}), 6))

	res := a.deliverTx(txBytes(t, "roulette/place_bet", map[string]any{"bettor": "alice", "slot": 7, "amount": 100}), 7)
	mustFail(t, res, ErrBettingClosed)

	r := a.st.Rounds[1]
	if r.Pot != 100 || r.SlotTotals[7] != 100 {
		t.Fatalf("rejected bet altered bookkeeping: pot=%d agg=%d", r.Pot, r.SlotTotals[7])
	}
	if got := a.st.Balance("alice"); got != 900 {
		t.Fatalf("rejected bet moved funds; balance=%d", got)
	}
}

func TestPlaceBet_AccumulatesAndKeepsPotInvariant(t *testing.T) {
	a := newTestApp(t)
	mintTestTokens(t, a, 1, "alice", 1000)
	mintTestTokens(t, a, 1, "bob", 1000)
	openTestRound(t, a, 1, []byte("abc"), 5)

	mustOk(t, a.deliverTx(txBytes(t, "roulette/place_bet", map[string]any{"bettor": "alice", "slot": 7, "amount": 100}), 2))
	mustOk(t, a.deliverTx(txBytes(t, "roulette/place_bet", map[string]any{"bettor": "alice", "slot": 7, "amount": 50}), 2))
	mustOk(t, a.deliverTx(txBytes(t, "roulette/place_bet", map[string]any{"bettor": "alice", "slot": 9, "amount": 25}), 3))
	mustOk(t, a.deliverTx(txBytes(t, "roulette/place_bet", map[string]any{"bettor": "bob", "slot": 9, "amount": 300}), 3))

	r := a.st.Rounds[1]
	if got := r.Stake("alice", 7); got != 150 {
		t.Fatalf("same-slot re-bet must accumulate; stake=%d want=150", got)
	}

	var sum uint64
	for _, total := range r.SlotTotals {
		sum += total
	}
	if r.Pot != sum {
		t.Fatalf("pot=%d, sum of aggregates=%d; must be equal", r.Pot, sum)
	}
	if got := a.st.Balance(state.VaultAccount); got != r.Pot {
		t.Fatalf("vault=%d pot=%d; custody must cover the pot", got, r.Pot)
	}
}

func TestReveal_Validation(t *testing.T) {
	a := newTestApp(t)

	res := a.deliverTx(txBytes(t, "roulette/reveal", map[string]any{"roundId": 9, "secret": []byte("abc")}), 1)
	mustFail(t, res, ErrRoundNotFound)

	openTestRound(t, a, 1, []byte("abc"), 5)

	// Betting window still open (height <= closeHeight).
	res = a.deliverTx(txBytes(t, "roulette/reveal", map[string]any{"roundId": 1, "secret": []byte("abc")}), 6)
	mustFail(t, res, ErrRevealTooEarly)

	// Wrong secret fails and leaves the round untouched.
	res = a.deliverTx(txBytes(t, "roulette/reveal", map[string]any{"roundId": 1, "secret": []byte("wrong")}), 7)
	mustFail(t, res, ErrCommitmentMismatch)
	r := a.st.Rounds[1]
	if r.Revealed || r.Secret != nil {
		t.Fatalf("failed reveal must not mutate the round")
	}
	if r.Status(7) != state.RoundAwaitingReveal {
		t.Fatalf("round must remain awaiting reveal, got %q", r.Status(7))
	}

	mustOk(t, a.deliverTx(txBytes(t, "roulette/reveal", map[string]any{"roundId": 1, "secret": []byte("abc")}), 7))

	res = a.deliverTx(txBytes(t, "roulette/reveal", map[string]any{"roundId": 1, "secret": []byte("abc")}), 8)
	mustFail(t, res, ErrAlreadyRevealed)
}

func TestReveal_FixesOutcomeDeterministically(t *testing.T) {
	a := newTestApp(t)
	openTestRound(t, a, 1, []byte("abc"), 5)

	res := mustOk(t, a.deliverTx(txBytes(t, "roulette/reveal", map[string]any{"roundId": 1, "secret": []byte("abc")}), 7))
	ev := findEvent(res.Events, EventTypeOutcomeRevealed)
	if ev == nil {
		t.Fatalf("expected OutcomeRevealed event")
	}

	want := mustDerive(t, []byte("abc"), degenerateEntropy(), 1, 37)
	if got := parseU64(t, attr(ev, "slot")); uint32(got) != want {
		t.Fatalf("slot=%d want=%d", got, want)
	}
	if a.st.Rounds[1].Outcome != want {
		t.Fatalf("stored outcome=%d want=%d", a.st.Rounds[1].Outcome, want)
	}
}

// Reveal is deliberately open to any caller so a non-responsive operator
// cannot block settlement.
func TestReveal_AnyCallerAfterClose(t *testing.T) {
	a := newTestApp(t)
	openTestRound(t, a, 1, []byte("abc"), 5)

	mustOk(t, a.deliverTx(txBytes(t, "roulette/reveal", map[string]any{
		"caller":  "random-bystander",
		"roundId": 1,
		"secret":  []byte("abc"),
	}), 7))
	if !a.st.Rounds[1].Revealed {
		t.Fatalf("expected round revealed")
	}
}
