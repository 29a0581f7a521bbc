package app

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	abci "github.com/cometbft/cometbft/abci/types"
	"github.com/rs/zerolog"

	"onchainroulette/internal/codec"
	"onchainroulette/internal/state"
)

const (
	AppVersion uint64 = 1
)

type OCRApp struct {
	*abci.BaseApplication

	home string
	log  zerolog.Logger

	mu       sync.Mutex
	st       *state.State
	lastHash []byte
}

// New loads (or initializes) the app state under <home>/app. Params apply only
// to a fresh state; an existing state keeps the params it was created with.
func New(home string, params state.Params, log zerolog.Logger) (*OCRApp, error) {
	appHome := filepath.Join(home, "app")
	st, err := state.Load(appHome)
	if err != nil {
		return nil, err
	}
	if st.Height == 0 && len(st.Rounds) == 0 {
		st.Params = params
	}
	a := &OCRApp{
		BaseApplication: abci.NewBaseApplication(),
		home:            home,
		log:             log,
		st:              st,
		lastHash:        st.AppHash(),
	}
	return a, nil
}

func (a *OCRApp) Info(_ context.Context, _ *abci.InfoRequest) (*abci.InfoResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return &abci.InfoResponse{
		Data:             "OCR (v0)",
		Version:          "v0",
		AppVersion:       AppVersion,
		LastBlockHeight:  a.st.Height,
		LastBlockAppHash: a.lastHash,
	}, nil
}

func (a *OCRApp) CheckTx(_ context.Context, req *abci.CheckTxRequest) (*abci.CheckTxResponse, error) {
	_, err := codec.DecodeTxEnvelope(req.Tx)
	if err != nil {
		return &abci.CheckTxResponse{Code: 1, Log: err.Error()}, nil
	}
	// v0: only structural validation; signatures/auth are checked at delivery.
	return &abci.CheckTxResponse{Code: 0}, nil
}

// genesisAppState is the optional JSON carried in InitChain app state bytes.
type genesisAppState struct {
	Operator         string `json:"operator,omitempty"`
	WheelSize        uint32 `json:"wheelSize,omitempty"`
	MinStake         uint64 `json:"minStake,omitempty"`
	EntropyRetention int64  `json:"entropyRetention,omitempty"`
}

func (a *OCRApp) InitChain(_ context.Context, req *abci.InitChainRequest) (*abci.InitChainResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(req.AppStateBytes) > 0 {
		var gs genesisAppState
		if err := json.Unmarshal(req.AppStateBytes, &gs); err != nil {
			return nil, fmt.Errorf("decode genesis app state: %w", err)
		}
		if gs.Operator != "" {
			a.st.Params.Operator = gs.Operator
		}
		if gs.WheelSize != 0 {
			a.st.Params.WheelSize = gs.WheelSize
		}
		if gs.MinStake != 0 {
			a.st.Params.MinStake = gs.MinStake
		}
		if gs.EntropyRetention != 0 {
			a.st.Params.EntropyRetention = gs.EntropyRetention
		}
	}
	return &abci.InitChainResponse{}, nil
}

func (a *OCRApp) FinalizeBlock(_ context.Context, req *abci.FinalizeBlockRequest) (*abci.FinalizeBlockResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.st.Height = req.Height
	// The block hash doubles as the checkpoint-indexed entropy value, kept for
	// a bounded retention window.
	a.st.RecordEntropy(req.Height, req.Hash)

	txResults := make([]*abci.ExecTxResult, 0, len(req.Txs))
	for _, txBytes := range req.Txs {
		res := a.deliverTx(txBytes, req.Height)
		if res.Code != 0 {
			a.log.Debug().Int64("height", req.Height).Uint32("code", res.Code).Str("log", res.Log).Msg("tx rejected")
		}
		txResults = append(txResults, res)
	}

	a.lastHash = a.st.AppHash()

	return &abci.FinalizeBlockResponse{
		TxResults: txResults,
		AppHash:   a.lastHash,
	}, nil
}

func (a *OCRApp) Commit(_ context.Context, _ *abci.CommitRequest) (*abci.CommitResponse, error) {
	// Persist after each block for devnet durability.
	appHome := filepath.Join(a.home, "app")
	if err := a.st.Save(appHome); err != nil {
		// CometBFT expects Commit to not crash; return error so node halts loudly.
		return nil, err
	}
	return &abci.CommitResponse{}, nil
}

// roundView is the query representation of a round: metadata plus the status
// derived at the queried height, without the full bet map.
type roundView struct {
	ID          uint64            `json:"id"`
	Commitment  []byte            `json:"commitment"`
	OpenHeight  int64             `json:"openHeight"`
	CloseHeight int64             `json:"closeHeight"`
	Status      state.RoundStatus `json:"status"`
	Pot         uint64            `json:"pot"`
	Secret      []byte            `json:"secret,omitempty"`
	Entropy     []byte            `json:"entropy,omitempty"`
	Outcome     *uint32           `json:"outcome,omitempty"`
}

func viewOf(r *state.Round, height int64) roundView {
	v := roundView{
		ID:          r.ID,
		Commitment:  r.Commitment,
		OpenHeight:  r.OpenHeight,
		CloseHeight: r.CloseHeight,
		Status:      r.Status(height),
		Pot:         r.Pot,
	}
	if r.Revealed {
		v.Secret = r.Secret
		v.Entropy = r.Entropy
		out := r.Outcome
		v.Outcome = &out
	}
	return v
}

func (a *OCRApp) Query(_ context.Context, req *abci.QueryRequest) (*abci.QueryResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Paths:
	// - /params
	// - /account/<addr>
	// - /rounds
	// - /round/current
	// - /round/<id>
	// - /round/<id>/stake/<addr>/<slot>
	// - /round/<id>/aggregate/<slot>
	path := strings.TrimSpace(req.Path)
	switch {
	case path == "/params":
		b, _ := json.Marshal(a.st.Params)
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil
	case path == "/rounds":
		ids := make([]uint64, 0, len(a.st.Rounds))
		for id := range a.st.Rounds {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		b, _ := json.Marshal(ids)
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil
	case path == "/round/current":
		r := a.st.CurrentRound()
		if r == nil {
			return &abci.QueryResponse{Code: 1, Log: "no round opened yet", Height: a.st.Height}, nil
		}
		b, _ := json.Marshal(viewOf(r, a.st.Height))
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil
	case strings.HasPrefix(path, "/account/"):
		addr := strings.TrimPrefix(path, "/account/")
		bal := a.st.Balance(addr)
		b, _ := json.Marshal(map[string]any{"addr": addr, "balance": bal})
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil
	case strings.HasPrefix(path, "/round/"):
		return a.queryRound(strings.TrimPrefix(path, "/round/"))
	default:
		return &abci.QueryResponse{Code: 1, Log: "unknown query path", Height: a.st.Height}, nil
	}
}

func (a *OCRApp) queryRound(rest string) (*abci.QueryResponse, error) {
	parts := strings.Split(rest, "/")
	id, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil || id == 0 {
		return &abci.QueryResponse{Code: 1, Log: "invalid round id", Height: a.st.Height}, nil
	}
	r, ok := a.st.Rounds[id]
	if !ok {
		return &abci.QueryResponse{Code: 1, Log: "round not found", Height: a.st.Height}, nil
	}

	switch {
	case len(parts) == 1:
		b, _ := json.Marshal(viewOf(r, a.st.Height))
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil
	case len(parts) == 4 && parts[1] == "stake":
		slot, err := strconv.ParseUint(parts[3], 10, 32)
		if err != nil {
			return &abci.QueryResponse{Code: 1, Log: "invalid slot", Height: a.st.Height}, nil
		}
		amt := r.Stake(parts[2], uint32(slot))
		b, _ := json.Marshal(map[string]any{"roundId": id, "bettor": parts[2], "slot": slot, "stake": amt})
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil
	case len(parts) == 3 && parts[1] == "aggregate":
		slot, err := strconv.ParseUint(parts[2], 10, 32)
		if err != nil {
			return &abci.QueryResponse{Code: 1, Log: "invalid slot", Height: a.st.Height}, nil
		}
		b, _ := json.Marshal(map[string]any{"roundId": id, "slot": slot, "aggregate": r.SlotTotals[uint32(slot)]})
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil
	default:
		return &abci.QueryResponse{Code: 1, Log: "unknown query path", Height: a.st.Height}, nil
	}
}

func (a *OCRApp) deliverTx(txBytes []byte, height int64) *abci.ExecTxResult {
	env, err := codec.DecodeTxEnvelope(txBytes)
	if err != nil {
		return &abci.ExecTxResult{Code: 1, Log: err.Error()}
	}

	switch env.Type {
	case "bank/mint":
		var msg codec.BankMintTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: "bad bank/mint value"}
		}
		if msg.To == "" || msg.Amount == 0 {
			return &abci.ExecTxResult{Code: 1, Log: "missing to/amount"}
		}
		if err := a.st.Credit(msg.To, msg.Amount); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		return okEvent(EventTypeBankMinted, map[string]string{
			"to":     msg.To,
			"amount": fmt.Sprintf("%d", msg.Amount),
		})

	case "bank/send":
		var msg codec.BankSendTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: "bad bank/send value"}
		}
		if msg.From == "" || msg.To == "" || msg.Amount == 0 {
			return &abci.ExecTxResult{Code: 1, Log: "missing from/to/amount"}
		}
		if err := requireAccountAuth(a.st, env, msg.From); err != nil {
			return &abci.ExecTxResult{Code: ErrPermissionDenied.code, Log: err.Error()}
		}
		if err := a.st.Debit(msg.From, msg.Amount); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		if err := a.st.Credit(msg.To, msg.Amount); err != nil {
			_ = a.st.Credit(msg.From, msg.Amount)
			return &abci.ExecTxResult{Code: 1, Log: err.Error()}
		}
		return okEvent(EventTypeBankSent, map[string]string{
			"from":   msg.From,
			"to":     msg.To,
			"amount": fmt.Sprintf("%d", msg.Amount),
		})

	case "auth/register_account":
		var msg codec.AuthRegisterAccountTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: "bad auth/register_account value"}
		}
		if err := requireRegisterAccountAuth(env, msg); err != nil {
			return &abci.ExecTxResult{Code: ErrPermissionDenied.code, Log: err.Error()}
		}
		a.st.AccountKeys[msg.Account] = append([]byte(nil), msg.PubKey...)
		return okEvent(EventTypeAccountRegistered, map[string]string{
			"account": msg.Account,
		})

	case "roulette/open_round":
		var msg codec.RouletteOpenRoundTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: "bad roulette/open_round value"}
		}
		return a.execResult(rouletteOpenRound(a.st, height, env, msg))

	case "roulette/place_bet":
		var msg codec.RoulettePlaceBetTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: "bad roulette/place_bet value"}
		}
		return a.execResult(roulettePlaceBet(a.st, height, env, msg))

	case "roulette/reveal":
		var msg codec.RouletteRevealTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: "bad roulette/reveal value"}
		}
		res := a.execResult(rouletteReveal(a.st, height, msg))
		if res.Code == 0 && attrValue(res.Events, EventTypeOutcomeRevealed, "entropyDegraded") == "true" {
			a.log.Warn().Uint64("roundId", msg.RoundID).
				Msg("reveal used degenerate entropy: close-height hash fell out of the retention window")
		}
		return res

	case "roulette/claim":
		var msg codec.RouletteClaimTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: "bad roulette/claim value"}
		}
		return a.execResult(rouletteClaim(a.st, env, msg))

	case "roulette/reclaim_pot":
		var msg codec.RouletteReclaimPotTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: "bad roulette/reclaim_pot value"}
		}
		return a.execResult(rouletteReclaimPot(a.st, env, msg))

	default:
		return &abci.ExecTxResult{Code: 1, Log: "unknown tx type: " + env.Type}
	}
}

func (a *OCRApp) execResult(res *abci.ExecTxResult, err error) *abci.ExecTxResult {
	if err != nil {
		return &abci.ExecTxResult{Code: abciCode(err), Log: err.Error()}
	}
	return res
}

func okEvent(typ string, attrs map[string]string) *abci.ExecTxResult {
	ev := abci.Event{Type: typ}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ev.Attributes = append(ev.Attributes, abci.EventAttribute{Key: k, Value: attrs[k], Index: true})
	}
	return &abci.ExecTxResult{
		Code:   0,
		Events: []abci.Event{ev},
	}
}

func attrValue(events []abci.Event, typ, key string) string {
	for _, ev := range events {
		if ev.Type != typ {
			continue
		}
		for _, a := range ev.Attributes {
			if a.Key == key {
				return a.Value
			}
		}
	}
	return ""
}
