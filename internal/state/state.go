package state

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// VaultAccount custodies every staked unit until it is claimed or reclaimed.
const VaultAccount = "ocr/vault"

// Params are chain parameters fixed at genesis.
type Params struct {
	// Operator is the only account allowed to open rounds and reclaim pots.
	Operator string `json:"operator"`
	// WheelSize is the number of outcome slots (0..WheelSize-1).
	WheelSize uint32 `json:"wheelSize"`
	// MinStake is the smallest accepted bet amount.
	MinStake uint64 `json:"minStake"`
	// EntropyRetention is how many recent block hashes stay available to the
	// reveal path. Past the window the entropy value degrades to zero.
	EntropyRetention int64 `json:"entropyRetention"`
}

func DefaultParams() Params {
	return Params{
		WheelSize:        37,
		MinStake:         1,
		EntropyRetention: 256,
	}
}

type State struct {
	Height int64 `json:"height"`

	Params Params `json:"params"`

	NextRoundID uint64            `json:"nextRoundId"`
	Rounds      map[uint64]*Round `json:"rounds"`
	Accounts    map[string]uint64 `json:"accounts"`
	AccountKeys map[string][]byte `json:"accountKeys,omitempty"` // addr -> ed25519 pubkey (32 bytes)
	NonceMax    map[string]uint64 `json:"nonceMax,omitempty"`    // signer -> last accepted tx.nonce (u64), for replay protection
	Entropy     map[int64][]byte  `json:"entropy,omitempty"`     // height -> block hash, bounded retention
}

func NewState() *State {
	return &State{
		Height:      0,
		Params:      DefaultParams(),
		NextRoundID: 1,
		Rounds:      map[uint64]*Round{},
		Accounts:    map[string]uint64{},
		AccountKeys: map[string][]byte{},
		NonceMax:    map[string]uint64{},
		Entropy:     map[int64][]byte{},
	}
}

func Load(home string) (*State, error) {
	path := filepath.Join(home, "state.json")
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewState(), nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	st.normalize()
	return &st, nil
}

func (s *State) Save(home string) error {
	if err := os.MkdirAll(home, 0o755); err != nil {
		return fmt.Errorf("mkdir home: %w", err)
	}
	path := filepath.Join(home, "state.json")
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// Clone returns a deep copy of state suitable for staged tx execution.
func (s *State) Clone() (*State, error) {
	if s == nil {
		return nil, fmt.Errorf("state is nil")
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode state clone: %w", err)
	}
	var out State
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode state clone: %w", err)
	}
	out.normalize()
	return &out, nil
}

func (s *State) normalize() {
	if s.Rounds == nil {
		s.Rounds = map[uint64]*Round{}
	}
	if s.Accounts == nil {
		s.Accounts = map[string]uint64{}
	}
	if s.AccountKeys == nil {
		s.AccountKeys = map[string][]byte{}
	}
	if s.NonceMax == nil {
		s.NonceMax = map[string]uint64{}
	}
	if s.Entropy == nil {
		s.Entropy = map[int64][]byte{}
	}
	if s.NextRoundID == 0 {
		s.NextRoundID = 1
	}
	if s.Params.WheelSize == 0 {
		s.Params = DefaultParams()
	}
	for _, r := range s.Rounds {
		r.normalize()
	}
}

func (s *State) AppHash() []byte {
	// Deterministic JSON hash: marshal with stable key ordering by serializing
	// a normalized view.
	//
	// Note: encoding/json does NOT guarantee map key order, so we manually
	// normalize maps into slices.
	type accountKV struct {
		Addr    string `json:"addr"`
		Balance uint64 `json:"balance"`
	}
	type accountKeyKV struct {
		Addr   string `json:"addr"`
		PubKey []byte `json:"pubKey"`
	}
	type nonceKV struct {
		Signer string `json:"signer"`
		Nonce  uint64 `json:"nonce"`
	}
	type roundKV struct {
		ID     uint64 `json:"id"`
		Digest []byte `json:"digest"`
	}
	type entropyKV struct {
		Height int64  `json:"height"`
		Hash   []byte `json:"hash"`
	}

	accounts := make([]accountKV, 0, len(s.Accounts))
	for k, v := range s.Accounts {
		accounts = append(accounts, accountKV{Addr: k, Balance: v})
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Addr < accounts[j].Addr })

	accountKeys := make([]accountKeyKV, 0, len(s.AccountKeys))
	for k, v := range s.AccountKeys {
		accountKeys = append(accountKeys, accountKeyKV{Addr: k, PubKey: v})
	}
	sort.Slice(accountKeys, func(i, j int) bool { return accountKeys[i].Addr < accountKeys[j].Addr })

	nonces := make([]nonceKV, 0, len(s.NonceMax))
	for k, v := range s.NonceMax {
		nonces = append(nonces, nonceKV{Signer: k, Nonce: v})
	}
	sort.Slice(nonces, func(i, j int) bool { return nonces[i].Signer < nonces[j].Signer })

	rounds := make([]roundKV, 0, len(s.Rounds))
	for id, r := range s.Rounds {
		rounds = append(rounds, roundKV{ID: id, Digest: r.digest()})
	}
	sort.Slice(rounds, func(i, j int) bool { return rounds[i].ID < rounds[j].ID })

	entropy := make([]entropyKV, 0, len(s.Entropy))
	for h, v := range s.Entropy {
		entropy = append(entropy, entropyKV{Height: h, Hash: v})
	}
	sort.Slice(entropy, func(i, j int) bool { return entropy[i].Height < entropy[j].Height })

	normalized := struct {
		Height      int64          `json:"height"`
		Params      Params         `json:"params"`
		NextRoundID uint64         `json:"nextRoundId"`
		Accounts    []accountKV    `json:"accounts"`
		AccountKeys []accountKeyKV `json:"accountKeys,omitempty"`
		NonceMax    []nonceKV      `json:"nonceMax,omitempty"`
		Rounds      []roundKV      `json:"rounds"`
		Entropy     []entropyKV    `json:"entropy,omitempty"`
	}{
		Height:      s.Height,
		Params:      s.Params,
		NextRoundID: s.NextRoundID,
		Accounts:    accounts,
		AccountKeys: accountKeys,
		NonceMax:    nonces,
		Rounds:      rounds,
		Entropy:     entropy,
	}

	b, _ := json.Marshal(normalized)
	sum := sha256.Sum256(b)
	return sum[:]
}

// ---- Bank ----

func (s *State) Balance(addr string) uint64 {
	return s.Accounts[addr]
}

func (s *State) Credit(addr string, amount uint64) error {
	bal := s.Accounts[addr]
	if bal > ^uint64(0)-amount {
		return fmt.Errorf("balance overflow: have=%d add=%d", bal, amount)
	}
	s.Accounts[addr] = bal + amount
	return nil
}

func (s *State) Debit(addr string, amount uint64) error {
	bal := s.Accounts[addr]
	if bal < amount {
		return fmt.Errorf("insufficient funds: have=%d need=%d", bal, amount)
	}
	s.Accounts[addr] = bal - amount
	return nil
}

// ---- Entropy log ----

// RecordEntropy stores the block hash for a height and prunes entries that
// have fallen out of the retention window.
func (s *State) RecordEntropy(height int64, blockHash []byte) {
	if len(blockHash) == 0 {
		return
	}
	s.Entropy[height] = append([]byte(nil), blockHash...)
	keep := s.Params.EntropyRetention
	if keep <= 0 {
		keep = DefaultParams().EntropyRetention
	}
	for h := range s.Entropy {
		if h <= height-keep {
			delete(s.Entropy, h)
		}
	}
}

// EntropyAt returns the recorded hash for a height, or the degenerate all-zero
// value once the retention window has elapsed. A reveal past the window still
// succeeds, with reduced unpredictability; callers surface that degradation.
func (s *State) EntropyAt(height int64) (value []byte, degraded bool) {
	if v, ok := s.Entropy[height]; ok {
		return append([]byte(nil), v...), false
	}
	return make([]byte, sha256.Size), true
}
