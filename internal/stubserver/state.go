// Package stubserver emulates the Kami chain service over HTTP for
// local development and tests. It serves the same envelope and payload
// shapes the real service does, backed by an in-memory subnet with a
// real sr25519 signer at uid 0.
package stubserver

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"

	"github.com/ChainSafe/gossamer/lib/crypto/sr25519"
	"github.com/bytedance/sonic"

	"github.com/tensorplex-labs/kami-client/pkg/chainutils"
	"github.com/tensorplex-labs/kami-client/pkg/kami"
	"github.com/tensorplex-labs/kami-client/pkg/signature"
)

// Options configure the emulated subnet.
type Options struct {
	Netuid              int
	NumUids             int
	StartBlock          int
	Tempo               int
	CommitRevealPeriod  int
	CommitRevealEnabled bool
}

func (o *Options) withDefaults() {
	if o.Netuid == 0 {
		o.Netuid = 98
	}
	if o.NumUids <= 0 {
		o.NumUids = 8
	}
	if o.StartBlock <= 0 {
		o.StartBlock = 1000
	}
	if o.Tempo <= 0 {
		o.Tempo = 360
	}
	if o.CommitRevealPeriod <= 0 {
		o.CommitRevealPeriod = 5
	}
}

// State is the in-memory chain the stub serves. Every latest-block
// query observes the next block, which keeps pollers moving without a
// real chain behind them.
type State struct {
	mu    sync.Mutex
	opts  Options
	block int

	signer   *signature.Provider
	hotkeys  []string
	coldkeys []string
	axons    []kami.AxonInfo
	nonces   map[string]int

	weights    []kami.SetWeightsParams
	commits    []kami.SetCommitRevealWeightsParams
	extrinsics int
}

// NewState creates a subnet with an ephemeral signing keypair at uid 0
// and synthetic keys for the remaining uids.
func NewState(opts Options) (*State, error) {
	opts.withDefaults()

	keypair, err := sr25519.GenerateKeypair()
	if err != nil {
		return nil, fmt.Errorf("generate stub keypair: %w", err)
	}
	signer, err := signature.NewProvider(keypair)
	if err != nil {
		return nil, fmt.Errorf("create stub signer: %w", err)
	}

	s := &State{
		opts:     opts,
		block:    opts.StartBlock,
		signer:   signer,
		hotkeys:  make([]string, opts.NumUids),
		coldkeys: make([]string, opts.NumUids),
		axons:    make([]kami.AxonInfo, opts.NumUids),
		nonces:   make(map[string]int),
	}

	s.hotkeys[0] = signer.Address()
	for i := 1; i < opts.NumUids; i++ {
		s.hotkeys[i] = fmt.Sprintf("5StubHotkey%03d", i)
	}
	for i := 0; i < opts.NumUids; i++ {
		s.coldkeys[i] = fmt.Sprintf("5StubColdkey%03d", i)
	}

	return s, nil
}

// Signer returns the uid 0 signing provider.
func (s *State) Signer() *signature.Provider {
	return s.signer
}

// SignerAddress returns the SS58 address registered at uid 0.
func (s *State) SignerAddress() string {
	return s.signer.Address()
}

// Netuid returns the emulated subnet's netuid.
func (s *State) Netuid() int {
	return s.opts.Netuid
}

// NextBlock advances the chain by one block and returns it.
func (s *State) NextBlock() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.block++
	return s.block
}

// CurrentBlock returns the block without advancing it.
func (s *State) CurrentBlock() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.block
}

// SetCommitReveal toggles commit-reveal weights, as a hyperparameter
// update on the real chain would.
func (s *State) SetCommitReveal(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.CommitRevealEnabled = enabled
}

// IsRegistered reports whether hotkey occupies a uid.
func (s *State) IsRegistered(hotkey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.hotkeys {
		if h == hotkey {
			return true
		}
	}
	return false
}

// Nonce returns the transaction count for address.
func (s *State) Nonce(address string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nonces[address]
}

// ServeAxon records the axon announcement at the signer's uid and
// returns the extrinsic hash.
func (s *State) ServeAxon(params kami.ServeAxonParams) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.axons[0] = kami.AxonInfo{
		Block:        s.block,
		Version:      params.Version,
		IP:           chainutils.IntToIPv4(uint32(params.IP)).String(),
		Port:         params.Port,
		IPType:       params.IPType,
		Protocol:     params.Protocol,
		Placeholder1: params.Placeholder1,
		Placeholder2: params.Placeholder2,
	}
	return s.submitExtrinsic(params)
}

// SetWeights records a direct weight submission.
func (s *State) SetWeights(params kami.SetWeightsParams) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weights = append(s.weights, params)
	return s.submitExtrinsic(params)
}

// SetCommitRevealWeights records a commit-reveal submission.
func (s *State) SetCommitRevealWeights(params kami.SetCommitRevealWeightsParams) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits = append(s.commits, params)
	return s.submitExtrinsic(params)
}

// WeightsSubmissions returns the recorded direct submissions.
func (s *State) WeightsSubmissions() []kami.SetWeightsParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]kami.SetWeightsParams, len(s.weights))
	copy(out, s.weights)
	return out
}

// CommitSubmissions returns the recorded commit-reveal submissions.
func (s *State) CommitSubmissions() []kami.SetCommitRevealWeightsParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]kami.SetCommitRevealWeightsParams, len(s.commits))
	copy(out, s.commits)
	return out
}

// submitExtrinsic bumps the signer nonce and derives a deterministic
// hash from the payload and submission index. Callers hold s.mu.
func (s *State) submitExtrinsic(payload any) (string, error) {
	body, err := sonic.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal extrinsic payload: %w", err)
	}

	s.extrinsics++
	s.nonces[s.signer.Address()]++

	sum := sha256.Sum256(append(body, byte(s.extrinsics), byte(s.extrinsics>>8)))
	return "0x" + hex.EncodeToString(sum[:]), nil
}

// Hyperparams returns the subnet hyperparameters.
func (s *State) Hyperparams() kami.SubnetHyperparams {
	s.mu.Lock()
	defer s.mu.Unlock()

	return kami.SubnetHyperparams{
		Rho:                        10,
		Kappa:                      32767,
		ImmunityPeriod:             4096,
		MinAllowedWeights:          1,
		MaxWeightsLimit:            65535,
		Tempo:                      s.opts.Tempo,
		MinDifficulty:              kami.NewHexOrInt(10000000),
		MaxDifficulty:              kami.HexOrInt{Value: new(big.Int).SetUint64(18446744073709551615)},
		WeightsVersion:             0,
		WeightsRateLimit:           kami.NewHexOrInt(100),
		AdjustmentInterval:         100,
		ActivityCutoff:             5000,
		RegistrationAllowed:        true,
		TargetRegsPerInterval:      2,
		MinBurn:                    500000,
		MaxBurn:                    100000000000,
		BondsMovingAvg:             900000,
		MaxRegsPerBlock:            1,
		ServingRateLimit:           50,
		MaxValidators:              64,
		AdjustmentAlpha:            kami.HexOrInt{Value: new(big.Int).SetUint64(14757395258967641292)},
		Difficulty:                 kami.NewHexOrInt(10000000),
		CommitRevealPeriod:         s.opts.CommitRevealPeriod,
		CommitRevealWeightsEnabled: s.opts.CommitRevealEnabled,
		AlphaHigh:                  0.9,
		AlphaLow:                   0.7,
		LiquidAlphaEnabled:         false,
	}
}

// Metagraph builds the subnet snapshot. Sequences are numUids long and
// indexed by uid; axons carry no hotkey or coldkey fields, matching the
// wire format the real service emits.
func (s *State) Metagraph() kami.SubnetMetagraph {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.opts.NumUids
	mg := kami.SubnetMetagraph{
		Netuid:  s.opts.Netuid,
		Name:    "stub",
		Symbol:  "STUB",
		Block:   s.block,
		Tempo:   s.opts.Tempo,
		NumUids: n,
		MaxUids: 256,

		OwnerHotkey:  s.hotkeys[0],
		OwnerColdkey: s.coldkeys[0],

		MinAllowedWeights:          1,
		MaxAllowedWeights:          65535,
		WeightsRateLimit:           kami.NewHexOrInt(100),
		ActivityCutoff:             5000,
		MaxValidators:              64,
		Burn:                       0.5,
		Difficulty:                 kami.NewHexOrInt(10000000),
		MinDifficulty:              kami.NewHexOrInt(10000000),
		MaxDifficulty:              kami.HexOrInt{Value: new(big.Int).SetUint64(18446744073709551615)},
		AdjustmentAlpha:            kami.HexOrInt{Value: new(big.Int).SetUint64(14757395258967641292)},
		RegistrationAllowed:        true,
		ImmunityPeriod:             4096,
		ServingRateLimit:           50,
		CommitRevealWeightsEnabled: s.opts.CommitRevealEnabled,
		CommitRevealPeriod:         s.opts.CommitRevealPeriod,

		Hotkeys:  append([]string(nil), s.hotkeys...),
		Coldkeys: append([]string(nil), s.coldkeys...),
		Axons:    append([]kami.AxonInfo(nil), s.axons...),

		Identities:          make([]kami.IdentitiesInfo, n),
		Active:              make([]bool, n),
		ValidatorPermit:     make([]bool, n),
		PruningScore:        make([]float64, n),
		LastUpdate:          make([]int, n),
		Emission:            make([]float64, n),
		Dividends:           make([]float64, n),
		Incentives:          make([]float64, n),
		Consensus:           make([]float64, n),
		Trust:               make([]float64, n),
		Rank:                make([]float64, n),
		BlockAtRegistration: make([]int, n),
		AlphaStake:          make([]float64, n),
		TaoStake:            make([]float64, n),
		TotalStake:          make([]float64, n),

		TaoDividendsPerHotkey:   make([]kami.DividendEntry, 0, n),
		AlphaDividendsPerHotkey: make([]kami.DividendEntry, 0, n),
	}

	// The wire format strips hotkeys and coldkeys from axon records;
	// clients denormalize them back from the uid sequences.
	for i := range mg.Axons {
		mg.Axons[i].Hotkey = ""
		mg.Axons[i].Coldkey = ""
	}

	mg.ValidatorPermit[0] = true
	for i := 0; i < n; i++ {
		mg.Active[i] = true
		mg.BlockAtRegistration[i] = s.opts.StartBlock - 100*(n-i)
		mg.AlphaStake[i] = float64(1000 * (n - i))
		mg.TotalStake[i] = mg.AlphaStake[i]
		mg.TaoDividendsPerHotkey = append(mg.TaoDividendsPerHotkey, kami.DividendEntry{Hotkey: s.hotkeys[i]})
		mg.AlphaDividendsPerHotkey = append(mg.AlphaDividendsPerHotkey, kami.DividendEntry{Hotkey: s.hotkeys[i]})
	}

	return mg
}
