package kami

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/bytedance/sonic"
)

// Response is the envelope every Kami endpoint wraps its payload in. The
// statusCode field inside the envelope is authoritative; the HTTP status
// line of the carrying response is ignored.
type Response[T any] struct {
	StatusCode int         `json:"statusCode"`
	Success    bool        `json:"success"`
	Data       T           `json:"data"`
	Error      *ErrorField `json:"error,omitempty"`
}

// Err returns the failure carried by the envelope, if any. A non-empty
// error payload wins; otherwise a non-zero statusCode outside the 2xx
// range is reported as an API error. Envelopes with an empty error
// field and no statusCode carry no failure.
func (r Response[T]) Err() error {
	if r.Error != nil && (r.Error.Message != "" || r.Error.Type != "") {
		return &APIError{Message: r.Error.Message, ErrType: r.Error.Type}
	}
	if r.StatusCode != 0 && (r.StatusCode < 200 || r.StatusCode > 299) {
		return &APIError{Message: fmt.Sprintf("HTTP error: %d", r.StatusCode)}
	}
	return nil
}

type (
	SubnetMetagraphResponse   = Response[SubnetMetagraph]
	LatestBlockResponse       = Response[LatestBlock]
	KeyringPairInfoResponse   = Response[KeyringPairInfo]
	SubnetHyperparamsResponse = Response[SubnetHyperparams]
	CheckHotkeyResponse       = Response[CheckHotkey]
	AccountNonceResponse      = Response[AccountNonce]
	SignMessageResponse       = Response[SignMessage]
	VerifyMessageResponse     = Response[VerifyMessage]
	ExtrinsicHashResponse     = Response[string]
)

// ErrorField is the error payload of an envelope. The service emits
// null, a plain string, or an object carrying message and type;
// anything else is kept verbatim as the message.
type ErrorField struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
}

func (e *ErrorField) UnmarshalJSON(data []byte) error {
	*e = ErrorField{}

	var s string
	if err := sonic.Unmarshal(data, &s); err == nil {
		e.Message = s
		return nil
	}

	var obj struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	}
	if err := sonic.Unmarshal(data, &obj); err == nil && (obj.Message != "" || obj.Type != "") {
		e.Message = obj.Message
		e.Type = obj.Type
		return nil
	}

	// An empty object decodes to an empty field, matching null.
	if bytes.Equal(bytes.TrimSpace(data), []byte("{}")) {
		return nil
	}

	e.Message = string(data)
	return nil
}

type MovingPrice struct {
	Bits int `json:"bits"`
}

// DividendEntry is a (hotkey, amount) pair. The service serializes these
// either as two-element arrays or as objects depending on version.
type DividendEntry struct {
	Hotkey string  `json:"hotkey"`
	Amount float64 `json:"amount"`
}

func (d *DividendEntry) UnmarshalJSON(b []byte) error {
	type plain DividendEntry
	var o plain
	if err := sonic.Unmarshal(b, &o); err == nil {
		*d = DividendEntry(o)
		return nil
	}

	var arr []any
	if err := sonic.Unmarshal(b, &arr); err != nil {
		return fmt.Errorf("invalid dividend entry: %w", err)
	}
	if len(arr) < 2 {
		return fmt.Errorf("dividend array must have at least 2 elements, got %d", len(arr))
	}

	hot, ok := arr[0].(string)
	if !ok {
		return fmt.Errorf("expected hotkey string, got %T", arr[0])
	}

	var amt float64
	switch v := arr[1].(type) {
	case nil:
		amt = 0
	case float64:
		amt = v
	case string:
		if v == "" {
			amt = 0
		} else {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("parse dividend amount %q: %w", v, err)
			}
			amt = f
		}
	default:
		return fmt.Errorf("unsupported dividend amount type %T", arr[1])
	}

	d.Hotkey = hot
	d.Amount = amt
	return nil
}

// SubnetMetagraph is the full snapshot of a subnet: scalar network
// parameters plus per-UID sequences, each numUids long and indexed by
// UID.
type SubnetMetagraph struct {
	Netuid                     int              `json:"netuid"`
	Name                       string           `json:"name"`
	Symbol                     string           `json:"symbol"`
	Identity                   SubnetIdentity   `json:"identity"`
	NetworkRegisteredAt        int              `json:"networkRegisteredAt"`
	OwnerHotkey                string           `json:"ownerHotkey"`
	OwnerColdkey               string           `json:"ownerColdkey"`
	Block                      int              `json:"block"`
	Tempo                      int              `json:"tempo"`
	LastStep                   int              `json:"lastStep"`
	BlocksSinceLastStep        int              `json:"blocksSinceLastStep"`
	SubnetEmission             float64          `json:"subnetEmission"`
	AlphaIn                    float64          `json:"alphaIn"`
	AlphaOut                   float64          `json:"alphaOut"`
	TaoIn                      float64          `json:"taoIn"`
	AlphaOutEmission           float64          `json:"alphaOutEmission"`
	AlphaInEmission            float64          `json:"alphaInEmission"`
	TaoInEmission              float64          `json:"taoInEmission"`
	PendingAlphaEmission       float64          `json:"pendingAlphaEmission"`
	PendingRootEmission        float64          `json:"pendingRootEmission"`
	SubnetVolume               float64          `json:"subnetVolume"`
	MovingPrice                MovingPrice      `json:"movingPrice"`
	Rho                        float64          `json:"rho"`
	Kappa                      float64          `json:"kappa"`
	MinAllowedWeights          int              `json:"minAllowedWeights"`
	MaxAllowedWeights          int              `json:"maxAllowedWeights"`
	WeightsVersion             int              `json:"weightsVersion"`
	WeightsRateLimit           HexOrInt         `json:"weightsRateLimit"`
	ActivityCutoff             int              `json:"activityCutoff"`
	MaxValidators              int              `json:"maxValidators"`
	NumUids                    int              `json:"numUids"`
	MaxUids                    int              `json:"maxUids"`
	Burn                       float64          `json:"burn"`
	Difficulty                 HexOrInt         `json:"difficulty"`
	RegistrationAllowed        bool             `json:"registrationAllowed"`
	PowRegistrationAllowed     bool             `json:"powRegistrationAllowed"`
	ImmunityPeriod             int              `json:"immunityPeriod"`
	MinDifficulty              HexOrInt         `json:"minDifficulty"`
	MaxDifficulty              HexOrInt         `json:"maxDifficulty"`
	MinBurn                    float64          `json:"minBurn"`
	MaxBurn                    float64          `json:"maxBurn"`
	AdjustmentAlpha            HexOrInt         `json:"adjustmentAlpha"`
	AdjustmentInterval         int              `json:"adjustmentInterval"`
	TargetRegsPerInterval      int              `json:"targetRegsPerInterval"`
	MaxRegsPerBlock            int              `json:"maxRegsPerBlock"`
	ServingRateLimit           int              `json:"servingRateLimit"`
	CommitRevealWeightsEnabled bool             `json:"commitRevealWeightsEnabled"`
	CommitRevealPeriod         int              `json:"commitRevealPeriod"`
	LiquidAlphaEnabled         bool             `json:"liquidAlphaEnabled"`
	AlphaHigh                  float64          `json:"alphaHigh"`
	AlphaLow                   float64          `json:"alphaLow"`
	BondsMovingAvg             float64          `json:"bondsMovingAvg"`
	Hotkeys                    []string         `json:"hotkeys"`
	Coldkeys                   []string         `json:"coldkeys"`
	Identities                 []IdentitiesInfo `json:"identities"`
	Axons                      []AxonInfo       `json:"axons"`
	Active                     []bool           `json:"active"`
	ValidatorPermit            []bool           `json:"validatorPermit"`
	PruningScore               []float64        `json:"pruningScore"`
	LastUpdate                 []int            `json:"lastUpdate"`
	Emission                   []float64        `json:"emission"`
	Dividends                  []float64        `json:"dividends"`
	Incentives                 []float64        `json:"incentives"`
	Consensus                  []float64        `json:"consensus"`
	Trust                      []float64        `json:"trust"`
	Rank                       []float64        `json:"rank"`
	BlockAtRegistration        []int            `json:"blockAtRegistration"`
	AlphaStake                 []float64        `json:"alphaStake"`
	TaoStake                   []float64        `json:"taoStake"`
	TotalStake                 []float64        `json:"totalStake"`
	TaoDividendsPerHotkey      []DividendEntry  `json:"taoDividendsPerHotkey"`
	AlphaDividendsPerHotkey    []DividendEntry  `json:"alphaDividendsPerHotkey"`
}

type SubnetIdentity struct {
	SubnetName    string `json:"subnetName"`
	GithubRepo    string `json:"githubRepo"`
	SubnetContact string `json:"subnetContact"`
	SubnetURL     string `json:"subnetUrl"`
	Discord       string `json:"discord"`
	Description   string `json:"description"`
	Additional    string `json:"additional"`
}

type IdentitiesInfo struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	GithubRepo  string `json:"githubRepo"`
	Image       string `json:"image"`
	Discord     string `json:"discord"`
	Description string `json:"description"`
	Additional  string `json:"additional"`
}

// AxonInfo describes a served axon endpoint. Hotkey and Coldkey are not
// part of the wire payload; GetMetagraph fills them in from the hotkey
// and coldkey sequences at the same UID.
type AxonInfo struct {
	Block        int    `json:"block"`
	Version      int    `json:"version"`
	IP           string `json:"ip"`
	Port         int    `json:"port"`
	IPType       int    `json:"ipType"`
	Protocol     int    `json:"protocol"`
	Placeholder1 int    `json:"placeholder1"`
	Placeholder2 int    `json:"placeholder2"`
	Hotkey       string `json:"hotkey,omitempty"`
	Coldkey      string `json:"coldkey,omitempty"`
}

type LatestBlock struct {
	ParentHash     string `json:"parentHash"`
	BlockNumber    int    `json:"blockNumber"`
	StateRoot      string `json:"stateRoot"`
	ExtrinsicsRoot string `json:"extrinsicsRoot"`
}

type KeyringPair struct {
	Address    string         `json:"address"`
	AddressRaw map[string]any `json:"addressRaw"`
	IsLocked   bool           `json:"isLocked"`
	Meta       map[string]any `json:"meta"`
	PublicKey  map[string]any `json:"publicKey"`
	Type       string         `json:"type"`
}

type KeyringPairInfo struct {
	KeyringPair   KeyringPair `json:"keyringPair"`
	WalletColdkey string      `json:"walletColdkey"`
}

// SubnetHyperparams mirrors chain/subnet-hyperparameters. The HexOrInt
// fields arrive as JSON numbers, hex strings, or decimal strings
// depending on magnitude.
type SubnetHyperparams struct {
	Rho                        float64  `json:"rho"`
	Kappa                      float64  `json:"kappa"`
	ImmunityPeriod             int      `json:"immunityPeriod"`
	MinAllowedWeights          int      `json:"minAllowedWeights"`
	MaxWeightsLimit            int      `json:"maxWeightsLimit"`
	Tempo                      int      `json:"tempo"`
	MinDifficulty              HexOrInt `json:"minDifficulty"`
	MaxDifficulty              HexOrInt `json:"maxDifficulty"`
	WeightsVersion             int      `json:"weightsVersion"`
	WeightsRateLimit           HexOrInt `json:"weightsRateLimit"`
	AdjustmentInterval         int      `json:"adjustmentInterval"`
	ActivityCutoff             int      `json:"activityCutoff"`
	RegistrationAllowed        bool     `json:"registrationAllowed"`
	TargetRegsPerInterval      int      `json:"targetRegsPerInterval"`
	MinBurn                    int64    `json:"minBurn"`
	MaxBurn                    int64    `json:"maxBurn"`
	BondsMovingAvg             int64    `json:"bondsMovingAvg"`
	MaxRegsPerBlock            int      `json:"maxRegsPerBlock"`
	ServingRateLimit           int      `json:"servingRateLimit"`
	MaxValidators              int      `json:"maxValidators"`
	AdjustmentAlpha            HexOrInt `json:"adjustmentAlpha"`
	Difficulty                 HexOrInt `json:"difficulty"`
	CommitRevealPeriod         int      `json:"commitRevealPeriod"`
	CommitRevealWeightsEnabled bool     `json:"commitRevealWeightsEnabled"`
	AlphaHigh                  float64  `json:"alphaHigh"`
	AlphaLow                   float64  `json:"alphaLow"`
	LiquidAlphaEnabled         bool     `json:"liquidAlphaEnabled"`
}

type CheckHotkey struct {
	IsHotkeyValid bool `json:"isHotkeyValid"`
}

type AccountNonce struct {
	AccountNonce int `json:"accountNonce"`
}

type ServeAxonParams struct {
	Version      int `json:"version"`
	IP           int `json:"ip"`
	Port         int `json:"port"`
	IPType       int `json:"ipType"`
	Netuid       int `json:"netuid"`
	Protocol     int `json:"protocol"`
	Placeholder1 int `json:"placeholder1"`
	Placeholder2 int `json:"placeholder2"`
}

type SetWeightsParams struct {
	Netuid     int   `json:"netuid"`
	Dests      []int `json:"dests"`
	Weights    []int `json:"weights"`
	VersionKey int   `json:"versionKey"`
}

type SetCommitRevealWeightsParams struct {
	Netuid      int    `json:"netuid"`
	Commit      string `json:"commit"`
	RevealRound int    `json:"revealRound"`
}

type SignMessageParams struct {
	Message string `json:"message"`
}

type SignMessage struct {
	Signature string `json:"signature"`
}

type VerifyMessageParams struct {
	Message       string `json:"message"`
	Signature     string `json:"signature"`
	SigneeAddress string `json:"signeeAddress"`
}

type VerifyMessage struct {
	Valid bool `json:"valid"`
}
