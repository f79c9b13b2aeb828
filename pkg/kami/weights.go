package kami

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/rs/zerolog/log"
)

// TimelockParams carries the inputs to the time-lock encryption
// primitive used for commit-reveal weight submission.
type TimelockParams struct {
	UIDs         []int
	Weights      []int
	VersionKey   int
	Tempo        int
	CurrentBlock int
	Netuid       int
	RevealPeriod int
}

// TimelockEncryptor produces an encrypted weight commit that can only be
// opened at the returned reveal round. Implementations wrap an external
// time-lock scheme (drand-based in production); the client treats the
// primitive as opaque.
type TimelockEncryptor interface {
	Encrypt(p TimelockParams) (commit []byte, revealRound uint64, err error)
}

// SetWeights submits validator weights for the subnet in params. The
// submission path is decided by the subnet's hyperparameters: subnets
// with commit-reveal enabled receive a time-locked commit, all others a
// direct weight set. The two paths are mutually exclusive; there is no
// fallback from one to the other.
func (k *Kami) SetWeights(ctx context.Context, params SetWeightsParams) (ExtrinsicHashResponse, error) {
	hyperparams, err := k.GetSubnetHyperparams(ctx, params.Netuid)
	if err != nil {
		return ExtrinsicHashResponse{}, err
	}

	if !hyperparams.CommitRevealWeightsEnabled {
		return postJSON[string](ctx, k, "/chain/set-weights", params)
	}

	tempo := hyperparams.Tempo
	revealPeriod := hyperparams.CommitRevealPeriod
	if tempo == 0 || revealPeriod == 0 {
		return ExtrinsicHashResponse{}, &ConfigError{
			Message: "tempo and reveal round must be greater than 0 for commit reveal weights",
		}
	}
	if k.timelock == nil {
		return ExtrinsicHashResponse{}, &ConfigError{
			Message: "commit reveal weights enabled but no timelock encryptor configured",
		}
	}

	log.Info().
		Int("netuid", params.Netuid).
		Int("tempo", tempo).
		Int("reveal_period", revealPeriod).
		Msg("commit reveal weights enabled")

	currentBlock, err := k.GetCurrentBlock(ctx)
	if err != nil {
		return ExtrinsicHashResponse{}, err
	}

	commit, revealRound, err := k.timelock.Encrypt(TimelockParams{
		UIDs:         params.Dests,
		Weights:      params.Weights,
		VersionKey:   params.VersionKey,
		Tempo:        tempo,
		CurrentBlock: currentBlock,
		Netuid:       params.Netuid,
		RevealPeriod: revealPeriod,
	})
	if err != nil {
		return ExtrinsicHashResponse{}, fmt.Errorf("failed to generate encrypted commit: %w", err)
	}
	if len(commit) == 0 || revealRound == 0 {
		return ExtrinsicHashResponse{}, &ValidationError{
			Message: "failed to generate commit for reveal, ensure that tempo and reveal round are set correctly",
		}
	}

	commitHex := hex.EncodeToString(commit)
	log.Info().
		Str("commit", commitHex).
		Uint64("reveal_round", revealRound).
		Msg("generated commit for reveal")

	crParams := SetCommitRevealWeightsParams{
		Netuid:      params.Netuid,
		Commit:      commitHex,
		RevealRound: int(revealRound),
	}
	return postJSON[string](ctx, k, "/chain/set-commit-reveal-weights", crParams)
}
