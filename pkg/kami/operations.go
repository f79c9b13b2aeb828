package kami

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// GetMetagraph fetches the subnet metagraph for the given netuid. Each
// axon record is filled in with the hotkey and coldkey owning its UID
// before the metagraph is returned.
func (k *Kami) GetMetagraph(ctx context.Context, netuid int) (SubnetMetagraph, error) {
	path := fmt.Sprintf("/chain/subnet-metagraph/%d", netuid)
	resp, err := getJSON[SubnetMetagraph](ctx, k, path)
	if err != nil {
		return SubnetMetagraph{}, err
	}

	metagraph := resp.Data
	for i := range metagraph.Axons {
		if i >= len(metagraph.Hotkeys) || i >= len(metagraph.Coldkeys) {
			break
		}
		metagraph.Axons[i].Hotkey = metagraph.Hotkeys[i]
		metagraph.Axons[i].Coldkey = metagraph.Coldkeys[i]
	}
	return metagraph, nil
}

// GetHotkeys returns the hotkeys registered on the given netuid.
func (k *Kami) GetHotkeys(ctx context.Context, netuid int) ([]string, error) {
	metagraph, err := k.GetMetagraph(ctx, netuid)
	if err != nil {
		return nil, err
	}
	return metagraph.Hotkeys, nil
}

// GetAxons returns the axons registered on the given netuid. An empty
// subnet is a valid state: it logs a warning and returns the empty
// slice.
func (k *Kami) GetAxons(ctx context.Context, netuid int) ([]AxonInfo, error) {
	metagraph, err := k.GetMetagraph(ctx, netuid)
	if err != nil {
		return nil, err
	}
	if len(metagraph.Axons) == 0 {
		log.Warn().Int("netuid", netuid).Msg("no axons found in metagraph response")
	}
	return metagraph.Axons, nil
}

// GetCurrentBlock returns the current finalized block number.
func (k *Kami) GetCurrentBlock(ctx context.Context) (int, error) {
	resp, err := getJSON[LatestBlock](ctx, k, "/chain/latest-block")
	if err != nil {
		return 0, err
	}
	return resp.Data.BlockNumber, nil
}

// GetLatestBlock retrieves the latest block details from the chain.
func (k *Kami) GetLatestBlock(ctx context.Context) (LatestBlock, error) {
	resp, err := getJSON[LatestBlock](ctx, k, "/chain/latest-block")
	if err != nil {
		return LatestBlock{}, err
	}
	return resp.Data, nil
}

// GetSubnetHyperparams fetches the subnet hyperparams for the given netuid.
func (k *Kami) GetSubnetHyperparams(ctx context.Context, netuid int) (SubnetHyperparams, error) {
	path := fmt.Sprintf("/chain/subnet-hyperparameters/%d", netuid)
	resp, err := getJSON[SubnetHyperparams](ctx, k, path)
	if err != nil {
		return SubnetHyperparams{}, err
	}
	return resp.Data, nil
}

// IsHotkeyRegistered reports whether the hotkey is registered on the
// netuid. A non-nil block checks registration as of that block; nil
// checks the latest block, and the query parameter is omitted entirely.
func (k *Kami) IsHotkeyRegistered(ctx context.Context, netuid int, hotkey string, block *int) (bool, error) {
	path := fmt.Sprintf("/chain/check-hotkey?netuid=%d&hotkey=%s", netuid, hotkey)
	if block != nil {
		path = fmt.Sprintf("%s&block=%d", path, *block)
	}

	resp, err := getJSON[CheckHotkey](ctx, k, path)
	if err != nil {
		return false, err
	}
	return resp.Data.IsHotkeyValid, nil
}

// GetAccountNonce returns the transaction nonce for the given SS58 address.
func (k *Kami) GetAccountNonce(ctx context.Context, address string) (int, error) {
	path := "/substrate/account-nonce/" + address
	resp, err := getJSON[AccountNonce](ctx, k, path)
	if err != nil {
		return 0, err
	}
	return resp.Data.AccountNonce, nil
}

// ServeAxon announces an axon endpoint to the network and returns the
// extrinsic hash response.
func (k *Kami) ServeAxon(ctx context.Context, params ServeAxonParams) (ExtrinsicHashResponse, error) {
	return postJSON[string](ctx, k, "/chain/serve-axon", params)
}

// SignMessage signs an arbitrary message with the service's keypair.
// When the service fails to produce a signature the failure is logged
// and an empty signature is returned rather than an error; only
// transport-level failures surface as errors.
func (k *Kami) SignMessage(ctx context.Context, message string) (string, error) {
	path := "/substrate/sign-message/sign"
	resp, err := withRetry(ctx, k.policy, path, func() (SignMessageResponse, error) {
		return request[SignMessage](ctx, k, http.MethodPost, path, SignMessageParams{Message: message})
	})
	if err != nil {
		return "", err
	}

	if resp.Data.Signature == "" {
		log.Error().
			Err(resp.Err()).
			Msg("failed to sign message using kami")
	}
	return resp.Data.Signature, nil
}

// Verify checks a signature over message against the given hotkey. The
// signature must be a "0x"-prefixed hex string; anything else fails
// before any network call is made.
func (k *Kami) Verify(ctx context.Context, hotkey, message, signature string) (bool, error) {
	if !strings.HasPrefix(signature, "0x") {
		return false, &ValidationError{
			Message: fmt.Sprintf("expected signature to be a hex string, got: %q", signature),
		}
	}

	params := VerifyMessageParams{
		Message:       message,
		Signature:     signature,
		SigneeAddress: hotkey,
	}
	resp, err := postJSON[VerifyMessage](ctx, k, "/substrate/sign-message/verify", params)
	if err != nil {
		return false, err
	}
	return resp.Data.Valid, nil
}

// GetKeyringPair returns the service's configured signing identity.
func (k *Kami) GetKeyringPair(ctx context.Context) (KeyringPairInfo, error) {
	resp, err := getJSON[KeyringPairInfo](ctx, k, "/substrate/keyring-pair-info")
	if err != nil {
		return KeyringPairInfo{}, err
	}
	return resp.Data, nil
}
