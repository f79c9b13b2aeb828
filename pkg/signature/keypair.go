package signature

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/ChainSafe/gossamer/lib/crypto/sr25519"
	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"
	"github.com/vedhavyas/go-subkey"

	"github.com/tensorplex-labs/kami-client/pkg/config"
)

// LoadMnemonic reads a bittensor hotkey file and returns its secret
// phrase. The file is the JSON document btcli writes, with the mnemonic
// under the secretPhrase key.
func LoadMnemonic(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		usr, err := user.Current()
		if err != nil {
			return "", fmt.Errorf("failed to get current user: %w", err)
		}
		path = filepath.Join(usr.HomeDir, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Error().
			Err(err).
			Str("path", path).
			Msg("Failed to read keypair file")
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	var result map[string]interface{}
	if err := sonic.Unmarshal(data, &result); err != nil {
		log.Error().
			Err(err).
			Str("path", path).
			Msg("Failed to parse keypair JSON")
		return "", fmt.Errorf("failed to parse JSON: %w", err)
	}

	seed, ok := result["secretPhrase"]
	if !ok {
		return "", fmt.Errorf("secretPhrase not found in JSON")
	}
	seedPhrase, ok := seed.(string)
	if !ok {
		return "", fmt.Errorf("secretPhrase is not a string")
	}
	return seedPhrase, nil
}

// LoadKeypairFromHotkey loads the sr25519 keypair stored for a wallet
// hotkey under BITTENSOR_DIR (default ~/.bittensor).
func LoadKeypairFromHotkey(coldkeyName, hotkeyName string) (*sr25519.Keypair, error) {
	envCfg, err := config.Load[config.WalletEnvConfig](context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to process wallet environment: %w", err)
	}

	bittensorDir := envCfg.BittensorDir
	if bittensorDir == "" {
		bittensorDir = DefaultBittensorDir
	}

	path := filepath.Join(bittensorDir, "wallets", coldkeyName, "hotkeys", hotkeyName)
	log.Debug().
		Str("path", path).
		Str("hotkey_name", hotkeyName).
		Msg("Loading keypair from hotkey path")

	mnemonic, err := LoadMnemonic(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load seed phrase: %w", err)
	}

	keypair, err := sr25519.NewKeypairFromMnenomic(mnemonic, "")
	if err != nil {
		log.Error().
			Err(err).
			Str("path", path).
			Str("hotkey_name", hotkeyName).
			Msg("Failed to create keypair from seed phrase")
		return nil, fmt.Errorf("failed to create keypair from seed phrase: %w", err)
	}
	return keypair, nil
}

// ToSs58Address returns the keypair's SS58 address on the substrate
// generic network.
func ToSs58Address(keypair *sr25519.Keypair) string {
	return subkey.SS58Encode(keypair.Public().Encode(), SubstrateNetworkId)
}
