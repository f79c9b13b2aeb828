package signature

import (
	"encoding/hex"
	"fmt"

	"github.com/ChainSafe/gossamer/lib/crypto/sr25519"
	"github.com/rs/zerolog/log"
)

// NewProvider creates a signature provider backed by the given keypair.
func NewProvider(keypair *sr25519.Keypair) (*Provider, error) {
	return &Provider{
		keypair: keypair,
	}, nil
}

// Sign signs the message and returns the signature as a 0x-prefixed hex
// string.
func (p *Provider) Sign(message string) (string, error) {
	if p.keypair == nil {
		return "", fmt.Errorf("private key not initialized")
	}

	signature, err := p.keypair.Sign([]byte(message))
	if err != nil {
		log.Error().Err(err).Msg("Failed to sign message")
		return "", fmt.Errorf("failed to sign message: %w", err)
	}

	return "0x" + hex.EncodeToString(signature), nil
}

// Address returns the provider's SS58 address, or an empty string when
// no keypair is loaded.
func (p *Provider) Address() string {
	if p.keypair == nil {
		return ""
	}
	return ToSs58Address(p.keypair)
}
