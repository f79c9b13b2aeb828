package main

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/tensorplex-labs/kami-client/pkg/config"
	"github.com/tensorplex-labs/kami-client/pkg/signature"
)

// Signs a message with the wallet hotkey named by WALLET_COLDKEY and
// WALLET_HOTKEY, then verifies it against the derived SS58 address.
func main() {
	message := "Hello, world!"
	if len(os.Args) > 1 {
		message = strings.Join(os.Args[1:], " ")
	}

	walletCfg, err := config.Load[config.WalletEnvConfig](context.Background())
	if err != nil {
		log.Fatalf("Failed to load wallet environment: %v", err)
	}
	coldkey := walletCfg.WalletColdkey
	if coldkey == "" {
		coldkey = signature.DefaultWalletColdkey
	}
	hotkey := walletCfg.WalletHotkey
	if hotkey == "" {
		hotkey = "default"
	}

	keypair, err := signature.LoadKeypairFromHotkey(coldkey, hotkey)
	if err != nil {
		log.Fatalf("Failed to load wallet keypair: %v", err)
	}
	provider, err := signature.NewProvider(keypair)
	if err != nil {
		log.Fatalf("Failed to create signature provider: %v", err)
	}

	address := provider.Address()
	log.Printf("Address: %s", address)

	sig, err := provider.Sign(message)
	if err != nil {
		log.Fatalf("Failed to sign message: %v", err)
	}
	log.Printf("Signature: %s", sig)

	ok, err := signature.Verify(message, sig, address)
	if err != nil {
		log.Fatalf("Failed to verify signature: %v", err)
	}
	log.Println("Signature valid:", ok)
}
