package chainutils

import (
	"context"

	"github.com/tensorplex-labs/kami-client/pkg/kami"
)

// GetHotkey returns the SS58 address of the keypair the Kami service is
// running with.
func GetHotkey(ctx context.Context, k *kami.Kami) (string, error) {
	if k == nil {
		return "", nil
	}
	info, err := k.GetKeyringPair(ctx)
	if err != nil {
		return "", err
	}
	return info.KeyringPair.Address, nil
}

// UIDForHotkey returns the uid registered for hotkey, or false when the
// hotkey is not in the metagraph.
func UIDForHotkey(metagraph *kami.SubnetMetagraph, hotkey string) (int, bool) {
	for uid, h := range metagraph.Hotkeys {
		if h == hotkey {
			return uid, true
		}
	}
	return 0, false
}

// GetColdkeyForHotkey returns the coldkey owning hotkey, or an empty
// string when the hotkey is not registered.
func GetColdkeyForHotkey(metagraph *kami.SubnetMetagraph, hotkey string) string {
	uid, ok := UIDForHotkey(metagraph, hotkey)
	if !ok || uid >= len(metagraph.Coldkeys) {
		return ""
	}
	return metagraph.Coldkeys[uid]
}

// FindAxonByHotkey returns the axon served by hotkey.
func FindAxonByHotkey(metagraph *kami.SubnetMetagraph, hotkey string) (kami.AxonInfo, bool) {
	uid, ok := UIDForHotkey(metagraph, hotkey)
	if !ok || uid >= len(metagraph.Axons) {
		return kami.AxonInfo{}, false
	}
	return metagraph.Axons[uid], true
}

// IsValidator reports whether uid holds a validator permit.
func IsValidator(metagraph *kami.SubnetMetagraph, uid int) bool {
	if uid < 0 || uid >= len(metagraph.ValidatorPermit) {
		return false
	}
	return metagraph.ValidatorPermit[uid]
}
