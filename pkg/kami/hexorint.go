package kami

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/bytedance/sonic"
)

// HexOrInt decodes fields the chain reports either as a JSON number or
// as a string, hex or decimal, once the value outgrows what a JSON
// number can carry. Backed by big.Int so nothing overflows.
type HexOrInt struct {
	Value *big.Int
}

func NewHexOrInt(v int64) HexOrInt {
	return HexOrInt{Value: big.NewInt(v)}
}

func (h *HexOrInt) UnmarshalJSON(data []byte) error {
	h.Value = new(big.Int)

	var num uint64
	if err := sonic.Unmarshal(data, &num); err == nil {
		h.Value.SetUint64(num)
		return nil
	}

	var signedNum int64
	if err := sonic.Unmarshal(data, &signedNum); err == nil {
		if signedNum < 0 {
			return fmt.Errorf("negative values not supported: %d", signedNum)
		}
		h.Value.SetInt64(signedNum)
		return nil
	}

	var str string
	if err := sonic.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("value must be a number or string, got: %s", string(data))
	}

	if strings.HasPrefix(str, "0x") || strings.HasPrefix(str, "0X") {
		hexStr := strings.TrimPrefix(strings.TrimPrefix(str, "0x"), "0X")
		if _, ok := h.Value.SetString(hexStr, 16); !ok {
			return fmt.Errorf("invalid hex string: %s", str)
		}
		return nil
	}

	if _, ok := h.Value.SetString(str, 10); !ok {
		return fmt.Errorf("invalid number string: %s", str)
	}
	return nil
}

// MarshalJSON emits a number when the value fits in uint64 and a decimal
// string otherwise.
func (h HexOrInt) MarshalJSON() ([]byte, error) {
	if h.Value == nil {
		return sonic.Marshal(0)
	}
	if h.Value.IsUint64() {
		return sonic.Marshal(h.Value.Uint64())
	}
	return sonic.Marshal(h.Value.String())
}

// Int64 returns the value as int64. Truncates for values past 63 bits.
func (h HexOrInt) Int64() int64 {
	if h.Value == nil {
		return 0
	}
	return h.Value.Int64()
}

// Uint64 returns the value as uint64. Truncates for values past 64 bits.
func (h HexOrInt) Uint64() uint64 {
	if h.Value == nil {
		return 0
	}
	return h.Value.Uint64()
}

// BigInt returns a copy of the underlying value.
func (h HexOrInt) BigInt() *big.Int {
	if h.Value == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(h.Value)
}

func (h HexOrInt) String() string {
	if h.Value == nil {
		return "0"
	}
	return h.Value.String()
}
