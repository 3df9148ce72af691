package adapter

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// USDT contract on TRON, a widely published base58/hex pair
const (
	knownTronBase58 = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"
	knownTronHex    = "41a614f803b6fd780986a42c78ec9c7f77e6ded13c"
)

func TestNormalizeTronAddress(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "base58 unchanged", input: knownTronBase58, want: knownTronBase58},
		{name: "hex with prefix", input: knownTronHex, want: knownTronBase58},
		{name: "upper case hex", input: strings.ToUpper(knownTronHex), want: knownTronBase58},
		{name: "0x hex without version byte", input: "0x" + knownTronHex[2:], want: knownTronBase58},
		{name: "surrounding whitespace", input: "  " + knownTronBase58 + "\n", want: knownTronBase58},
		{name: "bad checksum", input: knownTronBase58[:33] + "u", wantErr: true},
		{name: "wrong version byte", input: "42" + knownTronHex[2:], wantErr: true},
		{name: "short hex", input: "41abcd", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeTronAddress(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAddress)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTronAddressHex(t *testing.T) {
	got, err := TronAddressHex(knownTronBase58)
	require.NoError(t, err)
	assert.Equal(t, knownTronHex, got)
}

func TestSameEVMAddress(t *testing.T) {
	lower := "0x55d398326f99059ff775485246999027b3197955"
	checksummed := "0x55d398326f99059fF775485246999027B3197955"

	assert.True(t, SameEVMAddress(lower, checksummed))
	assert.True(t, SameEVMAddress(strings.ToUpper(lower[2:]), checksummed))
	assert.False(t, SameEVMAddress(lower, "0x0000000000000000000000000000000000000001"))
	assert.False(t, SameEVMAddress("not-an-address", checksummed))
	assert.False(t, SameEVMAddress("", ""))
}

func TestNormalizeEVMAddress(t *testing.T) {
	got, err := NormalizeEVMAddress("0x55d398326f99059ff775485246999027b3197955")
	require.NoError(t, err)
	assert.Equal(t, "0x55d398326f99059fF775485246999027B3197955", got)

	_, err = NormalizeEVMAddress("0x1234")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

// Property: any 20-byte payload round-trips through hex and base58 forms,
// whatever the case of the hex digits
func TestTronAddressRoundTrip(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("hex and base58 forms agree", prop.ForAll(
		func(payload []byte, upper bool) bool {
			h := "41" + hex.EncodeToString(payload)
			if upper {
				h = strings.ToUpper(h)
			}
			b58, err := NormalizeTronAddress(h)
			if err != nil || !strings.HasPrefix(b58, "T") {
				return false
			}
			back, err := TronAddressHex(b58)
			return err == nil && strings.EqualFold(back, h)
		},
		gen.SliceOfN(20, gen.UInt8()),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
