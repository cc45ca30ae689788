package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddressBech32RoundTrip(t *testing.T) {
	raw := make([]byte, AddressLength)
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	addr := MustNewAddress(AugmintPrefix, raw)

	decoded, err := DecodeAddress(addr.String())
	require.NoError(t, err)
	require.True(t, addr.Equal(decoded))
	require.Equal(t, AugmintPrefix, decoded.Prefix())
}

func TestParseAddressAcceptsHex(t *testing.T) {
	addr := ModuleAddress("loanmanager")
	parsed, err := ParseAddress(addr.Hex())
	require.NoError(t, err)
	require.True(t, addr.Equal(parsed))

	_, err = ParseAddress("  ")
	require.Error(t, err)
}

func TestModuleAddressDeterministic(t *testing.T) {
	a := ModuleAddress("exchange")
	b := ModuleAddress(" Exchange ")
	require.True(t, a.Equal(b))
	require.False(t, a.Equal(ModuleAddress("reserves")))
	require.False(t, a.IsZero())
	require.True(t, ZeroAddress().IsZero())
}

func TestNewAddressRejectsWrongLength(t *testing.T) {
	_, err := NewAddress(AugmintPrefix, []byte{1, 2, 3})
	require.Error(t, err)
}
