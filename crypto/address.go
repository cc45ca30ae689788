package crypto

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix defines the human-readable part of bech32 encoded addresses.
type AddressPrefix string

const (
	// AugmintPrefix is used for every account on the ledger, user or module.
	AugmintPrefix AddressPrefix = "aeur"

	// AddressLength is the size in bytes of an account address.
	AddressLength = 20
)

// Address represents a 20-byte account address with a display prefix.
type Address struct {
	prefix AddressPrefix
	bytes  [AddressLength]byte
}

// NewAddress builds an address from raw bytes. It fails if b is not 20 bytes long.
func NewAddress(prefix AddressPrefix, b []byte) (Address, error) {
	if len(b) != AddressLength {
		return Address{}, fmt.Errorf("address must be %d bytes long, got %d", AddressLength, len(b))
	}
	addr := Address{prefix: prefix}
	copy(addr.bytes[:], b)
	return addr, nil
}

// MustNewAddress is like NewAddress but panics on malformed input.
func MustNewAddress(prefix AddressPrefix, b []byte) Address {
	addr, err := NewAddress(prefix, b)
	if err != nil {
		panic(err)
	}
	return addr
}

// AddressFromArray wraps a fixed-size byte array as an Augmint address.
func AddressFromArray(b [AddressLength]byte) Address {
	return Address{prefix: AugmintPrefix, bytes: b}
}

// ModuleAddress derives the deterministic account of a protocol module from its name.
func ModuleAddress(name string) Address {
	hash := ethcrypto.Keccak256([]byte("augmint/module/" + strings.ToLower(strings.TrimSpace(name))))
	return MustNewAddress(AugmintPrefix, hash[12:])
}

// ZeroAddress is the counterparty of mint and burn transfers.
func ZeroAddress() Address {
	return Address{prefix: AugmintPrefix}
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	prefix := a.prefix
	if prefix == "" {
		prefix = AugmintPrefix
	}
	encoded, err := bech32.Encode(string(prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Hex renders the address in checksummed 0x form.
func (a Address) Hex() string {
	return common.BytesToAddress(a.bytes[:]).Hex()
}

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte {
	out := make([]byte, AddressLength)
	copy(out, a.bytes[:])
	return out
}

// Array returns the address as a fixed-size array, suitable for map keys and RLP records.
func (a Address) Array() [AddressLength]byte {
	return a.bytes
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

// IsZero reports whether every byte of the address is zero.
func (a Address) IsZero() bool {
	return a.bytes == [AddressLength]byte{}
}

// Equal compares the raw bytes of two addresses, ignoring prefixes.
func (a Address) Equal(other Address) bool {
	return a.bytes == other.bytes
}

func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	return NewAddress(AddressPrefix(prefix), conv)
}

// ParseAddress accepts either a bech32 address or a 0x-prefixed hex address.
func ParseAddress(raw string) (Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Address{}, fmt.Errorf("address must not be empty")
	}
	if common.IsHexAddress(trimmed) {
		return NewAddress(AugmintPrefix, common.HexToAddress(trimmed).Bytes())
	}
	return DecodeAddress(trimmed)
}
