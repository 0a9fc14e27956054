package chain

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

const (
	addressVersion     = 1
	addressPayloadSize = 32
	checksumSize       = 4
)

var ErrInvalidAddress = errors.New("invalid account address")

// AccountAddress is the raw 32-byte form of a base58check account address.
type AccountAddress [addressPayloadSize]byte

// DecodeAddress parses a base58check account address.
func DecodeAddress(s string) (AccountAddress, error) {
	var addr AccountAddress

	raw, err := base58.Decode(s)
	if err != nil {
		return addr, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(raw) != 1+addressPayloadSize+checksumSize {
		return addr, fmt.Errorf("%w: decoded length %d", ErrInvalidAddress, len(raw))
	}
	if raw[0] != addressVersion {
		return addr, fmt.Errorf("%w: version byte %d", ErrInvalidAddress, raw[0])
	}

	body, sum := raw[:1+addressPayloadSize], raw[1+addressPayloadSize:]
	if !bytes.Equal(checksum(body), sum) {
		return addr, fmt.Errorf("%w: checksum mismatch", ErrInvalidAddress)
	}

	copy(addr[:], body[1:])
	return addr, nil
}

// String encodes the address back to base58check.
func (a AccountAddress) String() string {
	body := make([]byte, 0, 1+addressPayloadSize+checksumSize)
	body = append(body, addressVersion)
	body = append(body, a[:]...)
	body = append(body, checksum(body)...)
	return base58.Encode(body)
}

func checksum(b []byte) []byte {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return second[:checksumSize]
}
