package chain

import (
	"encoding/hex"
	"fmt"

	"github.com/near/borsh-go"
)

type getCodeParameter struct {
	Account [addressPayloadSize]byte
}

// EncodeAccountParameter serializes an account as a contract parameter.
func EncodeAccountParameter(addr AccountAddress) ([]byte, error) {
	return borsh.Serialize(getCodeParameter{Account: addr})
}

// DecodeCode reads a u32 little-endian return value.
func DecodeCode(buf []byte) (uint32, error) {
	if len(buf) != 4 {
		return 0, fmt.Errorf("return value has %d bytes, want 4", len(buf))
	}
	var code uint32
	if err := borsh.Deserialize(&code, buf); err != nil {
		return 0, fmt.Errorf("decode return value: %w", err)
	}
	return code, nil
}

// DecodeHexCode is DecodeCode for the hex form nodes return.
func DecodeHexCode(s string) (uint32, error) {
	buf, err := hex.DecodeString(s)
	if err != nil {
		return 0, fmt.Errorf("return value is not hex: %w", err)
	}
	return DecodeCode(buf)
}
