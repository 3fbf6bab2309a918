// Package hex implements hexadecimal encoding with 0x prefix.
package hex

import (
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Bytes is a byte slice which is encoded as 0x-prefixed hex string in
// text based encodings (JSON etc).
type Bytes []byte

func Encode(src []byte) []byte {
	return []byte(hexutil.Encode(src))
}

func Decode(src []byte) ([]byte, error) {
	return hexutil.Decode(string(src))
}

func (b Bytes) MarshalText() ([]byte, error) {
	return Encode(b), nil
}

func (b *Bytes) UnmarshalText(src []byte) error {
	res, err := Decode(src)
	if err == nil {
		*b = res
	}
	return err
}
