/*
Package cbor provides CBOR encoding/decoding functions.

It's a thin wrapper for github.com/fxamacker/cbor/v2, the reason for
having it is to make sure we use the same encoding options everywhere.
Signed payloads (ie close attestations) depend on every party producing
the same byte encoding, so all marshaling goes through the deterministic
encoder set up here.
*/
package cbor

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Tag is a CBOR tag number identifying the type of a tagged payload.
type Tag = uint64

var encMode cbor.EncMode

/*
Set Core Deterministic Encoding as standard. See <https://www.rfc-editor.org/rfc/rfc8949.html#name-deterministically-encoded-c>.
*/
func cborEncoder() (_ cbor.EncMode, err error) {
	if encMode != nil {
		return encMode, nil
	}
	if encMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		return nil, err
	}
	return encMode, nil
}

func Marshal(v any) ([]byte, error) {
	enc, err := cborEncoder()
	if err != nil {
		return nil, err
	}
	return enc.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return cbor.Unmarshal(data, v)
}

// MarshalTaggedValue encodes v wrapped into a CBOR tag so the type of the
// content can be checked when decoding.
func MarshalTaggedValue(tag Tag, v any) ([]byte, error) {
	data, err := Marshal(v)
	if err != nil {
		return nil, err
	}
	return Marshal(cbor.RawTag{
		Number:  tag,
		Content: data,
	})
}

// UnmarshalTaggedValue decodes data into v, first checking that it carries
// the expected tag.
func UnmarshalTaggedValue(tag Tag, data []byte, v any) error {
	var raw cbor.RawTag
	if err := Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Number != tag {
		return fmt.Errorf("unexpected tag: %d, expected: %d", raw.Number, tag)
	}
	return Unmarshal(raw.Content, v)
}
