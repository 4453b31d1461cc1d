package codec

import (
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	ErrEncode = errors.New("codec: encode failed")
	ErrDecode = errors.New("codec: decode failed")
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	enc := cbor.CoreDetEncOptions()
	// Keep sub-second precision on message timestamps.
	enc.Time = cbor.TimeRFC3339Nano
	enc.TextMarshaler = cbor.TextMarshalerTextString

	var err error
	if encMode, err = enc.EncMode(); err != nil {
		panic("codec: build encoder: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("codec: build decoder: " + err.Error())
	}
}

// Marshal encodes v deterministically: equal values give equal bytes.
func Marshal(v any) ([]byte, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, errors.Join(ErrEncode, err)
	}
	return b, nil
}

// Unmarshal decodes data into v. Unknown fields are ignored.
func Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty input", ErrDecode)
	}
	if err := decMode.Unmarshal(data, v); err != nil {
		return errors.Join(ErrDecode, err)
	}
	return nil
}

// RawMessage is an encoded value whose decoding is deferred.
type RawMessage = cbor.RawMessage

// NewEncoder writes a stream of values to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder reads a stream of values from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}
