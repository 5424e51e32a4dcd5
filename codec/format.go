package codec

import (
	"errors"
	"fmt"
)

// Format names a payload encoding selectable from configuration.
type Format string

const (
	FormatJSON    Format = "json"
	FormatCBOR    Format = "cbor"
	FormatMsgpack Format = "msgpack"
)

// Formats lists every Format accepted by For.
var Formats = []Format{FormatJSON, FormatCBOR, FormatMsgpack}

var ErrUnknownFormat = errors.New("codec: unknown format")

// For builds the codec for f ("" is JSON). Msgpack honours json tags.
// maxDecode > 0 wraps the codec in a LimitCodec.
func For[V any](f Format, maxDecode int) (Codec[V], error) {
	var c Codec[V]
	switch f {
	case "", FormatJSON:
		c = JSON[V]{}
	case FormatCBOR:
		cb, err := NewCBOR[V]()
		if err != nil {
			return nil, err
		}
		c = cb
	case FormatMsgpack:
		c = Msgpack[V]{UseJSONTag: true}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
	if maxDecode > 0 {
		c = LimitCodec[V]{Inner: c, MaxDecode: maxDecode}
	}
	return c, nil
}
