// Package codec turns opaque state values into storable bytes and back.
//
// Three strategies are available:
//   - None: plain JSON. Fastest to inspect, largest.
//   - Deflate: JSON compressed with gzip. Smallest, slowest.
//   - Native: encoding/gob. Binary and uncompressed, fast round trips.
//
// Codecs are stateless; a single instance may be shared between goroutines.
package codec

import (
	"errors"
	"fmt"
)

// Kind names a codec strategy. It is recorded on every snapshot so payloads
// stay decodable after the active codec changes.
type Kind string

const (
	None    Kind = "none"
	Deflate Kind = "deflate"
	Native  Kind = "native"
)

// ErrUnknownKind is returned for codec names this build does not know.
var ErrUnknownKind = errors.New("unknown codec")

// Codec is a paired encode/decode strategy.
type Codec interface {
	Kind() Kind
	Encode(v any) ([]byte, error)
	// Decode parses data into v, which must be a non-nil pointer.
	Decode(data []byte, v any) error
}

var codecs = map[Kind]Codec{
	None:    jsonCodec{},
	Deflate: deflateCodec{level: DefaultDeflateLevel},
	Native:  gobCodec{},
}

// For returns the codec registered for kind.
func For(kind Kind) (Codec, error) {
	c, ok := codecs[kind]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownKind, kind)
	}
	return c, nil
}

// ParseKind validates a codec name.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if _, ok := codecs[k]; !ok {
		return "", fmt.Errorf("%w %q (valid: none, deflate, native)", ErrUnknownKind, s)
	}
	return k, nil
}

// Kinds lists every known codec, fastest-to-inspect first.
func Kinds() []Kind {
	return []Kind{None, Deflate, Native}
}
