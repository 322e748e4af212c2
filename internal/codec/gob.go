package codec

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync"
)

var registerOnce sync.Once

// registerBuiltins registers the interface-held shapes produced by generic
// JSON-like states so they survive gob round trips.
func registerBuiltins() {
	registerOnce.Do(func() {
		gob.Register(map[string]any{})
		gob.Register([]any{})
		gob.Register([]string{})
		gob.Register([]map[string]any{})
	})
}

// Register makes a concrete type stored behind an interface (for example a
// value inside map[string]any) encodable by the native codec.
func Register(value any) {
	registerBuiltins()
	gob.Register(value)
}

type gobCodec struct{}

func (gobCodec) Kind() Kind { return Native }

func (gobCodec) Encode(v any) ([]byte, error) {
	registerBuiltins()
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (gobCodec) Decode(data []byte, v any) error {
	registerBuiltins()
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return fmt.Errorf("gob decode: %w", err)
	}
	return nil
}
