package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Blob keeps a descriptive substructure exactly as received. The data service
// stores photos/types/address lines as JSON text, so a field may arrive as a
// JSON string holding encoded JSON or as a native JSON value.
type Blob []byte

func (b *Blob) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*b = nil
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*b = Blob(s)
		return nil
	}
	*b = append(Blob(nil), data...)
	return nil
}

// MarshalJSON always emits the encoded text form the data service expects.
func (b Blob) MarshalJSON() ([]byte, error) {
	if len(b) == 0 {
		return []byte("null"), nil
	}
	return json.Marshal(string(b))
}

// EncodeBlob marshals v into a Blob. It returns nil for empty input.
func EncodeBlob(v any) Blob {
	raw, err := json.Marshal(v)
	if err != nil || bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte("[]")) {
		return nil
	}
	return Blob(raw)
}

// Decoded is the tagged result of a best-effort decode: either the decoded
// value, or Fallback with the empty value and the cause.
type Decoded[T any] struct {
	Value    T
	Fallback bool
	Err      error
}

// DecodeList decodes a Blob holding a JSON array. An empty blob decodes to an
// empty slice; anything that is not a valid array of T yields a Fallback with
// an empty (non-nil) slice. It never panics and never returns an error to the
// caller.
func DecodeList[T any](b Blob) Decoded[[]T] {
	if len(bytes.TrimSpace(b)) == 0 {
		return Decoded[[]T]{Value: []T{}}
	}
	var out []T
	if err := json.Unmarshal(b, &out); err != nil {
		return Decoded[[]T]{Value: []T{}, Fallback: true, Err: fmt.Errorf("%w: %v", ErrMalformedData, err)}
	}
	if out == nil {
		out = []T{}
	}
	return Decoded[[]T]{Value: out}
}

var fallbackObserver atomic.Value // func(field string)

// ObserveDecodeFallbacks registers fn to be called whenever a place field
// falls back to its empty value.
func ObserveDecodeFallbacks(fn func(field string)) { fallbackObserver.Store(fn) }

func decodeField[T any](field string, b Blob) []T {
	d := DecodeList[T](b)
	if d.Fallback {
		log.Debug().Str("field", field).Err(d.Err).Msg("substructure decode fell back to empty")
		if fn, ok := fallbackObserver.Load().(func(string)); ok && fn != nil {
			fn(field)
		}
	}
	return d.Value
}
