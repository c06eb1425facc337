package tape

import (
	"fmt"

	"github.com/hjson/hjson-go/v4"
)

// Encode serializes a tape to its canonical JSON-with-comments form.
func Encode(t *Tape) ([]byte, error) {
	opts := hjson.DefaultOptions()
	opts.EmitRootBraces = true
	opts.QuoteAlways = false
	out, err := hjson.MarshalWithOptions(t, opts)
	if err != nil {
		return nil, fmt.Errorf("tape: encode: %w", err)
	}
	return out, nil
}

// Decode parses the JSON-with-comments dialect (or plain JSON, which
// hjson accepts as a subset) into a Tape.
func Decode(data []byte) (*Tape, error) {
	var t Tape
	if err := hjson.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("tape: decode: %w", err)
	}
	return &t, nil
}

// ValidateLenient checks only the required top-level and meta fields,
// with loose typing for latency/errorRate. It never mutates t.
func ValidateLenient(t *Tape) error {
	if t.Meta.Program == "" {
		return fmt.Errorf("tape: meta.program is required")
	}
	if t.Meta.Args == nil {
		return fmt.Errorf("tape: meta.args is required")
	}
	if t.Meta.Env == nil {
		return fmt.Errorf("tape: meta.env is required")
	}
	if t.Exchanges == nil {
		return fmt.Errorf("tape: exchanges is required")
	}
	return nil
}

// ValidateStrict additionally enforces the full per-exchange shape:
// exactly one of input.dataText/input.dataBytesB64, a non-empty input
// type, and well-formed output chunks.
func ValidateStrict(t *Tape) error {
	if err := ValidateLenient(t); err != nil {
		return err
	}
	if len(t.Exchanges) == 0 {
		return fmt.Errorf("tape: exchanges must be non-empty")
	}
	for i, ex := range t.Exchanges {
		if ex.Input.Kind == "" {
			return fmt.Errorf("tape: exchange %d: input.type is required", i)
		}
		if ex.Input.DataText != "" && ex.Input.DataB64 != "" {
			return fmt.Errorf("tape: exchange %d: input has both dataText and dataBytesB64", i)
		}
	}
	return nil
}
