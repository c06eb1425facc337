// Package tape defines the in-memory tape/exchange/chunk model and its
// on-disk JSON-with-comments codec.
package tape

import (
	"encoding/base64"
	"unicode/utf8"
)

// PTYDims records the terminal size a tape was captured under.
type PTYDims struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

// SessionInfo records the platform and tool version that produced a tape.
type SessionInfo struct {
	Platform string `json:"platform"`
	Version  string `json:"version"`
}

// TapeMeta is the header of a tape: identity, capture environment, and
// optional replay-policy overrides baked in at record time.
type TapeMeta struct {
	CreatedAt string            `json:"createdAt"`
	Program   string            `json:"program"`
	Args      []string          `json:"args"`
	Env       map[string]string `json:"env"`
	Cwd       string            `json:"cwd"`
	PTY       *PTYDims          `json:"pty,omitempty"`
	Tag       string            `json:"tag,omitempty"`
	Latency   interface{}       `json:"latency,omitempty"`
	ErrorRate interface{}       `json:"errorRate,omitempty"`
	Seed      *int64            `json:"seed,omitempty"`
}

// Chunk is one fragment of recorded output: a delay since the previous
// chunk and the base64-encoded bytes emitted after waiting that long.
type Chunk struct {
	DelayMs int    `json:"delay_ms"`
	DataB64 string `json:"dataB64"`
	IsUTF8  bool   `json:"isUtf8"`
}

// IOOutput is the ordered sequence of chunks produced by one exchange.
type IOOutput struct {
	Chunks []Chunk `json:"chunks"`
}

// Input kinds.
const (
	InputLine = "line"
	InputRaw  = "raw"
)

// IOInput is the bytes sent to the child for one exchange. DataText and
// DataB64 are mutually exclusive; exactly one is populated.
type IOInput struct {
	Kind     string `json:"type"`
	DataText string `json:"dataText,omitempty"`
	DataB64  string `json:"dataBytesB64,omitempty"`
}

// NewInput builds an IOInput from raw bytes, preferring the text form
// when data is valid UTF-8 and round-trips faithfully through a string
// conversion (i.e. contains no information a text field would lose).
func NewInput(kind string, data []byte) IOInput {
	if utf8.Valid(data) {
		return IOInput{Kind: kind, DataText: string(data)}
	}
	return IOInput{Kind: kind, DataB64: base64.StdEncoding.EncodeToString(data)}
}

// Bytes recovers the original bytes of an IOInput.
func (in IOInput) Bytes() ([]byte, error) {
	if in.DataB64 != "" {
		return base64.StdEncoding.DecodeString(in.DataB64)
	}
	// Empty dataText is a valid empty-line input, so the text branch is
	// also the default when neither field was set.
	return []byte(in.DataText), nil
}

// ExchangePre captures context observed just before an input, notably
// the most recently matched prompt.
type ExchangePre struct {
	Prompt string `json:"prompt"`
}

// ExitInfo records how a session terminated, when an exchange closed
// because the child exited rather than because of a pattern match.
type ExitInfo struct {
	Code   *int `json:"code,omitempty"`
	Signal *int `json:"signal,omitempty"`
}

// Exchange is one input/output boundary: exactly one input, zero or
// more output chunks, and optional exit/duration/annotation metadata.
type Exchange struct {
	Pre         ExchangePre            `json:"pre"`
	Input       IOInput                `json:"input"`
	Output      IOOutput               `json:"output"`
	Exit        *ExitInfo              `json:"exit,omitempty"`
	DurMs       *int64                 `json:"dur_ms,omitempty"`
	Annotations map[string]interface{} `json:"annotations,omitempty"`
}

// Tape is the unit of persistence: a non-empty ordered list of
// exchanges captured from one session, with its capture metadata.
type Tape struct {
	Meta      TapeMeta    `json:"meta"`
	Session   SessionInfo `json:"session"`
	Exchanges []Exchange  `json:"exchanges"`
}

// NewChunk builds a Chunk from raw bytes, redacting and base64-encoding
// them and recording whether they decode as UTF-8.
func NewChunk(delayMs int, data []byte) Chunk {
	return Chunk{
		DelayMs: delayMs,
		DataB64: base64.StdEncoding.EncodeToString(data),
		IsUTF8:  utf8.Valid(data),
	}
}

// Bytes recovers a chunk's payload.
func (c Chunk) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(c.DataB64)
}
