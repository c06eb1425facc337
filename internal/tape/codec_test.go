package tape

import (
	"reflect"
	"testing"
)

func sampleTape() *Tape {
	return &Tape{
		Meta: TapeMeta{
			CreatedAt: "2024-01-01T00:00:00Z",
			Program:   "demo",
			Args:      []string{"--flag"},
			Env:       map[string]string{"PATH": "/bin"},
			Cwd:       "/work",
			PTY:       &PTYDims{Rows: 24, Cols: 80},
		},
		Session: SessionInfo{Platform: "linux", Version: "1.0"},
		Exchanges: []Exchange{
			{
				Pre:    ExchangePre{Prompt: "$ "},
				Input:  NewInput(InputLine, []byte("status\n")),
				Output: IOOutput{Chunks: []Chunk{NewChunk(0, []byte("ok\n"))}},
			},
		},
	}
}

func TestRoundTrip(t *testing.T) {
	orig := sampleTape()
	enc, err := Encode(orig)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	dec, err := Decode(enc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(orig, dec) {
		t.Fatalf("round trip mismatch:\norig=%+v\ndec=%+v", orig, dec)
	}
}

func TestInputTextPreferredForUTF8(t *testing.T) {
	in := NewInput(InputLine, []byte("hello\n"))
	if in.DataText != "hello\n" || in.DataB64 != "" {
		t.Fatalf("expected text form, got %+v", in)
	}
	b, err := in.Bytes()
	if err != nil || string(b) != "hello\n" {
		t.Fatalf("Bytes() = %q, %v", b, err)
	}
}

func TestInputB64ForBinary(t *testing.T) {
	data := []byte{0xff, 0x00, 0xfe}
	in := NewInput(InputRaw, data)
	if in.DataB64 == "" || in.DataText != "" {
		t.Fatalf("expected b64 form, got %+v", in)
	}
	b, err := in.Bytes()
	if err != nil || string(b) != string(data) {
		t.Fatalf("Bytes() = %v, %v", b, err)
	}
}

func TestValidateLenientRequiresFields(t *testing.T) {
	tp := &Tape{}
	if err := ValidateLenient(tp); err == nil {
		t.Fatalf("expected error for empty tape")
	}
}

func TestValidateStrictRejectsDualInput(t *testing.T) {
	tp := sampleTape()
	tp.Exchanges[0].Input.DataB64 = "AAAA"
	if err := ValidateStrict(tp); err == nil {
		t.Fatalf("expected error for dual-populated input")
	}
}
