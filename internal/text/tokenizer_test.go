package text

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tok, err := NewTokenizer(256)
	if err != nil {
		t.Fatalf("new tokenizer: %v", err)
	}

	input := "Hello, world! Ünïcödé."

	ids, err := tok.Encode(input)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	if len(ids) != len(input) {
		t.Fatalf("got %d tokens for %d bytes", len(ids), len(input))
	}

	back, err := tok.Decode(ids)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if back != input {
		t.Fatalf("round trip = %q, want %q", back, input)
	}
}

func TestEncodeDeterministic(t *testing.T) {
	tok, err := NewTokenizer(256)
	if err != nil {
		t.Fatalf("new tokenizer: %v", err)
	}

	a, err := tok.Encode("same text")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	b, err := tok.Encode("same text")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("encoding not deterministic at %d: %d vs %d", i, a[i], b[i])
		}
	}
}

func TestEncodeRejectsOutOfVocab(t *testing.T) {
	tok, err := NewTokenizer(128)
	if err != nil {
		t.Fatalf("new tokenizer: %v", err)
	}

	if _, err := tok.Encode("ascii only"); err != nil {
		t.Fatalf("ascii rejected by 128-vocab tokenizer: %v", err)
	}

	if _, err := tok.Encode("ü"); err == nil {
		t.Fatal("non-ascii byte accepted by 128-vocab tokenizer")
	}
}

func TestTokenizerValidation(t *testing.T) {
	if _, err := NewTokenizer(0); err == nil {
		t.Fatal("zero vocabulary accepted")
	}

	if _, err := NewTokenizer(512); err == nil {
		t.Fatal("oversized vocabulary accepted")
	}

	tok, err := NewTokenizer(256)
	if err != nil {
		t.Fatalf("new tokenizer: %v", err)
	}

	if _, err := tok.Encode(""); err == nil {
		t.Fatal("empty string accepted")
	}

	if _, err := tok.Decode([]int64{300}); err == nil {
		t.Fatal("out-of-range token accepted by Decode")
	}
}
