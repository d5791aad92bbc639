package streaming

import (
	"bytes"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	in := []byte{0x00, 0x01, 0xfe, 0xff, 0x7f}
	out, err := DecodeFrame(EncodeFrame(in))
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if !bytes.Equal(in, out) {
		t.Fatalf("round trip mismatch: %v != %v", out, in)
	}
}

func TestDecodeFrame_Invalid(t *testing.T) {
	if _, err := DecodeFrame("not base64!!"); err == nil {
		t.Fatal("expected error")
	}
}

func TestConcat(t *testing.T) {
	got := Concat([][]byte{{1, 2}, {}, {3}, {4, 5, 6}})
	if !bytes.Equal(got, []byte{1, 2, 3, 4, 5, 6}) {
		t.Fatalf("unexpected concat: %v", got)
	}
	if len(Concat(nil)) != 0 {
		t.Fatal("expected empty result")
	}
}
