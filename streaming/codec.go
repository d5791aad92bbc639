package streaming

import (
	"encoding/base64"
	"fmt"
)

// EncodeFrame returns the base64 text form of a raw PCM frame.
func EncodeFrame(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeFrame is the inverse of EncodeFrame.
func DecodeFrame(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid audio frame: %w", err)
	}
	return b, nil
}

// Concat joins chunks in order into one contiguous buffer.
func Concat(chunks [][]byte) []byte {
	n := 0
	for _, c := range chunks {
		n += len(c)
	}
	out := make([]byte, 0, n)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}
