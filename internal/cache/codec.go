package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
)

const (
	codecRaw    byte = 'j'
	codecBrotli byte = 'b'

	// Candidate lists for a whole region run into hundreds of KiB of JSON;
	// single flavor records stay small and are stored uncompressed.
	compressThreshold = 1024
)

// Encode serializes v as JSON, brotli-compressing large payloads.
// The first byte tags the encoding.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cache value: %w", err)
	}
	if len(data) < compressThreshold {
		return append([]byte{codecRaw}, data...), nil
	}

	var buf bytes.Buffer
	buf.WriteByte(codecBrotli)
	w := brotli.NewWriterLevel(&buf, brotli.DefaultCompression)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("failed to compress cache value: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress cache value: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reverses Encode into v.
func Decode(payload []byte, v any) error {
	if len(payload) == 0 {
		return fmt.Errorf("empty cache payload")
	}

	var data []byte
	switch payload[0] {
	case codecRaw:
		data = payload[1:]
	case codecBrotli:
		decompressed, err := io.ReadAll(brotli.NewReader(bytes.NewReader(payload[1:])))
		if err != nil {
			return fmt.Errorf("failed to decompress cache value: %w", err)
		}
		data = decompressed
	default:
		return fmt.Errorf("unknown cache payload encoding %q", payload[0])
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse cache value: %w", err)
	}
	return nil
}
