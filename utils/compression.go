package utils

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

// CompressMinBytes is the payload size below which compression is skipped;
// the gzip header alone would eat any savings.
const CompressMinBytes = 512

// gzipMagic prefixes every gzip stream. JSON payloads can never start with
// these bytes, so stored values are self-describing.
var gzipMagic = []byte{0x1f, 0x8b}

// CompressBytes gzips data.
func CompressBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)
	if _, err := writer.Write(data); err != nil {
		return nil, fmt.Errorf("gzip write: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

// DecompressBytes inflates a gzip stream.
func DecompressBytes(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip open: %w", err)
	}
	defer reader.Close()

	out, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("gzip read: %w", err)
	}
	return out, nil
}

// IsCompressed reports whether data carries the gzip magic prefix.
func IsCompressed(data []byte) bool {
	return bytes.HasPrefix(data, gzipMagic)
}

// CompressIfLarge gzips payloads worth compressing. Small payloads and
// payloads that do not shrink come back unchanged, as does anything a
// failing compressor touched.
func CompressIfLarge(data []byte) []byte {
	if len(data) < CompressMinBytes {
		return data
	}
	compressed, err := CompressBytes(data)
	if err != nil || len(compressed) >= len(data) {
		return data
	}
	return compressed
}

// DecompressIfNeeded reverses CompressIfLarge based on the magic prefix.
func DecompressIfNeeded(data []byte) ([]byte, error) {
	if !IsCompressed(data) {
		return data, nil
	}
	return DecompressBytes(data)
}
