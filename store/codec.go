package store

import (
	"bytes"
	"compress/flate"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/bcdev/nc2zarr/dataset"
)

// compressorOf reads a variable encoding's "compressor" key (spec §6
// output.encoding.<var>.compressor), defaulting to "zstd".
func compressorOf(enc dataset.Encoding) string {
	if enc == nil {
		return "zstd"
	}
	if v, ok := enc["compressor"]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "zstd"
}

// encodeData compresses data per the named compressor before it is
// persisted as a chunk's bytes on disk or in an object store.
func encodeData(data []byte, enc dataset.Encoding) ([]byte, error) {
	switch compressorOf(enc) {
	case "none":
		return data, nil
	case "zstd":
		w, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("store: zstd encoder: %w", err)
		}
		defer w.Close()
		return w.EncodeAll(data, nil), nil
	case "gzip":
		var buf bytes.Buffer
		w, err := flate.NewWriter(&buf, flate.BestSpeed)
		if err != nil {
			return nil, fmt.Errorf("store: deflate encoder: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("store: deflate encode: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("store: deflate encode: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("store: unsupported compressor %q", compressorOf(enc))
	}
}

// decodeData reverses encodeData, given the same encoding used to
// write the chunk.
func decodeData(data []byte, enc dataset.Encoding) ([]byte, error) {
	switch compressorOf(enc) {
	case "none":
		return data, nil
	case "zstd":
		r, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("store: zstd decoder: %w", err)
		}
		defer r.Close()
		out, err := r.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("store: zstd decode: %w", err)
		}
		return out, nil
	case "gzip":
		r := flate.NewReader(bytes.NewReader(data))
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("store: deflate decode: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("store: unsupported compressor %q", compressorOf(enc))
	}
}
