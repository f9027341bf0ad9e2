package queue

import (
	"encoding/json"
	"fmt"

	"github.com/user/verdandi/pkg/compression"
)

// Compressed payloads carry a one-byte algorithm tag so consumers decode
// without knowing the producer's config. Plain JSON is left bare, which
// keeps entries queued before compression was enabled readable.
const (
	tagLZ4    = 0x01
	tagSnappy = 0x02
	tagZstd   = 0x03
)

func encodeTask(t Task, c *compression.Compressor) ([]byte, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	if c == nil || c.Algorithm() == compression.None {
		return raw, nil
	}
	compressed, err := c.Compress(raw)
	if err != nil {
		return nil, err
	}
	var tag byte
	switch c.Algorithm() {
	case compression.LZ4:
		tag = tagLZ4
	case compression.Snappy:
		tag = tagSnappy
	case compression.Zstd:
		tag = tagZstd
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", c.Algorithm())
	}
	return append([]byte{tag}, compressed...), nil
}

func decodeTask(data []byte) (Task, error) {
	var t Task
	if len(data) == 0 {
		return t, fmt.Errorf("empty task payload")
	}
	if data[0] == '{' {
		return t, json.Unmarshal(data, &t)
	}

	var algo compression.Algorithm
	switch data[0] {
	case tagLZ4:
		algo = compression.LZ4
	case tagSnappy:
		algo = compression.Snappy
	case tagZstd:
		algo = compression.Zstd
	default:
		return t, fmt.Errorf("unknown task payload tag 0x%02x", data[0])
	}
	c, err := compression.Shared(algo)
	if err != nil {
		return t, err
	}
	raw, err := c.Decompress(data[1:])
	if err != nil {
		return t, fmt.Errorf("failed to decompress task payload: %w", err)
	}
	return t, json.Unmarshal(raw, &t)
}
