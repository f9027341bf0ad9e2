// Package compression shrinks queued task payloads before they hit redis.
// Workflow inputs can carry whole fetched documents, so the wire size is
// worth caring about on shared queues.
package compression

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

type Algorithm string

const (
	None   Algorithm = ""
	LZ4    Algorithm = "lz4"
	Snappy Algorithm = "snappy"
	Zstd   Algorithm = "zstd"
)

// Parse normalizes a config string. "none" and "" both mean no compression.
func Parse(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case None, Algorithm("none"):
		return None, nil
	case LZ4, Snappy, Zstd:
		return Algorithm(s), nil
	default:
		return None, fmt.Errorf("unknown compression algorithm %q", s)
	}
}

// Compressor encodes and decodes payloads for one algorithm. The zstd coder
// pair is built once per Compressor; EncodeAll and DecodeAll are safe for
// concurrent use, so one instance serves all queue workers.
type Compressor struct {
	algo Algorithm
	zenc *zstd.Encoder
	zdec *zstd.Decoder
}

func New(algo Algorithm) (*Compressor, error) {
	c := &Compressor{algo: algo}
	switch algo {
	case None, LZ4, Snappy:
	case Zstd:
		var err error
		if c.zenc, err = zstd.NewWriter(nil); err != nil {
			return nil, err
		}
		if c.zdec, err = zstd.NewReader(nil); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown compression algorithm %q", algo)
	}
	return c, nil
}

func (c *Compressor) Algorithm() Algorithm { return c.algo }

func (c *Compressor) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	switch c.algo {
	case LZ4:
		var buf bytes.Buffer
		zw := lz4.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case Snappy:
		return snappy.Encode(nil, data), nil
	case Zstd:
		return c.zenc.EncodeAll(data, nil), nil
	}
	return data, nil
}

func (c *Compressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	switch c.algo {
	case LZ4:
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, lz4.NewReader(bytes.NewReader(data))); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case Snappy:
		return snappy.Decode(nil, data)
	case Zstd:
		return c.zdec.DecodeAll(data, nil)
	}
	return data, nil
}

var (
	sharedMu sync.Mutex
	shared   = map[Algorithm]*Compressor{}
)

// Shared returns a process-wide Compressor for algo. Consumers that learn the
// algorithm from the payload itself reuse one instance per algorithm instead
// of building a fresh zstd coder per message.
func Shared(algo Algorithm) (*Compressor, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if c, ok := shared[algo]; ok {
		return c, nil
	}
	c, err := New(algo)
	if err != nil {
		return nil, err
	}
	shared[algo] = c
	return c, nil
}
