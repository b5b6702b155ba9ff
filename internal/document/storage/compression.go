// internal/document/storage/compression.go
package storage

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Stored snapshots carry a one byte header naming the encoding
const (
	encodingRaw  byte = 0
	encodingZstd byte = 1
)

// codec compresses snapshot bodies. EncodeAll and DecodeAll are safe for
// concurrent use, so one encoder and decoder serve the whole store.
type codec struct {
	minSize int
	enc     *zstd.Encoder
	dec     *zstd.Decoder
}

func newCodec(minSize int) (*codec, error) {
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("creating encoder: %w", err)
	}

	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("creating decoder: %w", err)
	}

	return &codec{minSize: minSize, enc: enc, dec: dec}, nil
}

// encode leaves content below minSize uncompressed
func (c *codec) encode(content []byte) []byte {
	if len(content) < c.minSize {
		out := make([]byte, 0, len(content)+1)
		out = append(out, encodingRaw)
		return append(out, content...)
	}
	dst := make([]byte, 1, len(content)/2+1)
	dst[0] = encodingZstd
	return c.enc.EncodeAll(content, dst)
}

func (c *codec) decode(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty snapshot record")
	}

	switch data[0] {
	case encodingRaw:
		return data[1:], nil
	case encodingZstd:
		out, err := c.dec.DecodeAll(data[1:], nil)
		if err != nil {
			return nil, fmt.Errorf("decompressing snapshot: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown snapshot encoding %d", data[0])
	}
}

func (c *codec) close() {
	c.enc.Close()
	c.dec.Close()
}
