package prodfile

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// codec compresses chunk payloads on their way to disk.  Hashing
// always runs over unpacked bytes, so the digest never depends on
// which codec a file was written with.
type codec interface {
	name() string
	pack(raw []byte) (buf []byte, err error)
	unpack(buf []byte, rawLen int) (raw []byte, err error)
}

func newCodec(name string) (c codec, err error) {
	switch name {
	case "", "zstd":
		c = zstdCodec{}
	case "lz4":
		c = lz4Codec{}
	case "raw":
		c = rawCodec{}
	default:
		err = fmt.Errorf("unknown chunk codec: %s", name)
	}
	return
}

type rawCodec struct{}

func (rawCodec) name() string { return "raw" }

func (rawCodec) pack(raw []byte) ([]byte, error) { return raw, nil }

func (rawCodec) unpack(buf []byte, rawLen int) ([]byte, error) {
	if len(buf) != rawLen {
		return nil, fmt.Errorf("raw chunk is %d bytes, want %d", len(buf), rawLen)
	}
	return buf, nil
}

var (
	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
	zstdDec  *zstd.Decoder
)

func zstdInit() {
	zstdOnce.Do(func() {
		zstdEnc, _ = zstd.NewWriter(nil)
		zstdDec, _ = zstd.NewReader(nil)
	})
}

type zstdCodec struct{}

func (zstdCodec) name() string { return "zstd" }

func (zstdCodec) pack(raw []byte) (buf []byte, err error) {
	zstdInit()
	buf = zstdEnc.EncodeAll(raw, nil)
	return
}

func (zstdCodec) unpack(buf []byte, rawLen int) (raw []byte, err error) {
	zstdInit()
	raw, err = zstdDec.DecodeAll(buf, nil)
	if err != nil {
		return
	}
	if len(raw) != rawLen {
		err = fmt.Errorf("zstd chunk unpacked to %d bytes, want %d", len(raw), rawLen)
	}
	return
}

// lz4 block compression can refuse incompressible input, so packed
// payloads carry a one-byte flag: 1 = compressed block, 0 = stored.
type lz4Codec struct{}

func (lz4Codec) name() string { return "lz4" }

func (lz4Codec) pack(raw []byte) (buf []byte, err error) {
	var c lz4.Compressor
	dst := make([]byte, lz4.CompressBlockBound(len(raw)))
	n, err := c.CompressBlock(raw, dst)
	if err != nil {
		return
	}
	if n == 0 || n >= len(raw) {
		buf = append([]byte{0}, raw...)
		return
	}
	buf = append([]byte{1}, dst[:n]...)
	return
}

func (lz4Codec) unpack(buf []byte, rawLen int) (raw []byte, err error) {
	if len(buf) < 1 {
		err = fmt.Errorf("empty lz4 chunk")
		return
	}
	if buf[0] == 0 {
		raw = buf[1:]
	} else {
		raw = make([]byte, rawLen)
		var n int
		n, err = lz4.UncompressBlock(buf[1:], raw)
		if err != nil {
			return
		}
		raw = raw[:n]
	}
	if len(raw) != rawLen {
		err = fmt.Errorf("lz4 chunk unpacked to %d bytes, want %d", len(raw), rawLen)
	}
	return
}
