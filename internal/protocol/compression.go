package protocol

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
)

// Every compressed frame carries a one-byte tag so a receiver can tell
// which codec produced it without consulting the negotiated session
// state -- useful across a reconnect where the client may have cached a
// message encoded under a prior negotiation.
const (
	compressionTagNone   byte = 0x00
	compressionTagGzip   byte = 0x01
	compressionTagBrotli byte = 0x02
)

// Compress wraps payload with a one-byte codec tag, compressing with the
// named scheme. CompressionNone still prepends the tag so the framing is
// uniform regardless of what was negotiated.
func Compress(payload []byte, scheme string) ([]byte, error) {
	switch scheme {
	case CompressionNone, "":
		return append([]byte{compressionTagNone}, payload...), nil
	case CompressionGzip:
		var buf bytes.Buffer
		buf.WriteByte(compressionTagGzip)
		gw := gzip.NewWriter(&buf)
		if _, err := gw.Write(payload); err != nil {
			return nil, err
		}
		if err := gw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case CompressionBrotli:
		var buf bytes.Buffer
		buf.WriteByte(compressionTagBrotli)
		bw := brotli.NewWriterLevel(&buf, brotli.DefaultCompression)
		if _, err := bw.Write(payload); err != nil {
			return nil, err
		}
		if err := bw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("protocol: unknown compression scheme %q", scheme)
	}
}

// Decompress reads the leading codec tag and reverses Compress.
func Decompress(frame []byte) ([]byte, error) {
	if len(frame) == 0 {
		return nil, fmt.Errorf("protocol: empty compressed frame")
	}
	tag, body := frame[0], frame[1:]
	switch tag {
	case compressionTagNone:
		return body, nil
	case compressionTagGzip:
		gr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer gr.Close()
		return io.ReadAll(gr)
	case compressionTagBrotli:
		return io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
	default:
		return nil, fmt.Errorf("protocol: unknown compression tag 0x%02x", tag)
	}
}

// ShouldCompress reports whether payload is large enough that
// compression is worth its CPU cost. Below this floor, framing overhead
// dominates and compression would only add latency (SPEC_FULL §4.6).
const compressionFloorBytes = 1024

func ShouldCompress(payloadLen int) bool {
	return payloadLen >= compressionFloorBytes
}
