// Package zstdjson encodes JSON bodies compressed with zstd, the content
// encoding used between terminals and the central server.
package zstdjson

import (
	"fmt"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
)

// Encoding is the Content-Encoding / Accept-Encoding token.
const Encoding = "zstd"

// maxDecoded bounds a decompressed body.
const maxDecoded = 64 << 20

var (
	initOnce sync.Once
	encoder  *zstd.Encoder
	decoder  *zstd.Decoder
	initErr  error
)

// EncodeAll and DecodeAll are safe for concurrent use on shared instances.
func codecs() (*zstd.Encoder, *zstd.Decoder, error) {
	initOnce.Do(func() {
		encoder, initErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if initErr != nil {
			initErr = fmt.Errorf("create zstd encoder: %w", initErr)
			return
		}
		decoder, initErr = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecoded))
		if initErr != nil {
			initErr = fmt.Errorf("create zstd decoder: %w", initErr)
		}
	})
	return encoder, decoder, initErr
}

// Marshal encodes v as JSON and compresses it.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	return Compress(raw)
}

// Unmarshal decompresses data and decodes the JSON into v.
func Unmarshal(data []byte, v any) error {
	raw, err := Decompress(data)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return nil
}

func Compress(raw []byte) ([]byte, error) {
	enc, _, err := codecs()
	if err != nil {
		return nil, err
	}
	return enc.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
}

func Decompress(data []byte) ([]byte, error) {
	_, dec, err := codecs()
	if err != nil {
		return nil, err
	}
	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	return raw, nil
}

// Accepts reports whether an Accept-Encoding header value lists zstd.
func Accepts(header string) bool {
	for _, part := range strings.Split(header, ",") {
		token, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.EqualFold(token, Encoding) {
			return true
		}
	}
	return false
}
