package player

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	log "github.com/sirupsen/logrus"
)

const acceptEncoding = "gzip, deflate, br, zstd"

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 4 << 20

// readBody reads and, according to Content-Encoding, decompresses a response body.
func readBody(body io.Reader, contentEncoding string) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(raw) == 0 {
		return raw, nil
	}

	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "", "identity":
		return raw, nil
	case "gzip":
		return decompressGzip(raw)
	case "deflate":
		return decompressDeflate(raw)
	case "br":
		return decompressBrotli(raw)
	case "zstd":
		return decompressZstd(raw)
	default:
		log.Debugf("spotify api: unsupported content-encoding %q, using raw body", contentEncoding)
		return raw, nil
	}
}

func decompressGzip(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer func() {
		if errClose := reader.Close(); errClose != nil {
			log.WithError(errClose).Warn("failed to close gzip reader")
		}
	}()
	out, err := io.ReadAll(io.LimitReader(reader, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress gzip data: %w", err)
	}
	return out, nil
}

func decompressDeflate(data []byte) ([]byte, error) {
	reader := flate.NewReader(bytes.NewReader(data))
	defer func() {
		if errClose := reader.Close(); errClose != nil {
			log.WithError(errClose).Warn("failed to close deflate reader")
		}
	}()
	out, err := io.ReadAll(io.LimitReader(reader, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress deflate data: %w", err)
	}
	return out, nil
}

func decompressBrotli(data []byte) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(brotli.NewReader(bytes.NewReader(data)), maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress brotli data: %w", err)
	}
	return out, nil
}

func decompressZstd(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer decoder.Close()
	out, err := io.ReadAll(io.LimitReader(decoder, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress zstd data: %w", err)
	}
	return out, nil
}
