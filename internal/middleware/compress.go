package middleware

import (
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/zstd"
)

// Encodings supported by Compress, in server preference order.
const (
	EncodingBrotli = "br"
	EncodingZstd   = "zstd"
)

type CompressConfig struct {
	BrotliQuality int
	Skipper       func(c *gin.Context) bool
	MinLength     int
}

var DefaultCompressConfig = CompressConfig{
	BrotliQuality: brotli.DefaultCompression,
	MinLength:     1024,
}

// compressWriter buffers the body until MinLength bytes are written, then
// switches to the negotiated encoder. Short bodies go out uncompressed.
type compressWriter struct {
	gin.ResponseWriter
	encoding   string
	newEncoder func(w io.Writer) io.WriteCloser
	encoder    io.WriteCloser
	buf        []byte
	minLength  int
	once       sync.Once
}

func (cw *compressWriter) Write(data []byte) (int, error) {
	if cw.encoder != nil {
		return cw.encoder.Write(data)
	}

	cw.buf = append(cw.buf, data...)
	if len(cw.buf) < cw.minLength {
		return len(data), nil
	}

	cw.once.Do(func() {
		cw.ResponseWriter.Header().Set("Content-Encoding", cw.encoding)
		cw.ResponseWriter.Header().Del("Content-Length")
		cw.encoder = cw.newEncoder(cw.ResponseWriter)
	})
	if _, err := cw.encoder.Write(cw.buf); err != nil {
		return 0, err
	}
	cw.buf = cw.buf[:0]
	return len(data), nil
}

func (cw *compressWriter) WriteString(s string) (int, error) {
	return cw.Write([]byte(s))
}

func (cw *compressWriter) finish() error {
	if cw.encoder != nil {
		return cw.encoder.Close()
	}
	if len(cw.buf) == 0 {
		return nil
	}
	_, err := cw.ResponseWriter.Write(cw.buf)
	cw.buf = cw.buf[:0]
	return err
}

func Compress() gin.HandlerFunc {
	return CompressWithConfig(DefaultCompressConfig)
}

func CompressWithConfig(cfg CompressConfig) gin.HandlerFunc {
	if cfg.BrotliQuality < 0 || cfg.BrotliQuality > 11 {
		cfg.BrotliQuality = brotli.DefaultCompression
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = DefaultCompressConfig.MinLength
	}

	encoders := map[string]func(w io.Writer) io.WriteCloser{
		EncodingBrotli: func(w io.Writer) io.WriteCloser {
			return brotli.NewWriterLevel(w, cfg.BrotliQuality)
		},
		EncodingZstd: func(w io.Writer) io.WriteCloser {
			// Only fails on invalid options.
			enc, _ := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
			return enc
		},
	}

	return func(c *gin.Context) {
		if shouldSkip(c) || (cfg.Skipper != nil && cfg.Skipper(c)) {
			c.Next()
			return
		}

		encoding := negotiate(c.Request)
		if encoding == "" {
			c.Next()
			return
		}

		c.Header("Vary", "Accept-Encoding")
		cw := &compressWriter{
			ResponseWriter: c.Writer,
			encoding:       encoding,
			newEncoder:     encoders[encoding],
			minLength:      cfg.MinLength,
		}
		defer func() {
			if err := cw.finish(); err != nil {
				_ = c.Error(err)
			}
		}()

		c.Writer = cw
		c.Next()
	}
}

// shouldSkip returns true for protocols that are incompatible with
// buffered compression and must be passed through untouched.
func shouldSkip(c *gin.Context) bool {
	if strings.Contains(c.GetHeader("Accept"), "text/event-stream") {
		return true
	}
	// The upgrade handshake fails if the response writer is wrapped.
	return strings.EqualFold(c.GetHeader("Upgrade"), "websocket")
}

// negotiate picks brotli over zstd when the client accepts both. Quality
// values are ignored except q=0, which refuses an encoding.
func negotiate(r *http.Request) string {
	accepted := map[string]bool{}
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.ReplaceAll(strings.TrimSpace(params), " ", "") == "q=0" {
			continue
		}
		accepted[strings.ToLower(strings.TrimSpace(name))] = true
	}
	for _, enc := range []string{EncodingBrotli, EncodingZstd} {
		if accepted[enc] {
			return enc
		}
	}
	return ""
}
