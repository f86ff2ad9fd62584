// File: internal/network/compression.go
package network

import (
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

// acceptEncoding is advertised on every source request that does not set
// its own Accept-Encoding.
const acceptEncoding = "br, gzip, deflate"

var brotliPool = sync.Pool{New: func() any { return brotli.NewReader(nil) }}

// decoder opens a decoding layer over r. release, if non-nil, runs once the
// layer is closed.
type decoder func(r io.Reader) (rc io.ReadCloser, release func(), err error)

var decoders = map[string]decoder{
	"gzip":    decodeGzip,
	"x-gzip":  decodeGzip,
	"deflate": decodeDeflate,
	"br":      decodeBrotli,
}

func decodeGzip(r io.Reader) (io.ReadCloser, func(), error) {
	gz, err := gzip.NewReader(r)
	return gz, nil, err
}

func decodeDeflate(r io.Reader) (io.ReadCloser, func(), error) {
	zr, err := zlib.NewReader(r)
	return zr, nil, err
}

func decodeBrotli(r io.Reader) (io.ReadCloser, func(), error) {
	br := brotliPool.Get().(*brotli.Reader)
	if err := br.Reset(r); err != nil {
		brotliPool.Put(br)
		return nil, nil, err
	}
	return io.NopCloser(br), func() { brotliPool.Put(br) }, nil
}

// CompressionMiddleware is a RoundTripper that negotiates compressed source
// responses and hands callers the decoded body.
type CompressionMiddleware struct {
	Transport http.RoundTripper
}

// NewCompressionMiddleware wraps transport, defaulting to http.DefaultTransport.
func NewCompressionMiddleware(transport http.RoundTripper) *CompressionMiddleware {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &CompressionMiddleware{Transport: transport}
}

// RoundTrip implements http.RoundTripper.
func (cm *CompressionMiddleware) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", acceptEncoding)
	}
	resp, err := cm.Transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if err := DecompressResponse(resp); err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("failed to decode source response: %w", err)
	}
	return resp, nil
}

// layeredBody closes the decoding layer and then the body beneath it.
type layeredBody struct {
	io.ReadCloser
	under   io.ReadCloser
	release func()
}

func (b *layeredBody) Close() error {
	err := errors.Join(b.ReadCloser.Close(), b.under.Close())
	if b.release != nil {
		b.release()
		b.release = nil
	}
	return err
}

// DecompressResponse replaces resp.Body with a reader that undoes every
// Content-Encoding layer, last applied first. Layers may come as repeated
// headers or as one comma-separated list. An unknown encoding is an
// error and leaves the response unusable.
func DecompressResponse(resp *http.Response) error {
	if resp == nil || resp.Body == nil {
		return nil
	}
	var layers []string
	for _, v := range resp.Header.Values("Content-Encoding") {
		layers = append(layers, strings.Split(v, ",")...)
	}
	if len(layers) == 0 {
		return nil
	}

	for i := len(layers) - 1; i >= 0; i-- {
		name := strings.ToLower(strings.TrimSpace(layers[i]))
		if name == "" || name == "identity" {
			continue
		}
		open, ok := decoders[name]
		if !ok {
			return fmt.Errorf("unsupported Content-Encoding layer: %s", name)
		}
		rc, release, err := open(resp.Body)
		if err != nil {
			return fmt.Errorf("%s decoder: %w", name, err)
		}
		resp.Body = &layeredBody{ReadCloser: rc, under: resp.Body, release: release}
	}

	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}
