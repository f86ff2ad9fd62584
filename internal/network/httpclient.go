// File: internal/network/httpclient.go
package network

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/xkilldash9x/dialtone/internal/config"
	"github.com/xkilldash9x/dialtone/internal/observability"
)

// Constants for default TCP/HTTP settings.
const (
	DefaultDialTimeout           = 5 * time.Second
	DefaultKeepAliveInterval     = 15 * time.Second
	DefaultTLSHandshakeTimeout   = 5 * time.Second
	DefaultResponseHeaderTimeout = 10 * time.Second

	DefaultMaxIdleConns        = 64
	DefaultMaxIdleConnsPerHost = 10
	DefaultMaxConnsPerHost     = 32
	DefaultIdleConnTimeout     = 30 * time.Second

	DefaultMaxResponseBytes int64 = 4 << 20
)

// ClientConfig holds the configuration for the HTTP client and transport layers.
type ClientConfig struct {
	IgnoreTLSErrors bool
	TLSConfig       *tls.Config

	DialTimeout           time.Duration
	KeepAlive             time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration

	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration

	ForceHTTP2 bool

	// Applied to every request unless the caller sets the same header.
	UserAgent      string
	DefaultHeaders map[string]string

	// Responses larger than this are truncated.
	MaxResponseBytes int64

	Logger *zap.Logger
}

// NewDefaultClientConfig creates a configuration suited to polling a
// handful of lookup services concurrently.
func NewDefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		DialTimeout:           DefaultDialTimeout,
		KeepAlive:             DefaultKeepAliveInterval,
		TLSHandshakeTimeout:   DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: DefaultResponseHeaderTimeout,
		MaxIdleConns:          DefaultMaxIdleConns,
		MaxIdleConnsPerHost:   DefaultMaxIdleConnsPerHost,
		MaxConnsPerHost:       DefaultMaxConnsPerHost,
		IdleConnTimeout:       DefaultIdleConnTimeout,
		ForceHTTP2:            true,
		UserAgent:             "dialtone/dev",
		MaxResponseBytes:      DefaultMaxResponseBytes,
		Logger:                observability.GetLogger().Named("httpclient"),
	}
}

// ClientConfigFromNetwork maps the network section of the application
// config onto a ClientConfig.
func ClientConfigFromNetwork(cfg config.NetworkConfig) *ClientConfig {
	cc := NewDefaultClientConfig()
	cc.IgnoreTLSErrors = cfg.IgnoreTLSErrors
	cc.ForceHTTP2 = cfg.EnableHTTP2
	if cfg.UserAgent != "" {
		cc.UserAgent = cfg.UserAgent
	}
	if len(cfg.Headers) > 0 {
		cc.DefaultHeaders = cfg.Headers
	}
	if cfg.MaxIdleConnsPerHost > 0 {
		cc.MaxIdleConnsPerHost = cfg.MaxIdleConnsPerHost
	}
	if cfg.MaxResponseBytes > 0 {
		cc.MaxResponseBytes = cfg.MaxResponseBytes
	}
	return cc
}

// NewHTTPTransport creates and configures an http.Transport based on the provided configuration.
func NewHTTPTransport(config *ClientConfig) *http.Transport {
	if config == nil {
		config = NewDefaultClientConfig()
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	dialer := &net.Dialer{
		Timeout:   config.DialTimeout,
		KeepAlive: config.KeepAlive,
	}
	tlsConfig := configureTLS(config)

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSClientConfig:       tlsConfig,
		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		MaxConnsPerHost:       config.MaxConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		ResponseHeaderTimeout: config.ResponseHeaderTimeout,
		// Decoding is handled by CompressionMiddleware so brotli is covered too.
		DisableCompression: true,
		ForceAttemptHTTP2:  config.ForceHTTP2,
	}

	if config.ForceHTTP2 {
		if err := http2.ConfigureTransport(transport); err != nil {
			config.Logger.Warn("Failed to configure HTTP/2 transport, falling back to HTTP/1.1", zap.Error(err))
		}
	} else if len(tlsConfig.NextProtos) == 0 {
		tlsConfig.NextProtos = []string{"http/1.1"}
	}

	return transport
}

// NewHTTPClient builds the standard client used by Client. Redirects are
// followed (lookup APIs commonly bounce to a canonical host) up to a small limit.
func NewHTTPClient(config *ClientConfig) *http.Client {
	if config == nil {
		config = NewDefaultClientConfig()
	}
	return &http.Client{
		Transport: NewCompressionMiddleware(NewHTTPTransport(config)),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}

// configureTLS sets up the TLS configuration with strong defaults.
func configureTLS(config *ClientConfig) *tls.Config {
	var tlsConfig *tls.Config
	if config.TLSConfig != nil {
		tlsConfig = config.TLSConfig.Clone()
	} else {
		tlsConfig = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			ClientSessionCache: tls.NewLRUClientSessionCache(128),
		}
	}
	tlsConfig.InsecureSkipVerify = config.IgnoreTLSErrors
	return tlsConfig
}

