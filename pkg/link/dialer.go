package link

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/truenas-collector/pkg/rpc"
)

// Dialer opens the transport for one connection attempt.
type Dialer interface {
	Dial(ctx context.Context) (rpc.Conn, error)
}

// DialFunc adapts a function to Dialer.
type DialFunc func(ctx context.Context) (rpc.Conn, error)

func (f DialFunc) Dial(ctx context.Context) (rpc.Conn, error) { return f(ctx) }

// DialConfig describes the appliance endpoint.
type DialConfig struct {
	Host             string
	Path             string
	UseTLS           bool
	VerifySSL        bool
	HandshakeTimeout time.Duration
}

// URL returns ws(s)://host/path.
func (c DialConfig) URL() string {
	u := url.URL{Scheme: "ws", Host: c.Host, Path: c.Path}
	if c.UseTLS {
		u.Scheme = "wss"
	}
	return u.String()
}

// WebsocketDialer dials the appliance with gorilla/websocket.
type WebsocketDialer struct {
	url    string
	dialer *websocket.Dialer
}

func NewWebsocketDialer(cfg DialConfig) *WebsocketDialer {
	d := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
	if cfg.UseTLS {
		d.TLSClientConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			// 自签名证书场景下允许关闭校验
			InsecureSkipVerify: !cfg.VerifySSL, //nolint:gosec
		}
	}
	return &WebsocketDialer{url: cfg.URL(), dialer: d}
}

func (w *WebsocketDialer) Dial(ctx context.Context) (rpc.Conn, error) {
	conn, resp, err := w.dialer.DialContext(ctx, w.url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		te := &TransportError{URL: w.url, Err: err}
		if resp != nil {
			te.Status = resp.StatusCode
		}
		return nil, te
	}
	return conn, nil
}
