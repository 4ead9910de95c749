package fingerprint

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	utls "github.com/refraction-networking/utls"
)

// Profile names the TLS ClientHello presented to search engines.
type Profile string

const (
	ProfileChrome  Profile = "chrome"
	ProfileFirefox Profile = "firefox"
	ProfileSafari  Profile = "safari"
	ProfileGo      Profile = "go"     // standard library TLS
	ProfileRandom  Profile = "random" // randomized uTLS hello
)

// ParseProfile maps a configuration string to a Profile. Empty means ProfileGo.
func ParseProfile(s string) (Profile, error) {
	switch p := Profile(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return ProfileGo, nil
	case ProfileChrome, ProfileFirefox, ProfileSafari, ProfileGo, ProfileRandom:
		return p, nil
	default:
		return "", fmt.Errorf("fingerprint: unknown profile %q", s)
	}
}

// Options tunes the transport built by Transport.
type Options struct {
	// Proxy is installed as the transport's Proxy function when set.
	Proxy func(*http.Request) (*url.URL, error)
	// RootCAs overrides the system roots, mainly for tests.
	RootCAs *x509.CertPool
}

// Transport returns an http.RoundTripper presenting the ClientHello of p.
// uTLS hellos are pinned to HTTP/1.1 through ALPN because http.Transport
// cannot speak h2 over a connection it did not negotiate itself.
func Transport(p Profile, opts Options) (http.RoundTripper, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.Proxy != nil {
		transport.Proxy = opts.Proxy
	}

	if p == ProfileGo {
		if opts.RootCAs != nil {
			transport.TLSClientConfig = &tls.Config{RootCAs: opts.RootCAs}
		}
		return transport, nil
	}

	var (
		helloID utls.ClientHelloID
		pinALPN = true
	)
	switch p {
	case ProfileChrome:
		helloID = utls.HelloChrome_Auto
	case ProfileFirefox:
		helloID = utls.HelloFirefox_Auto
	case ProfileSafari:
		helloID = utls.HelloIOS_Auto
	case ProfileRandom:
		helloID = utls.HelloRandomizedNoALPN
		pinALPN = false
	default:
		return nil, fmt.Errorf("fingerprint: unknown profile %q", p)
	}

	dial := transport.DialContext
	transport.ForceAttemptHTTP2 = false
	transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		tcpConn, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}
		cfg := &utls.Config{ServerName: host, RootCAs: opts.RootCAs}

		var uConn *utls.UConn
		if pinALPN {
			uConn, err = http11Client(tcpConn, cfg, helloID)
			if err != nil {
				_ = tcpConn.Close()
				return nil, err
			}
		} else {
			uConn = utls.UClient(tcpConn, cfg, helloID)
		}

		if err := uConn.HandshakeContext(ctx); err != nil {
			_ = tcpConn.Close()
			return nil, fmt.Errorf("fingerprint: utls handshake with %s: %w", host, err)
		}
		return uConn, nil
	}

	return transport, nil
}

// http11Client builds a uTLS client from id's spec with ALPN reduced to
// http/1.1.
func http11Client(conn net.Conn, cfg *utls.Config, id utls.ClientHelloID) (*utls.UConn, error) {
	spec, err := utls.UTLSIdToSpec(id)
	if err != nil {
		return nil, fmt.Errorf("fingerprint: spec for %s: %w", id.Str(), err)
	}
	for _, ext := range spec.Extensions {
		if alpn, ok := ext.(*utls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
		}
	}

	uConn := utls.UClient(conn, cfg, utls.HelloCustom)
	if err := uConn.ApplyPreset(&spec); err != nil {
		return nil, fmt.Errorf("fingerprint: apply %s: %w", id.Str(), err)
	}
	return uConn, nil
}
