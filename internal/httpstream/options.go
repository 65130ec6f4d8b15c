package httpstream

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/x509roots/fallback/bundle"
)

// Options is the process-wide TLS trust state. It is only changed through the
// setters and copied with Snapshot whenever a client is built, so an in-flight
// request never observes a concurrent change.
type Options struct {
	mu                 sync.RWMutex
	acceptInvalidCerts bool
	trustedRoots       [][]byte
}

// Settings is an immutable copy of Options.
type Settings struct {
	AcceptInvalidCerts bool
	TrustedRoots       [][]byte // PEM encoded
}

func NewOptions() *Options {
	return &Options{}
}

func (o *Options) SetAcceptInvalidCerts(accept bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.acceptInvalidCerts = accept
}

// SetTrustedRoots replaces the additional trusted root certificates.
func (o *Options) SetTrustedRoots(pems [][]byte) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.trustedRoots = copyRoots(pems)
}

// AddTrustedRoot appends one PEM encoded root certificate.
func (o *Options) AddTrustedRoot(pem []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.trustedRoots = append(o.trustedRoots, append([]byte(nil), pem...))
}

func (o *Options) Snapshot() Settings {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return Settings{
		AcceptInvalidCerts: o.acceptInvalidCerts,
		TrustedRoots:       copyRoots(o.trustedRoots),
	}
}

func copyRoots(pems [][]byte) [][]byte {
	if len(pems) == 0 {
		return nil
	}
	out := make([][]byte, len(pems))
	for i, pem := range pems {
		out[i] = append([]byte(nil), pem...)
	}
	return out
}

var errNoCertificate = errors.New("no PEM certificate found")

// configuredTLS trusts the platform roots plus the extra roots of s.
func configuredTLS(s Settings) (*tls.Config, error) {
	cfg := &tls.Config{
		InsecureSkipVerify: s.AcceptInvalidCerts, //nolint:gosec // opt-in via SetAcceptInvalidCerts
	}
	if len(s.TrustedRoots) == 0 {
		return cfg, nil
	}

	pool, err := x509.SystemCertPool()
	if err != nil {
		return nil, fmt.Errorf("loading platform roots: %w", err)
	}
	for i, pem := range s.TrustedRoots {
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("trusted root %d: %w", i, errNoCertificate)
		}
	}
	cfg.RootCAs = pool
	return cfg, nil
}

// fallbackTLS ignores the platform pool and the extra roots and trusts only
// the NSS bundle embedded in the binary.
func fallbackTLS(s Settings) (*tls.Config, error) {
	pool, err := embeddedRoots()
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		InsecureSkipVerify: s.AcceptInvalidCerts, //nolint:gosec // opt-in via SetAcceptInvalidCerts
		RootCAs:            pool,
	}, nil
}

var (
	embeddedOnce sync.Once
	embeddedPool *x509.CertPool
	embeddedErr  error
)

func embeddedRoots() (*x509.CertPool, error) {
	embeddedOnce.Do(func() {
		pool := x509.NewCertPool()
		for root := range bundle.Roots() {
			cert, err := x509.ParseCertificate(root.Certificate)
			if err != nil {
				embeddedErr = fmt.Errorf("parsing embedded root: %w", err)
				return
			}
			if root.Constraint == nil {
				pool.AddCert(cert)
			} else {
				pool.AddCertWithConstraint(cert, root.Constraint)
			}
		}
		embeddedPool = pool
	})
	return embeddedPool, embeddedErr
}
