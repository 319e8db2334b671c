// Package tlsconf builds the mTLS configurations used by both binaries:
// the receiver verifies a client certificate against its trust store,
// the sender verifies the receiver's server certificate against its own.
// Both sides present a certificate, so both configs load a keypair.
package tlsconf

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// Config names the three PEM files a TLSConfig entry in the
// configuration file points at.
type Config struct {
	CertFile string
	KeyFile  string
	CAFile   string
}

func loadTrustPool(caFile string) (*x509.CertPool, error) {
	raw, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("reading CA file %s: %w", caFile, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(raw) {
		return nil, fmt.Errorf("no certificates parsed from CA file %s", caFile)
	}
	return pool, nil
}

// Server builds the receiver's TLS configuration: it presents cfg's
// keypair and requires and verifies a client certificate rooted in
// cfg.CAFile. Session tickets and the session cache are disabled so
// every connection performs a full handshake, per the no-resumption
// requirement.
func Server(cfg Config) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("loading server keypair: %w", err)
	}
	pool, err := loadTrustPool(cfg.CAFile)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates:           []tls.Certificate{cert},
		ClientAuth:             tls.RequireAndVerifyClientCert,
		ClientCAs:              pool,
		MinVersion:             tls.VersionTLS12,
		SessionTicketsDisabled: true,
		ClientSessionCache:     nil,
	}, nil
}

// Client builds the sender's TLS configuration: it presents cfg's
// keypair and verifies the receiver's server certificate against
// cfg.CAFile rather than the system trust store, since the receiver's
// certificate is privately issued.
func Client(cfg Config) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("loading client keypair: %w", err)
	}
	pool, err := loadTrustPool(cfg.CAFile)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates:           []tls.Certificate{cert},
		RootCAs:                pool,
		MinVersion:             tls.VersionTLS12,
		ClientSessionCache:     nil,
		SessionTicketsDisabled: true,
	}, nil
}
