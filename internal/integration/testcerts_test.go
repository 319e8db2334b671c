package integration

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"testing"
	"time"
)

// testPKI holds a throwaway CA plus one server and one client leaf
// certificate, all rooted in that CA, for exercising a full mTLS
// handshake without touching the filesystem.
type testPKI struct {
	caPool     *x509.CertPool
	serverCert tls.Certificate
	clientCert tls.Certificate
}

func generateTestPKI(t *testing.T) testPKI {
	t.Helper()

	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generating CA key: %v", err)
	}
	caTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "backupd test CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	if err != nil {
		t.Fatalf("creating CA certificate: %v", err)
	}
	caCert, err := x509.ParseCertificate(caDER)
	if err != nil {
		t.Fatalf("parsing CA certificate: %v", err)
	}

	pool := x509.NewCertPool()
	pool.AddCert(caCert)

	serverCert := issueLeaf(t, caCert, caKey, 2, "backupd test server", []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}, true)
	clientCert := issueLeaf(t, caCert, caKey, 3, "backupd test client", []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}, false)

	return testPKI{caPool: pool, serverCert: serverCert, clientCert: clientCert}
}

// generateUntrustedClientCert issues a client certificate from a second,
// unrelated CA so a dial using it fails verification against pki's pool.
func generateUntrustedClientCert(t *testing.T) tls.Certificate {
	t.Helper()

	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generating rogue CA key: %v", err)
	}
	caTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "rogue CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	if err != nil {
		t.Fatalf("creating rogue CA certificate: %v", err)
	}
	caCert, err := x509.ParseCertificate(caDER)
	if err != nil {
		t.Fatalf("parsing rogue CA certificate: %v", err)
	}

	return issueLeaf(t, caCert, caKey, 9, "untrusted client", []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}, false)
}

func issueLeaf(t *testing.T, caCert *x509.Certificate, caKey *ecdsa.PrivateKey, serial int64, cn string, ext []x509.ExtKeyUsage, isServer bool) tls.Certificate {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generating leaf key: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  ext,
	}
	if isServer {
		template.IPAddresses = []net.IP{net.IPv4(127, 0, 0, 1)}
		template.DNSNames = []string{"localhost"}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, caCert, &key.PublicKey, caKey)
	if err != nil {
		t.Fatalf("creating leaf certificate: %v", err)
	}

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

func (p testPKI) serverTLSConfig() *tls.Config {
	return &tls.Config{
		Certificates:           []tls.Certificate{p.serverCert},
		ClientAuth:             tls.RequireAndVerifyClientCert,
		ClientCAs:              p.caPool,
		MinVersion:             tls.VersionTLS12,
		SessionTicketsDisabled: true,
		ClientSessionCache:     nil,
	}
}

func (p testPKI) clientTLSConfig() *tls.Config {
	return &tls.Config{
		Certificates:       []tls.Certificate{p.clientCert},
		RootCAs:            p.caPool,
		MinVersion:         tls.VersionTLS12,
		ServerName:         "localhost",
		ClientSessionCache: nil,
	}
}

func (p testPKI) clientTLSConfigWith(cert tls.Certificate) *tls.Config {
	cfg := p.clientTLSConfig()
	cfg.Certificates = []tls.Certificate{cert}
	return cfg
}
