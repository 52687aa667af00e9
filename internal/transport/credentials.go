// Package transport provides the mutually-authenticated TLS HTTP client
// pool used to POST signed SOAP envelopes to remote gateways, per spec §5/§6.
//
// The teacher library loads its signing identity from a single PKCS12
// bundle (see cert.go's decodeP12Cert). The caller's credential here is a
// PEM triplet per spec §6/§7 (cqcert.crt, cqkey.key, trusted.pem), so
// Credentials loads each file directly instead of unwrapping a P12
// container — the parsing and validity-window checks below are adapted
// from the same source.
package transport

import (
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"
)

// Credentials holds the decoded client certificate, private key, and trust
// bundle used to mutually authenticate every outbound request this node
// makes, per spec §5's "Shared resources" (one SSL context per request,
// loaded once from cqcert.crt/cqkey.key/trusted.pem).
type Credentials struct {
	Certificate *x509.Certificate
	PrivateKey  *rsa.PrivateKey
	TLSCert     tls.Certificate
	TrustedCAs  *x509.CertPool

	expired    bool
	expireSoon bool
}

// LoadCredentials reads a client certificate, its private key, and a CA
// trust bundle from the given PEM file paths.
func LoadCredentials(certPath, keyPath, trustedPath string) (*Credentials, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("read client certificate: %w", err)
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("read client key: %w", err)
	}
	trustedPEM, err := os.ReadFile(trustedPath)
	if err != nil {
		return nil, fmt.Errorf("read trust bundle: %w", err)
	}

	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse client keypair: %w", err)
	}
	cert, err := x509.ParseCertificate(tlsCert.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("parse client certificate: %w", err)
	}
	privateKey, ok := tlsCert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("client key is not RSA")
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(trustedPEM) {
		return nil, fmt.Errorf("no trusted certificates found in %s", trustedPath)
	}

	creds := &Credentials{
		Certificate: cert,
		PrivateKey:  privateKey,
		TLSCert:     tlsCert,
		TrustedCAs:  pool,
	}

	now := time.Now()
	if now.Before(cert.NotBefore) {
		return nil, fmt.Errorf("client certificate not valid yet: valid from %v", cert.NotBefore)
	}
	if now.After(cert.NotAfter) {
		creds.expired = true
	}
	if cert.NotAfter.Sub(now).Hours()/24 <= 30 {
		creds.expireSoon = true
	}

	return creds, nil
}

// Expired reports whether the loaded client certificate's validity window
// has already closed.
func (c *Credentials) Expired() bool { return c.expired }

// ExpireSoon reports whether the loaded client certificate expires within
// 30 days.
func (c *Credentials) ExpireSoon() bool { return c.expireSoon }
