package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/crypto/pkcs12"
)

// tlsMinVersion is the minimum TLS version for secure connections.
const tlsMinVersion = tls.VersionTLS12

// Keystore is the decoded content of a PKCS#12 file.
type Keystore struct {
	Certificate tls.Certificate

	// Roots contains the system roots plus every certificate in the keystore,
	// so a self-signed broker certificate verifies.
	Roots *x509.CertPool
}

// KeystorePath returns the per-domain keystore location for host.
func KeystorePath(dir, host string) string {
	return filepath.Join(dir, host+".p12")
}

// LoadKeystore reads and decodes a PKCS#12 keystore.
//
// Returns ErrKeystoreMissing if the file does not exist, ErrKeystorePassword
// if the password is wrong, and ErrKeystoreInvalid for anything else.
func LoadKeystore(path, password string) (*Keystore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrKeystoreMissing, path)
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrKeystoreInvalid, path, err)
	}

	blocks, err := pkcs12.ToPEM(data, password)
	if err != nil {
		if errors.Is(err, pkcs12.ErrIncorrectPassword) {
			return nil, fmt.Errorf("%w: %s", ErrKeystorePassword, path)
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrKeystoreInvalid, path, err)
	}

	var (
		pemData []byte
		certs   []*x509.Certificate
	)
	for _, b := range blocks {
		pemData = append(pemData, pem.EncodeToMemory(b)...)
		if b.Type == "CERTIFICATE" {
			cert, err := x509.ParseCertificate(b.Bytes)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrKeystoreInvalid, path, err)
			}
			certs = append(certs, cert)
		}
	}

	pair, err := tls.X509KeyPair(pemData, pemData)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrKeystoreInvalid, path, err)
	}

	roots, err := x509.SystemCertPool()
	if err != nil || roots == nil {
		roots = x509.NewCertPool()
	}
	for _, c := range certs {
		roots.AddCert(c)
	}

	return &Keystore{Certificate: pair, Roots: roots}, nil
}

// ServerTLSConfig returns the listener configuration for an embedded broker.
func (k *Keystore) ServerTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:   tlsMinVersion,
		Certificates: []tls.Certificate{k.Certificate},
	}
}

// ClientTLSConfig returns the configuration the server's own client uses.
//
// For an embedded broker the client dials localhost while the certificate
// names the public host, so hostname verification is turned off. The chain
// is still verified against the keystore and system roots.
func (k *Keystore) ClientTLSConfig(serverName string, embedded bool) *tls.Config {
	cfg := &tls.Config{
		MinVersion: tlsMinVersion,
		RootCAs:    k.Roots,
		ServerName: serverName,
	}
	if embedded {
		cfg.InsecureSkipVerify = true //nolint:gosec // chain verified below, hostname intentionally not
		cfg.VerifyPeerCertificate = verifyChainOnly(k.Roots)
	}
	return cfg
}

// verifyChainOnly checks the presented chain against roots without
// matching the hostname.
func verifyChainOnly(roots *x509.CertPool) func([][]byte, [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return errors.New("mqtt: broker presented no certificate")
		}

		certs := make([]*x509.Certificate, 0, len(rawCerts))
		for _, raw := range rawCerts {
			c, err := x509.ParseCertificate(raw)
			if err != nil {
				return fmt.Errorf("mqtt: parsing broker certificate: %w", err)
			}
			certs = append(certs, c)
		}

		intermediates := x509.NewCertPool()
		for _, c := range certs[1:] {
			intermediates.AddCert(c)
		}

		_, err := certs[0].Verify(x509.VerifyOptions{
			Roots:         roots,
			Intermediates: intermediates,
		})
		if err != nil {
			return fmt.Errorf("mqtt: verifying broker certificate: %w", err)
		}
		return nil
	}
}
