// Package tls prepares the serving configuration for the admin endpoint.
// Certificates live in a directory on the container's state volume; when the
// directory holds no key pair one is self-signed on first use, which fits a
// confidential-computing deployment where the enclave mints its own identity.
package tls

import (
	"crypto/tls"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	certName = "admin.crt"
	keyName  = "admin.key"

	selfSignedValidity = 5 * 365 * 24 * time.Hour
)

// Serving returns a TLS 1.3 server configuration backed by dir. The key pair
// is generated if absent. Certificates are re-read on every handshake so a
// rotated pair takes effect without a restart.
func Serving(dir string) (*tls.Config, error) {
	if dir == "" {
		return nil, errors.New("certificate directory not set")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	certPath := filepath.Join(dir, certName)
	keyPath := filepath.Join(dir, keyName)
	if !pairExists(certPath, keyPath) {
		err := GenerateSelfSigned(CertSpec{
			CommonName:   "warden-admin",
			Organization: "warden",
			DNSNames:     []string{"localhost"},
			IPAddresses:  []string{"127.0.0.1"},
			NotAfter:     time.Now().Add(selfSignedValidity),
			CertPath:     certPath,
			KeyPath:      keyPath,
		})
		if err != nil {
			return nil, err
		}
	}
	return &tls.Config{
		GetCertificate: reloadingCert(certPath, keyPath),
		MinVersion:     tls.VersionTLS13,
	}, nil
}

// reloadingCert loads the key pair from disk per handshake. Reads are
// confined to the certificate directory.
func reloadingCert(certPath, keyPath string) func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	dir := filepath.Dir(certPath)
	return func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
		certPEM, err := confinedRead(dir, certPath)
		if err != nil {
			return nil, err
		}
		keyPEM, err := confinedRead(dir, keyPath)
		if err != nil {
			return nil, err
		}
		cert, err := tls.X509KeyPair(certPEM, keyPEM)
		if err != nil {
			return nil, err
		}
		return &cert, nil
	}
}

func confinedRead(baseDir, p string) ([]byte, error) {
	clean := filepath.Clean(p)
	absBase, _ := filepath.Abs(baseDir)
	absFile, _ := filepath.Abs(clean)
	if absFile != absBase && !strings.HasPrefix(absFile, absBase+string(filepath.Separator)) {
		return nil, errors.New("file path outside certificate directory")
	}
	return os.ReadFile(clean)
}

func pairExists(certPath, keyPath string) bool {
	_, certErr := os.Stat(certPath)
	_, keyErr := os.Stat(keyPath)
	return certErr == nil && keyErr == nil
}
