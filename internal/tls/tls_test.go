package tls

import (
	stdtls "crypto/tls"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestServingGeneratesPairOnFirstUse(t *testing.T) {
	dir := t.TempDir()
	conf, err := Serving(dir)
	if err != nil {
		t.Fatalf("Serving: %v", err)
	}
	if conf.MinVersion != stdtls.VersionTLS13 {
		t.Fatalf("min version = %x", conf.MinVersion)
	}
	for _, name := range []string{certName, keyName} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
	}
	cert, err := conf.GetCertificate(&stdtls.ClientHelloInfo{})
	if err != nil {
		t.Fatalf("GetCertificate: %v", err)
	}
	if cert.Leaf == nil && len(cert.Certificate) == 0 {
		t.Fatalf("empty certificate")
	}
}

func TestServingReusesExistingPair(t *testing.T) {
	dir := t.TempDir()
	if _, err := Serving(dir); err != nil {
		t.Fatalf("first Serving: %v", err)
	}
	before, err := os.ReadFile(filepath.Join(dir, certName))
	if err != nil {
		t.Fatalf("read cert: %v", err)
	}
	if _, err := Serving(dir); err != nil {
		t.Fatalf("second Serving: %v", err)
	}
	after, err := os.ReadFile(filepath.Join(dir, certName))
	if err != nil {
		t.Fatalf("reread cert: %v", err)
	}
	if string(before) != string(after) {
		t.Fatalf("certificate regenerated on second use")
	}
}

func TestServingRequiresDir(t *testing.T) {
	if _, err := Serving(""); err == nil {
		t.Fatalf("expected error for empty dir")
	}
}

func TestGenerateSelfSignedKeyMode(t *testing.T) {
	dir := t.TempDir()
	spec := CertSpec{
		CommonName: "t", Organization: "t",
		NotAfter: time.Now().Add(time.Hour),
		CertPath: filepath.Join(dir, "c.crt"),
		KeyPath:  filepath.Join(dir, "c.key"),
	}
	if err := GenerateSelfSigned(spec); err != nil {
		t.Fatalf("GenerateSelfSigned: %v", err)
	}
	fi, err := os.Stat(spec.KeyPath)
	if err != nil {
		t.Fatalf("stat key: %v", err)
	}
	if fi.Mode().Perm() != 0o600 {
		t.Fatalf("key mode = %v", fi.Mode().Perm())
	}
}

func TestConfinedReadRejectsEscape(t *testing.T) {
	dir := t.TempDir()
	if _, err := confinedRead(dir, "/etc/hostname"); err == nil {
		t.Fatalf("expected confinement error")
	}
}
