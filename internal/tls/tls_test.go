package tls

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/archivist/internal/config"
)

func TestSetupTLSDisabled(t *testing.T) {
	c, err := SetupTLS(config.TLSConfig{})
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestSetupTLSAutoGenerate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "certs")
	c, err := SetupTLS(config.TLSConfig{
		Enabled:      true,
		Dir:          dir,
		AutoGenerate: true,
		AutoGen:      &config.AutoGenTLS{CommonName: "archivist.test", DNSNames: []string{"archivist.test"}},
		MinVersion:   "1.2",
	})
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, uint16(tls.VersionTLS12), c.MinVersion)
	assert.Equal(t, uint16(tls.VersionTLS13), c.MaxVersion)

	for _, f := range []string{CertFile, KeyFile, CACertFile} {
		_, err := os.Stat(filepath.Join(dir, f))
		assert.NoError(t, err, f)
	}
	info, err := os.Stat(filepath.Join(dir, KeyFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	cert, err := c.GetCertificate(&tls.ClientHelloInfo{})
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	assert.Equal(t, "archivist.test", leaf.Subject.CommonName)
	assert.Equal(t, []string{"archivist.test"}, leaf.DNSNames)
	assert.Equal(t, []string{"archivist"}, leaf.Subject.Organization)

	// a second setup reuses the existing files
	before, _ := os.ReadFile(filepath.Join(dir, CertFile))
	_, err = SetupTLS(config.TLSConfig{Enabled: true, Dir: dir, AutoGenerate: true})
	require.NoError(t, err)
	after, _ := os.ReadFile(filepath.Join(dir, CertFile))
	assert.Equal(t, before, after)
}

func TestSetupTLSExplicitFiles(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := filepath.Join(dir, "a.crt"), filepath.Join(dir, "a.key")
	require.NoError(t, GenerateSelfSignedCert(CertConfig{
		CommonName: "x", Organization: "o", NotAfter: timeIn(t, 1),
		CertPath: certPath, KeyPath: keyPath,
	}))

	c, err := SetupTLS(config.TLSConfig{Enabled: true, CertFile: certPath, KeyFile: keyPath})
	require.NoError(t, err)
	assert.Equal(t, uint16(tls.VersionTLS13), c.MinVersion)
}

func TestSetupTLSErrors(t *testing.T) {
	_, err := SetupTLS(config.TLSConfig{Enabled: true})
	assert.Error(t, err)

	_, err = SetupTLS(config.TLSConfig{Enabled: true, Dir: t.TempDir()})
	assert.Error(t, err, "missing files without auto_generate")

	_, err = SetupTLS(config.TLSConfig{Enabled: true, Dir: t.TempDir(), AutoGenerate: true, MinVersion: "1.0"})
	assert.Error(t, err)

	_, err = SetupTLS(config.TLSConfig{Enabled: true, Dir: t.TempDir(), AutoGenerate: true, MinVersion: "1.3", MaxVersion: "1.2"})
	assert.Error(t, err)
}

func timeIn(t *testing.T, days int) time.Time {
	t.Helper()
	return time.Now().AddDate(0, 0, days)
}
