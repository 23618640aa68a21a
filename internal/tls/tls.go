package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/loykin/archivist/internal/config"
)

// File names used inside TLSConfig.Dir.
const (
	CACertFile = "tls_ca.crt"
	CertFile   = "tls.crt"
	KeyFile    = "tls.key"
)

// parseTLSVersion parses TLS version string and returns the corresponding constant
func parseTLSVersion(ver string) (uint16, bool, error) {
	switch strings.ToLower(ver) {
	case "", "default":
		return tls.VersionTLS13, false, nil
	case "1.2", "tls1.2":
		return tls.VersionTLS12, true, nil
	case "1.3", "tls1.3":
		return tls.VersionTLS13, true, nil
	}
	return 0, false, fmt.Errorf("unsupported TLS version %q", ver)
}

// resolveTLSVersions defaults both bounds to TLS 1.3.
func resolveTLSVersions(cfg config.TLSConfig) (minVer uint16, maxVer uint16, err error) {
	minVer, maxVer = tls.VersionTLS13, tls.VersionTLS13
	if v, ok, err := parseTLSVersion(cfg.MinVersion); err != nil {
		return 0, 0, err
	} else if ok {
		minVer = v
	}
	if v, ok, err := parseTLSVersion(cfg.MaxVersion); err != nil {
		return 0, 0, err
	} else if ok {
		maxVer = v
	}
	if minVer > maxVer {
		return 0, 0, errors.New("TLS min_version is greater than max_version")
	}
	return minVer, maxVer, nil
}

// getCertificationFunc reloads the key pair on every handshake, so rotated
// certificates are picked up without a restart.
func getCertificationFunc(certFile, keyFile string) func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
		cert, err := tls.LoadX509KeyPair(filepath.Clean(certFile), filepath.Clean(keyFile))
		if err != nil {
			return nil, err
		}
		return &cert, nil
	}
}

// SetupTLS builds the server TLS configuration. It returns nil when TLS is disabled.
func SetupTLS(cfg config.TLSConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	minVer, maxVer, err := resolveTLSVersions(cfg)
	if err != nil {
		return nil, err
	}

	// explicit files win over a certificate directory
	if cfg.CertFile != "" && cfg.KeyFile != "" {
		return createTLSConfig(cfg.CertFile, cfg.KeyFile, minVer, maxVer)
	}

	if cfg.Dir != "" {
		keyPath := filepath.Join(cfg.Dir, KeyFile)
		certPath := filepath.Join(cfg.Dir, CertFile)
		if cfg.AutoGenerate && !certificatesExist(certPath, keyPath) {
			if err := generateCertificate(cfg); err != nil {
				return nil, fmt.Errorf("certificate generation failed: %w", err)
			}
		}
		return createTLSConfig(certPath, keyPath, minVer, maxVer)
	}

	return nil, errors.New("TLS enabled but no valid certificate configuration found")
}

func createTLSConfig(certPath, keyPath string, minVer, maxVer uint16) (*tls.Config, error) {
	// fail at startup rather than on the first handshake
	if _, err := tls.LoadX509KeyPair(certPath, keyPath); err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}
	return &tls.Config{
		GetCertificate: getCertificationFunc(certPath, keyPath),
		MinVersion:     minVer,
		MaxVersion:     maxVer,
	}, nil
}

func certificatesExist(certPath, keyPath string) bool {
	_, certErr := os.Stat(certPath)
	_, keyErr := os.Stat(keyPath)
	return certErr == nil && keyErr == nil
}

func generateCertificate(cfg config.TLSConfig) error {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}
	autoGen := cfg.AutoGen
	if autoGen == nil {
		autoGen = &config.AutoGenTLS{}
	}
	validDays := autoGen.ValidDays
	if validDays <= 0 {
		validDays = 365
	}
	return GenerateSelfSignedCert(CertConfig{
		CommonName:   getOrDefault(autoGen.CommonName, "localhost"),
		Organization: getOrDefault(autoGen.Organization, "archivist"),
		DNSNames:     getOrDefaultSlice(autoGen.DNSNames, []string{"localhost"}),
		IPAddresses:  getOrDefaultSlice(autoGen.IPAddresses, []string{"127.0.0.1"}),
		NotAfter:     time.Now().AddDate(0, 0, validDays),
		CertPath:     filepath.Join(cfg.Dir, CertFile),
		KeyPath:      filepath.Join(cfg.Dir, KeyFile),
		CACertPath:   filepath.Join(cfg.Dir, CACertFile),
	})
}

func getOrDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}

func getOrDefaultSlice(value, defaultValue []string) []string {
	if len(value) == 0 {
		return defaultValue
	}
	return value
}
