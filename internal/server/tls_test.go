// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/oliverandrich/identity-service/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestCert(t *testing.T) (string, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "identity.test"},
		DNSNames:     []string{"identity.test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	dir := t.TempDir()
	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
	return certFile, keyFile
}

func TestResolveTLSMode(t *testing.T) {
	tests := []struct {
		mode string
		want TLSMode
	}{
		{"", TLSModeOff},
		{"off", TLSModeOff},
		{"ACME", TLSModeACME},
		{"manual", TLSModeManual},
		{"selfsigned", TLSMode("selfsigned")},
	}
	for _, tt := range tests {
		cfg := &config.Config{TLS: config.TLSConfig{Mode: tt.mode}}
		assert.Equal(t, tt.want, resolveTLSMode(cfg), tt.mode)
	}
}

func TestSetupTLS_Off(t *testing.T) {
	res, err := SetupTLS(&config.Config{})
	require.NoError(t, err)
	assert.Equal(t, TLSModeOff, res.Mode)
	assert.Nil(t, res.TLSConfig)
}

func TestSetupTLS_UnknownMode(t *testing.T) {
	_, err := SetupTLS(&config.Config{TLS: config.TLSConfig{Mode: "selfsigned"}})
	assert.ErrorContains(t, err, "unknown TLS mode")
}

func TestSetupTLS_ManualRequiresFiles(t *testing.T) {
	_, err := SetupTLS(&config.Config{TLS: config.TLSConfig{Mode: "manual"}})
	assert.Error(t, err)

	_, err = SetupTLS(&config.Config{TLS: config.TLSConfig{
		Mode:     "manual",
		CertFile: filepath.Join(t.TempDir(), "missing.pem"),
		KeyFile:  filepath.Join(t.TempDir(), "missing.key"),
	}})
	assert.ErrorContains(t, err, "failed to load certificate")
}

func TestSetupTLS_Manual(t *testing.T) {
	certFile, keyFile := writeTestCert(t)

	res, err := SetupTLS(&config.Config{TLS: config.TLSConfig{
		Mode:     "manual",
		CertFile: certFile,
		KeyFile:  keyFile,
	}})
	require.NoError(t, err)
	assert.Equal(t, TLSModeManual, res.Mode)
	require.NotNil(t, res.TLSConfig)
	assert.Len(t, res.TLSConfig.Certificates, 1)
	assert.Nil(t, res.HTTPHandler)
}
