// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ca manages the process-local certificate authority used to mint
// leaf certificates for the interception proxy's MITM path.
package ca

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"time"
)

// ErrCAInconsistent is returned when exactly one of the CA cert/key pair
// exists on disk: a half-written CA is worse than none, since it could
// silently cause every tunnel to fail TLS verification.
var ErrCAInconsistent = errors.New("ca: certificate and key files are inconsistent (only one exists)")

// ErrCAMissing is returned by LoadOrInit when no CA exists in certDir and
// allowGenerate is false, i.e. tls.generate_ca is disabled in config.
var ErrCAMissing = errors.New("ca: no certificate authority found and auto-generation is disabled")

const (
	certFileName = "ca.pem"
	keyFileName  = "ca.key"

	caValidity = 10 * 365 * 24 * time.Hour
)

// Store holds the loaded CA certificate and private key, ready to sign
// leaf certificates.
type Store struct {
	Cert *x509.Certificate
	Key  *ecdsa.PrivateKey

	// TLSCert is the CA's own certificate/key pair in tls.Certificate form,
	// useful for exposing the CA over an admin endpoint if ever needed.
	TLSCert tls.Certificate

	certPath string
	keyPath  string
}

// CertPath returns the path to the PEM-encoded CA certificate.
func (s *Store) CertPath() string { return s.certPath }

// KeyPath returns the path to the PEM-encoded CA private key.
func (s *Store) KeyPath() string { return s.keyPath }

// LoadOrInit loads the CA from certDir, generating and persisting a new one
// if certDir is empty and allowGenerate is true. With force=true, any
// existing CA is deleted first and a fresh one is generated (force implies
// allowGenerate), invalidating trust in every previously minted leaf
// certificate. With allowGenerate=false, a missing CA is reported as
// ErrCAMissing instead of being silently created — this backs
// tls.generate_ca=false, where a missing CA is an operator misconfiguration
// rather than a first-run condition.
func LoadOrInit(certDir string, force bool, allowGenerate bool, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	certPath := filepath.Join(certDir, certFileName)
	keyPath := filepath.Join(certDir, keyFileName)

	if force {
		os.Remove(certPath)
		os.Remove(keyPath)
	}

	_, certErr := os.Stat(certPath)
	_, keyErr := os.Stat(keyPath)
	certExists := certErr == nil
	keyExists := keyErr == nil

	switch {
	case certExists && keyExists:
		return load(certPath, keyPath, logger)
	case certExists != keyExists:
		return nil, ErrCAInconsistent
	case !force && !allowGenerate:
		return nil, ErrCAMissing
	default:
		return generate(certDir, certPath, keyPath, logger)
	}
}

func load(certPath, keyPath string, logger *slog.Logger) (*Store, error) {
	if info, err := os.Stat(keyPath); err == nil {
		if info.Mode().Perm()&0o077 != 0 {
			logger.Warn("ca: key file permissions are wider than 0600", "path", keyPath, "mode", info.Mode().Perm())
		}
	}

	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("ca: read cert: %w", err)
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("ca: read key: %w", err)
	}

	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("ca: parse keypair: %w", err)
	}
	x509Cert, err := x509.ParseCertificate(tlsCert.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("ca: parse certificate: %w", err)
	}

	ecKey, ok := tlsCert.PrivateKey.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("ca: stored key is not ECDSA")
	}

	if time.Now().After(x509Cert.NotAfter) {
		logger.Warn("ca: loaded CA certificate has expired", "not_after", x509Cert.NotAfter)
	}

	return &Store{
		Cert:     x509Cert,
		Key:      ecKey,
		TLSCert:  tlsCert,
		certPath: certPath,
		keyPath:  keyPath,
	}, nil
}

func generate(certDir, certPath, keyPath string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(certDir, 0o755); err != nil {
		return nil, fmt.Errorf("ca: mkdir %s: %w", certDir, err)
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("ca: generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("ca: generate serial: %w", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   "local-logger interception CA",
			Organization: []string{"local-logger"},
		},
		NotBefore:             time.Now().Add(-24 * time.Hour),
		NotAfter:              time.Now().Add(caValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("ca: create certificate: %w", err)
	}
	x509Cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("ca: parse generated certificate: %w", err)
	}

	cf, err := os.OpenFile(certPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("ca: create cert file: %w", err)
	}
	if err := pem.Encode(cf, &pem.Block{Type: "CERTIFICATE", Bytes: certDER}); err != nil {
		cf.Close()
		return nil, fmt.Errorf("ca: write cert: %w", err)
	}
	cf.Close()

	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("ca: marshal key: %w", err)
	}
	kf, err := os.OpenFile(keyPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("ca: create key file: %w", err)
	}
	if err := pem.Encode(kf, &pem.Block{Type: "PRIVATE KEY", Bytes: keyDER}); err != nil {
		kf.Close()
		return nil, fmt.Errorf("ca: write key: %w", err)
	}
	kf.Close()

	logger.Info("ca: generated new certificate authority", "cert_path", certPath, "key_path", keyPath)

	return &Store{
		Cert: x509Cert,
		Key:  key,
		TLSCert: tls.Certificate{
			Certificate: [][]byte{certDER},
			PrivateKey:  key,
			Leaf:        x509Cert,
		},
		certPath: certPath,
		keyPath:  keyPath,
	}, nil
}
