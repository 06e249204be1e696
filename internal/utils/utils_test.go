package utils

import (
	"context"
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"

	"geozone-api/internal/config"
)

func TestEnsureSelfSignedCert(t *testing.T) {
	dir := t.TempDir()
	cert := filepath.Join(dir, "certs", "server.crt")
	key := filepath.Join(dir, "certs", "server.key")
	if err := EnsureSelfSignedCert(cert, key, "geozone-api.local"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := tls.LoadX509KeyPair(cert, key); err != nil {
		t.Fatalf("generated pair does not load: %v", err)
	}
	before, _ := os.ReadFile(cert)
	if err := EnsureSelfSignedCert(cert, key, "geozone-api.local"); err != nil {
		t.Fatalf("second call: %v", err)
	}
	after, _ := os.ReadFile(cert)
	if string(before) != string(after) {
		t.Errorf("existing certificate was overwritten")
	}
}

func TestOpenWithoutConfiguredBackends(t *testing.T) {
	db, err := OpenPostgres(context.Background(), config.Config{})
	if db != nil || err != nil {
		t.Errorf("expected no database without PG_HOST, got %v %v", db, err)
	}
	if rc := OpenRedis(context.Background(), config.Config{}); rc != nil {
		t.Errorf("expected nil redis client when disabled")
	}
}
