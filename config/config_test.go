package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	opts, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %s", err)
	}
	if opts.ListenAddr != "127.0.0.1:5353" {
		t.Fatalf("unexpected default listen addr: %s", opts.ListenAddr)
	}
	if !opts.WantDNSSEC {
		t.Fatal("expected DNSSEC validation enabled by default")
	}
}

func TestLoadOverridesFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kresolved.yaml")
	contents := "listen_addr: 0.0.0.0:53\ncache_size: 1024\nwant_dnssec: false\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write config fixture: %s", err)
	}

	opts, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %s", err)
	}
	if opts.ListenAddr != "0.0.0.0:53" {
		t.Fatalf("expected overridden listen addr, got %s", opts.ListenAddr)
	}
	if opts.CacheSize != 1024 {
		t.Fatalf("expected overridden cache size, got %d", opts.CacheSize)
	}
	if opts.WantDNSSEC {
		t.Fatal("expected want_dnssec override to false")
	}
}

func TestTrustAnchorLoaderRejectsNonAnchorRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "root.keys")
	if err := os.WriteFile(path, []byte(". 3600 IN A 198.51.100.1\n"), 0o644); err != nil {
		t.Fatalf("failed to write trust anchor fixture: %s", err)
	}

	l := &TrustAnchorLoader{Path: path}
	if _, err := l.Load(); err == nil {
		t.Fatal("expected an error for a trust anchor file with non-DS/DNSKEY records")
	}
}

func TestTrustAnchorLoaderAcceptsDS(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "root.keys")
	contents := ". 3600 IN DS 20326 8 2 E06D44B80B8F1D39A95C0B0D7C65D08458E880409BBC683457104237C7F8EC8\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write trust anchor fixture: %s", err)
	}

	l := &TrustAnchorLoader{Path: path}
	anchors, err := l.Load()
	if err != nil {
		t.Fatalf("Load failed: %s", err)
	}
	if len(anchors) != 1 {
		t.Fatalf("expected 1 anchor record, got %d", len(anchors))
	}
}
