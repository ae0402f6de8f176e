// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nbd-wtf/go-nostr/nip19"
)

func TestLoadOrGenerateKeyCreatesFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "key")

	identity, err := LoadOrGenerateKey(path)
	if err != nil {
		t.Fatalf("LoadOrGenerateKey: %v", err)
	}
	if !isHexKey(identity.SecretKey) || !isHexKey(identity.PublicKey) {
		t.Fatalf("identity not hex: %+v", identity)
	}

	public, err := os.ReadFile(path + ".pub")
	if err != nil {
		t.Fatalf("reading .pub: %v", err)
	}
	if string(public) != identity.PublicKey {
		t.Errorf(".pub = %q, want %q", public, identity.PublicKey)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat key: %v", err)
	}
	if mode := info.Mode().Perm(); mode != 0o600 {
		t.Errorf("key mode = %o, want 600", mode)
	}

	reloaded, err := LoadOrGenerateKey(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded != identity {
		t.Errorf("reloaded %+v, want %+v", reloaded, identity)
	}
}

func TestLoadKeyAcceptsNsec(t *testing.T) {
	dir := t.TempDir()
	generated, err := LoadOrGenerateKey(filepath.Join(dir, "hex"))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	nsec, err := nip19.EncodePrivateKey(generated.SecretKey)
	if err != nil {
		t.Fatalf("EncodePrivateKey: %v", err)
	}
	path := filepath.Join(dir, "bech32")
	if err := os.WriteFile(path, []byte(nsec+"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	identity, err := LoadOrGenerateKey(path)
	if err != nil {
		t.Fatalf("LoadOrGenerateKey(nsec): %v", err)
	}
	if identity != generated {
		t.Errorf("nsec identity %+v, want %+v", identity, generated)
	}
}

func TestLoadKeyRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key")
	os.WriteFile(path, []byte("not a key"), 0o600)

	if _, err := LoadOrGenerateKey(path); err == nil {
		t.Fatal("LoadOrGenerateKey accepted a malformed key")
	}
}

func TestParsePublicKey(t *testing.T) {
	hexKey := strings.Repeat("ab", 32)
	if got, err := ParsePublicKey(strings.ToUpper(hexKey)); err != nil || got != hexKey {
		t.Errorf("ParsePublicKey(hex) = (%q, %v), want %q", got, err, hexKey)
	}

	npub, err := nip19.EncodePublicKey(hexKey)
	if err != nil {
		t.Fatalf("EncodePublicKey: %v", err)
	}
	if got, err := ParsePublicKey(npub); err != nil || got != hexKey {
		t.Errorf("ParsePublicKey(npub) = (%q, %v), want %q", got, err, hexKey)
	}

	if _, err := ParsePublicKey("abc"); err == nil {
		t.Error("ParsePublicKey accepted a short key")
	}
}
