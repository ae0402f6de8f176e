// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

// Identity is a signing key pair in hex.
type Identity struct {
	SecretKey string
	PublicKey string
}

// LoadOrGenerateKey reads the secret key at path (hex or nsec bech32).
// When the file does not exist a new key is generated and written
// there with mode 0600, and the public key is written beside it as
// path + ".pub".
func LoadOrGenerateKey(path string) (Identity, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		secretKey, err := parseSecretKey(strings.TrimSpace(string(data)))
		if err != nil {
			return Identity{}, fmt.Errorf("key file %s: %w", path, err)
		}
		publicKey, err := nostr.GetPublicKey(secretKey)
		if err != nil {
			return Identity{}, fmt.Errorf("key file %s: %w", path, err)
		}
		return Identity{SecretKey: secretKey, PublicKey: publicKey}, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return Identity{}, fmt.Errorf("reading key file: %w", err)
	}

	secretKey := nostr.GeneratePrivateKey()
	publicKey, err := nostr.GetPublicKey(secretKey)
	if err != nil {
		return Identity{}, fmt.Errorf("deriving public key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return Identity{}, fmt.Errorf("creating key directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(secretKey), 0o600); err != nil {
		return Identity{}, fmt.Errorf("writing key file: %w", err)
	}
	if err := os.WriteFile(path+".pub", []byte(publicKey), 0o644); err != nil {
		return Identity{}, fmt.Errorf("writing public key file: %w", err)
	}
	return Identity{SecretKey: secretKey, PublicKey: publicKey}, nil
}

// ParsePublicKey accepts a hex or npub public key and returns it in
// hex.
func ParsePublicKey(value string) (string, error) {
	value = strings.TrimSpace(value)
	if strings.HasPrefix(value, "npub1") {
		prefix, decoded, err := nip19.Decode(value)
		if err != nil {
			return "", fmt.Errorf("decoding npub: %w", err)
		}
		publicKey, ok := decoded.(string)
		if prefix != "npub" || !ok {
			return "", fmt.Errorf("not a public key: %s", prefix)
		}
		return publicKey, nil
	}
	if !isHexKey(value) {
		return "", fmt.Errorf("public key must be 64 hex characters or npub")
	}
	return strings.ToLower(value), nil
}

func parseSecretKey(value string) (string, error) {
	if strings.HasPrefix(value, "nsec1") {
		prefix, decoded, err := nip19.Decode(value)
		if err != nil {
			return "", fmt.Errorf("decoding nsec: %w", err)
		}
		secretKey, ok := decoded.(string)
		if prefix != "nsec" || !ok {
			return "", fmt.Errorf("not a secret key: %s", prefix)
		}
		return secretKey, nil
	}
	if !isHexKey(value) {
		return "", fmt.Errorf("secret key must be 64 hex characters or nsec")
	}
	return strings.ToLower(value), nil
}

// isHexKey reports whether value is a 32-byte key in hex.
func isHexKey(value string) bool {
	if len(value) != 64 {
		return false
	}
	_, err := hex.DecodeString(value)
	return err == nil
}
