// Package wallet provides a local ed25519 signing keystore implementing
// domain.WalletProvider. Private keys are stored one file per agent,
// encrypted with AES-256-GCM under an Argon2id-derived key.
package wallet

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"

	"foresight/internal/domain"
)

// Keystore is a file-backed ed25519 key registry. Signing and verification
// are pure CPU work but still satisfy the provider contract that callers
// treat them as potentially blocking.
type Keystore struct {
	dir        string
	passphrase string
	logger     *slog.Logger

	mu   sync.RWMutex
	keys map[string]ed25519.PrivateKey

	// BalanceFunc supplies the externally visible balance for an agent.
	// Wired after construction to the agent manager's snapshot accessor;
	// nil reports zero.
	BalanceFunc func(agentID string) (domain.Amount, bool)
}

// NewKeystore opens (or creates) the key directory and loads any existing
// key files.
func NewKeystore(dir, passphrase string, logger *slog.Logger) (*Keystore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("%w: create key dir: %v", domain.ErrKeystore, err)
	}

	ks := &Keystore{
		dir:        dir,
		passphrase: passphrase,
		logger:     logger,
		keys:       make(map[string]ed25519.PrivateKey),
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: read key dir: %v", domain.ErrKeystore, err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".key") {
			continue
		}
		agentID := strings.TrimSuffix(e.Name(), ".key")
		key, err := ks.loadKey(agentID)
		if err != nil {
			logger.Warn("skipping unreadable key file", "file", e.Name(), "error", err)
			continue
		}
		ks.keys[agentID] = key
	}

	logger.Info("keystore opened", "dir", dir, "keys", len(ks.keys))
	return ks, nil
}

// EnsureKey generates and persists a key pair for the agent if one does
// not already exist.
func (ks *Keystore) EnsureKey(agentID string) error {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	if _, ok := ks.keys[agentID]; ok {
		return nil
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("%w: generate key: %v", domain.ErrKeystore, err)
	}
	if err := ks.saveKey(agentID, priv); err != nil {
		return err
	}
	ks.keys[agentID] = priv
	return nil
}

// Sign implements domain.WalletProvider.
func (ks *Keystore) Sign(_ context.Context, agentID string, message []byte) (string, error) {
	ks.mu.RLock()
	key, ok := ks.keys[agentID]
	ks.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: no key for agent %s", domain.ErrKeystore, agentID)
	}
	return hex.EncodeToString(ed25519.Sign(key, message)), nil
}

// Verify implements domain.WalletProvider. It checks the signature against
// the public key registered for the claimed agent identity.
func (ks *Keystore) Verify(_ context.Context, agentID string, message []byte, signature string) (bool, error) {
	ks.mu.RLock()
	key, ok := ks.keys[agentID]
	ks.mu.RUnlock()
	if !ok {
		return false, fmt.Errorf("%w: no key for agent %s", domain.ErrKeystore, agentID)
	}

	sig, err := hex.DecodeString(signature)
	if err != nil {
		return false, nil
	}
	pub := key.Public().(ed25519.PublicKey)
	return ed25519.Verify(pub, message, sig), nil
}

// Balance implements domain.WalletProvider.
func (ks *Keystore) Balance(_ context.Context, agentID, _ string) (domain.Amount, error) {
	if ks.BalanceFunc == nil {
		return 0, nil
	}
	amount, ok := ks.BalanceFunc(agentID)
	if !ok {
		return 0, fmt.Errorf("%w: %s", domain.ErrAgentNotFound, agentID)
	}
	return amount, nil
}

// PublicKey returns the hex-encoded public key for an agent.
func (ks *Keystore) PublicKey(agentID string) (string, error) {
	ks.mu.RLock()
	key, ok := ks.keys[agentID]
	ks.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: no key for agent %s", domain.ErrKeystore, agentID)
	}
	return hex.EncodeToString(key.Public().(ed25519.PublicKey)), nil
}

func (ks *Keystore) keyPath(agentID string) string {
	return filepath.Join(ks.dir, agentID+".key")
}

func (ks *Keystore) saveKey(agentID string, key ed25519.PrivateKey) error {
	sealed, err := seal(hex.EncodeToString(key.Seed()), ks.passphrase)
	if err != nil {
		return fmt.Errorf("%w: seal key: %v", domain.ErrKeystore, err)
	}
	if err := os.WriteFile(ks.keyPath(agentID), []byte(sealed), 0600); err != nil {
		return fmt.Errorf("%w: write key file: %v", domain.ErrKeystore, err)
	}
	return nil
}

func (ks *Keystore) loadKey(agentID string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(ks.keyPath(agentID))
	if err != nil {
		return nil, fmt.Errorf("%w: read key file: %v", domain.ErrKeystore, err)
	}
	seedHex, err := open(string(data), ks.passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: unseal key: %v", domain.ErrKeystore, err)
	}
	seed, err := hex.DecodeString(seedHex)
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: malformed key seed", domain.ErrKeystore)
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// seal encrypts plaintext with AES-256-GCM under an Argon2id-derived key.
// Format: hex(salt) + ":" + hex(nonce + ciphertext).
func seal(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

func open(sealed, passphrase string) (string, error) {
	parts := strings.SplitN(sealed, ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid sealed format")
	}
	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	data, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create gcm: %w", err)
	}
	if len(data) < gcm.NonceSize() {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}
