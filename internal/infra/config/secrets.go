package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"tutor-dispatch/internal/domain"
)

// SecretPrefix marks an encrypted config value, e.g. api_key: "enc:...".
const SecretPrefix = "enc:"

// Argon2id cost for turning TUTOR_CONFIG_KEY into an AES-256 key.
const (
	kdfTime    = 1
	kdfMemory  = 64 * 1024
	kdfThreads = 4
	kdfKeyLen  = 32
	saltLen    = 16
)

var b64 = base64.RawURLEncoding

// decryptSecrets replaces every "enc:" provider key with its plaintext.
// An encrypted key without a passphrase is an error rather than being sent
// to the provider as is.
func decryptSecrets(cfg *Config, passphrase string) error {
	for i := range cfg.LLM.Providers {
		p := &cfg.LLM.Providers[i]
		sealed, ok := strings.CutPrefix(p.APIKey, SecretPrefix)
		if !ok {
			continue
		}
		if passphrase == "" {
			return fmt.Errorf("provider %s api_key: %w: TUTOR_CONFIG_KEY is not set", p.Name, domain.ErrDecryption)
		}
		plain, err := DecryptValue(sealed, passphrase)
		if err != nil {
			return fmt.Errorf("provider %s api_key: %w", p.Name, err)
		}
		p.APIKey = plain
	}
	return nil
}

// EncryptValue seals plaintext with AES-256-GCM under a key derived from
// passphrase. The result is "salt:nonce+ciphertext" in unpadded base64url,
// without SecretPrefix.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("%w: salt: %v", domain.ErrEncryption, err)
	}
	aead, err := aeadFor(passphrase, salt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrEncryption, err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("%w: nonce: %v", domain.ErrEncryption, err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return b64.EncodeToString(salt) + ":" + b64.EncodeToString(sealed), nil
}

// DecryptValue reverses EncryptValue. Every failure wraps domain.ErrDecryption.
func DecryptValue(encrypted, passphrase string) (string, error) {
	fail := func(what string, err error) (string, error) {
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", domain.ErrDecryption, what, err)
		}
		return "", fmt.Errorf("%w: %s", domain.ErrDecryption, what)
	}

	saltPart, sealedPart, ok := strings.Cut(encrypted, ":")
	if !ok {
		return fail("want salt:ciphertext", nil)
	}
	salt, err := b64.DecodeString(saltPart)
	if err != nil {
		return fail("salt", err)
	}
	sealed, err := b64.DecodeString(sealedPart)
	if err != nil {
		return fail("ciphertext", err)
	}
	aead, err := aeadFor(passphrase, salt)
	if err != nil {
		return fail("cipher", err)
	}
	if len(sealed) < aead.NonceSize() {
		return fail("ciphertext too short", nil)
	}
	nonce, body := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, body, nil)
	if err != nil {
		return fail("wrong passphrase or corrupted value", nil)
	}
	return string(plain), nil
}

func aeadFor(passphrase string, salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey([]byte(passphrase), salt, kdfTime, kdfMemory, kdfThreads, kdfKeyLen)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
