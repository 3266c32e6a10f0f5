package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// sealedPrefix marks a configuration value encrypted with [Seal].
const sealedPrefix = "sealed:"

// scrypt parameters for the machine-bound key.
const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
)

// ErrEmptyMachineID is returned when no machine identifier is available
// to derive the sealing key from.
var ErrEmptyMachineID = errors.New("machine id is empty")

// IsSealed reports whether value was produced by [Seal].
func IsSealed(value string) bool {
	return strings.HasPrefix(value, sealedPrefix)
}

// Seal encrypts plain with AES-256-GCM under a key derived by scrypt
// from machineID and salt. The result only decrypts on the same
// machine, so a copied config file does not leak the broker password.
func Seal(plain, machineID, salt string) (string, error) {
	aead, err := newAEAD(machineID, salt)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plain), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Unseal reverses [Seal]. Values without the sealed prefix are returned
// unchanged.
func Unseal(value, machineID, salt string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("decode sealed value: %w", err)
	}
	aead, err := newAEAD(machineID, salt)
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize() {
		return "", errors.New("sealed value too short")
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("open sealed value (was it sealed on another machine?): %w", err)
	}
	return string(plain), nil
}

// UnsealPassword replaces a sealed mqtt_password with its plain text.
func (c *Config) UnsealPassword(machineID, salt string) error {
	plain, err := Unseal(c.MQTT.Password, machineID, salt)
	if err != nil {
		return fmt.Errorf("mqtt_password: %w", err)
	}
	c.MQTT.Password = plain
	return nil
}

func newAEAD(machineID, salt string) (cipher.AEAD, error) {
	machineID = strings.TrimSpace(machineID)
	if machineID == "" {
		return nil, ErrEmptyMachineID
	}
	key, err := scrypt.Key([]byte(machineID), []byte(salt), scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
