// Package crypto encrypts credential values at rest. Sealed values carry an
// enc: prefix so stored rows are self-describing and values written before
// encryption was enabled survive Open untouched.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// Prefix marks a sealed value.
const Prefix = "enc:"

var key = derive("verdandi-default-master-key")

// derive stretches a passphrase into an AES-256 key.
func derive(passphrase string) []byte {
	sum := sha256.Sum256([]byte(passphrase))
	return sum[:]
}

// SetMasterKey replaces the process key. Call it before any storage access;
// an empty passphrase is ignored so a missing config keeps the default.
func SetMasterKey(passphrase string) {
	if passphrase == "" {
		return
	}
	key = derive(passphrase)
}

func gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Seal encrypts plain and returns it with the enc: prefix.
func Seal(plain string) (string, error) {
	aead, err := gcm()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, []byte(plain), nil)
	return Prefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a sealed value. Values without the prefix pass through
// unchanged.
func Open(value string) (string, error) {
	if !strings.HasPrefix(value, Prefix) {
		return value, nil
	}
	raw, err := base64.StdEncoding.DecodeString(value[len(Prefix):])
	if err != nil {
		return "", err
	}
	aead, err := gcm()
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize() {
		return "", fmt.Errorf("sealed value too short")
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
