package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
)

var ErrNoKey = errors.New("encryption key is not configured")

// Cipher encrypts WhatsApp access tokens at rest. The key is padded or
// truncated to 32 bytes (AES-256).
type Cipher struct {
	key []byte
}

func NewCipher(key string) (*Cipher, error) {
	if key == "" {
		return nil, ErrNoKey
	}
	finalKey := make([]byte, 32)
	copy(finalKey, []byte(key))
	return &Cipher{key: finalKey}, nil
}

// Encrypt encrypts a plain text string using AES-GCM and returns a base64 encoded string.
func (c *Cipher) Encrypt(plainText string) (string, error) {
	gcm, err := c.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plainText), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt decrypts a base64 encoded string produced by Encrypt.
func (c *Cipher) Decrypt(cipherText string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(cipherText)
	if err != nil {
		return "", errors.New("ciphertext is not valid base64")
	}

	gcm, err := c.gcm()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}

func (c *Cipher) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
