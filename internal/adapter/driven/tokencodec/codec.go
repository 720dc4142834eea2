// Package tokencodec wraps credential payloads for storage using AES-256-CBC,
// with an explicit, observable base64 fallback for deployments that run
// without encryption.
package tokencodec

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/ericfisherdev/pagescheduler/internal/domain/port/driven"
)

// Mode names the wrapping a Codec applies.
type Mode string

const (
	ModeAES256CBC Mode = "aes-256-cbc"
	ModeBase64    Mode = "base64"
)

// KeySize is the required secret key length in bytes.
const KeySize = 32

var (
	ErrInvalidKey         = fmt.Errorf("encryption key must be exactly %d bytes", KeySize)
	ErrCiphertextTooShort = errors.New("ciphertext too short")
	ErrInvalidPadding     = errors.New("invalid padding")
)

// Compile-time interface satisfaction check.
var _ driven.TokenCodec = (*Codec)(nil)

// Codec encrypts and decrypts token payloads. The zero value is not usable;
// construct with New or NewFallback.
type Codec struct {
	block cipher.Block // nil in fallback mode.
	mode  Mode
	rand  io.Reader
}

// New creates an AES-256-CBC codec. key must be exactly 32 bytes.
func New(key []byte) (*Codec, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}

	return &Codec{block: block, mode: ModeAES256CBC, rand: rand.Reader}, nil
}

// NewFallback creates a codec that only base64-encodes. Payloads are NOT
// confidential in this mode.
func NewFallback() *Codec {
	return &Codec{mode: ModeBase64}
}

// ParseMode maps a configuration value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeAES256CBC:
		return ModeAES256CBC, nil
	case ModeBase64:
		return ModeBase64, nil
	default:
		return "", fmt.Errorf("unknown cipher mode %q: must be %q or %q", s, ModeAES256CBC, ModeBase64)
	}
}

// Mode returns the wrapping this codec applies.
func (c *Codec) Mode() Mode {
	return c.mode
}

// Confidential reports whether payloads are encrypted.
func (c *Codec) Confidential() bool {
	return c.block != nil
}

// Encrypt returns base64(iv || ciphertext) with a fresh random IV per call,
// or base64(plaintext) in fallback mode.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	if c.block == nil {
		return base64.StdEncoding.EncodeToString([]byte(plaintext)), nil
	}

	blockSize := c.block.BlockSize()
	padded := pkcs7Pad([]byte(plaintext), blockSize)

	out := make([]byte, blockSize+len(padded))
	iv := out[:blockSize]
	if _, err := io.ReadFull(c.rand, iv); err != nil {
		return "", fmt.Errorf("rand iv: %w", err)
	}

	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(out[blockSize:], padded)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. The IV is the leading block of the decoded data.
func (c *Codec) Decrypt(opaque string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(opaque)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}

	if c.block == nil {
		return string(data), nil
	}

	blockSize := c.block.BlockSize()
	if len(data) < 2*blockSize {
		return "", ErrCiphertextTooShort
	}

	iv, ciphertext := data[:blockSize], data[blockSize:]
	if len(ciphertext)%blockSize != 0 {
		return "", errors.New("ciphertext is not a multiple of the block size")
	}

	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(plain, ciphertext)

	unpadded, err := pkcs7Unpad(plain, blockSize)
	if err != nil {
		return "", err
	}
	return string(unpadded), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrInvalidPadding
	}

	n := int(data[len(data)-1])
	if n == 0 || n > blockSize {
		return nil, ErrInvalidPadding
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, ErrInvalidPadding
		}
	}
	return data[:len(data)-n], nil
}
