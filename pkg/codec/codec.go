// Package codec seals order payloads for transport over the broker.
//
// Payloads are serialised to JSON, encrypted with AES in 8-bit cipher
// feedback mode under a shared key and a random per-message IV, and
// base64-encoded. The IV travels next to the cipher text in the envelope.
// There is no authentication tag: the envelope conceals content but does
// not detect tampering.
package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// IVLength is the number of characters in an envelope IV. It equals the
// AES block size so the IV text is used directly as the IV bytes.
const IVLength = aes.BlockSize

const ivAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Errors
var (
	ErrInvalidKey = errors.New("invalid encryption key")
	ErrInvalidIV  = errors.New("invalid initialization vector")
)

// Envelope is the wire form of an encrypted payload.
type Envelope struct {
	IV            string `json:"iv"`
	EncryptedData string `json:"encrypted_data"`
}

// Marshal returns the JSON body published to the broker.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// ParseEnvelope decodes a broker message body.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to decode envelope: %w", err)
	}
	return env, nil
}

// Codec encrypts and decrypts envelopes under one key. It is safe for
// concurrent use.
type Codec struct {
	block cipher.Block
	rand  io.Reader
}

// Option configures a Codec.
type Option func(*Codec)

// WithRandom replaces the IV entropy source.
func WithRandom(r io.Reader) Option {
	return func(c *Codec) {
		c.rand = r
	}
}

// New creates a Codec for a 16, 24 or 32 byte AES key.
func New(key []byte, opts ...Option) (*Codec, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	c := &Codec{block: block, rand: rand.Reader}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Encrypt serialises v to JSON and seals it under a fresh IV.
func (c *Codec) Encrypt(v any) (Envelope, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return c.Seal(plaintext)
}

// Seal encrypts plaintext under a freshly generated IV.
func (c *Codec) Seal(plaintext []byte) (Envelope, error) {
	iv, err := c.newIV()
	if err != nil {
		return Envelope{}, err
	}
	ciphertext := make([]byte, len(plaintext))
	newCFB8(c.block, []byte(iv), false).XORKeyStream(ciphertext, plaintext)
	return Envelope{
		IV:            iv,
		EncryptedData: base64.StdEncoding.EncodeToString(ciphertext),
	}, nil
}

// Open returns the plaintext of env.
func (c *Codec) Open(env Envelope) ([]byte, error) {
	if len(env.IV) != IVLength {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidIV, len(env.IV))
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.EncryptedData)
	if err != nil {
		return nil, fmt.Errorf("failed to decode cipher text: %w", err)
	}
	plaintext := make([]byte, len(ciphertext))
	newCFB8(c.block, []byte(env.IV), true).XORKeyStream(plaintext, ciphertext)
	return plaintext, nil
}

// Decrypt opens env and unmarshals the JSON plaintext into v.
func (c *Codec) Decrypt(env Envelope, v any) error {
	plaintext, err := c.Open(env)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(plaintext, v); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return nil
}

// newIV draws IVLength characters uniformly from ivAlphabet.
func (c *Codec) newIV() (string, error) {
	// Largest multiple of the alphabet size that fits in a byte; bytes at
	// or above it are rejected to keep the draw uniform.
	const limit = 256 - 256%len(ivAlphabet)

	iv := make([]byte, 0, IVLength)
	buf := make([]byte, IVLength*2)
	for len(iv) < IVLength {
		if _, err := io.ReadFull(c.rand, buf); err != nil {
			return "", fmt.Errorf("failed to generate IV: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			iv = append(iv, ivAlphabet[int(b)%len(ivAlphabet)])
			if len(iv) == IVLength {
				break
			}
		}
	}
	return string(iv), nil
}
