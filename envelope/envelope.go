// Package envelope encrypts scene payloads for storage and transit.
//
// An envelope is a random initialization vector followed by the AES-GCM
// ciphertext (which carries the authentication tag). The IV length is fixed,
// so no length prefix is written: decoding splits at IVLength.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

// IVLength is the length in bytes of the IV at the head of every envelope.
const IVLength = 12

// ErrMalformed indicates that a payload is too short to hold an IV. It is
// always returned wrapped in a *DecryptionError.
var ErrMalformed = errors.New("malformed envelope: shorter than the IV")

// DecryptionError indicates that an envelope could not be opened: the key is
// wrong, the data was tampered with, or the payload is malformed. Retrying with
// the same key will not help.
type DecryptionError struct {
	Cause error
}

func (e *DecryptionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("decryption failed: %v", e.Cause)
	}
	return "decryption failed"
}

func (e *DecryptionError) Unwrap() error {
	return e.Cause
}

// EncryptionError indicates that sealing a payload failed.
type EncryptionError struct {
	Cause error
}

func (e *EncryptionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("encryption failed: %v", e.Cause)
	}
	return "encryption failed"
}

func (e *EncryptionError) Unwrap() error {
	return e.Cause
}

// Envelope is an encrypted payload.
type Envelope struct {
	IV         []byte
	Ciphertext []byte
}

// Bytes returns the wire form: IV followed by ciphertext.
func (e *Envelope) Bytes() []byte {
	out := make([]byte, 0, len(e.IV)+len(e.Ciphertext))
	out = append(out, e.IV...)
	return append(out, e.Ciphertext...)
}

// Parse splits a wire payload into IV and ciphertext.
func Parse(data []byte) (*Envelope, error) {
	if len(data) < IVLength {
		return nil, &DecryptionError{Cause: ErrMalformed}
	}
	return &Envelope{
		IV:         data[:IVLength:IVLength],
		Ciphertext: data[IVLength:],
	}, nil
}

// Encode seals plaintext under key with a fresh random IV.
func Encode(key, plaintext []byte) (*Envelope, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, &EncryptionError{Cause: err}
	}

	iv := make([]byte, IVLength)
	if _, err := rand.Read(iv); err != nil {
		return nil, &EncryptionError{Cause: fmt.Errorf("could not generate IV: %w", err)}
	}

	return &Envelope{
		IV:         iv,
		Ciphertext: gcm.Seal(nil, iv, plaintext, nil),
	}, nil
}

// Decode opens an envelope sealed under key.
func Decode(key []byte, env *Envelope) ([]byte, error) {
	if env == nil || len(env.IV) != IVLength {
		return nil, &DecryptionError{Cause: ErrMalformed}
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, &DecryptionError{Cause: err}
	}

	plaintext, err := gcm.Open(nil, env.IV, env.Ciphertext, nil)
	if err != nil {
		return nil, &DecryptionError{Cause: err}
	}
	return plaintext, nil
}

// Seal encrypts plaintext and returns the wire form.
func Seal(key, plaintext []byte) ([]byte, error) {
	env, err := Encode(key, plaintext)
	if err != nil {
		return nil, err
	}
	return env.Bytes(), nil
}

// Open decrypts a wire payload produced by Seal.
func Open(key, data []byte) ([]byte, error) {
	env, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return Decode(key, env)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher block: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, IVLength)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES GCM: %w", err)
	}
	return gcm, nil
}
