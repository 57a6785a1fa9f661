package envelope

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// KeyLength is the size of keys created by GenerateKey.
const KeyLength = 16

// KeyError indicates that a room key string is not a usable AES key.
type KeyError struct {
	Cause error
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("invalid room key: %v", e.Cause)
}

func (e *KeyError) Unwrap() error {
	return e.Cause
}

// ParseKey decodes a room key. Room keys are unpadded base64url encodings of
// 16, 24 or 32 byte AES keys.
func ParseKey(roomKey string) ([]byte, error) {
	key, err := base64.RawURLEncoding.DecodeString(roomKey)
	if err != nil {
		return nil, &KeyError{Cause: err}
	}
	switch len(key) {
	case 16, 24, 32:
		return key, nil
	default:
		return nil, &KeyError{Cause: fmt.Errorf("decoded key is %d bytes, want 16, 24 or 32", len(key))}
	}
}

// GenerateKey returns a new random room key in its string form.
func GenerateKey() (string, error) {
	key := make([]byte, KeyLength)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("could not generate room key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(key), nil
}
