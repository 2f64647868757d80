package state

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

const (
	// KeySize is the AEAD key length in bytes (AES-256).
	KeySize = 32

	nonceSize = 12
	tagSize   = 16

	// envelopeVersion marks the on-disk encrypted format. Bumped only on
	// incompatible changes to the envelope layout.
	envelopeVersion = 1
)

// Envelope is the on-disk wrapper for an encrypted state blob. The byte
// fields marshal to base64 strings in JSON. Version acts as the format
// discriminator distinguishing envelopes from plaintext blobs that happen
// to share field names.
type Envelope struct {
	IV         []byte `json:"iv"`
	Tag        []byte `json:"tag"`
	Ciphertext []byte `json:"ciphertext"`
	Version    int    `json:"version"`
}

// ParseKey decodes a 64-character hexadecimal string into a 32-byte AEAD
// key. Any other length or non-hex content is a configuration error, never
// a silent fallback to plaintext.
func ParseKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("encryption key is not valid hex: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d hex characters (%d bytes), got %d bytes", KeySize*2, KeySize, len(key))
	}
	return key, nil
}

// Encrypt seals plaintext under key with AES-256-GCM using a fresh random
// 96-bit nonce. The 128-bit authentication tag is stored separately in the
// envelope so the on-disk format is self-describing.
func Encrypt(plaintext, key []byte) (*Envelope, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, nonceSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := aead.Seal(nil, iv, plaintext, nil)
	split := len(sealed) - tagSize

	return &Envelope{
		IV:         iv,
		Tag:        sealed[split:],
		Ciphertext: sealed[:split],
		Version:    envelopeVersion,
	}, nil
}

// Decrypt opens an envelope with key. Tampering with the ciphertext or tag,
// or using a different key, fails with ErrAuthentication; it never yields a
// different-but-parseable plaintext.
func Decrypt(env *Envelope, key []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(env.IV) != nonceSize {
		return nil, fmt.Errorf("%w: bad nonce length %d", ErrAuthentication, len(env.IV))
	}

	sealed := make([]byte, 0, len(env.Ciphertext)+len(env.Tag))
	sealed = append(sealed, env.Ciphertext...)
	sealed = append(sealed, env.Tag...)

	plaintext, err := aead.Open(nil, env.IV, sealed, nil)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GCM: %w", err)
	}
	return aead, nil
}

// detectEnvelope parses data and returns the envelope if it structurally
// matches the encrypted format: all three byte fields present plus the
// version discriminator. Returns nil for plaintext blobs.
func detectEnvelope(data []byte) *Envelope {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil
	}
	if len(env.IV) == 0 || len(env.Tag) == 0 || len(env.Ciphertext) == 0 || env.Version < 1 {
		return nil
	}
	return &env
}

// IsEncrypted reports whether data is an encrypted envelope. Uses the same
// detection as Load, without requiring a key.
func IsEncrypted(data []byte) bool {
	return detectEnvelope(data) != nil
}
