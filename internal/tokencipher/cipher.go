// Package tokencipher seals OAuth token bundles for storage at rest.
//
// Records are compact JWE objects using direct key agreement and AES-256-GCM,
// so every record carries its own nonce and authentication tag and can be
// opened with the key alone.
package tokencipher

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/go-jose/go-jose/v4"

	"github.com/JuhanV/Sleep-Game/internal/domain/oauth"
)

// KeySize is the required key length in bytes.
const KeySize = 32

// Cipher encrypts and decrypts token bundles. It is immutable and safe for
// concurrent use.
type Cipher struct {
	key []byte
}

// New builds a Cipher from a 32-byte key.
func New(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("tokencipher: key must be %d bytes, got %d", KeySize, len(key))
	}
	return &Cipher{key: append([]byte(nil), key...)}, nil
}

// Encrypt seals the bundle into an opaque, self-contained record. Decrypt of
// the record equals bundle.Normalize().
func (c *Cipher) Encrypt(bundle oauth.TokenBundle) (string, error) {
	if bundle == nil {
		bundle = oauth.TokenBundle{}
	}
	plaintext, err := json.Marshal(bundle)
	if err != nil {
		return "", fmt.Errorf("tokencipher: encode bundle: %w", err)
	}
	enc, err := jose.NewEncrypter(jose.A256GCM, jose.Recipient{Algorithm: jose.DIRECT, Key: c.key}, nil)
	if err != nil {
		return "", fmt.Errorf("tokencipher: build encrypter: %w", err)
	}
	obj, err := enc.Encrypt(plaintext)
	if err != nil {
		return "", fmt.Errorf("tokencipher: encrypt: %w", err)
	}
	record, err := obj.CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("tokencipher: serialize: %w", err)
	}
	return record, nil
}

// Decrypt opens a record produced by Encrypt. Every failure, whatever the
// cause, is reported as oauth.ErrDecryptionFailure.
func (c *Cipher) Decrypt(record string) (bundle oauth.TokenBundle, err error) {
	defer func() {
		if r := recover(); r != nil {
			bundle, err = nil, oauth.ErrDecryptionFailure
		}
	}()

	obj, err := jose.ParseEncrypted(record,
		[]jose.KeyAlgorithm{jose.DIRECT},
		[]jose.ContentEncryption{jose.A256GCM},
	)
	if err != nil {
		return nil, oauth.ErrDecryptionFailure
	}
	plaintext, err := obj.Decrypt(c.key)
	if err != nil {
		return nil, oauth.ErrDecryptionFailure
	}
	bundle, err = oauth.DecodeTokenBundle(plaintext)
	if err != nil {
		return nil, oauth.ErrDecryptionFailure
	}
	return bundle, nil
}

// GenerateKey returns a fresh random key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("tokencipher: generate key: %w", err)
	}
	return key, nil
}

// EncodeKey renders a key in the form expected by TOKEN_CIPHER_KEY.
func EncodeKey(key []byte) string {
	return base64.URLEncoding.EncodeToString(key)
}
