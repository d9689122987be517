package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/accountctx/internal/common"
)

// EncryptionConfig describes the field cipher. The server only ever uses
// DefaultEncryptionConfig; the struct exists so the parameters are checked
// at one place instead of being scattered as literals.
type EncryptionConfig struct {
	Algorithm   string
	KeyLength   int
	NonceLength int
	TagLength   int
}

// DefaultEncryptionConfig is AES-256-GCM with a 96-bit nonce and 128-bit tag.
var DefaultEncryptionConfig = EncryptionConfig{
	Algorithm:   "AES-256-GCM",
	KeyLength:   32,
	NonceLength: 12,
	TagLength:   16,
}

// Codec encrypts opaque payloads with a caller-supplied key. A fresh random
// nonce is generated for every call and prepended to the ciphertext.
type Codec struct {
	cfg EncryptionConfig
}

func NewCodec(cfg EncryptionConfig) *Codec {
	return &Codec{cfg: cfg}
}

// Config returns the cipher parameters the codec was built with.
func (c *Codec) Config() EncryptionConfig {
	return c.cfg
}

func (c *Codec) aead(key []byte) (cipher.AEAD, error) {
	if len(key) != c.cfg.KeyLength {
		return nil, fmt.Errorf("%w: key must be %d bytes", common.ErrKeyUnavailable, c.cfg.KeyLength)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, c.cfg.NonceLength)
}

// Encrypt seals plaintext and returns nonce||ciphertext||tag.
func (c *Codec) Encrypt(plaintext, key []byte) ([]byte, error) {
	aesgcm, err := c.aead(key)
	if err != nil {
		return nil, err
	}

	nonce := common.GenerateRandByteArray(c.cfg.NonceLength)

	out := make([]byte, 0, len(nonce)+len(plaintext)+c.cfg.TagLength)
	out = append(out, nonce...)
	return aesgcm.Seal(out, nonce, plaintext, nil), nil
}

// Decrypt opens data produced by Encrypt. Any failure to authenticate,
// including a wrong key or truncated input, is ErrDecryptionFailed.
func (c *Codec) Decrypt(ciphertext, key []byte) ([]byte, error) {
	aesgcm, err := c.aead(key)
	if err != nil {
		return nil, common.ErrDecryptionFailed
	}

	if len(ciphertext) < c.cfg.NonceLength+c.cfg.TagLength {
		return nil, common.ErrDecryptionFailed
	}

	nonce, sealed := ciphertext[:c.cfg.NonceLength], ciphertext[c.cfg.NonceLength:]
	plaintext, err := aesgcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, common.ErrDecryptionFailed
	}
	return plaintext, nil
}

// EncryptJSON serializes v to JSON and seals it.
func (c *Codec) EncryptJSON(v any, key []byte) ([]byte, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(plaintext)
	return c.Encrypt(plaintext, key)
}

// DecryptJSON opens ciphertext and unmarshals the JSON payload into v.
func (c *Codec) DecryptJSON(ciphertext, key []byte, v any) error {
	plaintext, err := c.Decrypt(ciphertext, key)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(plaintext)
	return json.Unmarshal(plaintext, v)
}
