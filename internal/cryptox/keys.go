package cryptox

import (
	"crypto/sha256"

	"github.com/dmitrijs2005/accountctx/internal/common"
	"golang.org/x/crypto/pbkdf2"
)

// DefaultKDFIterations is the PBKDF2 round count used when none is configured.
const DefaultKDFIterations = 10000

// Scope names whose key is being derived. AccountID may be empty for
// user-level keys (e.g. the working set cache).
type Scope struct {
	UserID    string
	AccountID string
}

// Salt is the KDF salt for the scope: "{userID}:{accountID}" or "{userID}".
func (s Scope) Salt() []byte {
	if s.AccountID == "" {
		return []byte(s.UserID)
	}
	return []byte(s.UserID + ":" + s.AccountID)
}

// KeyService derives per-user and per-account keys from the process master
// key. Keys are recomputed on every call and never stored. The master key is
// set once at startup and only read afterwards, so a KeyService is safe for
// concurrent use.
type KeyService struct {
	masterKey  []byte
	iterations int
	keyLength  int
}

// NewKeyService copies masterKey. An empty master key yields a service whose
// DeriveKey always fails with ErrKeyUnavailable.
func NewKeyService(masterKey []byte, iterations int, cfg EncryptionConfig) *KeyService {
	if iterations <= 0 {
		iterations = DefaultKDFIterations
	}
	mk := make([]byte, len(masterKey))
	copy(mk, masterKey)
	return &KeyService{masterKey: mk, iterations: iterations, keyLength: cfg.KeyLength}
}

// DeriveKey returns the key for scope. Same scope and master key always give
// the same bytes.
func (k *KeyService) DeriveKey(scope Scope) ([]byte, error) {
	if len(k.masterKey) == 0 || scope.UserID == "" {
		return nil, common.ErrKeyUnavailable
	}
	return pbkdf2.Key(k.masterKey, scope.Salt(), k.iterations, k.keyLength, sha256.New), nil
}
