// Package cryptox holds the key derivation service and the authenticated
// field codec used for everything the server keeps encrypted at rest.
package cryptox

import (
	"crypto/sha256"

	"golang.org/x/crypto/argon2"
)

// MakeVerifier returns the value the server stores to check a client's
// master key without ever seeing the key itself.
func MakeVerifier(masterKey []byte) []byte {
	hash := sha256.Sum256(masterKey)
	return hash[:]
}

// DeriveMasterKey stretches a passphrase into a 32-byte key with argon2id.
// Used by clients at login and by cmd/genmasterkey for the server master key.
func DeriveMasterKey(password []byte, salt []byte) []byte {
	x := argon2.IDKey(password, salt, 1, 64*1024, 4, 32)
	return x
}
