// Package rpccipher derives a per-pipeline AES-256-GCM suite from a shared
// pre-key string: a low iteration-count PBKDF2 pass over a SHA-512 salt.
// This is obfuscation / pre-shared-key matching, not password-based
// encryption against an offline attacker, so the low iteration count is
// deliberate, not a bug.
//
// One deviation from the reference implementation is made deliberately: a
// fixed IV reused across every record is a correctness hazard under
// AES-GCM — nonce reuse under the same key breaks GCM's authentication
// guarantee outright. This package derives a random 8-byte IV prefix per
// Suite and appends a monotonically increasing 4-byte counter per record,
// so no two records under the same key ever reuse a nonce.
package rpccipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"sync/atomic"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keySize        = 32 // AES-256
	ivPrefixSize   = 8
	ivCounterSize  = 4
	nonceSize      = ivPrefixSize + ivCounterSize
	pbkdf2Rounds   = 10
	derivedKeySize = 64 // 256-bit key + 256-bit buffer; only the key half is used, the IV prefix is random
)

// Suite holds the derived AEAD key and the per-pipeline nonce state. A zero
// Suite is not usable; construct one with Derive.
type Suite struct {
	aead     cipher.AEAD
	ivPrefix [ivPrefixSize]byte
	counter  atomic.Uint32
}

// Derive produces a Suite from preKey. An empty preKey means "no encryption"
// and callers should not construct a Suite at all — an empty pre-key is
// absent cipher state, not an all-zero key to derive from.
func Derive(preKey string) (*Suite, error) {
	if preKey == "" {
		return nil, errors.New("rpccipher: preKey must not be empty")
	}

	salt := sha512.Sum512([]byte(preKey))
	derived := pbkdf2.Key([]byte(preKey), salt[:], pbkdf2Rounds, derivedKeySize, sha256.New)

	key := derived[:keySize]
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	suite := &Suite{aead: aead}
	if _, err := rand.Read(suite.ivPrefix[:]); err != nil {
		return nil, err
	}
	return suite, nil
}

// Seal encrypts one record. The nonce is the suite's random prefix followed
// by a per-record counter, guaranteeing nonce uniqueness for the lifetime of
// the Suite (roughly 4 billion records, ample for one pipeline's lifetime).
func (s *Suite) Seal(record []byte) []byte {
	nonce := s.nextNonce()
	return s.aead.Seal(nonce[:], nonce[:], record, nil)
}

// Open decrypts one record produced by Seal on the peer's matching Suite.
// The nonce travels with the ciphertext (prepended by Seal), so Open does
// not need its own counter.
func (s *Suite) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize {
		return nil, errors.New("rpccipher: sealed record shorter than nonce")
	}
	nonce := sealed[:nonceSize]
	ciphertext := sealed[nonceSize:]
	return s.aead.Open(nil, nonce, ciphertext, nil)
}

func (s *Suite) nextNonce() [nonceSize]byte {
	var nonce [nonceSize]byte
	copy(nonce[:ivPrefixSize], s.ivPrefix[:])
	binary.BigEndian.PutUint32(nonce[ivPrefixSize:], s.counter.Add(1))
	return nonce
}
