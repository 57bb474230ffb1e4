// Copyright (c) 2026 The powd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package keypair provides the Ed25519 signing key of a node along with the
// base58 encodings used by the network for public and secret keys.
package keypair

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/cloudflare/circl/sign/ed25519"
	"github.com/decred/base58"
)

// KeyPair is an Ed25519 key pair whose public key is the identity of the node
// issuing blocks.
type KeyPair struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

// FromBase58 decodes a base58 public key and a base58 secret key.  The secret
// key is the 64 byte seed || public key concatenation.  An error is returned
// when either key is malformed or when they do not belong together.
func FromBase58(pub, sec string) (*KeyPair, error) {
	secBytes := base58.Decode(sec)
	if len(secBytes) != ed25519.PrivateKeySize {
		return nil, makeError(ErrMalformedKey, fmt.Sprintf("secret key "+
			"decodes to %d bytes instead of %d", len(secBytes),
			ed25519.PrivateKeySize))
	}
	kp := FromSeed(secBytes[:ed25519.SeedSize])
	if pub != "" && kp.PublicKey() != pub {
		str := fmt.Sprintf("secret key does not match public key %s", pub)
		return nil, makeError(ErrKeyMismatch, str)
	}
	return kp, nil
}

// FromSeed derives the key pair from a 32 byte seed.  It panics when the seed
// does not have the expected length.
func FromSeed(seed []byte) *KeyPair {
	priv := ed25519.NewKeyFromSeed(seed)
	return &KeyPair{
		pub:  priv.Public().(ed25519.PublicKey),
		priv: priv,
	}
}

// Generate creates a new random key pair from the provided entropy source.  A
// nil reader uses crypto/rand.
func Generate(r io.Reader) (*KeyPair, error) {
	if r == nil {
		r = rand.Reader
	}
	var seed [ed25519.SeedSize]byte
	if _, err := io.ReadFull(r, seed[:]); err != nil {
		return nil, err
	}
	return FromSeed(seed[:]), nil
}

// PublicKey returns the base58 encoding of the public key.
func (k *KeyPair) PublicKey() string {
	return base58.Encode(k.pub)
}

// SecretKey returns the base58 encoding of the secret key.
func (k *KeyPair) SecretKey() string {
	return base58.Encode(k.priv)
}

// Sign signs the message and returns the base64 encoded signature.
func (k *KeyPair) Sign(msg string) string {
	sig := ed25519.Sign(k.priv, []byte(msg))
	return base64.StdEncoding.EncodeToString(sig)
}

// Verify reports whether sig is a valid base64 signature of msg for the base58
// public key pub.
func Verify(msg, sig, pub string) bool {
	pubBytes := base58.Decode(pub)
	if len(pubBytes) != ed25519.PublicKeySize {
		return false
	}
	sigBytes, err := base64.StdEncoding.DecodeString(sig)
	if err != nil || len(sigBytes) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pubBytes), []byte(msg), sigBytes)
}
