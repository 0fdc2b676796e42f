/*
Copyright Trust Data Format Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package keymaster holds the KAS key inventory: the service's own unwrap
// keys, the attribute authority public key, and per-realm identity provider
// keys fetched at runtime. Keys are registered by well-known name and handed
// out parsed.
package keymaster

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"os"
	"sync"

	kascrypto "github.com/trustdataformat/kas-go/pkg/crypto"
	"github.com/trustdataformat/kas-go/pkg/kaserrors"
)

// KeyType marks a stored key as public or private material.
type KeyType string

// Key types.
const (
	Public  KeyType = "PUBLIC"
	Private KeyType = "PRIVATE"
)

// Well-known key names.
const (
	KeyKASPrivate   = "KAS-PRIVATE"
	KeyKASPublic    = "KAS-PUBLIC"
	KeyKASECPrivate = "KAS-EC-SECP256R1-PRIVATE"
	KeyKASECPublic  = "KAS-EC-SECP256R1-PUBLIC"
	KeyAAPublic     = "AA-PUBLIC"

	realmKeyPrefix = "realm-pub:"
)

type record struct {
	keyType KeyType
	pem     []byte
	path    string
}

// KeyMaster is a concurrency-safe registry of named keys.
type KeyMaster struct {
	mu      sync.RWMutex
	records map[string]*record
}

// New returns an empty KeyMaster.
func New() *KeyMaster {
	return &KeyMaster{records: map[string]*record{}}
}

// SetKeyPEM registers key material under name.
func (km *KeyMaster) SetKeyPEM(name string, keyType KeyType, pemBytes []byte) {
	km.mu.Lock()
	defer km.mu.Unlock()

	km.records[name] = &record{keyType: keyType, pem: append([]byte{}, pemBytes...)}
}

// SetKeyPath registers a key to be read from disk on first use.
func (km *KeyMaster) SetKeyPath(name string, keyType KeyType, path string) {
	km.mu.Lock()
	defer km.mu.Unlock()

	km.records[name] = &record{keyType: keyType, path: path}
}

// SetRealmKey registers the identity provider public key for a realm.
func (km *KeyMaster) SetRealmKey(realm string, pemBytes []byte) {
	km.SetKeyPEM(realmKeyPrefix+realm, Public, pemBytes)
}

// Has reports whether a key is registered under name.
func (km *KeyMaster) Has(name string) bool {
	km.mu.RLock()
	defer km.mu.RUnlock()

	_, ok := km.records[name]

	return ok
}

func (km *KeyMaster) pemFor(name string) ([]byte, KeyType, error) {
	km.mu.RLock()
	rec, ok := km.records[name]
	km.mu.RUnlock()

	if !ok {
		return nil, "", kaserrors.New(kaserrors.KeyNotFound, "no key named %q", name)
	}

	if rec.pem != nil {
		return rec.pem, rec.keyType, nil
	}

	pemBytes, err := os.ReadFile(rec.path)
	if err != nil {
		return nil, "", kaserrors.Wrap(kaserrors.KeyNotFound, err, "read key %q from %s", name, rec.path)
	}

	km.mu.Lock()
	rec.pem = pemBytes
	km.mu.Unlock()

	return pemBytes, rec.keyType, nil
}

// Key returns the parsed key registered under name.
func (km *KeyMaster) Key(name string) (crypto.PrivateKey, error) {
	pemBytes, keyType, err := km.pemFor(name)
	if err != nil {
		return nil, err
	}

	if keyType == Private {
		return kascrypto.ParsePrivateKey(pemBytes)
	}

	return kascrypto.ParsePublicKey(pemBytes)
}

// ExportString returns the key's PEM text. Public keys registered via a
// certificate are re-exported as a bare PKIX public key.
func (km *KeyMaster) ExportString(name string) (string, error) {
	pemBytes, keyType, err := km.pemFor(name)
	if err != nil {
		return "", err
	}

	if keyType == Public {
		pub, err := kascrypto.ParsePublicKey(pemBytes)
		if err != nil {
			return "", err
		}

		return kascrypto.ExportPublicKeyPEM(pub)
	}

	return string(pemBytes), nil
}

// RSAPrivateKey returns the named key as *rsa.PrivateKey.
func (km *KeyMaster) RSAPrivateKey(name string) (*rsa.PrivateKey, error) {
	key, err := km.Key(name)
	if err != nil {
		return nil, err
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, kaserrors.New(kaserrors.PrivateKeyInvalid, "key %q is not an RSA private key", name)
	}

	return rsaKey, nil
}

// RSAPublicKey returns the named key as *rsa.PublicKey.
func (km *KeyMaster) RSAPublicKey(name string) (*rsa.PublicKey, error) {
	key, err := km.Key(name)
	if err != nil {
		return nil, err
	}

	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, kaserrors.New(kaserrors.PrivateKeyInvalid, "key %q is not an RSA public key", name)
	}

	return rsaKey, nil
}

// ECPrivateKey returns the named key as *ecdsa.PrivateKey.
func (km *KeyMaster) ECPrivateKey(name string) (*ecdsa.PrivateKey, error) {
	key, err := km.Key(name)
	if err != nil {
		return nil, err
	}

	ecKey, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, kaserrors.New(kaserrors.PrivateKeyInvalid, "key %q is not an EC private key", name)
	}

	return ecKey, nil
}

// ECPublicKey returns the named key as *ecdsa.PublicKey.
func (km *KeyMaster) ECPublicKey(name string) (*ecdsa.PublicKey, error) {
	key, err := km.Key(name)
	if err != nil {
		return nil, err
	}

	ecKey, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return nil, kaserrors.New(kaserrors.PrivateKeyInvalid, "key %q is not an EC public key", name)
	}

	return ecKey, nil
}

// RealmPublicKey returns the cached identity provider key for realm.
func (km *KeyMaster) RealmPublicKey(realm string) (crypto.PublicKey, error) {
	key, err := km.Key(realmKeyPrefix + realm)
	if err != nil {
		return nil, err
	}

	return key, nil
}
