package types

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // the chain key checksum is defined over RIPEMD-160
)

// KeyPrefix starts the text form of every public key.
const KeyPrefix = "GLS"

const checksumLen = 4

// PublicKey is a compressed secp256k1 point.
type PublicKey [secp256k1.PubKeyBytesLenCompressed]byte

// NewPublicKey validates raw as a compressed curve point.
func NewPublicKey(raw []byte) (PublicKey, error) {
	var k PublicKey
	if len(raw) != len(k) {
		return k, fmt.Errorf("public key: want %d bytes, got %d", len(k), len(raw))
	}
	if _, err := secp256k1.ParsePubKey(raw); err != nil {
		return k, fmt.Errorf("public key: %w", err)
	}
	copy(k[:], raw)
	return k, nil
}

// PublicKeyFromSeed derives the key pair whose private key is sha256(seed)
// and returns the public half. Genesis and tests use it for well-known keys.
func PublicKeyFromSeed(seed string) PublicKey {
	secret := sha256.Sum256([]byte(seed))
	priv := secp256k1.PrivKeyFromBytes(secret[:])
	var k PublicKey
	copy(k[:], priv.PubKey().SerializeCompressed())
	return k
}

func keyChecksum(raw []byte) []byte {
	h := ripemd160.New()
	h.Write(raw)
	return h.Sum(nil)[:checksumLen]
}

// IsZero reports whether k is unset.
func (k PublicKey) IsZero() bool { return k == PublicKey{} }

// Compare orders keys by their bytes.
func (k PublicKey) Compare(other PublicKey) int {
	return bytes.Compare(k[:], other[:])
}

// String renders "GLS" + base58(key || ripemd160(key)[:4]).
func (k PublicKey) String() string {
	buf := make([]byte, 0, len(k)+checksumLen)
	buf = append(buf, k[:]...)
	buf = append(buf, keyChecksum(k[:])...)
	return KeyPrefix + base58.Encode(buf)
}

// ParsePublicKey parses the text form and verifies checksum and curve point.
func ParsePublicKey(s string) (PublicKey, error) {
	body, ok := strings.CutPrefix(s, KeyPrefix)
	if !ok {
		return PublicKey{}, fmt.Errorf("public key: %q lacks %s prefix", s, KeyPrefix)
	}
	raw, err := base58.Decode(body)
	if err != nil {
		return PublicKey{}, fmt.Errorf("public key: %q: %w", s, err)
	}
	if len(raw) != len(PublicKey{})+checksumLen {
		return PublicKey{}, fmt.Errorf("public key: %q has wrong length", s)
	}
	key, sum := raw[:len(raw)-checksumLen], raw[len(raw)-checksumLen:]
	if !bytes.Equal(keyChecksum(key), sum) {
		return PublicKey{}, fmt.Errorf("public key: %q checksum mismatch", s)
	}
	return NewPublicKey(key)
}

// MustParsePublicKey is like ParsePublicKey but panics on error.
func MustParsePublicKey(s string) PublicKey {
	k, err := ParsePublicKey(s)
	if err != nil {
		panic(err)
	}
	return k
}

// MarshalText implements encoding.TextMarshaler.
func (k PublicKey) MarshalText() ([]byte, error) {
	if k.IsZero() {
		return []byte{}, nil
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *PublicKey) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*k = PublicKey{}
		return nil
	}
	parsed, err := ParsePublicKey(string(data))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
