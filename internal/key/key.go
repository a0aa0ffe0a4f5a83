package key

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// Size is the byte length of every principal, asset and address key.
const Size = 32

// ErrInvalidKey is returned when a string does not decode to a 32-byte key.
var ErrInvalidKey = errors.New("invalid key")

// Key identifies a principal, an asset or a derived ledger address.
type Key [Size]byte

// Zero is the empty key.
var Zero Key

// Parse decodes a base58 encoded key.
func Parse(s string) (Key, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return Zero, fmt.Errorf("%w: %q: %v", ErrInvalidKey, s, err)
	}
	if len(raw) != Size {
		return Zero, fmt.Errorf("%w: %q decodes to %d bytes", ErrInvalidKey, s, len(raw))
	}
	var k Key
	copy(k[:], raw)
	return k, nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Key {
	k, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return k
}

// FromBytes copies b into a key.
func FromBytes(b []byte) (Key, error) {
	if len(b) != Size {
		return Zero, fmt.Errorf("%w: %d bytes", ErrInvalidKey, len(b))
	}
	var k Key
	copy(k[:], b)
	return k, nil
}

// FromPublicKey returns the key of an ed25519 signer.
func FromPublicKey(pub ed25519.PublicKey) (Key, error) {
	return FromBytes(pub)
}

// New returns a random key. Used for group identifiers and tests.
func New() Key {
	var k Key
	if _, err := rand.Read(k[:]); err != nil {
		panic(fmt.Sprintf("key: read random: %v", err))
	}
	return k
}

func (k Key) String() string { return base58.Encode(k[:]) }

// IsZero reports whether k is the empty key.
func (k Key) IsZero() bool { return k == Zero }

// Bytes returns a copy of the key bytes.
func (k Key) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, k[:])
	return b
}

// PublicKey views the key as an ed25519 public key.
func (k Key) PublicKey() ed25519.PublicKey { return ed25519.PublicKey(k.Bytes()) }

func (k Key) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Key) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
