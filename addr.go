package l2cap

import (
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
)

// Address is the opaque 48-bit peer identifier the core keys every
// LinkControlBlock by, paired with a Transport. It's a Bluetooth device
// address on both BR/EDR and LE transports.
type Address [6]byte

// ParseAddress parses a colon-separated hex address such as
// "aa:bb:cc:dd:ee:ff". The bytes are stored in the order given; callers on
// a particular transport are responsible for whatever endianness their
// collaborators expect.
func ParseAddress(s string) (Address, error) {
	var a Address
	hexStr := strings.ReplaceAll(strings.ToLower(s), ":", "")
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		return a, errors.Wrapf(err, "parse address %q", s)
	}
	if len(raw) != len(a) {
		return a, errors.Errorf("parse address %q: want %d bytes, got %d", s, len(a), len(raw))
	}
	copy(a[:], raw)
	return a, nil
}

// String renders the address as lower-case colon-separated hex.
func (a Address) String() string {
	var sb strings.Builder
	for i, b := range a {
		if i > 0 {
			sb.WriteByte(':')
		}
		sb.WriteString(hex.EncodeToString([]byte{b}))
	}
	return sb.String()
}

// Bytes returns the address as a 6-byte slice.
func (a Address) Bytes() []byte {
	out := make([]byte, len(a))
	copy(out, a[:])
	return out
}

// IsZero reports whether a is the all-zero address.
func (a Address) IsZero() bool {
	return a == Address{}
}
