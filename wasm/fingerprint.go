package wasm

import (
	"bytes"
	"unicode/utf8"
)

// FingerprintSize is the space reserved after the input for the SQLi
// fingerprint: up to 8 characters and a terminating NUL.
const FingerprintSize = 9

// Fingerprint is a copy of the reserved output slot of a SQLi call.
type Fingerprint [FingerprintSize]byte

// Len returns the number of bytes before the first NUL, or FingerprintSize if
// the guest wrote no terminator.
func (f Fingerprint) Len() int {
	if i := bytes.IndexByte(f[:], 0); i >= 0 {
		return i
	}
	return FingerprintSize
}

// String decodes the fingerprint with each byte taken as one character.
func (f Fingerprint) String() string {
	valid := f[:f.Len()]
	for _, b := range valid {
		if b >= utf8.RuneSelf {
			runes := make([]rune, len(valid))
			for i, b := range valid {
				runes[i] = rune(b)
			}
			return string(runes)
		}
	}
	return string(valid)
}
