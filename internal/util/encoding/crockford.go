package encoding

import (
	"strings"
)

const crockfordB32LCAlphabet = "0123456789abcdefghjkmnpqrstvwxyz" // Crockford's Base32 alphabet, lowercase

// EncodeCrockfordB32LC encodes a byte slice using Crockford's Base32 alphabet and returns
// the result in lowercase. The alphabet avoids easily confused characters, which makes
// the output safe for file names and URLs.
//
//nolint:gosec
func EncodeCrockfordB32LC(input []byte) string {
	var (
		result strings.Builder
		bits   = 0
		accum  = 0
	)

	result.Grow((len(input)*8 + 4) / 5)

	for _, b := range input {
		accum = accum<<8 | int(b)
		bits += 8

		for bits >= 5 {
			bits -= 5
			result.WriteByte(crockfordB32LCAlphabet[(accum>>bits)&0x1F])
		}
	}

	if bits > 0 {
		result.WriteByte(crockfordB32LCAlphabet[(accum<<uint(5-bits))&0x1F])
	}

	return result.String()
}

// IsCrockfordB32LC reports whether s is a non-empty string made only of
// lowercase Crockford Base32 characters.
func IsCrockfordB32LC(s string) bool {
	if s == "" {
		return false
	}

	for _, char := range s {
		if !strings.ContainsRune(crockfordB32LCAlphabet, char) {
			return false
		}
	}

	return true
}
