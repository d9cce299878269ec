// Package random generates short unpredictable codes from crypto/rand:
// Numeric for SMS login challenges, Code for the default client seed every
// round opens with before a participant overrides it.
package random

import (
	"crypto/rand"
	"math/big"
)

const digits = "0123456789"

// alphabet drops 0/O/1/I so codes survive being read back by a person.
const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Numeric returns n decimal digits.
func Numeric(n int) string {
	return draw(digits, n)
}

// Code returns n characters over the unambiguous upper-case alphabet.
func Code(n int) string {
	return draw(alphabet, n)
}

func draw(set string, n int) string {
	if n <= 0 {
		return ""
	}
	size := big.NewInt(int64(len(set)))
	out := make([]byte, n)
	for i := range out {
		v, err := rand.Int(rand.Reader, size)
		if err != nil {
			out[i] = set[0]
			continue
		}
		out[i] = set[v.Int64()]
	}
	return string(out)
}
