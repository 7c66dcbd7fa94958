// Package passcode generates short numeric one-time passcodes.
//
// Codes are fixed-length decimal strings drawn from crypto/rand. A
// predictable code here is an authorization bypass, so math/rand is not an
// acceptable substitute.
package passcode

import (
	"crypto/rand"
	"math/big"
	"strconv"
)

// Length is the number of decimal digits in a generated code.
const Length = 6

const (
	codeMin = 100000
	codeMax = 999999
)

// Generator produces one-time passcodes.
type Generator interface {
	// Generate returns a new code or an error if the random source fails.
	Generate() (string, error)
}

// Numeric generates uniformly random 6-digit codes in [100000, 999999].
type Numeric struct{}

// NewNumeric returns a Numeric generator.
func NewNumeric() *Numeric {
	return &Numeric{}
}

// Generate returns a new 6-digit code.
func (*Numeric) Generate() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeMax-codeMin+1))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(codeMin+n.Int64(), 10), nil
}

// Valid reports whether s has the shape of a generated code. It does not
// check s against any stored request, only the format.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s[0] != '0'
}
