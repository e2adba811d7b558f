package msgcrypt

import (
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"sort"
	"strings"
)

// Signature is the platform signature: the hex SHA-1 of the parts sorted
// lexically and concatenated.
func Signature(parts ...string) string {
	sorted := append([]string(nil), parts...)
	sort.Strings(sorted)
	sum := sha1.Sum([]byte(strings.Join(sorted, "")))
	return hex.EncodeToString(sum[:])
}

// verifySignature compares in constant time. Case differences in the hex
// digits are tolerated.
func verifySignature(got string, parts ...string) error {
	if got == "" {
		return newError(ValidateSignatureError, nil)
	}
	want := Signature(parts...)
	if subtle.ConstantTimeCompare([]byte(strings.ToLower(got)), []byte(want)) != 1 {
		return newError(ValidateSignatureError, nil)
	}
	return nil
}
