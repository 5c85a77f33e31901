package util

import "golang.org/x/text/unicode/norm"

// Normalize applies NFKD so visually identical passphrases compare equal.
func Normalize(s string) string {
	return norm.NFKD.String(s)
}
