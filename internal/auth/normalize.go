package auth

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Normalize reduces a login identity to its lower-cased local part. Anything
// from the first @ onward is dropped, so user@a.example and USER@b.example
// are the same user.
func Normalize(identity string) string {
	local, _, _ := strings.Cut(identity, "@")
	return strings.ToLower(local)
}

// SameUser reports whether two identities normalize to the same user.
func SameUser(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

var nameSeparators = strings.NewReplacer("_", " ", "-", " ", ".", " ")

// DisplayName derives a human readable name from a normalized username:
// separators become spaces and every word is title-cased.
func DisplayName(user string) string {
	// a Caser carries state and must not be shared between goroutines
	c := cases.Title(language.Und, cases.NoLower)
	return c.String(nameSeparators.Replace(user))
}
