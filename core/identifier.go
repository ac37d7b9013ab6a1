package core

import "strings"

// PlaceholderPrefix marks internal identifiers minted from a catalog work key.
// Format: OLISBN-<workKey>[-suffix]
const PlaceholderPrefix = "OLISBN-"

// NormalizeIdentifier strips everything except digits and the ISBN-10 check
// character, upper-casing X.
func NormalizeIdentifier(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == 'x' || r == 'X':
			b.WriteByte('X')
		}
	}
	return b.String()
}

// IsVerifiedIdentifier reports whether s has the shape of a real ISBN-10 or ISBN-13.
// Placeholders are never verified.
func IsVerifiedIdentifier(s string) bool {
	if s == "" || IsPlaceholderIdentifier(s) {
		return false
	}
	// reject values carrying letters other than the check character
	for _, r := range s {
		if (r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') && r != 'x' && r != 'X' {
			return false
		}
	}
	n := NormalizeIdentifier(s)
	switch len(n) {
	case 10:
		return !strings.Contains(n[:9], "X")
	case 13:
		return !strings.Contains(n, "X")
	}
	return false
}

// IsPlaceholderIdentifier reports whether s is an internal placeholder.
func IsPlaceholderIdentifier(s string) bool {
	return strings.HasPrefix(s, PlaceholderPrefix)
}

// PlaceholderIdentifier mints the internal identifier for a work key.
func PlaceholderIdentifier(workKey string) string {
	return PlaceholderPrefix + workKey
}

// WorkKeyFromIdentifier extracts the work key from a placeholder identifier.
// Returns "" when s is not a placeholder.
func WorkKeyFromIdentifier(s string) string {
	if !IsPlaceholderIdentifier(s) {
		return ""
	}
	rest := strings.TrimPrefix(s, PlaceholderPrefix)
	key, _, _ := strings.Cut(rest, "-")
	return key
}

// WorkKeyFromPath converts a catalog key path such as "/works/OL45804W" to "OL45804W".
func WorkKeyFromPath(path string) string {
	path = strings.TrimSuffix(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

// SplitAuthorName splits a display name into first name and the remainder.
func SplitAuthorName(name string) (first, last string) {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

// FirstName returns the normalized first name of an author display name.
func FirstName(name string) string {
	first, _ := SplitAuthorName(name)
	return NormalizeText(first)
}
