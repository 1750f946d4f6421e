// Local-identifier mapping: translate a storage URL into a
// filesystem-safe token for naming lock paths.
package storage

import (
	"errors"
	"strings"
)

// ErrEmptyLocation is returned by LocalIdentifier for empty input.
var ErrEmptyLocation = errors.New("storage location cannot be empty")

// LocalIdentifier converts a storage URL into a filesystem-safe token:
// the scheme prefix is kept, "://" collapses to "/", Windows drive
// letters are lower-cased with their trailing colon stripped,
// backslashes are normalized to forward slashes, and repeated leading
// slashes collapse to one. Input with no scheme defaults to "file".
func LocalIdentifier(raw string) (string, error) {
	if raw == "" {
		return "", ErrEmptyLocation
	}

	s := strings.ReplaceAll(raw, "\\", "/")

	scheme := "file"
	rest := s
	if idx := strings.Index(s, "://"); idx >= 0 {
		scheme = s[:idx]
		rest = s[idx+3:]
	}

	rest = collapseLeadingSlashes(rest)
	rest = strings.TrimPrefix(rest, "/")
	rest = lowerDriveLetter(rest)

	if rest == "" {
		return scheme, nil
	}
	return scheme + "/" + rest, nil
}

func collapseLeadingSlashes(s string) string {
	i := 0
	for i < len(s) && s[i] == '/' {
		i++
	}
	if i <= 1 {
		return s
	}
	return "/" + s[i:]
}

// lowerDriveLetter rewrites a leading "C:" drive letter to lower-case
// with the colon stripped, e.g. "C:/Users" -> "c/Users".
func lowerDriveLetter(s string) string {
	if len(s) >= 2 && isASCIILetter(s[0]) && s[1] == ':' {
		rest := ""
		if len(s) > 2 {
			rest = strings.TrimPrefix(s[2:], "/")
		}
		lower := strings.ToLower(s[:1])
		if rest == "" {
			return lower
		}
		return lower + "/" + rest
	}
	return s
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
