package extract

import (
	"strings"
	"unicode/utf8"
)

// extractPlain returns the content as a string. Invalid UTF-8 sequences are
// replaced rather than rejected so a stray binary byte cannot sink a build.
func extractPlain(content []byte) (string, error) {
	if !utf8.Valid(content) {
		return strings.ToValidUTF8(string(content), "�"), nil
	}
	return string(content), nil
}
