package textutil

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SecureFilename reduces name to a flat ASCII filename. Compatibility
// decomposition folds accented letters to their base form, separators and
// whitespace collapse to underscores, and every other character outside
// [A-Za-z0-9_.-] is dropped. Leading and trailing dots and underscores are
// trimmed, so the result may be empty.
func SecureFilename(name string) string {
	decomposed := norm.NFKD.String(name)
	var ascii strings.Builder
	ascii.Grow(len(decomposed))
	for _, r := range decomposed {
		if r > unicode.MaxASCII {
			continue
		}
		if r == '/' || r == '\\' {
			r = ' '
		}
		ascii.WriteRune(r)
	}
	joined := strings.Join(strings.Fields(ascii.String()), "_")
	return strings.Trim(unsafeFileChars.ReplaceAllString(joined, ""), "._")
}
