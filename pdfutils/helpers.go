package pdfutils

import (
	"regexp"
	"strings"
	"unicode"
)

func RemoveNul(str string) string {
	return strings.Map(func(r rune) rune {
		if r == unicode.ReplacementChar {
			return -1
		}
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, str)
}

// ShouldUseFallback reports whether more than a fifth of str consists of
// replacement characters, which means the font had no usable text mapping.
func ShouldUseFallback(str string) bool {
	length := len([]rune(str))
	missingChars := strings.Count(str, string(unicode.ReplacementChar))

	if missingChars == 0 || length == 0 {
		return false
	}

	ratio := float64(missingChars) / float64(length)

	return ratio > 0.2
}

var nlAndSpace = regexp.MustCompile(`[\n\s]+`)

func CondenseSpaces(str string) string {
	return strings.TrimSpace(nlAndSpace.ReplaceAllString(str, " "))
}

// IsBlank reports whether s contains only whitespace.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// StripSubsetPrefix removes the six letter subset tag from an embedded font
// name, "ABCDEF+Times-Roman" becomes "Times-Roman".
func StripSubsetPrefix(name string) string {
	name = strings.TrimPrefix(name, "/")
	if len(name) > 7 && name[6] == '+' {
		for _, r := range name[:6] {
			if r < 'A' || r > 'Z' {
				return name
			}
		}
		return name[7:]
	}
	return name
}
