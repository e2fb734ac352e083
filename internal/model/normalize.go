package model

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeBody returns the form of a document body that is stored and hashed:
// NFC normalized with LF line endings.
func NormalizeBody(body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	body = strings.ReplaceAll(body, "\r", "\n")
	return norm.NFC.String(body)
}

// NormalizeField trims and NFC normalizes a metadata value.
func NormalizeField(v string) string {
	return norm.NFC.String(strings.TrimSpace(v))
}
