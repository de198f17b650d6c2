package objects

import (
	"encoding/hex"
	"io"
	"path"
	"strings"
)

const (
	tokenLength = 16

	// Longer extensions are dropped rather than kept in the generated name.
	maxExtensionLength = 32
)

// newFilename returns a name made of 32 hex digits read from random,
// followed by the extension of originalName. Nothing about the content
// takes part, so uploads with the same original name never collide.
func newFilename(random io.Reader, originalName string) (string, error) {
	token := make([]byte, tokenLength)
	if _, err := io.ReadFull(random, token); err != nil {
		return "", err
	}
	return hex.EncodeToString(token) + extension(originalName), nil
}

// extension returns the extension of the base name of a client supplied
// path, dot included. Dot files have no extension. Anything that would need
// escaping in a URL path is dropped.
func extension(originalName string) string {
	base := path.Base(strings.ReplaceAll(originalName, `\`, "/"))
	ext := path.Ext(base)
	if len(ext) <= 1 || ext == base || len(ext) > maxExtensionLength {
		return ""
	}
	for _, r := range ext[1:] {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '+':
		default:
			return ""
		}
	}
	return ext
}
