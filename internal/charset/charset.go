// Package charset converts strings into the byte encoding a request
// declares (form bodies, multipart string parts).
package charset

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

// Names used across the pipeline.
const (
	ISO88591 = "ISO-8859-1"
	USASCII  = "US-ASCII"
	UTF8     = "UTF-8"
)

var (
	ErrUnsupported = errors.New("charset: unsupported charset")
	ErrUnmappable  = errors.New("charset: character not representable")
)

// Encode returns s encoded in the named charset. Characters the charset
// cannot represent are an error, never silently replaced.
func Encode(s, name string) ([]byte, error) {
	if isASCII(name) {
		for i := range len(s) {
			if s[i] >= 0x80 {
				return nil, fmt.Errorf("%w: byte 0x%02x at offset %d in %s", ErrUnmappable, s[i], i, USASCII)
			}
		}

		return []byte(s), nil
	}

	enc, err := lookup(name)
	if err != nil {
		return nil, err
	}

	out, err := enc.NewEncoder().String(s)
	if err != nil {
		return nil, fmt.Errorf("%w in %s: %w", ErrUnmappable, name, err)
	}

	return []byte(out), nil
}

// Validate reports whether name is a charset Encode can use.
func Validate(name string) error {
	if isASCII(name) {
		return nil
	}

	_, err := lookup(name)

	return err
}

func lookup(name string) (encoding.Encoding, error) {
	if strings.EqualFold(name, UTF8) || strings.EqualFold(name, "utf8") {
		return unicode.UTF8, nil
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, name)
	}

	return enc, nil
}

func isASCII(name string) bool {
	return strings.EqualFold(name, USASCII) || strings.EqualFold(name, "ascii")
}
