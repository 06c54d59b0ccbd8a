package multipart

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"
)

// Boundary constraints.
const (
	MinBoundaryLen   = 30
	MaxBoundaryLen   = 40
	boundaryAlphabet = "-_1234567890abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

const crlf = "\r\n"

var (
	ErrNoParts         = errors.New("multipart: no parts")
	ErrInvalidBoundary = errors.New("multipart: invalid boundary")
)

// Encoder serializes a fixed, ordered set of parts. Len and WriteTo derive
// every header from the same builder, so Len always equals the number of
// bytes WriteTo produces. An Encoder belongs to a single request.
type Encoder struct {
	parts    []Part
	boundary string
}

// NewEncoder returns an encoder with a freshly generated boundary.
func NewEncoder(parts ...Part) (*Encoder, error) {
	return NewEncoderWithBoundary(GenerateBoundary(), parts...)
}

// NewEncoderWithBoundary returns an encoder using the given boundary.
func NewEncoderWithBoundary(boundary string, parts ...Part) (*Encoder, error) {
	if len(parts) == 0 {
		return nil, ErrNoParts
	}

	if boundary == "" || strings.ContainsAny(boundary, "\r\n") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBoundary, boundary)
	}

	return &Encoder{parts: parts, boundary: boundary}, nil
}

// GenerateBoundary returns a random boundary of 30 to 40 characters drawn
// from [-_0-9a-zA-Z].
func GenerateBoundary() string {
	n := MinBoundaryLen + rand.IntN(MaxBoundaryLen-MinBoundaryLen+1)

	b := make([]byte, n)
	for i := range b {
		b[i] = boundaryAlphabet[rand.IntN(len(boundaryAlphabet))]
	}

	return string(b)
}

func (e *Encoder) Boundary() string { return e.boundary }

// ContentType is the request Content-Type header value.
func (e *Encoder) ContentType() string {
	return "multipart/form-data; boundary=" + e.boundary
}

// Len returns the exact encoded body length without touching any payload.
func (e *Encoder) Len() int64 {
	var total int64
	for _, p := range e.parts {
		total += int64(len(partHeader(p, e.boundary))) + p.Len() + int64(len(crlf))
	}

	return total + int64(len(e.trailer()))
}

// WriteTo streams the encoded body to w.
func (e *Encoder) WriteTo(w io.Writer) (int64, error) {
	var written int64

	write := func(b []byte) error {
		n, err := w.Write(b)
		written += int64(n)

		return err
	}

	for _, p := range e.parts {
		if err := write(partHeader(p, e.boundary)); err != nil {
			return written, fmt.Errorf("multipart: writing header of %q: %w", p.Name(), err)
		}

		n, err := p.WriteTo(w)
		written += n

		if err != nil {
			return written, fmt.Errorf("multipart: writing body of %q: %w", p.Name(), err)
		}

		if err := write([]byte(crlf)); err != nil {
			return written, fmt.Errorf("multipart: writing body of %q: %w", p.Name(), err)
		}
	}

	if err := write(e.trailer()); err != nil {
		return written, fmt.Errorf("multipart: writing trailer: %w", err)
	}

	return written, nil
}

// Reader returns the encoded body as a stream. A write failure surfaces as
// the reader's error. Closing the reader early stops the writer.
func (e *Encoder) Reader() io.ReadCloser {
	pr, pw := io.Pipe()

	go func() {
		_, err := e.WriteTo(pw)
		pw.CloseWithError(err)
	}()

	return pr
}

func (e *Encoder) trailer() []byte {
	return []byte("--" + e.boundary + "--" + crlf)
}

// partHeader renders everything that precedes a part's payload. Header
// lines whose value is empty are omitted.
func partHeader(p Part, boundary string) []byte {
	var b bytes.Buffer

	b.WriteString("--")
	b.WriteString(boundary)
	b.WriteString(crlf)

	b.WriteString(`Content-Disposition: form-data; name="`)
	b.WriteString(p.Name())
	b.WriteByte('"')

	if fn := p.FileName(); fn != "" {
		b.WriteString(`; filename="`)
		b.WriteString(fn)
		b.WriteByte('"')
	}

	b.WriteString(crlf)

	if ct := p.ContentType(); ct != "" {
		b.WriteString("Content-Type: ")
		b.WriteString(ct)

		if cs := p.Charset(); cs != "" {
			b.WriteString("; charset=")
			b.WriteString(cs)
		}

		b.WriteString(crlf)
	}

	if te := p.TransferEncoding(); te != "" {
		b.WriteString("Content-Transfer-Encoding: ")
		b.WriteString(te)
		b.WriteString(crlf)
	}

	b.WriteString(crlf)

	return b.Bytes()
}
