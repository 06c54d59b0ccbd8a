// Package multipart encodes named parts into a multipart/form-data body
// whose exact length is known before the first byte is written.
package multipart

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tonimelisma/kakao-go/internal/charset"
)

// Part defaults.
const (
	DefaultStringContentType      = "text/plain"
	DefaultStringCharset          = charset.USASCII
	DefaultStringTransferEncoding = "8bit"

	DefaultFileContentType      = "application/octet-stream"
	DefaultFileCharset          = charset.ISO88591
	DefaultFileTransferEncoding = "binary"
)

// ErrSizeChanged is returned when a file part's content no longer matches
// the size recorded when the part was created.
var ErrSizeChanged = errors.New("multipart: file size changed since part was created")

// Part is one named section of a multipart body. Len must report the
// payload size without reading it.
type Part interface {
	Name() string
	FileName() string
	ContentType() string
	Charset() string
	TransferEncoding() string
	Len() int64
	WriteTo(w io.Writer) (int64, error)
}

// Option overrides a header field of a part.
type Option func(*fields)

// WithContentType sets the Content-Type value. Empty omits the header line.
func WithContentType(ct string) Option {
	return func(f *fields) { f.contentType = ct }
}

// WithCharset sets the charset parameter. Empty omits it.
func WithCharset(cs string) Option {
	return func(f *fields) { f.charset = cs }
}

// WithTransferEncoding sets Content-Transfer-Encoding. Empty omits the header line.
func WithTransferEncoding(te string) Option {
	return func(f *fields) { f.transferEncoding = te }
}

// WithFileName overrides the filename segment of the disposition header.
func WithFileName(name string) Option {
	return func(f *fields) { f.fileName = name }
}

type fields struct {
	name             string
	fileName         string
	contentType      string
	charset          string
	transferEncoding string
}

func (f *fields) Name() string             { return f.name }
func (f *fields) FileName() string         { return f.fileName }
func (f *fields) ContentType() string      { return f.contentType }
func (f *fields) Charset() string          { return f.charset }
func (f *fields) TransferEncoding() string { return f.transferEncoding }

func (f *fields) apply(opts []Option) {
	for _, o := range opts {
		o(f)
	}
}

// StringPart carries a text value encoded in its declared charset.
type StringPart struct {
	fields
	content []byte
}

// NewStringPart builds a text/plain part. The value is encoded once, in the
// part's charset (US-ASCII unless overridden).
func NewStringPart(name, value string, opts ...Option) (*StringPart, error) {
	p := &StringPart{fields: fields{
		name:             name,
		contentType:      DefaultStringContentType,
		charset:          DefaultStringCharset,
		transferEncoding: DefaultStringTransferEncoding,
	}}
	p.apply(opts)

	cs := p.charset
	if cs == "" {
		cs = charset.USASCII
	}

	b, err := charset.Encode(value, cs)
	if err != nil {
		return nil, fmt.Errorf("multipart: part %q: %w", name, err)
	}

	p.content = b

	return p, nil
}

func (p *StringPart) Len() int64 { return int64(len(p.content)) }

func (p *StringPart) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(p.content)
	return int64(n), err
}

// BytesPart is an in-memory file part.
type BytesPart struct {
	fields
	data []byte
}

// NewBytesPart builds an application/octet-stream part with a filename.
func NewBytesPart(name, fileName string, data []byte, opts ...Option) *BytesPart {
	p := &BytesPart{
		fields: fileFields(name, fileName),
		data:   data,
	}
	p.apply(opts)

	return p
}

func (p *BytesPart) Len() int64 { return int64(len(p.data)) }

func (p *BytesPart) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(p.data)
	return int64(n), err
}

// FilePart streams a file from disk. Its size is captured at construction
// and the file is only opened when the body is written.
type FilePart struct {
	fields
	path string
	size int64
}

// NewFilePart stats path and builds a part for it. The filename defaults
// to the base name of path.
func NewFilePart(name, path string, opts ...Option) (*FilePart, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("multipart: stat %s: %w", path, err)
	}

	if info.IsDir() {
		return nil, fmt.Errorf("multipart: %s is a directory", path)
	}

	p := &FilePart{
		fields: fileFields(name, filepath.Base(path)),
		path:   path,
		size:   info.Size(),
	}
	p.apply(opts)

	return p, nil
}

func (p *FilePart) Len() int64 { return p.size }

// Path returns the file backing the part.
func (p *FilePart) Path() string { return p.path }

func (p *FilePart) WriteTo(w io.Writer) (int64, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return 0, fmt.Errorf("multipart: opening %s: %w", p.path, err)
	}
	defer f.Close()

	// Read one byte past the recorded size so growth is detected too.
	n, err := io.Copy(w, io.LimitReader(f, p.size+1))
	if err != nil {
		return n, fmt.Errorf("multipart: copying %s: %w", p.path, err)
	}

	if n != p.size {
		return n, fmt.Errorf("%w: %s: expected %d bytes, read %d", ErrSizeChanged, p.path, p.size, n)
	}

	return n, nil
}

func fileFields(name, fileName string) fields {
	return fields{
		name:             name,
		fileName:         fileName,
		contentType:      DefaultFileContentType,
		charset:          DefaultFileCharset,
		transferEncoding: DefaultFileTransferEncoding,
	}
}
