// Package source opens named index streams: local files, stdin, s3:// objects
// and OutbackCDX collections. Compression and text encoding are unwrapped
// here so decoders only ever see UTF-8 lines.
package source

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/text/encoding/charmap"

	"github.com/eunmann/cdxsum/pkg/cdx"
	"github.com/eunmann/cdxsum/pkg/s3fetch"
)

// ErrUnsupported is returned for unknown compression or encoding names.
var ErrUnsupported = errors.New("unsupported source option")

// StdinName is the input name that reads standard input.
const StdinName = "-"

// Compression selects how input bytes are decompressed.
type Compression string

const (
	// CompressionAuto sniffs gzip and zstd magic bytes.
	CompressionAuto  Compression = "auto"
	CompressionForce Compression = "force"
	CompressionNever Compression = "never"
)

// ParseCompression validates a compression mode name.
func ParseCompression(name string) (Compression, error) {
	switch c := Compression(strings.ToLower(name)); c {
	case "", CompressionAuto:
		return CompressionAuto, nil
	case CompressionForce, CompressionNever:
		return c, nil
	default:
		return "", fmt.Errorf("%w: compression %q", ErrUnsupported, name)
	}
}

// Encoding names the text encoding of input lines.
type Encoding string

const (
	EncodingUTF8        Encoding = "utf-8"
	EncodingLatin1      Encoding = "latin1"
	EncodingWindows1252 Encoding = "windows-1252"
)

// ParseEncoding validates an encoding name. Common aliases are accepted.
func ParseEncoding(name string) (Encoding, error) {
	switch strings.ToLower(name) {
	case "", "utf-8", "utf8":
		return EncodingUTF8, nil
	case "latin1", "latin-1", "iso-8859-1":
		return EncodingLatin1, nil
	case "windows-1252", "cp1252":
		return EncodingWindows1252, nil
	default:
		return "", fmt.Errorf("%w: encoding %q", ErrUnsupported, name)
	}
}

// Options configures stream unwrapping.
type Options struct {
	Compression Compression
	Encoding    Encoding
}

// ObjectStreamer fetches S3 objects. *s3fetch.Client implements it.
type ObjectStreamer interface {
	StreamObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// Input is one named record stream. Format overrides detection when set.
type Input struct {
	Name   string
	Format cdx.Format
	Open   func(ctx context.Context) (io.ReadCloser, error)
}

// Failed returns an Input whose Open always reports err, so a stream that
// could not be prepared is counted as a failed input.
func Failed(name string, err error) Input {
	return Input{
		Name: name,
		Open: func(context.Context) (io.ReadCloser, error) {
			return nil, err
		},
	}
}

// Opener builds Inputs for local, stdin and S3 paths.
type Opener struct {
	opts    Options
	objects ObjectStreamer
	stdin   io.Reader
}

// NewOpener creates an Opener. objects may be nil when no s3:// path is used.
func NewOpener(opts Options, objects ObjectStreamer) *Opener {
	if opts.Compression == "" {
		opts.Compression = CompressionAuto
	}
	if opts.Encoding == "" {
		opts.Encoding = EncodingUTF8
	}
	return &Opener{opts: opts, objects: objects, stdin: os.Stdin}
}

// WithStdin replaces the reader used for "-".
func (o *Opener) WithStdin(r io.Reader) *Opener {
	o.stdin = r
	return o
}

// Input returns a lazily opened stream for name.
func (o *Opener) Input(name string) Input {
	return Input{
		Name: name,
		Open: func(ctx context.Context) (io.ReadCloser, error) {
			return o.Open(ctx, name)
		},
	}
}

// Inputs maps Input over names.
func (o *Opener) Inputs(names []string) []Input {
	inputs := make([]Input, len(names))
	for i, name := range names {
		inputs[i] = o.Input(name)
	}
	return inputs
}

// Open opens name and unwraps compression and encoding.
func (o *Opener) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	raw, err := o.openRaw(ctx, name)
	if err != nil {
		return nil, err
	}
	rc, err := Wrap(raw, o.opts)
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return rc, nil
}

func (o *Opener) openRaw(ctx context.Context, name string) (io.ReadCloser, error) {
	switch {
	case name == StdinName:
		return io.NopCloser(o.stdin), nil
	case s3fetch.IsURI(name):
		if o.objects == nil {
			return nil, fmt.Errorf("open %s: no S3 client configured", name)
		}
		bucket, key, err := s3fetch.ParseURI(name)
		if err != nil {
			return nil, err
		}
		return o.objects.StreamObject(ctx, bucket, key)
	default:
		f, err := os.Open(name)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		return f, nil
	}
}

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Wrap layers decompression and decoding over raw. Closing the result
// closes raw.
func Wrap(raw io.ReadCloser, opts Options) (io.ReadCloser, error) {
	br := bufio.NewReaderSize(raw, 64*1024)
	s := &stream{closers: []io.Closer{raw}}

	var r io.Reader = br
	switch opts.Compression {
	case CompressionNever:
	case CompressionForce:
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		s.push(zr)
		r = zr
	default:
		head, _ := br.Peek(len(zstdMagic))
		switch {
		case bytes.HasPrefix(head, gzipMagic):
			zr, err := gzip.NewReader(br)
			if err != nil {
				return nil, fmt.Errorf("gzip: %w", err)
			}
			s.push(zr)
			r = zr
		case bytes.HasPrefix(head, zstdMagic):
			zr, err := zstd.NewReader(br)
			if err != nil {
				return nil, fmt.Errorf("zstd: %w", err)
			}
			rc := zr.IOReadCloser()
			s.push(rc)
			r = rc
		}
	}

	switch opts.Encoding {
	case EncodingLatin1:
		r = charmap.ISO8859_1.NewDecoder().Reader(r)
	case EncodingWindows1252:
		r = charmap.Windows1252.NewDecoder().Reader(r)
	}

	s.Reader = r
	return s, nil
}

// stream closes its layers innermost first.
type stream struct {
	io.Reader
	closers []io.Closer
}

func (s *stream) push(c io.Closer) {
	s.closers = append(s.closers, c)
}

func (s *stream) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
