package codec

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/emilianohg/cvsbrowse/internal/changes"
	"github.com/emilianohg/cvsbrowse/internal/revision"
)

// FormatVersion tags every encoded changelist. Bump it whenever the layout changes.
const FormatVersion int32 = 3

// maxStringLen bounds string lengths read from cache entries.
const maxStringLen = 16 << 20

var (
	ErrUnsupportedFormatVersion = errors.New("unsupported changelist format version")
	ErrCorrupt                  = errors.New("corrupt changelist encoding")
)

// DecodeError describes why a cached changelist could not be read.
type DecodeError struct {
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode changelist %s: %v", e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Context binds a decoded changelist to the location it was read for.
type Context struct {
	RootPath string
	Window   time.Duration
}

// Encode serializes cl in the versioned binary layout.
func Encode(cl *changes.ChangeList) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, cl); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func Write(w io.Writer, cl *changes.ChangeList) error {
	bw := bufio.NewWriter(w)
	enc := &encoder{w: bw}

	enc.int32(FormatVersion)
	enc.int64(cl.Number)
	enc.string(cl.Author)
	enc.string(cl.Message)
	enc.nullableString(cl.Branch)
	enc.int64(cl.CommitDate.UnixMilli())
	if len(cl.Files) > math.MaxInt32 {
		return fmt.Errorf("changelist %d has too many files: %d", cl.Number, len(cl.Files))
	}
	enc.int32(int32(len(cl.Files)))
	for _, f := range cl.Files {
		enc.string(f.Path)
		enc.string(f.Revision.String())
	}

	if enc.err != nil {
		return fmt.Errorf("encode changelist %d: %w", cl.Number, enc.err)
	}
	return bw.Flush()
}

// Decode reads one changelist and rejects trailing bytes.
func Decode(data []byte, ctx Context) (*changes.ChangeList, error) {
	r := bytes.NewReader(data)
	cl, err := Read(r, ctx)
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, &DecodeError{Field: "trailer", Err: fmt.Errorf("%w: %d unexpected bytes", ErrCorrupt, r.Len())}
	}
	return cl, nil
}

// Read decodes one changelist from r.
func Read(r io.Reader, ctx Context) (*changes.ChangeList, error) {
	dec := &decoder{r: r}

	version := dec.int32("format version")
	if dec.err != nil {
		return nil, dec.err
	}
	if version != FormatVersion {
		return nil, &DecodeError{Field: "format version", Err: fmt.Errorf("%w: %d", ErrUnsupportedFormatVersion, version)}
	}

	number := dec.int64("sequence number")
	author := dec.string("author")
	message := dec.string("message")
	branch := dec.nullableString("branch")
	commitDate := dec.int64("commit date")
	count := dec.int32("file count")
	if dec.err != nil {
		return nil, dec.err
	}
	if count < 0 {
		return nil, &DecodeError{Field: "file count", Err: fmt.Errorf("%w: negative count %d", ErrCorrupt, count)}
	}

	cl := changes.NewChangeList(number, author, message, branch, time.UnixMilli(commitDate), ctx.RootPath, ctx.Window)
	for i := int32(0); i < count; i++ {
		path := dec.string("file path")
		rev := dec.string("file revision")
		if dec.err != nil {
			return nil, dec.err
		}
		parsed, err := revision.Parse(rev)
		if err != nil {
			return nil, &DecodeError{Field: "file revision", Err: fmt.Errorf("%w: %v", ErrCorrupt, err)}
		}
		if !cl.AddFileRevision(path, parsed) {
			return nil, &DecodeError{Field: "file path", Err: fmt.Errorf("%w: duplicate path %q", ErrCorrupt, path)}
		}
	}
	return cl, nil
}

type encoder struct {
	w   io.Writer
	err error
}

func (e *encoder) write(v any) {
	if e.err != nil {
		return
	}
	e.err = binary.Write(e.w, binary.BigEndian, v)
}

func (e *encoder) int32(v int32) { e.write(v) }
func (e *encoder) int64(v int64) { e.write(v) }

func (e *encoder) string(s string) {
	if len(s) > maxStringLen {
		if e.err == nil {
			e.err = fmt.Errorf("string of %d bytes exceeds limit", len(s))
		}
		return
	}
	e.int32(int32(len(s)))
	if e.err != nil {
		return
	}
	_, e.err = io.WriteString(e.w, s)
}

func (e *encoder) nullableString(s *string) {
	if s == nil {
		e.write(uint8(0))
		return
	}
	e.write(uint8(1))
	e.string(*s)
}

type decoder struct {
	r   io.Reader
	err error
}

func (d *decoder) read(field string, v any) {
	if d.err != nil {
		return
	}
	if err := binary.Read(d.r, binary.BigEndian, v); err != nil {
		d.err = &DecodeError{Field: field, Err: fmt.Errorf("%w: %v", ErrCorrupt, err)}
	}
}

func (d *decoder) int32(field string) int32 {
	var v int32
	d.read(field, &v)
	return v
}

func (d *decoder) int64(field string) int64 {
	var v int64
	d.read(field, &v)
	return v
}

func (d *decoder) string(field string) string {
	n := d.int32(field)
	if d.err != nil {
		return ""
	}
	if n < 0 || n > maxStringLen {
		d.err = &DecodeError{Field: field, Err: fmt.Errorf("%w: string length %d", ErrCorrupt, n)}
		return ""
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		d.err = &DecodeError{Field: field, Err: fmt.Errorf("%w: %v", ErrCorrupt, err)}
		return ""
	}
	return string(buf)
}

func (d *decoder) nullableString(field string) *string {
	var present uint8
	d.read(field, &present)
	if d.err != nil {
		return nil
	}
	switch present {
	case 0:
		return nil
	case 1:
		s := d.string(field)
		return &s
	default:
		d.err = &DecodeError{Field: field, Err: fmt.Errorf("%w: presence byte %d", ErrCorrupt, present)}
		return nil
	}
}
