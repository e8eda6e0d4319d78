package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emilianohg/cvsbrowse/internal/changes"
	"github.com/emilianohg/cvsbrowse/internal/revision"
)

var commitDate = time.Date(2011, time.June, 1, 9, 30, 15, 250*int(time.Millisecond), time.UTC)

func newChangeList(branch *string, files ...string) *changes.ChangeList {
	cl := changes.NewChangeList(42, "alice", "fix bug\n\nwith a longer body", branch, commitDate, "proj", 0)
	for i, f := range files {
		cl.AddFileRevision(f, revision.MustParse(fmt.Sprintf("1.%d", i+1)))
	}
	return cl
}

func assertSameChangeList(t *testing.T, want, got *changes.ChangeList) {
	t.Helper()

	assert.Equal(t, want.Number, got.Number)
	assert.Equal(t, want.Author, got.Author)
	assert.Equal(t, want.Message, got.Message)
	assert.Equal(t, want.Branch, got.Branch)
	assert.True(t, want.CommitDate.Equal(got.CommitDate), "commit date %s != %s", want.CommitDate, got.CommitDate)
	assert.Equal(t, want.RootPath, got.RootPath)
	require.Len(t, got.Files, len(want.Files))
	for i := range want.Files {
		assert.Equal(t, want.Files[i].Path, got.Files[i].Path)
		assert.Equal(t, want.Files[i].Revision.String(), got.Files[i].Revision.String())
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	t.Run("should round-trip a trunk changelist with three files", func(t *testing.T) {
		// given
		cl := newChangeList(nil, "proj/a.c", "proj/b.c", "proj/doc/readme.txt")

		// when
		data, err := Encode(cl)
		require.NoError(t, err)
		got, err := Decode(data, Context{RootPath: "proj"})

		// then
		require.NoError(t, err)
		assert.Nil(t, got.Branch)
		assertSameChangeList(t, cl, got)
	})

	t.Run("should round-trip a branch changelist", func(t *testing.T) {
		branch := "feature-x"
		cl := newChangeList(&branch, "proj/a.c")

		data, err := Encode(cl)
		require.NoError(t, err)
		got, err := Decode(data, Context{RootPath: "proj"})

		require.NoError(t, err)
		require.NotNil(t, got.Branch)
		assertSameChangeList(t, cl, got)
	})

	t.Run("should round-trip random changelists", func(t *testing.T) {
		rng := rand.New(rand.NewSource(3))
		for i := 0; i < 100; i++ {
			var branch *string
			if rng.Intn(2) == 0 {
				name := fmt.Sprintf("branch-%d", rng.Intn(5))
				branch = &name
			}
			at := time.UnixMilli(rng.Int63n(2_000_000_000_000)).UTC()
			cl := changes.NewChangeList(rng.Int63(), fmt.Sprintf("user%d", rng.Intn(9)), fmt.Sprintf("msg ünïcode %d", i), branch, at, "proj", 0)
			files := rng.Intn(6)
			for j := 0; j < files; j++ {
				cl.AddFileRevision(fmt.Sprintf("proj/f%d.c", j), revision.MustParse(fmt.Sprintf("1.%d.2.%d", 1+rng.Intn(9), 1+rng.Intn(9))))
			}

			data, err := Encode(cl)
			require.NoError(t, err)
			got, err := Decode(data, Context{RootPath: "proj"})

			require.NoError(t, err)
			assertSameChangeList(t, cl, got)
		}
	})

	t.Run("should bind the decode context", func(t *testing.T) {
		cl := newChangeList(nil, "proj/a.c")
		data, err := Encode(cl)
		require.NoError(t, err)

		got, err := Decode(data, Context{RootPath: "other", Window: time.Hour})

		require.NoError(t, err)
		assert.Equal(t, "other", got.RootPath)
		assert.Equal(t, time.Hour, got.Window())
	})

	t.Run("should read consecutive changelists from one stream", func(t *testing.T) {
		var buf bytes.Buffer
		first := newChangeList(nil, "proj/a.c")
		second := changes.NewChangeList(43, "bob", "second", nil, commitDate.Add(time.Hour), "proj", 0)
		require.NoError(t, Write(&buf, first))
		require.NoError(t, Write(&buf, second))

		gotFirst, err := Read(&buf, Context{RootPath: "proj"})
		require.NoError(t, err)
		gotSecond, err := Read(&buf, Context{RootPath: "proj"})
		require.NoError(t, err)

		assertSameChangeList(t, first, gotFirst)
		assertSameChangeList(t, second, gotSecond)
	})
}

func TestLayout(t *testing.T) {
	t.Parallel()

	cl := changes.NewChangeList(7, "al", "m", nil, time.UnixMilli(1000), "proj", 0)
	cl.AddFileRevision("f", revision.MustParse("1.1"))

	data, err := Encode(cl)
	require.NoError(t, err)

	var expected bytes.Buffer
	_ = binary.Write(&expected, binary.BigEndian, int32(3))
	_ = binary.Write(&expected, binary.BigEndian, int64(7))
	_ = binary.Write(&expected, binary.BigEndian, int32(2))
	expected.WriteString("al")
	_ = binary.Write(&expected, binary.BigEndian, int32(1))
	expected.WriteString("m")
	expected.WriteByte(0)
	_ = binary.Write(&expected, binary.BigEndian, int64(1000))
	_ = binary.Write(&expected, binary.BigEndian, int32(1))
	_ = binary.Write(&expected, binary.BigEndian, int32(1))
	expected.WriteString("f")
	_ = binary.Write(&expected, binary.BigEndian, int32(3))
	expected.WriteString("1.1")

	assert.Equal(t, expected.Bytes(), data)
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()

	valid, err := Encode(newChangeList(nil, "proj/a.c", "proj/b.c"))
	require.NoError(t, err)

	t.Run("should reject unknown format versions", func(t *testing.T) {
		data := append([]byte(nil), valid...)
		binary.BigEndian.PutUint32(data, 2)

		_, err := Decode(data, Context{})

		assert.ErrorIs(t, err, ErrUnsupportedFormatVersion)
		assert.False(t, errors.Is(err, ErrCorrupt))
		var decodeErr *DecodeError
		assert.True(t, errors.As(err, &decodeErr))
	})

	t.Run("should report every truncation as corrupt", func(t *testing.T) {
		for cut := 0; cut < len(valid); cut++ {
			_, err := Decode(valid[:cut], Context{})

			require.Error(t, err, "cut at %d", cut)
			assert.ErrorIs(t, err, ErrCorrupt, "cut at %d", cut)
		}
	})

	t.Run("should reject trailing bytes", func(t *testing.T) {
		_, err := Decode(append(append([]byte(nil), valid...), 0), Context{})

		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("should reject a bad presence byte", func(t *testing.T) {
		cl := changes.NewChangeList(1, "a", "m", nil, commitDate, "proj", 0)
		data, err := Encode(cl)
		require.NoError(t, err)
		// version(4) + number(8) + author(4+1) + message(4+1)
		data[22] = 7

		_, err = Decode(data, Context{})

		assert.ErrorIs(t, err, ErrCorrupt)
	})
}
