package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emilianohg/cvsbrowse/internal/changes"
	"github.com/emilianohg/cvsbrowse/internal/revision"
)

func writeCheckoutFile(t *testing.T, entries string) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "CVS"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "CVS", "Entries"), []byte(entries), 0644))
	file := filepath.Join(dir, "util.c")
	require.NoError(t, os.WriteFile(file, []byte("int x;\n"), 0644))
	return file
}

func TestLocalRevision(t *testing.T) {
	t.Parallel()

	t.Run("should tell whether a branch change is checked out", func(t *testing.T) {
		// given
		file := writeCheckoutFile(t, "/util.c/1.2.2.3/Wed Mar  4 12:00:00 2009//Tfeature-x\n")
		feature := "feature-x"
		cl := changes.NewChangeList(0, "alice", "fix", &feature, time.Date(2009, time.March, 4, 12, 0, 0, 0, time.UTC), "proj", 0)

		// when
		local, tag, ok := localRevision(file)

		// then
		require.True(t, ok)
		assert.Equal(t, "1.2.2.3", local.String())
		assert.True(t, changes.IsChangeLocallyAvailable(local, revision.MustParse("1.2.2.2"), tag, cl))
		assert.False(t, changes.IsChangeLocallyAvailable(local, revision.MustParse("1.2.2.4"), tag, cl))
	})

	t.Run("should treat added files as not checked out", func(t *testing.T) {
		file := writeCheckoutFile(t, "/util.c/0/dummy timestamp//\n")

		local, tag, ok := localRevision(file)

		require.True(t, ok)
		assert.True(t, local.IsZero())
		assert.Nil(t, tag)
	})

	t.Run("should skip files without an entry", func(t *testing.T) {
		file := writeCheckoutFile(t, "/main.c/1.4/Wed Mar  4 12:00:00 2009//\n")

		_, _, ok := localRevision(file)

		assert.False(t, ok)
	})

	t.Run("should skip directories", func(t *testing.T) {
		_, _, ok := localRevision(t.TempDir())

		assert.False(t, ok)
	})
}
