package cvs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAdmin(t *testing.T, dir, root, repository string) {
	t.Helper()

	admin := filepath.Join(dir, "CVS")
	require.NoError(t, os.MkdirAll(admin, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(admin, "Root"), []byte(root+"\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(admin, "Repository"), []byte(repository+"\n"), 0644))
}

func TestReadCheckout(t *testing.T) {
	t.Parallel()

	t.Run("should read a relative repository", func(t *testing.T) {
		// given
		dir := t.TempDir()
		writeAdmin(t, dir, ":pserver:anon@cvs.example.org:/cvsroot", "proj/src")

		// when
		checkout, err := ReadCheckout(dir)

		// then
		require.NoError(t, err)
		assert.Equal(t, ":pserver:anon@cvs.example.org:/cvsroot", checkout.CvsRoot)
		assert.Equal(t, "proj/src", checkout.Module)
	})

	t.Run("should strip an absolute repository path", func(t *testing.T) {
		dir := t.TempDir()
		writeAdmin(t, dir, "/var/lib/cvs", "/var/lib/cvs/proj")

		checkout, err := ReadCheckout(dir)

		require.NoError(t, err)
		assert.Equal(t, "proj", checkout.Module)
	})

	t.Run("should reject plain directories", func(t *testing.T) {
		_, err := ReadCheckout(t.TempDir())

		assert.ErrorContains(t, err, "not a CVS checkout")
	})
}

func TestReadEntry(t *testing.T) {
	t.Parallel()

	entries := "/main.c/1.4/Wed Mar  4 12:00:00 2009//\n" +
		"/util.c/1.2.2.3/Wed Mar  4 12:00:00 2009/-kk/Tfeature-x\n" +
		"/old.c/1.7/Wed Mar  4 12:00:00 2009//D2009.01.01.00.00.00\n" +
		"D/src////\n"

	setup := func(t *testing.T) string {
		dir := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "CVS"), 0755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "CVS", "Entries"), []byte(entries), 0644))
		return dir
	}

	t.Run("should read a trunk entry", func(t *testing.T) {
		// given
		dir := setup(t)

		// when
		entry, err := ReadEntry(dir, "main.c")

		// then
		require.NoError(t, err)
		assert.Equal(t, "1.4", entry.Revision)
		assert.Nil(t, entry.Tag)
	})

	t.Run("should read a sticky tag", func(t *testing.T) {
		entry, err := ReadEntry(setup(t), "util.c")

		require.NoError(t, err)
		assert.Equal(t, "1.2.2.3", entry.Revision)
		require.NotNil(t, entry.Tag)
		assert.Equal(t, "feature-x", *entry.Tag)
	})

	t.Run("should ignore sticky dates", func(t *testing.T) {
		entry, err := ReadEntry(setup(t), "old.c")

		require.NoError(t, err)
		assert.Nil(t, entry.Tag)
	})

	t.Run("should report files not under CVS control", func(t *testing.T) {
		_, err := ReadEntry(setup(t), "src")

		assert.ErrorIs(t, err, ErrNoEntry)
	})
}
