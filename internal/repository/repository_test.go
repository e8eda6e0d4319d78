package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emilianohg/cvsbrowse/internal/db"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	database, err := db.OpenPath(filepath.Join(t.TempDir(), "test.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, db.Migrate(database))
	return database
}

var base = time.Date(2009, time.March, 4, 12, 0, 0, 0, time.UTC)

func TestLocationRepo(t *testing.T) {
	t.Parallel()

	t.Run("should create and read locations", func(t *testing.T) {
		// given
		repo := NewLocationRepo(openTestDB(t))

		// when
		loc, err := repo.Create("/work/proj", ":pserver:anon@cvs.example.org:/cvsroot", "proj")

		// then
		require.NoError(t, err)
		require.NotNil(t, loc)
		assert.Equal(t, "/work/proj", loc.RootPath)
		assert.Equal(t, "proj", loc.Module)
		assert.False(t, loc.IsOffline())

		byPath, err := repo.GetByRootPath("/work/proj")
		require.NoError(t, err)
		assert.Equal(t, loc.ID, byPath.ID)
	})

	t.Run("should return nil for unknown locations", func(t *testing.T) {
		repo := NewLocationRepo(openTestDB(t))

		loc, err := repo.GetByID(42)

		require.NoError(t, err)
		assert.Nil(t, loc)
	})

	t.Run("should reject duplicate root paths", func(t *testing.T) {
		repo := NewLocationRepo(openTestDB(t))
		_, err := repo.Create("/work/proj", "", "proj")
		require.NoError(t, err)

		_, err = repo.Create("/work/proj", "", "proj")

		assert.Error(t, err)
	})

	t.Run("should list sorted by root path and delete", func(t *testing.T) {
		repo := NewLocationRepo(openTestDB(t))
		b, err := repo.Create("/work/b", "", "b")
		require.NoError(t, err)
		_, err = repo.Create("/work/a", "", "a")
		require.NoError(t, err)

		all, err := repo.GetAll()
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "/work/a", all[0].RootPath)
		assert.True(t, all[1].IsOffline())

		require.NoError(t, repo.Delete(b.ID))
		all, err = repo.GetAll()
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})
}

func TestChangeListRepo(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	setup := func(t *testing.T) (*ChangeListRepo, *LocationRepo, int64) {
		database := openTestDB(t)
		locations := NewLocationRepo(database)
		loc, err := locations.Create("/work/proj", "/cvsroot", "proj")
		require.NoError(t, err)
		return NewChangeListRepo(database), locations, loc.ID
	}

	t.Run("should store and load newest first", func(t *testing.T) {
		// given
		repo, _, locationID := setup(t)
		lists := []EncodedChangeList{
			{Number: 0, FormatVersion: 3, CommitDate: base, Data: []byte{1}},
			{Number: 1, FormatVersion: 3, CommitDate: base.Add(time.Hour), Data: []byte{2}},
		}

		// when
		require.NoError(t, repo.Replace(ctx, locationID, lists))
		loaded, err := repo.Load(ctx, locationID)

		// then
		require.NoError(t, err)
		require.Len(t, loaded, 2)
		assert.Equal(t, int64(1), loaded[0].Number)
		assert.Equal(t, []byte{2}, loaded[0].Data)
		assert.Equal(t, int32(3), loaded[0].FormatVersion)
		assert.True(t, base.Add(time.Hour).Equal(loaded[0].CommitDate))
		assert.Equal(t, locationID, loaded[1].LocationID)
	})

	t.Run("should replace every row of the location", func(t *testing.T) {
		repo, _, locationID := setup(t)
		require.NoError(t, repo.Replace(ctx, locationID, []EncodedChangeList{
			{Number: 0, FormatVersion: 3, CommitDate: base, Data: []byte{1}},
			{Number: 1, FormatVersion: 3, CommitDate: base, Data: []byte{2}},
		}))

		require.NoError(t, repo.Replace(ctx, locationID, []EncodedChangeList{{Number: 5, FormatVersion: 3, CommitDate: base, Data: []byte{7}}}))

		loaded, err := repo.Load(ctx, locationID)
		require.NoError(t, err)
		require.Len(t, loaded, 1)
		assert.Equal(t, int64(5), loaded[0].Number)
	})

	t.Run("should keep the old rows when a replace fails", func(t *testing.T) {
		// given
		database := openTestDB(t)
		loc, err := NewLocationRepo(database).Create("/work/proj", "/cvsroot", "proj")
		require.NoError(t, err)
		repo := NewChangeListRepo(database)
		require.NoError(t, repo.Replace(ctx, loc.ID, []EncodedChangeList{{Number: 0, FormatVersion: 3, CommitDate: base, Data: []byte{1}}}))
		_, err = database.Exec(`
			CREATE TRIGGER reject_number BEFORE INSERT ON changelist_cache
			WHEN NEW.number = 99
			BEGIN SELECT RAISE(ABORT, 'disk full'); END
		`)
		require.NoError(t, err)

		// when
		err = repo.Replace(ctx, loc.ID, []EncodedChangeList{
			{Number: 1, FormatVersion: 3, CommitDate: base, Data: []byte{2}},
			{Number: 99, FormatVersion: 3, CommitDate: base, Data: []byte{3}},
		})

		// then
		assert.ErrorContains(t, err, "disk full")
		loaded, err := repo.Load(ctx, loc.ID)
		require.NoError(t, err)
		require.Len(t, loaded, 1)
		assert.Equal(t, []byte{1}, loaded[0].Data)
	})

	t.Run("should clear one location", func(t *testing.T) {
		repo, _, locationID := setup(t)
		require.NoError(t, repo.Replace(ctx, locationID, []EncodedChangeList{{Number: 0, FormatVersion: 3, CommitDate: base, Data: []byte{1}}}))

		require.NoError(t, repo.Clear(ctx, locationID))

		count, err := repo.Count(ctx, locationID)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("should drop cache rows with their location", func(t *testing.T) {
		repo, locations, locationID := setup(t)
		require.NoError(t, repo.Replace(ctx, locationID, []EncodedChangeList{{Number: 0, FormatVersion: 3, CommitDate: base, Data: []byte{1}}}))

		require.NoError(t, locations.Delete(locationID))

		count, err := repo.Count(ctx, locationID)
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}

type countingStore struct {
	Store
	loads int
}

func (s *countingStore) Load(ctx context.Context, locationID int64) ([]CachedChangeList, error) {
	s.loads++
	return s.Store.Load(ctx, locationID)
}

func TestCachedStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("should serve repeated loads from memory", func(t *testing.T) {
		// given
		backing := &countingStore{Store: NewChangeListRepo(openTestDB(t))}
		store, err := NewCachedStore(backing, 2)
		require.NoError(t, err)

		// when
		_, err = store.Load(ctx, 1)
		require.NoError(t, err)
		_, err = store.Load(ctx, 1)
		require.NoError(t, err)

		// then
		assert.Equal(t, 1, backing.loads)
	})

	t.Run("should invalidate on replace", func(t *testing.T) {
		database := openTestDB(t)
		loc, err := NewLocationRepo(database).Create("/work/proj", "", "proj")
		require.NoError(t, err)
		backing := &countingStore{Store: NewChangeListRepo(database)}
		store, err := NewCachedStore(backing, 2)
		require.NoError(t, err)
		require.NoError(t, store.Replace(ctx, loc.ID, []EncodedChangeList{{Number: 0, FormatVersion: 3, CommitDate: base, Data: []byte{1}}}))
		_, err = store.Load(ctx, loc.ID)
		require.NoError(t, err)

		require.NoError(t, store.Replace(ctx, loc.ID, []EncodedChangeList{{Number: 1, FormatVersion: 3, CommitDate: base, Data: []byte{2}}}))

		lists, err := store.Load(ctx, loc.ID)
		require.NoError(t, err)
		require.Len(t, lists, 1)
		assert.Equal(t, int64(1), lists[0].Number)
		assert.Equal(t, 2, backing.loads)
	})

	t.Run("should evict the least recently used location", func(t *testing.T) {
		backing := &countingStore{Store: NewChangeListRepo(openTestDB(t))}
		store, err := NewCachedStore(backing, 1)
		require.NoError(t, err)

		for _, id := range []int64{1, 2, 1} {
			_, err := store.Load(ctx, id)
			require.NoError(t, err)
		}

		assert.Equal(t, 3, backing.loads)
	})
}
