package storage

import (
	"path/filepath"
	"testing"

	"github.com/matryer/is"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndLoad(t *testing.T) {
	is := is.New(t)
	s := openTest(t)

	_, found, err := s.LoadAnalysis(startFEN)
	is.NoErr(err)
	is.True(!found) // empty store

	ok, err := s.SaveAnalysis(Analysis{FEN: startFEN, BestMove: "e2e4", Score: 30, Depth: 6, PV: []string{"e2e4", "e7e5"}})
	is.NoErr(err)
	is.True(ok)

	a, found, err := s.LoadAnalysis(startFEN)
	is.NoErr(err)
	is.True(found)
	is.Equal(a.BestMove, "e2e4")
	is.Equal(a.Depth, 6)
	is.Equal(a.PV, []string{"e2e4", "e7e5"})
	is.True(!a.Searched.IsZero())
}

func TestMoveCountersDoNotMatter(t *testing.T) {
	s := openTest(t)
	_, err := s.SaveAnalysis(Analysis{FEN: startFEN, BestMove: "d2d4", Depth: 3})
	require.NoError(t, err)

	a, found, err := s.LoadAnalysis("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 12 40")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "d2d4", a.BestMove)

	_, found, err = s.LoadAnalysis("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR b KQkq - 0 1")
	require.NoError(t, err)
	assert.False(t, found, "side to move is part of the key")
}

func TestShallowerRecordDoesNotReplace(t *testing.T) {
	s := openTest(t)

	ok, err := s.SaveAnalysis(Analysis{FEN: startFEN, BestMove: "e2e4", Depth: 8})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.SaveAnalysis(Analysis{FEN: startFEN, BestMove: "a2a3", Depth: 4})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.SaveAnalysis(Analysis{FEN: startFEN, BestMove: "g1f3", Depth: 8})
	require.NoError(t, err)
	assert.True(t, ok, "equal depth replaces")

	a, _, err := s.LoadAnalysis(startFEN)
	require.NoError(t, err)
	assert.Equal(t, "g1f3", a.BestMove)

	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestInvalidFEN(t *testing.T) {
	s := openTest(t)
	_, err := s.SaveAnalysis(Analysis{FEN: "8/8/8 w"})
	assert.ErrorIs(t, err, ErrInvalidFEN)
	_, _, err = s.LoadAnalysis("")
	assert.ErrorIs(t, err, ErrInvalidFEN)
}

func TestOnDiskStorePersists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")

	s, err := Open(dir)
	require.NoError(t, err)
	_, err = s.SaveAnalysis(Analysis{FEN: startFEN, BestMove: "c2c4", Depth: 5})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()
	a, found, err := s.LoadAnalysis(startFEN)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "c2c4", a.BestMove)
}

func TestResolveDir(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	dir, err := ResolveDir("")
	require.NoError(t, err)
	assert.Empty(t, dir)

	dir, err = ResolveDir("/tmp/x")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x", dir)

	dir, err = ResolveDir("auto")
	require.NoError(t, err)
	assert.DirExists(t, dir)
	assert.Equal(t, "analysis", filepath.Base(dir))
}

func TestOpenDir(t *testing.T) {
	s, err := OpenDir("")
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = OpenDir(MemoryDir)
	require.NoError(t, err)
	require.NotNil(t, s)
	require.NoError(t, s.Close())

	s, err = OpenDir(filepath.Join(t.TempDir(), "analysis"))
	require.NoError(t, err)
	require.NoError(t, s.Close())
}
