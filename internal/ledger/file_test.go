package ledger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// FileSuite is a test suite for the file-backed ledger.
type FileSuite struct {
	suite.Suite
	path string
}

func (s *FileSuite) SetupTest() {
	s.path = filepath.Join(s.T().TempDir(), "progress", "scanning_progress.txt")
}

func TestFileSuite(t *testing.T) {
	suite.Run(t, new(FileSuite))
}

func (s *FileSuite) open() *File {
	l, err := OpenFile(s.path)
	s.Require().NoError(err)
	return l
}

func (s *FileSuite) contents() string {
	data, err := os.ReadFile(s.path)
	s.Require().NoError(err)
	return string(data)
}

// TestCommit_AppendsLines writes one id per line.
func (s *FileSuite) TestCommit_AppendsLines() {
	l := s.open()
	defer l.Close()

	s.False(l.Has("0.0000_0.0000"))
	s.NoError(l.Commit("0.0000_0.0000"))
	s.NoError(l.Commit("0.0000_10.0000"))
	s.True(l.Has("0.0000_0.0000"))
	s.Equal(2, l.Len())

	s.Equal("0.0000_0.0000\n0.0000_10.0000\n", s.contents())
}

// TestCommit_Idempotent keeps union semantics for repeated commits.
func (s *FileSuite) TestCommit_Idempotent() {
	l := s.open()
	defer l.Close()

	for i := 0; i < 3; i++ {
		s.NoError(l.Commit("1.0000_2.0000"))
	}
	s.Equal(1, l.Len())
	s.Equal("1.0000_2.0000\n", s.contents())
}

// TestReopen_LoadsCommitted is the resume path.
func (s *FileSuite) TestReopen_LoadsCommitted() {
	l := s.open()
	s.NoError(l.Commit("a"))
	s.NoError(l.Commit("b"))
	s.NoError(l.Close())

	l2 := s.open()
	defer l2.Close()
	s.True(l2.Has("a"))
	s.True(l2.Has("b"))
	s.False(l2.Has("c"))
	s.Equal(2, l2.Len())

	s.NoError(l2.Commit("b"))
	s.NoError(l2.Commit("c"))
	s.Equal("a\nb\nc\n", s.contents())
}

// TestOpen_DropsTornFinalLine treats a missing trailing newline as an
// interrupted append and cuts it from the file.
func (s *FileSuite) TestOpen_DropsTornFinalLine() {
	s.Require().NoError(os.MkdirAll(filepath.Dir(s.path), 0750))
	s.Require().NoError(os.WriteFile(s.path, []byte("a\nb\n12.34"), 0640))

	l := s.open()
	defer l.Close()
	s.True(l.Has("a"))
	s.True(l.Has("b"))
	s.False(l.Has("12.34"))
	s.Equal(2, l.Len())
	s.Equal("a\nb\n", s.contents())

	s.NoError(l.Commit("12.3400_5.0000"))
	s.Equal("a\nb\n12.3400_5.0000\n", s.contents())

	l.Close()
	l2 := s.open()
	defer l2.Close()
	s.True(l2.Has("12.3400_5.0000"))
	s.False(l2.Has("12.34"))
	s.Equal(3, l2.Len())
}

// TestOpen_TornOnlyLine empties a file holding nothing but a fragment.
func (s *FileSuite) TestOpen_TornOnlyLine() {
	s.Require().NoError(os.MkdirAll(filepath.Dir(s.path), 0750))
	s.Require().NoError(os.WriteFile(s.path, []byte("0.00"), 0640))

	l := s.open()
	defer l.Close()
	s.Equal(0, l.Len())
	s.Equal("", s.contents())

	s.NoError(l.Commit("0.0000_0.0000"))
	s.Equal("0.0000_0.0000\n", s.contents())
}

// TestOpen_SkipsBlankAndCRLF tolerates hand-edited files.
func (s *FileSuite) TestOpen_SkipsBlankAndCRLF() {
	s.Require().NoError(os.MkdirAll(filepath.Dir(s.path), 0750))
	s.Require().NoError(os.WriteFile(s.path, []byte("a\r\n\n  b  \n"), 0640))

	l := s.open()
	defer l.Close()
	s.True(l.Has("a"))
	s.True(l.Has("b"))
	s.Equal(2, l.Len())
}

// TestCommit_RejectsInvalidIDs keeps the file one id per line.
func (s *FileSuite) TestCommit_RejectsInvalidIDs() {
	l := s.open()
	defer l.Close()

	for _, id := range []string{"", "a\nb", "x\r"} {
		s.ErrorIs(l.Commit(id), ErrInvalidID)
	}
	s.Equal(0, l.Len())
	s.Equal("", s.contents())
}

func TestMemory(t *testing.T) {
	m := NewMemory("seed")
	assert.True(t, m.Has("seed"))
	require.NoError(t, m.Commit("x"))
	require.NoError(t, m.Commit("x"))
	assert.Equal(t, 2, m.Len())
	assert.ErrorIs(t, m.Commit(""), ErrInvalidID)
	assert.NoError(t, m.Close())
}

func TestFileView(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scanning_progress.txt")
	ctx := context.Background()
	view := NewFileView(path)

	n, err := view.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "missing file is an empty ledger")

	l, err := OpenFile(path)
	require.NoError(t, err)
	defer l.Close()
	for _, id := range []string{"0.0000_0.0000", "10.0000_0.0000", "20.0000_0.0000"} {
		require.NoError(t, l.Commit(id))
	}

	tests := []struct {
		name          string
		limit, offset int
		want          []string
	}{
		{name: "all newest first", limit: 0, offset: 0, want: []string{"20.0000_0.0000", "10.0000_0.0000", "0.0000_0.0000"}},
		{name: "limited", limit: 1, offset: 0, want: []string{"20.0000_0.0000"}},
		{name: "offset", limit: 5, offset: 2, want: []string{"0.0000_0.0000"}},
		{name: "past end", limit: 5, offset: 3, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := view.Entries(ctx, tt.limit, tt.offset)
			require.NoError(t, err)
			var got []string
			for _, e := range entries {
				got = append(got, e.PatchID)
			}
			assert.Equal(t, tt.want, got)
		})
	}

	n, err = view.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestFileView_SkipsTornLineWithoutWriting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scanning_progress.txt")
	require.NoError(t, os.WriteFile(path, []byte("a\na\nb\n12.3"), 0640))

	n, err := NewFileView(path).Count(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a\na\nb\n12.3", string(data))
}
