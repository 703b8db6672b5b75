package sink

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/thebtf/clusterscan/pkg/models"
)

type CSVSuite struct {
	suite.Suite
	path string
}

func (s *CSVSuite) SetupTest() {
	s.path = filepath.Join(s.T().TempDir(), "out", "clusters_found.csv")
}

func TestCSVSuite(t *testing.T) {
	suite.Run(t, new(CSVSuite))
}

func (s *CSVSuite) read() string {
	data, err := os.ReadFile(s.path)
	s.Require().NoError(err)
	return string(data)
}

func (s *CSVSuite) TestWrite_AppendsLines() {
	c, err := OpenCSV(s.path)
	s.Require().NoError(err)

	ctx := context.Background()
	s.Require().NoError(c.Write(ctx, models.Detection{RA: 10, Dec: -5, Score: 10.0 / 12.0}, models.PatchData{}))
	s.Require().NoError(c.Write(ctx, models.Detection{RA: 20, Dec: 0, Score: 1}, models.PatchData{}))
	s.Require().NoError(c.Close())

	s.Equal("10.0,-5.0,0.8333333333333334\n20.0,0.0,1.0\n", s.read())
}

func (s *CSVSuite) TestReopen_KeepsExistingRecords() {
	c, err := OpenCSV(s.path)
	s.Require().NoError(err)
	s.Require().NoError(c.Write(context.Background(), models.Detection{RA: 1.5, Dec: 2.5, Score: 0.5}, models.PatchData{}))
	s.Require().NoError(c.Close())

	c, err = OpenCSV(s.path)
	s.Require().NoError(err)
	s.Require().NoError(c.Write(context.Background(), models.Detection{RA: 3, Dec: 4, Score: 0.25}, models.PatchData{}))
	s.Require().NoError(c.Close())

	s.Equal("1.5,2.5,0.5\n3.0,4.0,0.25\n", s.read())
}

func (s *CSVSuite) TestWrite_AfterClose() {
	c, err := OpenCSV(s.path)
	s.Require().NoError(err)
	s.Require().NoError(c.Close())
	s.NoError(c.Close())

	err = c.Write(context.Background(), models.Detection{}, models.PatchData{})
	s.ErrorIs(err, os.ErrClosed)
}

type recordingSink struct {
	name   string
	calls  *[]string
	err    error
	closed bool
}

func (r *recordingSink) Write(_ context.Context, d models.Detection, _ models.PatchData) error {
	*r.calls = append(*r.calls, r.name+":"+d.PatchID())
	return r.err
}

func (r *recordingSink) Close() error {
	r.closed = true
	return r.err
}

func TestMulti_WritesInOrder(t *testing.T) {
	var calls []string
	a := &recordingSink{name: "a", calls: &calls}
	b := &recordingSink{name: "b", calls: &calls}

	m := NewMulti(a, nil, b)
	require.Len(t, m, 2)
	require.NoError(t, m.Write(context.Background(), models.Detection{RA: 1, Dec: 2}, models.PatchData{}))
	assert.Equal(t, []string{"a:1.0000_2.0000", "b:1.0000_2.0000"}, calls)

	require.NoError(t, m.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

func TestMulti_StopsAtFirstError(t *testing.T) {
	var calls []string
	boom := errors.New("disk full")
	a := &recordingSink{name: "a", calls: &calls, err: boom}
	b := &recordingSink{name: "b", calls: &calls}

	m := NewMulti(a, b)
	err := m.Write(context.Background(), models.Detection{}, models.PatchData{})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a:0.0000_0.0000"}, calls)

	assert.ErrorIs(t, m.Close(), boom)
	assert.True(t, b.closed)
}

func TestDiscard(t *testing.T) {
	var s Sink = Discard{}
	assert.NoError(t, s.Write(context.Background(), models.Detection{}, models.PatchData{}))
	assert.NoError(t, s.Close())
}
