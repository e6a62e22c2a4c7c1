package bolt

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/flarexio/codeindex/manifest"
)

type manifestTestSuite struct {
	suite.Suite
	path     string
	manifest manifest.Manifest
}

func (suite *manifestTestSuite) SetupTest() {
	suite.path = filepath.Join(suite.T().TempDir(), "manifest.db")

	m, err := NewManifest(suite.path)
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	suite.manifest = m
}

func (suite *manifestTestSuite) TearDownTest() {
	if suite.manifest != nil {
		suite.manifest.Close()
	}
}

func (suite *manifestTestSuite) TestPutDelete() {
	ctx := context.Background()

	record := manifest.FileRecord{
		FilePath:   "src/a.js",
		Language:   "javascript",
		ChunkCount: 2,
		PointIDs:   []string{"src/a.js:1-3", "src/a.js:5-7"},
		IndexedAt:  time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	suite.NoError(suite.manifest.Put(ctx, record))

	files, err := suite.manifest.List(ctx)
	if !suite.NoError(err) || !suite.Len(files, 1) {
		return
	}

	got := files[0]
	suite.Equal(record.PointIDs, got.PointIDs)
	suite.Equal(2, got.ChunkCount)
	suite.True(record.IndexedAt.Equal(got.IndexedAt))

	// Put replaces the previous record of the same file.
	record.ChunkCount = 3
	suite.NoError(suite.manifest.Put(ctx, record))

	files, err = suite.manifest.List(ctx)
	if suite.NoError(err) && suite.Len(files, 1) {
		suite.Equal(3, files[0].ChunkCount)
	}

	suite.NoError(suite.manifest.Delete(ctx, "src/a.js"))

	files, err = suite.manifest.List(ctx)
	suite.NoError(err)
	suite.Empty(files)

	// Deleting a missing record is not an error.
	suite.NoError(suite.manifest.Delete(ctx, "src/a.js"))
}

func (suite *manifestTestSuite) TestListSortedByPath() {
	ctx := context.Background()

	files, err := suite.manifest.List(ctx)
	suite.NoError(err)
	suite.Empty(files)

	for _, path := range []string{"src/z.go", "README.md", "src/a.go"} {
		suite.NoError(suite.manifest.Put(ctx, manifest.FileRecord{FilePath: path}))
	}

	files, err = suite.manifest.List(ctx)
	if !suite.NoError(err) || !suite.Len(files, 3) {
		return
	}

	suite.Equal("README.md", files[0].FilePath)
	suite.Equal("src/a.go", files[1].FilePath)
	suite.Equal("src/z.go", files[2].FilePath)
}

func (suite *manifestTestSuite) TestReopen() {
	ctx := context.Background()

	suite.NoError(suite.manifest.Put(ctx, manifest.FileRecord{FilePath: "a.py", ChunkCount: 1}))
	suite.NoError(suite.manifest.Close())

	m, err := NewManifest(suite.path)
	if !suite.NoError(err) {
		return
	}
	suite.manifest = m

	files, err := m.List(ctx)
	if suite.NoError(err) && suite.Len(files, 1) {
		suite.Equal(1, files[0].ChunkCount)
	}
}

func TestManifestTestSuite(t *testing.T) {
	suite.Run(t, new(manifestTestSuite))
}
