package records

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/outreach/internal/models"
)

func TestRead_PreservesOrderAndNormalizes(t *testing.T) {
	input := "\xef\xbb\xbfName, Email ,Company\nAnn, a@x.com ,Acme\nBob,b@x.com,\n"

	recs, err := Read(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, models.Record{"name": "Ann", "email": "a@x.com", "company": "Acme"}, recs[0])
	assert.Equal(t, "b@x.com", recs[1].Email())
	assert.Equal(t, "", recs[1]["company"])
}

func TestRead_RowWithoutEmailValueIsKept(t *testing.T) {
	recs, err := Read(strings.NewReader("name,email\nAnn,\n"))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "", recs[0].Email(), "dispatcher decides what to do with it")
}

func TestRead_NoEmailColumn(t *testing.T) {
	_, err := Read(strings.NewReader("name,company\nAnn,Acme\n"))
	assert.ErrorIs(t, err, ErrNoEmailColumn)
}

func TestRead_Empty(t *testing.T) {
	recs, err := Read(strings.NewReader("  \n"))
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWriteSample_ReadsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "sample.csv")

	require.NoError(t, WriteSample(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "name,email,company,sector,city,position"))

	recs, err := Load(path)
	require.NoError(t, err)
	require.Len(t, recs, len(SampleRows()))
	assert.Equal(t, "jane.doe@example.com", recs[0].Email())
	assert.Equal(t, "Acme Corp", recs[0]["company"])
}
