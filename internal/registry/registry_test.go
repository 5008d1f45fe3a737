package registry

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildZipsPositionally(t *testing.T) {
	reg, err := Build(
		[]string{"Cirrus", "Cumulus"},
		[]string{"wispy, high-altitude", "puffy, fair-weather"},
		[]string{"fair weather likely", "fair weather likely"},
	)
	require.NoError(t, err)
	require.Equal(t, 2, reg.Size())

	rec, err := reg.RecordAt(1)
	require.NoError(t, err)
	assert.Equal(t, Record{
		Index:       1,
		Name:        "Cumulus",
		Description: "puffy, fair-weather",
		Indication:  "fair weather likely",
	}, rec)
	assert.Equal(t, []string{"Cirrus", "Cumulus"}, reg.Names())
}

func TestBuildRejectsMismatchedLengths(t *testing.T) {
	cases := []struct {
		name        string
		names       []string
		descs       []string
		indications []string
	}{
		{"short descriptions", []string{"a", "b"}, []string{"x"}, []string{"1", "2"}},
		{"short indications", []string{"a", "b"}, []string{"x", "y"}, []string{"1"}},
		{"extra names", []string{"a", "b", "c"}, []string{"x", "y"}, []string{"1", "2"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reg, err := Build(tc.names, tc.descs, tc.indications)
			require.ErrorIs(t, err, ErrSchemaMismatch)
			assert.Nil(t, reg)
		})
	}
}

func TestBuildRejectsEmpty(t *testing.T) {
	_, err := Build(nil, nil, nil)
	require.ErrorIs(t, err, ErrEmpty)
}

func TestRecordAtOutOfRange(t *testing.T) {
	reg, err := Build([]string{"a"}, []string{"b"}, []string{"c"})
	require.NoError(t, err)

	for _, idx := range []int{-1, 1, 42} {
		_, err := reg.RecordAt(idx)
		assert.True(t, errors.Is(err, ErrIndexOutOfRange), "index %d", idx)
	}
}

func TestRecordsReturnsCopy(t *testing.T) {
	reg, err := Build([]string{"a"}, []string{"b"}, []string{"c"})
	require.NoError(t, err)

	recs := reg.Records()
	recs[0].Name = "mutated"

	rec, err := reg.RecordAt(0)
	require.NoError(t, err)
	assert.Equal(t, "a", rec.Name)
}

func TestReadLines(t *testing.T) {
	lines, err := ReadLines(strings.NewReader("one\r\n\nthree\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "", "three"}, lines)
}

func TestLoadFromFiles(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		return p
	}

	reg, err := Load(Paths{
		Labels:       write("labels.txt", "0 Cirrus\n1 Cumulus\n"),
		Descriptions: write("description.txt", "wispy\npuffy\n"),
		Indications:  write("indicator.txt", "fair\nfair\n"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Cirrus", "Cumulus"}, reg.Names())
}

func TestLoadMismatchedFiles(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		return p
	}

	_, err := Load(Paths{
		Labels:       write("labels.txt", "Cirrus\nCumulus\nStratus\n"),
		Descriptions: write("description.txt", "wispy\npuffy\n"),
		Indications:  write("indicator.txt", "fair\nfair\nrain\n"),
	})
	require.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(Paths{Labels: filepath.Join(t.TempDir(), "nope.txt")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load labels")
}

func TestStripIndexPrefix(t *testing.T) {
	assert.Equal(t, "Cirrus", stripIndexPrefix("0 Cirrus", 0))
	assert.Equal(t, "Alto Cumulus", stripIndexPrefix("3 Alto Cumulus", 3))
	assert.Equal(t, "7 Cirrus", stripIndexPrefix("7 Cirrus", 0))
	assert.Equal(t, "Cirro Stratus", stripIndexPrefix("Cirro Stratus", 2))
}
