package r15

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	reconcile "acc-reconcile/internal/reconcile/domain"
)

const januaryCSV = "Date_Releve;Motif_Releve;EA_HP;EA_HC;Identifiant_PRM\n" +
	"2024-01-01T00:00:00+01:00;ACC;10,5;3;PRM1\n" +
	"2024-01-02T00:00:00+01:00;;11;;PRM1\n" +
	";;;;\n"

const februaryCSV = "Date_Releve;Motif_Releve;EA_HP;EA_BASE\n" +
	"2024-02-01;;1;2\n"

func writeZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	w := zip.NewWriter(f)
	for name, body := range entries {
		entry, err := w.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

func TestLoadCSV(t *testing.T) {
	batch, err := NewLoader().LoadCSV(strings.NewReader(januaryCSV), "jan.csv")
	require.NoError(t, err)
	require.Len(t, batch.Records, 2)
	assert.Equal(t, []string{"EA_HC", "EA_HP"}, batch.Fields)

	first := batch.Records[0]
	assert.Equal(t, time.Date(2023, 12, 31, 23, 0, 0, 0, time.UTC), first.ReadingDate)
	assert.Equal(t, "ACC", first.CollectiveFlag)
	assert.Equal(t, "10.5", first.Energies["EA_HP"].String())
	assert.Equal(t, "3", first.Energies["EA_HC"].String())
	assert.True(t, batch.Records[1].Energies["EA_HC"].IsZero())
}

func TestLoadCSVDeclaredFields(t *testing.T) {
	loader := NewLoader(WithMeasurePrefixes(), WithMeasureFields("EA_HP"))
	batch, err := loader.LoadCSV(strings.NewReader(januaryCSV), "jan.csv")
	require.NoError(t, err)
	assert.Equal(t, []string{"EA_HP"}, batch.Fields)
	assert.NotContains(t, batch.Records[0].Energies, "EA_HC")

	_, err = NewLoader(WithMeasureFields("EA_XX")).LoadCSV(strings.NewReader(januaryCSV), "jan.csv")
	assert.ErrorIs(t, err, reconcile.ErrMalformedInput)
}

func TestLoadCSVMalformed(t *testing.T) {
	_, err := NewLoader().LoadCSV(strings.NewReader("Motif_Releve;EA_HP\nACC;1\n"), "bad.csv")
	var malformed *reconcile.MalformedInputError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "Date_Releve", malformed.Column)

	_, err = NewLoader().LoadCSV(strings.NewReader("Date_Releve;Motif_Releve;EA_HP\n2024-01-01;;abc\n"), "bad.csv")
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, 1, malformed.Row)
	assert.Equal(t, "EA_HP", malformed.Column)
	assert.Equal(t, "abc", malformed.Value)

	_, err = NewLoader().LoadCSV(strings.NewReader("Date_Releve;Motif_Releve;EA_HP\nsoon;;1\n"), "bad.csv")
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "Date_Releve", malformed.Column)
}

func TestLoadCSVWithoutMarkerColumn(t *testing.T) {
	batch, err := NewLoader(WithMarkerColumn("")).LoadCSV(strings.NewReader("Date_Releve;EA_HP\n2024-01-01;1\n"), "plain.csv")
	require.NoError(t, err)
	require.Len(t, batch.Records, 1)
	assert.Equal(t, "", batch.Records[0].CollectiveFlag)
}

func TestLoadCSVEmpty(t *testing.T) {
	batch, err := NewLoader().LoadCSV(strings.NewReader(""), "empty.csv")
	require.NoError(t, err)
	require.NotNil(t, batch.Records)
	assert.Empty(t, batch.Records)
}

func TestLoadPathFolderWithZip(t *testing.T) {
	dir := t.TempDir()
	writeZip(t, filepath.Join(dir, "r15_2024_01.zip"), map[string]string{
		"R15_ACC_jan.csv": januaryCSV,
		"README.txt":      "ignored",
	})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "r15_2024_02.csv"), []byte(februaryCSV), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("ignored"), 0o600))

	batch, err := NewLoader().LoadPath(dir)
	require.NoError(t, err)
	assert.Len(t, batch.Records, 3)
	assert.Equal(t, []string{"EA_BASE", "EA_HC", "EA_HP"}, batch.Fields)
}

func TestLoadPathMissing(t *testing.T) {
	_, err := NewLoader().LoadPath(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
