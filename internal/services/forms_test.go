package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nexconsult/goc-sync/internal/config"
	"github.com/nexconsult/goc-sync/internal/logger"
	"github.com/nexconsult/goc-sync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDump(t *testing.T, dir, name, body string, mtime time.Time) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestDecodeResponsesList(t *testing.T) {
	got, err := DecodeResponses([]byte(`[{"CPF": "123.456.789-09", "Nome completo": "Ana"}]`))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Ana", got[0].Get(models.FieldFullName))
}

func TestDecodeResponsesSheet(t *testing.T) {
	got, err := DecodeResponses([]byte(`{"values": [["CPF", "Nome completo", "Bairro"], ["12345678909", "Ana"]]}`))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "12345678909", got[0].Get(models.FieldCPF))
	assert.Equal(t, "", got[0].Get(models.FieldDistrict))

	_, err = DecodeResponses([]byte(`not json`))
	assert.Error(t, err)
}

func TestDedupByCPF(t *testing.T) {
	responses := []models.FormResponse{
		{models.FieldCPF: "123.456.789-09", models.FieldFullName: "Ana (antigo)"},
		{models.FieldCPF: "987.654.321-00", models.FieldFullName: "Bruno"},
		{models.FieldFullName: "Sem CPF"},
		{models.FieldCPF: "12345678909", models.FieldFullName: "Ana"},
	}

	got := DedupByCPF(responses, logger.Discard())

	require.Len(t, got, 2)
	assert.Equal(t, "Ana", got[0].Get(models.FieldFullName), "last response wins, first position kept")
	assert.Equal(t, "Bruno", got[1].Get(models.FieldFullName))
}

func TestFormSourceReadsNewestDump(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2025, 8, 25, 9, 0, 0, 0, time.UTC)
	writeDump(t, dir, "respostas_1.json", `[{"CPF": "11144477735", "Nome completo": "Velho"}]`, base)
	writeDump(t, dir, "respostas_2.json", `[{"CPF": "12345678909", "Nome completo": "Novo"}]`, base.Add(time.Hour))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notas.txt"), []byte("x"), 0o644))

	src := NewFormSource(config.FormsConfig{ResponsesDir: dir, KeepLatest: true}, logger.Discard())
	got, err := src.Responses(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Novo", got[0].Get(models.FieldFullName))

	require.NoError(t, src.Cleanup(context.Background()))
	files, _ := filepath.Glob(filepath.Join(dir, "*.json"))
	assert.Equal(t, []string{filepath.Join(dir, "respostas_2.json")}, files)
	assert.FileExists(t, filepath.Join(dir, "notas.txt"))
}

func TestFormSourceEmptyDir(t *testing.T) {
	src := NewFormSource(config.FormsConfig{ResponsesDir: t.TempDir()}, logger.Discard())
	got, err := src.Responses(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFormSourceCleanupDisabled(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2025, 8, 25, 9, 0, 0, 0, time.UTC)
	writeDump(t, dir, "a.json", `[]`, base)
	writeDump(t, dir, "b.json", `[]`, base.Add(time.Hour))

	src := NewFormSource(config.FormsConfig{ResponsesDir: dir}, logger.Discard())
	require.NoError(t, src.Cleanup(context.Background()))
	files, _ := filepath.Glob(filepath.Join(dir, "*.json"))
	assert.Len(t, files, 2)
}
