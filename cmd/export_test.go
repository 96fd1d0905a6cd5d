package cmd

import (
	"github.com/FrostKing4567/Slavie/slavie"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
	"os"
	"path/filepath"
	"testing"
)

func TestExportCommand(t *testing.T) {
	resetConfig(t)
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")
	outPath := filepath.Join(tmpDir, "export.yaml")
	t.Setenv("SLAVIE_DATABASE_TYPE", "sqlite")
	t.Setenv("SLAVIE_DATABASE", dbPath)

	t.Cleanup(
		func() {
			slavie.SetLogOutput(os.Stdout)
		},
	)
	setOutput(t)
	rootCmd.SetArgs([]string{"export", "-o", outPath})
	require.NoError(t, rootCmd.Execute())

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)

	var export slavie.Export
	require.NoError(t, yaml.Unmarshal(data, &export))
	assert.False(t, export.ExportedAt.IsZero())
	assert.Empty(t, export.Marriages)
	assert.Empty(t, export.Adoptions)
	assert.Empty(t, export.Families)
}
