package cmd

import (
	"bytes"
	"errors"
	"github.com/FrostKing4567/Slavie/slavie"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setOutput(t testing.TB) *bytes.Buffer {
	t.Helper()
	currentOut := rootCmd.OutOrStdout()
	currentErr := rootCmd.ErrOrStderr()
	t.Cleanup(
		func() {
			rootCmd.SetOut(currentOut)
			rootCmd.SetErr(currentErr)
			rootCmd.SetIn(nil)
		},
	)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	return &out
}

func mockPasswords(t testing.TB, passwords ...string) {
	t.Helper()
	idx := 0
	customPasswordReader = func() ([]byte, error) {
		if idx >= len(passwords) {
			return nil, errors.New("no more passwords")
		}
		p := passwords[idx]
		idx++
		return []byte(p), nil
	}
	t.Cleanup(
		func() {
			customPasswordReader = nil
		},
	)
}

func openTestDB(t testing.TB, path string) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(path))
	require.NoError(t, err)
	t.Cleanup(
		func() {
			sqlDB, _ := db.DB()
			if sqlDB != nil {
				_ = sqlDB.Close()
			}
		},
	)
	return db
}

func TestInitCommand(t *testing.T) {
	resetConfig(t)
	dbPath := filepath.Join(t.TempDir(), "test.db")
	t.Setenv("SLAVIE_DATABASE_TYPE", "sqlite")
	t.Setenv("SLAVIE_DATABASE", dbPath)

	// the first pair doesn't match, so it's asked again
	mockPasswords(t, "testpassword", "typo", "testpassword", "testpassword")
	out := setOutput(t)
	rootCmd.SetIn(strings.NewReader("testadmin\n"))

	rootCmd.SetArgs([]string{"init"})
	require.NoError(t, rootCmd.Execute())

	_, err := os.Stat(dbPath)
	assert.NoError(t, err, "database file should exist")

	output := out.String()
	t.Logf("output: %s", output)
	assert.Contains(t, output, "Admin credentials are not set. Let's set them up.")
	assert.Contains(t, output, "Enter admin username:")
	assert.Contains(t, output, "Passwords must match")
	assert.Contains(t, output, "Admin credentials set successfully")
	assert.Contains(t, output, "Initialization complete")

	db := openTestDB(t, dbPath)

	var config slavie.RuntimeConfig
	require.NoError(t, db.First(&config).Error)
	assert.Equal(t, "testadmin", config.AdminUsername)
	assert.NotEmpty(t, config.AdminPassword)
	assert.NotEqual(t, "testpassword", config.AdminPassword)

	valid, err := slavie.VerifyPassword(config.AdminPassword, "testpassword")
	assert.NoError(t, err)
	assert.True(t, valid)

	mg := db.Migrator()
	for _, model := range []any{
		&slavie.User{},
		&slavie.Marriage{},
		&slavie.Proposal{},
		&slavie.Adoption{},
		&slavie.PendingAdoption{},
		&slavie.RuntimeConfig{},
		&slavie.InteractionLog{},
		&slavie.DisabledCommand{},
		&slavie.Warning{},
	} {
		assert.True(t, mg.HasTable(model), "missing table for %T", model)
	}

	// running it again leaves the credentials alone
	out.Reset()
	rootCmd.SetArgs([]string{"init"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Admin credentials are already set.")
}

func TestInitCommandEmptyUsername(t *testing.T) {
	resetConfig(t)
	t.Setenv("SLAVIE_DATABASE_TYPE", "sqlite")
	t.Setenv("SLAVIE_DATABASE", filepath.Join(t.TempDir(), "test.db"))

	mockPasswords(t)
	setOutput(t)
	rootCmd.SetIn(strings.NewReader("\n"))

	rootCmd.SetArgs([]string{"init"})
	assert.ErrorContains(t, rootCmd.Execute(), "username can't be empty")
}
