package data

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opdflow/internal/config"
)

func TestAccounts_PrimaryOnly(t *testing.T) {
	s := config.Default()
	s.Accounts.Doctor = config.Doctor{LoginID: "doc", Password: "pw", SystemCode: "1"}

	a, err := LoadAccounts(s)
	require.NoError(t, err)
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, s.Accounts.Doctor, a.Next())
	assert.Equal(t, s.Accounts.Doctor, a.Next())
}

func TestAccounts_FromFileInheritsPrimary(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "doctors.csv", "login_id,system_code\ndoc01,00000001\ndoc02,00000002\n")

	s := config.Default()
	s.Dir = dir
	s.Accounts.File = "doctors.csv"
	s.Accounts.Mode = "sequential"
	s.Accounts.Doctor = config.Doctor{LoginID: "primary", Password: "shared-pw", SystemCode: "0"}

	a, err := LoadAccounts(s)
	require.NoError(t, err)
	assert.Equal(t, 2, a.Len())

	first := a.Next()
	assert.Equal(t, config.Doctor{LoginID: "doc01", Password: "shared-pw", SystemCode: "00000001"}, first)
	assert.Equal(t, "doc02", a.Next().LoginID)
}

func TestAccounts_MissingFile(t *testing.T) {
	s := config.Default()
	s.Dir = t.TempDir()
	s.Accounts.File = "nope.csv"

	_, err := LoadAccounts(s)
	assert.Error(t, err)
}
