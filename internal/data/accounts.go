package data

import (
	"fmt"

	"opdflow/internal/config"
)

// Accounts hands out doctor logins to parallel scenarios so that two
// scenarios do not share a doctor's inbox when more accounts exist.
type Accounts struct {
	primary  config.Doctor
	rotation *Rotation[config.Doctor]
}

// LoadAccounts builds the account pool from suite configuration. Without
// an accounts file every scenario uses the primary doctor.
func LoadAccounts(s *config.Suite) (*Accounts, error) {
	a := &Accounts{primary: s.Accounts.Doctor}
	if s.Accounts.File == "" {
		return a, nil
	}
	doctors, err := LoadDoctors(s.Accounts.File, s.Dir)
	if err != nil {
		return nil, fmt.Errorf("loading accounts: %w", err)
	}
	a.rotation = NewRotation(doctors, Mode(s.Accounts.Mode))
	return a, nil
}

// Len returns the number of distinct accounts.
func (a *Accounts) Len() int {
	if a.rotation == nil {
		return 1
	}
	return a.rotation.Len()
}

// Next returns the next doctor. File rows missing a field inherit it
// from the primary account.
func (a *Accounts) Next() config.Doctor {
	if a.rotation == nil {
		return a.primary
	}
	d, ok := a.rotation.Next()
	if !ok {
		return a.primary
	}
	if d.LoginID == "" {
		d.LoginID = a.primary.LoginID
	}
	if d.Password == "" {
		d.Password = a.primary.Password
	}
	if d.SystemCode == "" {
		d.SystemCode = a.primary.SystemCode
	}
	return d
}
