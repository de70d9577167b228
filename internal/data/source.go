// Package data loads fixture files (doctor accounts) and decodes the
// CSV exports downloaded from the admin tools.
package data

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"

	"opdflow/internal/config"
)

// Mode defines how a Rotation hands out its items.
type Mode string

const (
	// ModeSequential hands items out in order, wrapping around.
	ModeSequential Mode = "sequential"
	// ModeRandom picks a random item each time.
	ModeRandom Mode = "random"
)

// Rotation hands out items to concurrently starting scenarios.
type Rotation[T any] struct {
	items   []T
	mode    Mode
	counter atomic.Uint64
}

// NewRotation returns a rotation over items. An empty mode is sequential.
func NewRotation[T any](items []T, mode Mode) *Rotation[T] {
	if mode == "" {
		mode = ModeSequential
	}
	return &Rotation[T]{items: slices.Clone(items), mode: mode}
}

func (r *Rotation[T]) Len() int {
	return len(r.items)
}

// Next returns the next item, or false when the rotation is empty.
func (r *Rotation[T]) Next() (T, bool) {
	var zero T
	if len(r.items) == 0 {
		return zero, false
	}
	if r.mode == ModeRandom {
		return r.items[rand.IntN(len(r.items))], true
	}
	n := r.counter.Add(1) - 1
	return r.items[n%uint64(len(r.items))], true
}

// LoadDoctors reads doctor logins from a CSV or JSON file. Relative paths
// resolve against dir. CSV files need a login_id column; the password and
// system_code columns are optional.
func LoadDoctors(path, dir string) ([]config.Doctor, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}

	var (
		doctors []config.Doctor
		err     error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		doctors, err = doctorsFromCSV(path)
	case ".json":
		doctors, err = doctorsFromJSON(path)
	default:
		return nil, fmt.Errorf("unsupported file format %q (use .csv or .json)", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	if len(doctors) == 0 {
		return nil, fmt.Errorf("account file %s is empty", path)
	}
	return doctors, nil
}

func doctorsFromCSV(path string) ([]config.Doctor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := ReadCSV(f)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 || !slices.Contains(records[0], "login_id") {
		return nil, fmt.Errorf("CSV header must include login_id")
	}
	rows, err := Records(records)
	if err != nil {
		return nil, err
	}
	doctors := make([]config.Doctor, 0, len(rows))
	for _, row := range rows {
		doctors = append(doctors, config.Doctor{
			LoginID:    strings.TrimSpace(row["login_id"]),
			Password:   row["password"],
			SystemCode: strings.TrimSpace(row["system_code"]),
		})
	}
	return doctors, nil
}

func doctorsFromJSON(path string) ([]config.Doctor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doctors []config.Doctor
	if err := json.Unmarshal(raw, &doctors); err != nil {
		return nil, fmt.Errorf("JSON must be an array of doctor objects: %w", err)
	}
	return doctors, nil
}
