package data

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"opdflow/internal/config"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDoctors_CSV(t *testing.T) {
	path := writeFile(t, t.TempDir(), "doctors.csv", `login_id,password,system_code
doc01,pw1,00000001
 doc02 ,pw2,00000002`)

	doctors, err := LoadDoctors(path, "")
	if err != nil {
		t.Fatalf("LoadDoctors: %v", err)
	}
	want := []config.Doctor{
		{LoginID: "doc01", Password: "pw1", SystemCode: "00000001"},
		{LoginID: "doc02", Password: "pw2", SystemCode: "00000002"},
	}
	if len(doctors) != len(want) {
		t.Fatalf("got %d doctors, want %d", len(doctors), len(want))
	}
	for i := range want {
		if doctors[i] != want[i] {
			t.Errorf("doctor %d = %+v, want %+v", i, doctors[i], want[i])
		}
	}
}

func TestLoadDoctors_ShiftJISCSV(t *testing.T) {
	// The third header is 備考 in Shift_JIS.
	raw := []byte("login_id,system_code,\x94\xf5\x8dl\ndoc01,00000001,x\n")
	path := filepath.Join(t.TempDir(), "doctors.csv")
	if err := os.WriteFile(path, raw, 0644); err != nil {
		t.Fatal(err)
	}
	doctors, err := LoadDoctors(path, "")
	if err != nil {
		t.Fatalf("LoadDoctors: %v", err)
	}
	if doctors[0].LoginID != "doc01" || doctors[0].SystemCode != "00000001" {
		t.Errorf("unexpected doctor %+v", doctors[0])
	}
}

func TestLoadDoctors_JSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "doctors.json", `[
		{"login_id": "doc01", "system_code": "00000001"}
	]`)

	doctors, err := LoadDoctors(path, "")
	if err != nil {
		t.Fatalf("LoadDoctors: %v", err)
	}
	if doctors[0].LoginID != "doc01" || doctors[0].Password != "" {
		t.Errorf("unexpected doctor %+v", doctors[0])
	}
}

func TestLoadDoctors_RelativePath(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "doctors.csv", "login_id\ndoc01")

	doctors, err := LoadDoctors("doctors.csv", dir)
	if err != nil {
		t.Fatalf("LoadDoctors with relative path: %v", err)
	}
	if len(doctors) != 1 {
		t.Errorf("got %d doctors, want 1", len(doctors))
	}
}

func TestLoadDoctors_Errors(t *testing.T) {
	dir := t.TempDir()
	tests := map[string]string{
		"header only":     writeFile(t, dir, "empty.csv", "login_id"),
		"no login column": writeFile(t, dir, "codes.csv", "system_code\n00000001"),
		"unsupported":     writeFile(t, dir, "doctors.xml", "<doctors/>"),
		"not an array":    writeFile(t, dir, "doctor.json", `{"login_id": "doc01"}`),
		"missing":         filepath.Join(dir, "missing.csv"),
	}
	for name, path := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadDoctors(path, ""); err == nil {
				t.Errorf("LoadDoctors(%s) should fail", filepath.Base(path))
			}
		})
	}
}

func TestRotation_Sequential(t *testing.T) {
	r := NewRotation([]string{"a", "b"}, "")
	var got []string
	for range 3 {
		v, ok := r.Next()
		if !ok {
			t.Fatal("Next() reported empty")
		}
		got = append(got, v)
	}
	if got[0] != "a" || got[1] != "b" || got[2] != "a" {
		t.Errorf("expected wrap-around, got %v", got)
	}
}

func TestRotation_Random(t *testing.T) {
	r := NewRotation([]string{"a", "b", "c", "d"}, ModeRandom)

	seen := make(map[string]bool)
	for range 100 {
		v, _ := r.Next()
		seen[v] = true
	}
	if len(seen) < 2 {
		t.Errorf("random mode returned only %d unique values in 100 draws", len(seen))
	}
}

func TestRotation_Empty(t *testing.T) {
	if _, ok := NewRotation[string](nil, ModeSequential).Next(); ok {
		t.Error("Next() on an empty rotation should report false")
	}
}

func TestRotation_ConcurrentSequentialIsFair(t *testing.T) {
	r := NewRotation([]int{0, 1, 2}, ModeSequential)

	var (
		mu     sync.Mutex
		counts [3]int
		wg     sync.WaitGroup
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 30 {
				v, _ := r.Next()
				mu.Lock()
				counts[v]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	for i, c := range counts {
		if c != 100 {
			t.Errorf("item %d handed out %d times, want 100", i, c)
		}
	}
}

func TestNewRotation_CopiesItems(t *testing.T) {
	items := []string{"original"}
	r := NewRotation(items, ModeSequential)
	items[0] = "mutated"

	if v, _ := r.Next(); v != "original" {
		t.Errorf("caller mutation leaked into rotation: got %q", v)
	}
}
