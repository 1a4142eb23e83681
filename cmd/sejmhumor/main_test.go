package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestRotateLogs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sejmhumor.log")
	write := func(content string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	// Below the threshold nothing moves.
	write("short")
	rotateLogs(path, 50, 2)
	if _, err := os.Stat(path + ".1"); !os.IsNotExist(err) {
		t.Fatal("small file rotated")
	}

	first := bytes.Repeat([]byte("a"), 100)
	if err := os.WriteFile(path, first, 0o644); err != nil {
		t.Fatal(err)
	}
	rotateLogs(path, 50, 2)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("active log not rotated away")
	}
	got, err := os.ReadFile(path + ".1")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, first) {
		t.Fatal("backup content mismatch")
	}

	// A second rotation shifts the backup chain.
	second := bytes.Repeat([]byte("b"), 100)
	if err := os.WriteFile(path, second, 0o644); err != nil {
		t.Fatal(err)
	}
	rotateLogs(path, 50, 2)
	if got, err := os.ReadFile(path + ".2"); err != nil || !bytes.Equal(got, first) {
		t.Fatalf("oldest backup: %v", err)
	}
	if got, err := os.ReadFile(path + ".1"); err != nil || !bytes.Equal(got, second) {
		t.Fatalf("newest backup: %v", err)
	}

	// A third rotation drops the backup past the count.
	third := bytes.Repeat([]byte("c"), 100)
	if err := os.WriteFile(path, third, 0o644); err != nil {
		t.Fatal(err)
	}
	rotateLogs(path, 50, 2)
	if got, err := os.ReadFile(path + ".2"); err != nil || !bytes.Equal(got, second) {
		t.Fatalf("shifted backup: %v", err)
	}
	if got, err := os.ReadFile(path + ".1"); err != nil || !bytes.Equal(got, third) {
		t.Fatalf("newest backup after third rotation: %v", err)
	}

	// Disabled rotation leaves the file alone.
	write("unrotated")
	rotateLogs(path, 0, 2)
	if _, err := os.Stat(path); err != nil {
		t.Fatal("file removed with rotation disabled")
	}
}
