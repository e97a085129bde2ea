package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestValidate_OK(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.csv")
	writeFile(t, path, "a,b\n1,2\n")

	if err := Validate(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Error("valid file must be kept")
	}
}

func TestValidate_EmptyFileDeleted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.pdf")
	writeFile(t, path, "")

	err := Validate(path)
	if err == nil {
		t.Fatal("expected error for empty file")
	}
	var se *SizeError
	if !errors.As(err, &se) {
		t.Fatalf("expected *SizeError, got %T", err)
	}
	if se.Error() != "Generated file is empty" {
		t.Errorf("unexpected message: %s", se.Error())
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("empty file must be deleted")
	}
}

func TestValidate_OversizeFileDeleted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	// Sparse file just over the cap; no real data is written.
	if err := f.Truncate(MaxSizeBytes + 1); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	valErr := Validate(path)
	if valErr == nil {
		t.Fatal("expected error for oversize file")
	}
	var se *SizeError
	if !errors.As(valErr, &se) {
		t.Fatalf("expected *SizeError, got %T", valErr)
	}
	if se.Error() != "Generated file is too large" {
		t.Errorf("unexpected message: %s", se.Error())
	}
	if se.Size != MaxSizeBytes+1 {
		t.Errorf("expected recorded size %d, got %d", MaxSizeBytes+1, se.Size)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("oversize file must be deleted")
	}
}

func TestFileInfo(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "inventory_3.xlsx")
	writeFile(t, path, "data")

	info := FileInfo(path)
	if !info.Exists {
		t.Fatal("expected exists")
	}
	if info.FileName != "inventory_3.xlsx" {
		t.Errorf("unexpected name: %s", info.FileName)
	}
	if info.SizeBytes != 4 {
		t.Errorf("unexpected size: %d", info.SizeBytes)
	}
	if info.MimeType != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Errorf("unexpected mime: %s", info.MimeType)
	}

	if missing := FileInfo(filepath.Join(dir, "nope.pdf")); missing.Exists {
		t.Error("missing file must report Exists=false")
	}
}

func TestReapOlderThan(t *testing.T) {
	dir := t.TempDir()

	old := filepath.Join(dir, "old.csv")
	fresh := filepath.Join(dir, "fresh.csv")
	writeFile(t, old, "x")
	writeFile(t, fresh, "y")

	past := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}

	// Subdirectories (the staging area) are left alone.
	if err := os.Mkdir(filepath.Join(dir, "tmp"), 0o755); err != nil {
		t.Fatal(err)
	}

	removed, err := ReapOlderThan(dir, 24*time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("old file must be removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh file must be kept")
	}
	if _, err := os.Stat(filepath.Join(dir, "tmp")); err != nil {
		t.Error("staging dir must be kept")
	}
}

func TestReapOlderThan_MissingDir(t *testing.T) {
	removed, err := ReapOlderThan(filepath.Join(t.TempDir(), "does-not-exist"), time.Hour)
	if err != nil {
		t.Fatalf("missing dir must not error: %v", err)
	}
	if removed != 0 {
		t.Errorf("expected 0, got %d", removed)
	}
}
