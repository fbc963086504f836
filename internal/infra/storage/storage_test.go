package storage_test

import (
	"os"
	"path/filepath"
	"testing"

	"telegram-sessionbot/internal/infra/storage"
)

func TestAtomicWriteFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "dir", "data.json")
	if err := storage.AtomicWriteFile(path, []byte("first")); err != nil {
		t.Fatalf("AtomicWriteFile() = %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() = %v", err)
	}
	if string(got) != "first" {
		t.Fatalf("content = %q, want %q", got, "first")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() = %v", err)
	}
	if info.Mode().Perm() != storage.DefaultFilePerm {
		t.Fatalf("perm = %o, want %o", info.Mode().Perm(), storage.DefaultFilePerm)
	}

	// Перезапись заменяет содержимое целиком.
	if err := storage.AtomicWriteFile(path, []byte("second")); err != nil {
		t.Fatalf("AtomicWriteFile() overwrite = %v", err)
	}
	got, _ = os.ReadFile(path)
	if string(got) != "second" {
		t.Fatalf("content after overwrite = %q", got)
	}
}

func TestMoveFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "src.session")
	dst := filepath.Join(dir, "store", "dst.session")
	if err := os.WriteFile(src, []byte("blob"), 0o600); err != nil {
		t.Fatalf("prepare src: %v", err)
	}

	if err := storage.MoveFile(src, dst); err != nil {
		t.Fatalf("MoveFile() = %v", err)
	}

	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("source must be removed, stat = %v", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read dst: %v", err)
	}
	if string(got) != "blob" {
		t.Fatalf("dst content = %q", got)
	}
}

func TestMoveFileMissingSource(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := storage.MoveFile(filepath.Join(dir, "absent"), filepath.Join(dir, "dst")); err == nil {
		t.Fatal("MoveFile() must fail for a missing source")
	}
}

func TestEnsureDirPlainName(t *testing.T) {
	t.Parallel()

	// Путь без каталога не требует создания директорий.
	if err := storage.EnsureDir("plain.txt"); err != nil {
		t.Fatalf("EnsureDir() = %v", err)
	}
}
