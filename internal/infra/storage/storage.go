// Package storage — утилиты безопасной работы с локальными файлами.
// Здесь хранятся реестр аккаунтов и файлы MTProto-сессий, поэтому частично
// записанные файлы недопустимы: запись всегда идёт через temp + rename.
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"telegram-sessionbot/internal/infra/logger"
)

// DefaultFilePerm — права на итоговые файлы. 0o600: доступ только владельцу,
// поскольку содержимое (сессии) чувствительно.
const DefaultFilePerm = 0o600

// EnsureDir гарантирует наличие каталога для указанного файла.
// Путь без каталога ("." или пустая строка) — no-op. Каталоги создаются с 0o700.
func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	return nil
}

// AtomicWriteFile атомарно записывает data в path.
//
// Алгоритм: temp в той же директории → write → fsync(temp) → chmod → close →
// rename → fsync(dir). Либо старый файл остаётся цел, либо новый записан
// полностью. os.Rename атомарен только в пределах одного тома, поэтому temp
// создаётся рядом с целевым файлом. fsync каталога — best-effort: часть ОС/ФС
// его игнорирует, но для журналирования метаданных он полезен.
func AtomicWriteFile(path string, data []byte) error {
	clean := filepath.Clean(path)
	if err := EnsureDir(clean); err != nil {
		return err
	}
	dir := filepath.Dir(clean)

	tmp, err := os.CreateTemp(dir, "atomic-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, writeErr := tmp.Write(data); writeErr != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", writeErr)
	}
	if syncErr := tmp.Sync(); syncErr != nil {
		_ = tmp.Close()
		return fmt.Errorf("fsync temp file: %w", syncErr)
	}
	if chmodErr := tmp.Chmod(DefaultFilePerm); chmodErr != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", chmodErr)
	}
	if closeErr := tmp.Close(); closeErr != nil {
		return fmt.Errorf("close temp file: %w", closeErr)
	}

	if renameErr := os.Rename(tmpName, clean); renameErr != nil {
		return fmt.Errorf("rename temp file: %w", renameErr)
	}

	if dirFile, openErr := os.Open(dir); openErr == nil {
		if errSync := dirFile.Sync(); errSync != nil {
			logger.Warnf("AtomicWriteFile: dir sync error: %v", errSync)
		}
		_ = dirFile.Close()
	}
	return nil
}

// MoveFile переносит файл из src в dst через атомарную запись содержимого и
// удаление источника. Используется при передаче валидной сессии в хранилище
// реестра: после успешного переноса второй записываемой копии в scratch-зоне
// не остаётся. Прямой os.Rename не годится: scratch и хранилище могут лежать
// на разных файловых томах.
func MoveFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read source %s: %w", src, err)
	}
	if err := AtomicWriteFile(dst, data); err != nil {
		return fmt.Errorf("write destination %s: %w", dst, err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("remove source %s: %w", src, err)
	}
	return nil
}
