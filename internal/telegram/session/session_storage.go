// Package session — реализация tdsession.Storage поверх обычного файла.
// Используется и для сессии самого бота, и для пользовательских сессий из
// каталога аккаунтов, и для кандидатов в scratch-зоне при валидации. Запись
// всегда атомарная: обрыв процесса не оставляет частичного файла сессии.
package session

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/go-faster/errors"

	tdsession "github.com/gotd/td/session"

	"telegram-sessionbot/internal/infra/storage"
)

// FileStorage реализует tdsession.Storage поверх файла Path.
// Потокобезопасен: Load/Store защищены мьютексом.
type FileStorage struct {
	Path string
	mux  sync.Mutex
}

// Компиляторная проверка соответствия интерфейсу tdsession.Storage.
var _ tdsession.Storage = (*FileStorage)(nil)

// LoadSession читает файл сессии с диска. Отсутствие файла транслируется в
// tdsession.ErrNotFound, чтобы клиент начал новую авторизацию.
func (f *FileStorage) LoadSession(_ context.Context) ([]byte, error) {
	if f == nil {
		return nil, errors.New("nil session storage is invalid")
	}
	f.mux.Lock()
	defer f.mux.Unlock()

	data, err := os.ReadFile(f.Path)
	if os.IsNotExist(err) {
		return nil, tdsession.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "read session")
	}
	return data, nil
}

// StoreSession атомарно сохраняет данные сессии на диск.
func (f *FileStorage) StoreSession(_ context.Context, data []byte) error {
	if f == nil {
		return errors.New("nil session storage is invalid")
	}
	f.mux.Lock()
	defer f.mux.Unlock()

	if err := storage.AtomicWriteFile(f.Path, data); err != nil {
		return fmt.Errorf("atomic write session: %w", err)
	}
	return nil
}
