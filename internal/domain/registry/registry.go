// Package registry — каталог валидированных аккаунтов и их сессионных файлов.
//
// Модель данных и инварианты:
//   - ключ записи — строковый числовой идентификатор аккаунта; повторная
//     валидация того же аккаунта перезаписывает запись (last-validated-wins);
//   - запись существует в каталоге, только если её сессионный файл
//     <dir>/<id>.session существовал на момент последней валидации; при загрузке
//     записи без файла молча отбрасываются (каталог не перепроверяет это на
//     каждом чтении — допускается устаревание);
//   - долговременное хранилище — один человекочитаемый JSON-файл accounts.json
//     в каталоге сессий; запись выполняется целиком и атомарно;
//   - порядок выдачи List — по возрастанию числового идентификатора; это
//     контракт отображения, не хранения.
//
// Каталог не потокобезопасен сам по себе: по модели приложения его мутирует
// только конвейер загрузки, а диспетчер обрабатывает события по одному.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/go-faster/errors"

	"telegram-sessionbot/internal/infra/logger"
	"telegram-sessionbot/internal/infra/storage"
)

// storeFileName — имя файла долговременного хранилища внутри каталога сессий.
const storeFileName = "accounts.json"

// sessionExt — расширение сессионных артефактов, по одному на аккаунт.
const sessionExt = ".session"

// ErrCorrupt сигнализирует о неразбираемом содержимом долговременного
// хранилища. Отсутствие файла или отдельных сессионных артефактов ошибкой
// не считается.
var ErrCorrupt = errors.New("registry store is corrupt")

// Record — один валидированный аккаунт. Поля идентичности — снимок на момент
// валидации и могут устареть относительно живого аккаунта.
type Record struct {
	AccountID   string    `json:"-"`
	Phone       string    `json:"phone"`
	Username    string    `json:"username"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	ValidatedAt time.Time `json:"validated_at"`
}

// Registry — in-memory каталог аккаунтов, зеркалируемый в accounts.json.
// Конструируется один раз на процесс и передаётся по ссылке (никаких
// ambient-синглтонов).
type Registry struct {
	dir     string
	records map[string]Record
}

// New создаёт пустой каталог поверх каталога dir. Сам каталог создаётся при
// первом сохранении; Load на отсутствующем хранилище даёт пустой каталог.
func New(dir string) *Registry {
	return &Registry{
		dir:     dir,
		records: make(map[string]Record),
	}
}

// Dir возвращает каталог долговременного хранилища сессий.
func (r *Registry) Dir() string { return r.dir }

// storePath — полный путь файла accounts.json.
func (r *Registry) storePath() string {
	return filepath.Join(r.dir, storeFileName)
}

// SessionPath возвращает детерминированный путь сессионного артефакта аккаунта.
func (r *Registry) SessionPath(accountID string) string {
	return filepath.Join(r.dir, accountID+sessionExt)
}

// Load читает долговременное хранилище и наполняет каталог в памяти.
// Поведение:
//   - отсутствующий файл — пустой каталог, не ошибка;
//   - неразбираемый JSON — ErrCorrupt;
//   - запись без обязательных полей (пустой id, пустой phone, нулевой
//     validated_at) — карантин: пропускается с предупреждением, загрузка
//     продолжается;
//   - запись без сессионного файла на диске — молча отбрасывается и не
//     попадёт в следующий Save до повторной успешной валидации.
func (r *Registry) Load() error {
	data, err := os.ReadFile(r.storePath())
	if os.IsNotExist(err) {
		r.records = make(map[string]Record)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read registry store: %w", err)
	}

	var stored map[string]Record
	if jsonErr := json.Unmarshal(data, &stored); jsonErr != nil {
		return errors.Wrapf(ErrCorrupt, "decode %s: %v", storeFileName, jsonErr)
	}

	records := make(map[string]Record, len(stored))
	for id, rec := range stored {
		if id == "" || rec.Phone == "" || rec.ValidatedAt.IsZero() {
			logger.Warnf("registry: quarantined malformed record %q", id)
			continue
		}
		if _, statErr := os.Stat(r.SessionPath(id)); statErr != nil {
			logger.Debugf("registry: dropping record %s: session file missing", id)
			continue
		}
		rec.AccountID = id
		records[id] = rec
	}
	r.records = records
	return nil
}

// Upsert вставляет или замещает запись по AccountID. Только память;
// долговременное хранилище обновляет Save.
func (r *Registry) Upsert(rec Record) {
	r.records[rec.AccountID] = rec
}

// Save сериализует весь каталог в accounts.json одной атомарной записью
// (temp-file-then-rename): частичная запись не портит предыдущий файл.
func (r *Registry) Save() error {
	data, err := json.MarshalIndent(r.records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry store: %w", err)
	}
	if err := storage.AtomicWriteFile(r.storePath(), data); err != nil {
		return fmt.Errorf("write registry store: %w", err)
	}
	return nil
}

// Adopt переносит сессионный файл кандидата из scratch-зоны в долговременное
// хранилище под детерминированным именем аккаунта. После успешного переноса
// каталог — единственный владелец артефакта.
func (r *Registry) Adopt(accountID, srcPath string) error {
	return storage.MoveFile(srcPath, r.SessionPath(accountID))
}

// Get возвращает запись по идентификатору; ok=false — записи нет.
func (r *Registry) Get(accountID string) (Record, bool) {
	rec, ok := r.records[accountID]
	return rec, ok
}

// Len возвращает количество записей.
func (r *Registry) Len() int { return len(r.records) }

// List возвращает записи, упорядоченные по возрастанию числового AccountID.
// Нечисловые идентификаторы (не должны встречаться) уходят в конец списка.
func (r *Registry) List() []Record {
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		a, aErr := strconv.ParseInt(out[i].AccountID, 10, 64)
		b, bErr := strconv.ParseInt(out[j].AccountID, 10, 64)
		if aErr != nil || bErr != nil {
			if (aErr == nil) != (bErr == nil) {
				return aErr == nil
			}
			return out[i].AccountID < out[j].AccountID
		}
		return a < b
	})
	return out
}
