// Package ingest — конвейер приёма ZIP-архивов с экспортированными
// MTProto-сессиями.
//
// Поток данных: байты архива → распаковка в scratch-каталог → поиск каталога
// sessions/users → перебор файлов *.session → последовательная валидация →
// передача валидных сессий каталогу аккаунтов → одно сохранение каталога на
// пачку. Scratch-зона удаляется безусловно на любом пути выхода.
//
// Валидация выполняется строго последовательно: множество одновременных
// авторизованных подключений к одной сети — прямой путь под флуд-контроль.
// Ошибки отдельного кандидата поглощаются локально (вердикт Invalid) и не
// прерывают пачку; ошибки уровня архива/раскладки прерывают весь запуск.
package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"telegram-sessionbot/internal/domain/registry"
	"telegram-sessionbot/internal/infra/logger"
)

// Ошибки уровня запуска. Прерывают обработку архива целиком и показываются
// оператору; автоматических повторов нет.
var (
	// ErrBadArchive — байты не являются корректным ZIP-архивом.
	ErrBadArchive = errors.New("malformed zip archive")
	// ErrNoSessionsDir — в распакованном дереве нет каталога sessions/users.
	ErrNoSessionsDir = errors.New("sessions/users directory not found in archive")
	// ErrEmptyBatch — каталог найден, но файлов *.session в нём нет.
	ErrEmptyBatch = errors.New("no .session files found")
)

// sessionsDirSuffix — фиксированный относительный сегмент, которым должен
// заканчиваться путь каталога с сессиями. Сопоставление идёт по суффиксу,
// а не по точному корневому пути.
const sessionsDirSuffix = "sessions/users"

// sessionFileExt — расширение файлов-кандидатов.
const sessionFileExt = ".session"

// progressStep — шаг промежуточных уведомлений о прогрессе.
const progressStep = 5

// Status — исход валидации одного кандидата.
type Status int

const (
	// StatusInvalid — соединение не авторизуется либо валидация упала с ошибкой.
	StatusInvalid Status = iota
	// StatusSecondFactor — аккаунт защищён облачным паролем; дальнейшая
	// автоматизация небезопасна, кандидат исключается из каталога.
	StatusSecondFactor
	// StatusValid — авторизованный аккаунт без второго фактора.
	StatusValid
)

// Identity — поля идентичности владельца валидной сессии.
type Identity struct {
	ID        int64
	Phone     string
	Username  string
	FirstName string
	LastName  string
}

// AccountID возвращает строковую форму числового идентификатора — ключ каталога.
func (i Identity) AccountID() string {
	return strconv.FormatInt(i.ID, 10)
}

// Verdict — размеченный результат валидации. Identity заполнена только при
// StatusValid. Вердикты никогда не персистятся: их немедленно потребляет
// конвейер.
type Verdict struct {
	Status   Status
	Identity Identity
}

// Validator проверяет один сессионный файл против живой сети. Реализация
// обязана поглощать транспортные/протокольные ошибки (вердикт Invalid с
// логированием), чтобы один битый файл не прерывал пачку.
type Validator interface {
	Validate(ctx context.Context, sessionPath string) Verdict
}

// Summary — счётчики одного запуска конвейера. Инвариант:
// Valid + SecondFactor + Invalid == Total по завершении.
type Summary struct {
	Total        int
	Valid        int
	SecondFactor int
	Invalid      int
}

// Progress — callback промежуточного прогресса с текущими счётчиками.
// Интерфейсная забота: в минимальной сборке может быть nil.
type Progress func(Summary)

// Pipeline оркестрирует приём одного архива. Каталог аккаунтов передаётся по
// ссылке и является единственным местом записи результатов.
type Pipeline struct {
	validator Validator
	registry  *registry.Registry
	now       func() time.Time
}

// New собирает конвейер поверх валидатора и каталога аккаунтов.
func New(v Validator, reg *registry.Registry) *Pipeline {
	return &Pipeline{
		validator: v,
		registry:  reg,
		now:       time.Now,
	}
}

// Run обрабатывает один ZIP-архив и возвращает сводку запуска.
//
// Крайние случаи: дубликат account_id внутри пачки — побеждает последний
// (согласовано с семантикой Upsert); ноль валидных файлов — не ошибка, а
// сводка с Valid == 0. Сохранение каталога выполняется один раз после пачки,
// поэтому падение посреди пачки теряет её результаты в хранилище (сессионные
// файлы при этом могут быть уже перенесены — их подберёт следующая валидация).
func (p *Pipeline) Run(ctx context.Context, zipBytes []byte, progress Progress) (Summary, error) {
	var summary Summary

	scratch, err := os.MkdirTemp("", "sessionbot-ingest-*")
	if err != nil {
		return summary, errors.Wrap(err, "create scratch dir")
	}
	// Scratch удаляется на любом пути выхода: и архивные байты, и распаковка.
	defer func() {
		if rmErr := os.RemoveAll(scratch); rmErr != nil {
			logger.Warnf("ingest: scratch cleanup failed: %v", rmErr)
		}
	}()

	if err := extractArchive(zipBytes, scratch); err != nil {
		return summary, err
	}

	usersDir, err := findSessionsDir(scratch)
	if err != nil {
		return summary, err
	}

	candidates, err := listSessionFiles(usersDir)
	if err != nil {
		return summary, err
	}

	summary.Total = len(candidates)
	logger.Infof("ingest: %d session candidates found", summary.Total)

	for i, name := range candidates {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		candidatePath := filepath.Join(usersDir, name)
		verdict := p.validator.Validate(ctx, candidatePath)

		switch verdict.Status {
		case StatusValid:
			if adoptErr := p.adopt(verdict.Identity, candidatePath); adoptErr != nil {
				logger.Errorf("ingest: adopt %s failed: %v", name, adoptErr)
				summary.Invalid++
			} else {
				summary.Valid++
			}
		case StatusSecondFactor:
			// Кандидат остаётся в scratch и будет выметен вместе с ним.
			summary.SecondFactor++
		default:
			summary.Invalid++
		}

		if progress != nil && (i+1)%progressStep == 0 {
			progress(summary)
		}
	}

	if progress != nil && summary.Total%progressStep != 0 {
		progress(summary)
	}

	if saveErr := p.registry.Save(); saveErr != nil {
		return summary, errors.Wrap(saveErr, "persist registry")
	}
	return summary, nil
}

// adopt переносит валидную сессию в хранилище каталога и обновляет запись.
// Порядок важен: сначала перенос артефакта, затем upsert — запись в каталоге
// не должна ссылаться на ещё не перенесённый файл.
func (p *Pipeline) adopt(identity Identity, candidatePath string) error {
	accountID := identity.AccountID()
	if err := p.registry.Adopt(accountID, candidatePath); err != nil {
		return err
	}
	p.registry.Upsert(registry.Record{
		AccountID:   accountID,
		Phone:       identity.Phone,
		Username:    identity.Username,
		FirstName:   identity.FirstName,
		LastName:    identity.LastName,
		ValidatedAt: p.now(),
	})
	return nil
}

// extractArchive распаковывает ZIP в dst. Имена записей нормализуются к
// прямым слэшам (архивы, собранные под Windows, используют обратные), записи,
// выходящие за пределы dst, отклоняются целиком (zip-slip).
func extractArchive(zipBytes []byte, dst string) error {
	zr, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return errors.Wrapf(ErrBadArchive, "%v", err)
	}

	for _, f := range zr.File {
		name := strings.ReplaceAll(f.Name, `\`, "/")
		local := filepath.FromSlash(name)
		if !filepath.IsLocal(local) {
			return errors.Wrapf(ErrBadArchive, "unsafe entry path %q", f.Name)
		}
		target := filepath.Join(dst, local)

		if f.FileInfo().IsDir() {
			if mkErr := os.MkdirAll(target, 0o700); mkErr != nil {
				return errors.Wrap(mkErr, "create archive dir")
			}
			continue
		}

		if mkErr := os.MkdirAll(filepath.Dir(target), 0o700); mkErr != nil {
			return errors.Wrap(mkErr, "create archive dir")
		}
		if copyErr := extractFile(f, target); copyErr != nil {
			return copyErr
		}
	}
	return nil
}

// extractFile разворачивает одну запись архива в target.
func extractFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return errors.Wrapf(ErrBadArchive, "open entry %q: %v", f.Name, err)
	}
	defer func() { _ = rc.Close() }()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return errors.Wrap(err, "create extracted file")
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return errors.Wrapf(ErrBadArchive, "extract entry %q: %v", f.Name, err)
	}
	return out.Close()
}

// findSessionsDir ищет в распакованном дереве каталог, путь которого
// заканчивается сегментом sessions/users. Достаточно первого найденного.
func findSessionsDir(root string) (string, error) {
	var found string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasSuffix(filepath.ToSlash(path), sessionsDirSuffix) {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if walkErr != nil {
		return "", errors.Wrap(walkErr, "scan extracted tree")
	}
	if found == "" {
		return "", ErrNoSessionsDir
	}
	return found, nil
}

// listSessionFiles возвращает имена файлов *.session в каталоге в порядке
// листинга. Порядок листинга — контракт коллаборатора: от него зависит, какая
// из дублирующихся сессий победит при last-write-wins.
func listSessionFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "read sessions dir")
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), sessionFileExt) {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) == 0 {
		return nil, ErrEmptyBatch
	}
	return names, nil
}
