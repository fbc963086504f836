// Package validator — проверка одного сессионного файла против живой сети.
//
// Конвейер одного кандидата: подключение клиентом gotd с учётными данными
// приложения → проверка авторизации → проверка облачного пароля → снимок
// идентичности владельца. Результат — размеченный вердикт ingest.Verdict;
// исключений наружу нет: любая транспортная или протокольная ошибка
// логируется и сворачивается в Invalid, чтобы один битый файл не прерывал
// пачку. Соединение освобождается на любом пути выхода — это контракт
// client.Run.
package validator

import (
	"context"
	"path/filepath"
	"time"

	"github.com/go-faster/errors"
	"github.com/gotd/contrib/middleware/floodwait"
	"github.com/gotd/contrib/middleware/ratelimit"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/dcs"
	"golang.org/x/time/rate"

	"telegram-sessionbot/internal/domain/ingest"
	"telegram-sessionbot/internal/infra/logger"
	"telegram-sessionbot/internal/support/version"
	"telegram-sessionbot/internal/telegram/session"
)

// defaultTimeout ограничивает валидацию одного кандидата, чтобы зависший
// коннект не останавливал пачку.
const defaultTimeout = 90 * time.Second

// Options — параметры подключения валидатора.
type Options struct {
	APIID   int
	APIHash string
	TestDC  bool
	RPS     int
	Timeout time.Duration
}

// Validator валидирует сессионные файлы последовательными короткоживущими
// подключениями. Реализует ingest.Validator.
type Validator struct {
	opts Options
}

var _ ingest.Validator = (*Validator)(nil)

// New создаёт валидатор. Нулевой Timeout заменяется дефолтным, нулевой RPS — единицей.
func New(opts Options) *Validator {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RPS <= 0 {
		opts.RPS = 1
	}
	return &Validator{opts: opts}
}

// Validate выполняет проверку одного кандидата.
//
// Классификация:
//   - соединение не авторизовано → Invalid;
//   - авторизовано, но у аккаунта включён облачный пароль → SecondFactor,
//     поля идентичности не извлекаются;
//   - иначе → Valid со снимком идентичности (username при отсутствии
//     заменяется на "none").
func (v *Validator) Validate(ctx context.Context, sessionPath string) ingest.Verdict {
	verdict := ingest.Verdict{Status: ingest.StatusInvalid}

	runCtx, cancel := context.WithTimeout(ctx, v.opts.Timeout)
	defer cancel()

	options := telegram.Options{
		SessionStorage: &session.FileStorage{Path: sessionPath},
		Middlewares: []telegram.Middleware{
			floodwait.NewSimpleWaiter(),
			ratelimit.New(rate.Limit(v.opts.RPS), v.opts.RPS*2), //nolint:mnd // burst = 2*rate
		},
		Device: telegram.DeviceConfig{
			DeviceModel:   "MacBookPro18,1",
			SystemVersion: "macOS v15.6.1 build 24G90",
			AppVersion:    version.Version,
		},
	}
	if v.opts.TestDC {
		options.DCList = dcs.Test()
	}

	client := telegram.NewClient(v.opts.APIID, v.opts.APIHash, options)

	err := client.Run(runCtx, func(ctx context.Context) error {
		status, statusErr := client.Auth().Status(ctx)
		if statusErr != nil {
			return errors.Wrap(statusErr, "auth status")
		}
		if !status.Authorized {
			// Вердикт остаётся Invalid.
			return nil
		}

		// Облачный пароль делает дальнейшую автоматизацию невозможной:
		// такие аккаунты исключаются ещё на входе.
		pwd, pwdErr := client.API().AccountGetPassword(ctx)
		if pwdErr != nil {
			return errors.Wrap(pwdErr, "account.getPassword")
		}
		if pwd.HasPassword {
			verdict = ingest.Verdict{Status: ingest.StatusSecondFactor}
			return nil
		}

		self, selfErr := client.Self(ctx)
		if selfErr != nil {
			return errors.Wrap(selfErr, "self")
		}

		username := self.Username
		if username == "" {
			username = "none"
		}
		verdict = ingest.Verdict{
			Status: ingest.StatusValid,
			Identity: ingest.Identity{
				ID:        self.ID,
				Phone:     self.Phone,
				Username:  username,
				FirstName: self.FirstName,
				LastName:  self.LastName,
			},
		}
		return nil
	})
	if err != nil {
		logger.Warnf("validator: %s: %v", filepath.Base(sessionPath), err)
		return ingest.Verdict{Status: ingest.StatusInvalid}
	}
	return verdict
}
