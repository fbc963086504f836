// Package accounts — операции над отдельным валидированным аккаунтом:
// короткоживущее авторизованное подключение, выгрузка диалогов, получение
// кодов входа, очистка личных чатов, выход из групп и управление активными
// авторизациями. Все операции выполняются по одной, с паузами между
// мутирующими запросами: параллельные подключения и плотные серии удалений
// провоцируют флуд-контроль.
package accounts

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/gotd/contrib/middleware/floodwait"
	"github.com/gotd/contrib/middleware/ratelimit"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/dcs"
	"golang.org/x/time/rate"

	"telegram-sessionbot/internal/support/version"
	"telegram-sessionbot/internal/telegram/session"
)

// ErrUnauthorized — сохранённая сессия больше не авторизована (отозвана
// владельцем или самим Telegram). Запись каталога при этом устарела.
var ErrUnauthorized = errors.New("stored session is no longer authorized")

// Options — параметры подключения к аккаунту.
type Options struct {
	APIID   int
	APIHash string
	TestDC  bool
	RPS     int
}

// Run открывает короткоживущее подключение с сессией sessionPath, проверяет
// авторизацию и передаёт управление fn. Соединение освобождается на любом
// пути выхода (контракт client.Run), поэтому вложенных defer не требуется.
func Run(ctx context.Context, opts Options, sessionPath string, fn func(ctx context.Context, client *telegram.Client) error) error {
	if opts.RPS <= 0 {
		opts.RPS = 1
	}

	options := telegram.Options{
		SessionStorage: &session.FileStorage{Path: sessionPath},
		Middlewares: []telegram.Middleware{
			floodwait.NewSimpleWaiter(),
			ratelimit.New(rate.Limit(opts.RPS), opts.RPS*2), //nolint:mnd // burst = 2*rate
		},
		Device: telegram.DeviceConfig{
			DeviceModel:   "MacBookPro18,1",
			SystemVersion: "macOS v15.6.1 build 24G90",
			AppVersion:    version.Version,
		},
	}
	if opts.TestDC {
		options.DCList = dcs.Test()
	}

	client := telegram.NewClient(opts.APIID, opts.APIHash, options)

	return client.Run(ctx, func(ctx context.Context) error {
		status, err := client.Auth().Status(ctx)
		if err != nil {
			return errors.Wrap(err, "auth status")
		}
		if !status.Authorized {
			return ErrUnauthorized
		}
		return fn(ctx, client)
	})
}
