// Package app — верхний уровень сборки бот-менеджера MTProto-сессий. Здесь
// связываются конфигурация, сетевой слой (gotd/telegram), менеджер апдейтов,
// каталог аккаунтов и конвейер приёма архивов. Отсюда стартует цикл обработки
// событий и обеспечивается корректный shutdown.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	boltstor "github.com/gotd/contrib/bbolt"
	"github.com/gotd/contrib/middleware/floodwait"
	"github.com/gotd/contrib/middleware/ratelimit"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/dcs"
	tgupdates "github.com/gotd/td/telegram/updates"
	"github.com/gotd/td/tg"

	"telegram-sessionbot/internal/bot"
	"telegram-sessionbot/internal/domain/ingest"
	"telegram-sessionbot/internal/domain/registry"
	"telegram-sessionbot/internal/infra/config"
	"telegram-sessionbot/internal/infra/logger"
	"telegram-sessionbot/internal/infra/storage"
	"telegram-sessionbot/internal/support/version"
	"telegram-sessionbot/internal/telegram/session"
	"telegram-sessionbot/internal/telegram/validator"
)

// App агрегирует зависимости бота и управляет их связью.
// Отвечает за:
//   - конфигурацию и телеграм-клиента (авторизация по токену, API),
//   - каталог аккаунтов и конвейер приёма архивов,
//   - маршрутизацию апдейтов на обработчики бота,
//   - запуск менеджера апдейтов и graceful shutdown.
type App struct {
	cfg     config.EnvConfig
	mainCtx context.Context

	reg    *registry.Registry
	updMgr *tgupdates.Manager
	waiter *floodwait.Waiter
}

// New создаёт каркас приложения. Фактическая инициализация выполняется в Run().
func New(mainCtx context.Context, cfg config.EnvConfig) *App {
	return &App{
		cfg:     cfg,
		mainCtx: mainCtx,
	}
}

// Run собирает и запускает все подсистемы. Блокируется до отмены mainCtx либо
// фатальной ошибки инициализации.
func (a *App) Run() error {
	logger.Info("Session manager bot initializing...")

	// Каталог аккаунтов: записи из accounts.json плюс файлы сессий рядом.
	a.reg = registry.New(a.cfg.StorageDir)
	if err := a.reg.Load(); err != nil {
		return fmt.Errorf("load account registry: %w", err)
	}
	logger.Infof("Account registry loaded: %d records", a.reg.Len())

	dispatcher := tg.NewUpdateDispatcher()
	a.waiter = floodwait.NewWaiter()

	options := telegram.Options{
		SessionStorage: &session.FileStorage{Path: a.cfg.SessionFile},
		UpdateHandler:  dispatcher,
		Middlewares: []telegram.Middleware{
			a.waiter,
			ratelimit.New(
				rate.Limit(a.cfg.ThrottleRPS),
				a.cfg.ThrottleRPS*2, //nolint:mnd // burst = 2*rate
			),
		},
		Device: telegram.DeviceConfig{
			DeviceModel:   "MacBookPro18,1",
			SystemVersion: "macOS v15.6.1 build 24G90",
			AppVersion:    version.Version,
		},
	}
	if a.cfg.TestDC {
		options.DCList = dcs.Test()
	}

	client := telegram.NewClient(a.cfg.APIID, a.cfg.APIHash, options)

	// Хранилище состояния апдейтов, чтобы после рестарта не терять события.
	if err := storage.EnsureDir(a.cfg.StateFile); err != nil {
		return fmt.Errorf("ensure state file dir: %w", err)
	}
	stateDB, err := bbolt.Open(a.cfg.StateFile, storage.DefaultFilePerm, nil)
	if err != nil {
		return errors.Wrap(err, "open bolt state storage")
	}
	defer func() {
		if closeErr := stateDB.Close(); closeErr != nil {
			logger.Errorf("close bolt state storage: %v", closeErr)
		}
	}()

	a.updMgr = tgupdates.New(tgupdates.Config{
		Handler: dispatcher,
		Storage: boltstor.NewStateStorage(stateDB),
	})

	// Конвейер приёма: валидатор живой сети поверх каталога аккаунтов.
	pipeline := ingest.New(validator.New(validator.Options{
		APIID:   a.cfg.APIID,
		APIHash: a.cfg.APIHash,
		TestDC:  a.cfg.TestDC,
		RPS:     a.cfg.ThrottleRPS,
		Timeout: time.Duration(a.cfg.ValidateTimeoutSec) * time.Second,
	}), a.reg)

	svc := bot.New(a.cfg, a.reg, pipeline, client.API())
	svc.Register(dispatcher)

	return a.runClient(client)
}

// runClient выполняет авторизацию по токену бота и держит менеджер апдейтов
// до завершения контекста приложения.
func (a *App) runClient(client *telegram.Client) error {
	clientCtx, clientCancel := context.WithCancel(context.Background())
	defer clientCancel()

	var shutdownWG sync.WaitGroup
	shutdownWG.Add(1)
	go func() {
		defer shutdownWG.Done()
		<-a.mainCtx.Done()
		logger.Debug("Shutdown signal received, stopping bot...")
		clientCancel()
	}()

	err := a.waiter.Run(clientCtx, func(ctx context.Context) error {
		return client.Run(ctx, func(ctx context.Context) error {
			self, loginErr := a.loginBot(ctx, client)
			if loginErr != nil {
				return loginErr
			}

			logger.Info("Session manager bot running...")
			mgrErr := a.updMgr.Run(ctx, client.API(), self.ID, tgupdates.AuthOptions{IsBot: true})
			if mgrErr != nil && !errors.Is(mgrErr, context.Canceled) {
				return errors.Wrap(mgrErr, "updates manager")
			}
			return ctx.Err()
		})
	})

	shutdownWG.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) loginBot(ctx context.Context, client *telegram.Client) (*tg.User, error) {
	status, err := client.Auth().Status(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "auth status")
	}
	if !status.Authorized {
		if _, authErr := client.Auth().Bot(ctx, a.cfg.BotToken); authErr != nil {
			return nil, errors.Wrap(authErr, "bot auth")
		}
	}

	self, err := client.Self(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "self")
	}
	logger.Logger().Info("Logged in as:",
		zap.String("Username", self.Username),
		zap.Int64("ID", self.ID),
	)
	return self, nil
}
