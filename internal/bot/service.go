// Package bot — интерфейс оператора: личный чат с ботом. Приём ZIP-архивов с
// сессиями, список аккаунтов, действия над аккаунтом через inline-кнопки.
// Каждое входящее сообщение и каждый callback проходят через allow-list
// администраторов; всем остальным бот отвечает отказом и ничего не делает.
package bot

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"telegram-sessionbot/internal/domain/ingest"
	"telegram-sessionbot/internal/domain/registry"
	"telegram-sessionbot/internal/infra/config"
	"telegram-sessionbot/internal/telegram/accounts"
)

// Service связывает обновления Telegram с конвейером приёма и операциями над
// аккаунтами. Обработка строго последовательная: пока идёт валидация пачки
// или действие над аккаунтом, остальные обновления ждут.
type Service struct {
	cfg      config.EnvConfig
	reg      *registry.Registry
	pipeline *ingest.Pipeline
	accOpts  accounts.Options

	api      *tg.Client
	download *downloader.Downloader
}

// New собирает сервис поверх уже сконфигурированного raw-клиента бота.
func New(cfg config.EnvConfig, reg *registry.Registry, pipeline *ingest.Pipeline, api *tg.Client) *Service {
	return &Service{
		cfg:      cfg,
		reg:      reg,
		pipeline: pipeline,
		accOpts: accounts.Options{
			APIID:   cfg.APIID,
			APIHash: cfg.APIHash,
			TestDC:  cfg.TestDC,
			RPS:     cfg.ThrottleRPS,
		},
		api:      api,
		download: downloader.NewDownloader(),
	}
}

// Register подписывает обработчики на диспетчер обновлений.
func (s *Service) Register(dispatcher tg.UpdateDispatcher) {
	dispatcher.OnNewMessage(s.onNewMessage)
	dispatcher.OnBotCallbackQuery(s.onCallback)
}

// sendText отправляет текст (с опциональной inline-клавиатурой) и возвращает
// идентификатор отправленного сообщения, если его удалось извлечь из ответа.
// RandomID нужен Telegram для идемпотентности отправки.
func (s *Service) sendText(ctx context.Context, peer tg.InputPeerClass, text string, markup *tg.ReplyInlineMarkup) (int, error) {
	req := &tg.MessagesSendMessageRequest{
		Peer:     peer,
		Message:  text,
		RandomID: time.Now().UnixNano(),
	}
	if markup != nil {
		req.SetReplyMarkup(markup)
	}

	upd, err := s.api.MessagesSendMessage(ctx, req)
	if err != nil {
		return 0, errors.Wrap(err, "send message")
	}
	return sentMessageID(upd), nil
}

// editText редактирует ранее отправленное сообщение. MESSAGE_NOT_MODIFIED не
// считается ошибкой: повторный рендер той же вьюхи — штатная ситуация.
func (s *Service) editText(ctx context.Context, peer tg.InputPeerClass, msgID int, text string, markup *tg.ReplyInlineMarkup) error {
	req := &tg.MessagesEditMessageRequest{Peer: peer, ID: msgID}
	req.SetMessage(text)
	if markup != nil {
		req.SetReplyMarkup(markup)
	}
	if _, err := s.api.MessagesEditMessage(ctx, req); err != nil {
		if tgerr.Is(err, "MESSAGE_NOT_MODIFIED") {
			return nil
		}
		return errors.Wrap(err, "edit message")
	}
	return nil
}

// answerCallback подтверждает callback, чтобы у оператора погас «часик» на кнопке.
func (s *Service) answerCallback(ctx context.Context, queryID int64, text string) error {
	req := &tg.MessagesSetBotCallbackAnswerRequest{QueryID: queryID}
	if text != "" {
		req.SetMessage(text)
	}
	if _, err := s.api.MessagesSetBotCallbackAnswer(ctx, req); err != nil {
		return errors.Wrap(err, "answer callback")
	}
	return nil
}

// sentMessageID достаёт идентификатор отправленного сообщения из ответа
// сервера. Ноль означает, что извлечь его не удалось; редактирования в этом
// случае пропускаются.
func sentMessageID(updates tg.UpdatesClass) int {
	switch u := updates.(type) {
	case *tg.UpdateShortSentMessage:
		return u.ID
	case *tg.Updates:
		return findMessageID(u.Updates)
	case *tg.UpdatesCombined:
		return findMessageID(u.Updates)
	default:
		return 0
	}
}

func findMessageID(updates []tg.UpdateClass) int {
	for _, upd := range updates {
		if m, ok := upd.(*tg.UpdateMessageID); ok {
			return m.ID
		}
	}
	return 0
}

// peerToInput восстанавливает InputPeer по peer обновления и сущностям,
// приехавшим вместе с ним.
func peerToInput(e tg.Entities, peer tg.PeerClass) (tg.InputPeerClass, bool) {
	switch p := peer.(type) {
	case *tg.PeerUser:
		user, ok := e.Users[p.UserID]
		if !ok {
			return nil, false
		}
		return &tg.InputPeerUser{UserID: user.ID, AccessHash: user.AccessHash}, true
	case *tg.PeerChat:
		return &tg.InputPeerChat{ChatID: p.ChatID}, true
	case *tg.PeerChannel:
		channel, ok := e.Channels[p.ChannelID]
		if !ok {
			return nil, false
		}
		return &tg.InputPeerChannel{ChannelID: channel.ID, AccessHash: channel.AccessHash}, true
	default:
		return nil, false
	}
}
