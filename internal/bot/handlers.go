package bot

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"

	"telegram-sessionbot/internal/domain/ingest"
	"telegram-sessionbot/internal/domain/registry"
	"telegram-sessionbot/internal/infra/logger"
	"telegram-sessionbot/internal/support/debug"
	"telegram-sessionbot/internal/telegram/accounts"
)

// maxArchiveBytes ограничивает размер принимаемого архива: валидация идёт в
// памяти и на диске scratch-зоны.
const maxArchiveBytes = 64 << 20

// onNewMessage — входная точка для сообщений. Боту пишут только в личку;
// всё остальное молча игнорируется.
func (s *Service) onNewMessage(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
	m, ok := u.Message.(*tg.Message)
	if !ok || m.Out {
		return nil
	}
	debug.DumpUpdate("bot: message", m)

	peerUser, ok := m.PeerID.(*tg.PeerUser)
	if !ok {
		return nil
	}
	peer, ok := peerToInput(e, m.PeerID)
	if !ok {
		return nil
	}

	if !s.cfg.IsAdmin(peerUser.UserID) {
		logger.Warnf("bot: message from non-admin %d rejected", peerUser.UserID)
		_, err := s.sendText(ctx, peer, msgAccessDenied, nil)
		return err
	}

	if media, isDoc := m.Media.(*tg.MessageMediaDocument); isDoc {
		return s.handleDocument(ctx, peer, media)
	}

	switch strings.TrimSpace(m.Message) {
	case "/accounts":
		text, markup := accountsView(s.reg.List())
		_, err := s.sendText(ctx, peer, text, markup)
		return err
	default:
		// /start и любой нераспознанный ввод получают справку.
		_, err := s.sendText(ctx, peer, msgStart, showAccountsMarkup())
		return err
	}
}

// handleDocument принимает ZIP-архив с сессиями и прогоняет его через
// конвейер, редактируя одно сообщение со счётчиками прогресса.
func (s *Service) handleDocument(ctx context.Context, peer tg.InputPeerClass, media *tg.MessageMediaDocument) error {
	docClass, ok := media.GetDocument()
	if !ok {
		return nil
	}
	doc, ok := docClass.(*tg.Document)
	if !ok {
		return nil
	}

	if !isZipDocument(doc) {
		_, err := s.sendText(ctx, peer, msgNotAZip, nil)
		return err
	}
	if doc.Size > maxArchiveBytes {
		_, err := s.sendText(ctx, peer, fmt.Sprintf("Archive is too large: %d bytes (limit %d).", doc.Size, maxArchiveBytes), nil)
		return err
	}

	var buf bytes.Buffer
	if _, err := s.download.Download(s.api, doc.AsInputDocumentFileLocation()).Stream(ctx, &buf); err != nil {
		logger.Errorf("bot: archive download failed: %v", err)
		_, sendErr := s.sendText(ctx, peer, "Failed to download the archive, try again.", nil)
		return sendErr
	}

	msgID, err := s.sendText(ctx, peer, ingestProgressView(ingest.Summary{}, false), nil)
	if err != nil {
		return err
	}

	progress := func(sum ingest.Summary) {
		if msgID == 0 {
			return
		}
		if editErr := s.editText(ctx, peer, msgID, ingestProgressView(sum, false), nil); editErr != nil {
			logger.Warnf("bot: progress edit failed: %v", editErr)
		}
	}

	summary, runErr := s.pipeline.Run(ctx, buf.Bytes(), progress)
	if runErr != nil {
		text := ingestErrorText(runErr)
		if msgID != 0 {
			return s.editText(ctx, peer, msgID, text, nil)
		}
		_, sendErr := s.sendText(ctx, peer, text, nil)
		return sendErr
	}

	done := ingestProgressView(summary, true)
	markup := showAccountsMarkup()
	if msgID != 0 {
		return s.editText(ctx, peer, msgID, done, markup)
	}
	_, sendErr := s.sendText(ctx, peer, done, markup)
	return sendErr
}

func isZipDocument(doc *tg.Document) bool {
	if doc.MimeType == "application/zip" || doc.MimeType == "application/x-zip-compressed" {
		return true
	}
	for _, attr := range doc.Attributes {
		if fn, ok := attr.(*tg.DocumentAttributeFilename); ok {
			return strings.HasSuffix(strings.ToLower(fn.FileName), ".zip")
		}
	}
	return false
}

func ingestErrorText(err error) string {
	switch {
	case errors.Is(err, ingest.ErrBadArchive):
		return "The archive is malformed and cannot be unpacked."
	case errors.Is(err, ingest.ErrNoSessionsDir):
		return "No sessions/users directory inside the archive."
	case errors.Is(err, ingest.ErrEmptyBatch):
		return "The sessions/users directory contains no .session files."
	default:
		return fmt.Sprintf("Validation failed: %v", err)
	}
}

// onCallback — маршрутизация нажатий inline-кнопок по префиксу данных.
func (s *Service) onCallback(ctx context.Context, e tg.Entities, u *tg.UpdateBotCallbackQuery) error {
	data := string(u.Data)
	debug.DumpUpdate("bot: callback "+data, u)

	if !s.cfg.IsAdmin(u.UserID) {
		logger.Warnf("bot: callback from non-admin %d rejected", u.UserID)
		return s.answerCallback(ctx, u.QueryID, msgAccessDenied)
	}

	peer, ok := peerToInput(e, u.Peer)
	if !ok {
		return s.answerCallback(ctx, u.QueryID, "Stale message, send /accounts again.")
	}

	if err := s.answerCallback(ctx, u.QueryID, ""); err != nil {
		logger.Warnf("bot: callback ack failed: %v", err)
	}

	switch {
	case data == cbShowAccounts || data == cbBackAccounts:
		text, markup := accountsView(s.reg.List())
		return s.editText(ctx, peer, u.MsgID, text, markup)
	case strings.HasPrefix(data, cbAccountPrefix):
		return s.showAccount(ctx, peer, u.MsgID, strings.TrimPrefix(data, cbAccountPrefix))
	case strings.HasPrefix(data, cbGetOTPPrefix):
		return s.handleGetOTP(ctx, peer, u.MsgID, strings.TrimPrefix(data, cbGetOTPPrefix))
	case strings.HasPrefix(data, cbClearPrefix):
		return s.handleClearChats(ctx, peer, u.MsgID, strings.TrimPrefix(data, cbClearPrefix))
	case strings.HasPrefix(data, cbSessionsPrefix):
		return s.handleSessions(ctx, peer, u.MsgID, strings.TrimPrefix(data, cbSessionsPrefix))
	case strings.HasPrefix(data, cbKillAllPrefix):
		return s.handleKillAll(ctx, peer, u.MsgID, strings.TrimPrefix(data, cbKillAllPrefix))
	case strings.HasPrefix(data, cbLeaveGroupsPrefix):
		return s.handleLeaveGroups(ctx, peer, u.MsgID, strings.TrimPrefix(data, cbLeaveGroupsPrefix))
	default:
		logger.Warnf("bot: unknown callback %q", data)
		return nil
	}
}

// lookupAccount находит запись каталога; при отсутствии рисует список заново.
func (s *Service) lookupAccount(ctx context.Context, peer tg.InputPeerClass, msgID int, accountID string) (registry.Record, bool) {
	rec, ok := s.reg.Get(accountID)
	if !ok {
		text, markup := accountsView(s.reg.List())
		if err := s.editText(ctx, peer, msgID, "Unknown account.\n\n"+text, markup); err != nil {
			logger.Warnf("bot: edit failed: %v", err)
		}
		return registry.Record{}, false
	}
	return rec, true
}

func (s *Service) showAccount(ctx context.Context, peer tg.InputPeerClass, msgID int, accountID string) error {
	rec, ok := s.lookupAccount(ctx, peer, msgID, accountID)
	if !ok {
		return nil
	}
	text, markup := accountInfoView(rec)
	return s.editText(ctx, peer, msgID, text, markup)
}

// runAccountAction показывает заглушку, выполняет действие под сессией
// аккаунта и рендерит результат с кнопкой возврата к карточке.
func (s *Service) runAccountAction(ctx context.Context, peer tg.InputPeerClass, msgID int, rec registry.Record, action func(ctx context.Context, client *telegram.Client) (string, error)) error {
	if err := s.editText(ctx, peer, msgID, msgWorking, nil); err != nil {
		logger.Warnf("bot: edit failed: %v", err)
	}

	var result string
	err := accounts.Run(ctx, s.accOpts, s.reg.SessionPath(rec.AccountID), func(ctx context.Context, client *telegram.Client) error {
		var actionErr error
		result, actionErr = action(ctx, client)
		return actionErr
	})
	if err != nil {
		result = accountErrorText(rec, err)
	}
	return s.editText(ctx, peer, msgID, result, backToAccountMarkup(rec.AccountID))
}

func accountErrorText(rec registry.Record, err error) string {
	if errors.Is(err, accounts.ErrUnauthorized) {
		return fmt.Sprintf("Session for %s is no longer authorized.", rec.Phone)
	}
	return fmt.Sprintf("Action for %s failed: %v", rec.Phone, err)
}

func (s *Service) handleGetOTP(ctx context.Context, peer tg.InputPeerClass, msgID int, accountID string) error {
	rec, ok := s.lookupAccount(ctx, peer, msgID, accountID)
	if !ok {
		return nil
	}
	return s.runAccountAction(ctx, peer, msgID, rec, func(ctx context.Context, client *telegram.Client) (string, error) {
		codes, err := accounts.FetchCodes(ctx, client.API(), true)
		if err != nil {
			if errors.Is(err, accounts.ErrNoServicePeer) {
				return fmt.Sprintf("No Telegram service chat found for %s.", rec.Phone), nil
			}
			return "", err
		}
		return codesView(rec, codes), nil
	})
}

func (s *Service) handleClearChats(ctx context.Context, peer tg.InputPeerClass, msgID int, accountID string) error {
	rec, ok := s.lookupAccount(ctx, peer, msgID, accountID)
	if !ok {
		return nil
	}
	return s.runAccountAction(ctx, peer, msgID, rec, func(ctx context.Context, client *telegram.Client) (string, error) {
		cleared, err := accounts.ClearChats(ctx, client.API())
		return clearChatsResult(rec, cleared, err), nil
	})
}

func (s *Service) handleSessions(ctx context.Context, peer tg.InputPeerClass, msgID int, accountID string) error {
	rec, ok := s.lookupAccount(ctx, peer, msgID, accountID)
	if !ok {
		return nil
	}
	return s.runAccountAction(ctx, peer, msgID, rec, func(ctx context.Context, client *telegram.Client) (string, error) {
		list, err := accounts.Authorizations(ctx, client.API())
		if err != nil {
			return "", err
		}
		return sessionsView(rec, list), nil
	})
}

func (s *Service) handleKillAll(ctx context.Context, peer tg.InputPeerClass, msgID int, accountID string) error {
	rec, ok := s.lookupAccount(ctx, peer, msgID, accountID)
	if !ok {
		return nil
	}
	return s.runAccountAction(ctx, peer, msgID, rec, func(ctx context.Context, client *telegram.Client) (string, error) {
		if err := accounts.KillOtherSessions(ctx, client.API()); err != nil {
			return "", err
		}
		return fmt.Sprintf("All other sessions for %s have been terminated.", rec.Phone), nil
	})
}

func (s *Service) handleLeaveGroups(ctx context.Context, peer tg.InputPeerClass, msgID int, accountID string) error {
	rec, ok := s.lookupAccount(ctx, peer, msgID, accountID)
	if !ok {
		return nil
	}
	return s.runAccountAction(ctx, peer, msgID, rec, func(ctx context.Context, client *telegram.Client) (string, error) {
		left, keptAdmin, err := accounts.LeaveGroups(ctx, client.API())
		return leaveGroupsResult(rec, left, keptAdmin, err), nil
	})
}
