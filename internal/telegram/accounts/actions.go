package accounts

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"telegram-sessionbot/internal/domain/otp"
	"telegram-sessionbot/internal/infra/logger"
	"telegram-sessionbot/internal/infra/pacing"
)

const (
	// servicePhone — номер служебного пира Telegram, куда приходят коды входа.
	servicePhone = "+42777"
	// serviceUserID — идентификатор служебного пользователя Telegram,
	// запасной путь поиска по диалогам, когда resolvePhone недоступен.
	serviceUserID = 777000

	// historyLatestLimit — глубина истории при запросе последнего кода.
	historyLatestLimit = 5
	// historyFullLimit — глубина истории при запросе всех недавних кодов.
	historyFullLimit = 10
)

// ErrNoServicePeer — у аккаунта нет диалога со служебным пиром Telegram,
// кодов входа взять неоткуда.
var ErrNoServicePeer = errors.New("telegram service peer not found")

// isPermanentRPC отделяет ошибки, по которым повтор бессмыслен, от
// транзиентных. Флуд-ожидания до этой проверки не доходят: их гасит
// floodwait-мидлварь.
func isPermanentRPC(err error) bool {
	rpcErr, ok := tgerr.As(err)
	if !ok {
		return false
	}
	return rpcErr.Type == "PEER_FLOOD" || (rpcErr.Code >= 400 && rpcErr.Code < 500)
}

// FetchCodes выгружает последние сообщения служебного пира и извлекает из них
// коды входа. latestOnly — режим «только самый свежий код», с меньшей
// глубиной истории.
func FetchCodes(ctx context.Context, api *tg.Client, latestOnly bool) ([]otp.Code, error) {
	peer, err := resolveServicePeer(ctx, api)
	if err != nil {
		return nil, err
	}

	limit := historyFullLimit
	if latestOnly {
		limit = historyLatestLimit
	}

	resp, err := api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:  peer,
		Limit: limit,
	})
	if err != nil {
		return nil, errors.Wrap(err, "messages.getHistory")
	}

	msgs, err := normalizeHistoryResponse(resp)
	if err != nil {
		return nil, err
	}

	// История приходит от новых к старым — это и есть порядок, который
	// ожидает матчер.
	history := make([]otp.Message, 0, len(msgs))
	for _, m := range msgs {
		item, ok := m.(*tg.Message)
		if !ok || item.Message == "" {
			continue
		}
		history = append(history, otp.Message{
			Text: item.Message,
			Date: time.Unix(int64(item.Date), 0),
		})
	}

	return otp.Extract(history, latestOnly), nil
}

// resolveServicePeer находит служебный пир Telegram: сначала по номеру
// телефона, при неудаче — перебором диалогов аккаунта.
func resolveServicePeer(ctx context.Context, api *tg.Client) (tg.InputPeerClass, error) {
	resolved, err := api.ContactsResolvePhone(ctx, servicePhone)
	if err == nil {
		if peerUser, ok := resolved.Peer.(*tg.PeerUser); ok {
			for _, u := range resolved.Users {
				if user, userOk := u.(*tg.User); userOk && user.ID == peerUser.UserID {
					return &tg.InputPeerUser{UserID: user.ID, AccessHash: user.AccessHash}, nil
				}
			}
		}
	} else {
		logger.Debugf("accounts: resolve %s failed, falling back to dialog scan: %v", servicePhone, err)
	}

	list, err := fetchDialogs(ctx, api)
	if err != nil {
		return nil, err
	}
	for _, user := range list.users {
		if user.ID == serviceUserID || user.Phone == "42777" {
			return &tg.InputPeerUser{UserID: user.ID, AccessHash: user.AccessHash}, nil
		}
	}
	return nil, ErrNoServicePeer
}

func normalizeHistoryResponse(resp tg.MessagesMessagesClass) ([]tg.MessageClass, error) {
	switch data := resp.(type) {
	case *tg.MessagesMessages:
		return data.Messages, nil
	case *tg.MessagesMessagesSlice:
		return data.Messages, nil
	case *tg.MessagesChannelMessages:
		return data.Messages, nil
	case *tg.MessagesMessagesNotModified:
		return nil, nil
	default:
		return nil, errors.Errorf("unexpected history response: %T", resp)
	}
}

// ClearChats удаляет историю всех личных диалогов аккаунта (с отзывом у
// собеседника). Возвращает число очищенных диалогов; при транзиентной ошибке
// возвращается частичный счётчик вместе с ошибкой, постоянные RPC-ошибки
// отдельного диалога логируются и пропускаются.
func ClearChats(ctx context.Context, api *tg.Client) (int, error) {
	list, err := fetchDialogs(ctx, api)
	if err != nil {
		return 0, err
	}

	cleared := 0
	for _, d := range list.dialogs {
		dlg, ok := d.(*tg.Dialog)
		if !ok {
			continue
		}
		peerUser, ok := dlg.Peer.(*tg.PeerUser)
		if !ok {
			continue
		}
		user, ok := list.users[peerUser.UserID]
		if !ok {
			continue
		}

		_, err := api.MessagesDeleteHistory(ctx, &tg.MessagesDeleteHistoryRequest{
			Revoke: true,
			Peer:   &tg.InputPeerUser{UserID: user.ID, AccessHash: user.AccessHash},
		})
		if err != nil {
			if isPermanentRPC(err) {
				logger.Warnf("accounts: delete history for %d skipped: %v", user.ID, err)
				continue
			}
			return cleared, errors.Wrap(err, "messages.deleteHistory")
		}
		cleared++

		pacing.WaitRandomTime(ctx)
	}
	return cleared, nil
}

// LeaveGroups выводит аккаунт из всех групп и каналов, где он не создатель и
// не администратор. Возвращает число покинутых и число оставленных из-за
// административной роли.
func LeaveGroups(ctx context.Context, api *tg.Client) (left, keptAdmin int, err error) {
	list, err := fetchDialogs(ctx, api)
	if err != nil {
		return 0, 0, err
	}

	for _, d := range list.dialogs {
		dlg, ok := d.(*tg.Dialog)
		if !ok {
			continue
		}

		var leaveErr error
		switch peer := dlg.Peer.(type) {
		case *tg.PeerChat:
			chat, found := list.chats[peer.ChatID]
			if !found || chat.Left || chat.Deactivated {
				continue
			}
			if isChatAdmin(chat) {
				keptAdmin++
				continue
			}
			_, leaveErr = api.MessagesDeleteChatUser(ctx, &tg.MessagesDeleteChatUserRequest{
				ChatID: chat.ID,
				UserID: &tg.InputUserSelf{},
			})
		case *tg.PeerChannel:
			channel, found := list.channels[peer.ChannelID]
			if !found || channel.Left {
				continue
			}
			if isChannelAdmin(channel) {
				keptAdmin++
				continue
			}
			_, leaveErr = api.ChannelsLeaveChannel(ctx, &tg.InputChannel{
				ChannelID:  channel.ID,
				AccessHash: channel.AccessHash,
			})
		default:
			continue
		}

		if leaveErr != nil {
			if isPermanentRPC(leaveErr) {
				logger.Warnf("accounts: leave skipped: %v", leaveErr)
				continue
			}
			return left, keptAdmin, errors.Wrap(leaveErr, "leave group")
		}
		left++

		pacing.WaitRandomTime(ctx)
	}
	return left, keptAdmin, nil
}

func isChatAdmin(chat *tg.Chat) bool {
	if chat.Creator {
		return true
	}
	_, ok := chat.GetAdminRights()
	return ok
}

func isChannelAdmin(channel *tg.Channel) bool {
	if channel.Creator {
		return true
	}
	_, ok := channel.GetAdminRights()
	return ok
}

// SessionList — активные авторизации аккаунта, разделённые на текущую
// (созданную этим же подключением) и остальные.
type SessionList struct {
	Current *tg.Authorization
	Others  []tg.Authorization
}

// Authorizations выгружает список активных авторизаций аккаунта.
func Authorizations(ctx context.Context, api *tg.Client) (SessionList, error) {
	var list SessionList

	resp, err := api.AccountGetAuthorizations(ctx)
	if err != nil {
		return list, errors.Wrap(err, "account.getAuthorizations")
	}

	for i := range resp.Authorizations {
		auth := resp.Authorizations[i]
		if auth.Current {
			list.Current = &resp.Authorizations[i]
			continue
		}
		list.Others = append(list.Others, auth)
	}
	return list, nil
}

// KillOtherSessions отзывает все авторизации аккаунта, кроме текущей.
// Свежие авторизации (моложе суток) сервер отзывать отказывается; такая
// ошибка возвращается как есть.
func KillOtherSessions(ctx context.Context, api *tg.Client) error {
	if _, err := api.AuthResetAuthorizations(ctx); err != nil {
		return errors.Wrap(err, "auth.resetAuthorizations")
	}
	return nil
}
