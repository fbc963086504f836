package accounts

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/gotd/td/tg"

	"telegram-sessionbot/internal/infra/pacing"
)

const (
	dialogPageLimit  = 100
	dialogZeroOffset = 0
)

var errDialogsNotModified = errors.New("dialogs not modified")

// dialogList — плоский снимок всех диалогов аккаунта вместе с картами
// access_hash, собранными по пути. Хэши нужны, чтобы превращать peer из
// ответа сервера обратно в InputPeer для последующих запросов.
type dialogList struct {
	dialogs  []tg.DialogClass
	messages []tg.MessageClass
	users    map[int64]*tg.User
	chats    map[int64]*tg.Chat
	channels map[int64]*tg.Channel
}

// fetchDialogs последовательно выгружает весь список диалогов аккаунта через
// MessagesGetDialogs. Пагинация по (offset_date, offset_id, offset_peer),
// между страницами — случайная пауза.
func fetchDialogs(ctx context.Context, api *tg.Client) (*dialogList, error) {
	result := &dialogList{
		users:    make(map[int64]*tg.User),
		chats:    make(map[int64]*tg.Chat),
		channels: make(map[int64]*tg.Channel),
	}

	offsetDate := dialogZeroOffset
	offsetID := dialogZeroOffset
	var offsetPeer tg.InputPeerClass = &tg.InputPeerEmpty{}

	for {
		resp, err := api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
			OffsetDate: offsetDate,
			OffsetID:   offsetID,
			OffsetPeer: offsetPeer,
			Limit:      dialogPageLimit,
		})
		if err != nil {
			return nil, errors.Wrap(err, "messages.getDialogs")
		}

		batch, err := normalizeDialogsResponse(resp)
		if err != nil {
			if errors.Is(err, errDialogsNotModified) {
				return result, nil
			}
			return nil, err
		}

		if len(batch.Dialogs) == 0 {
			break
		}

		result.dialogs = append(result.dialogs, batch.Dialogs...)
		result.messages = append(result.messages, batch.Messages...)
		result.indexEntities(batch)

		lastDialog := batch.Dialogs[len(batch.Dialogs)-1]
		prevOffsetDate := offsetDate
		prevOffsetID := offsetID

		switch dlg := lastDialog.(type) {
		case *tg.Dialog:
			offsetID = dlg.TopMessage
			offsetDate = messageDate(batch.Messages, dlg.TopMessage)
			offsetPeer = result.inputPeer(dlg.Peer)
		case *tg.DialogFolder:
			offsetID = dlg.TopMessage
			offsetDate = messageDate(batch.Messages, dlg.TopMessage)
			offsetPeer = result.inputPeer(dlg.Peer)
		default:
			offsetPeer = &tg.InputPeerEmpty{}
		}

		if offsetDate == dialogZeroOffset {
			offsetDate = prevOffsetDate
		}
		if offsetID == dialogZeroOffset {
			offsetID = prevOffsetID
		}

		if len(batch.Dialogs) < dialogPageLimit {
			break
		}

		pacing.WaitRandomTime(ctx)
	}

	return result, nil
}

func normalizeDialogsResponse(resp tg.MessagesDialogsClass) (*tg.MessagesDialogs, error) {
	switch data := resp.(type) {
	case *tg.MessagesDialogs:
		return data, nil
	case *tg.MessagesDialogsSlice:
		return &tg.MessagesDialogs{
			Dialogs:  data.Dialogs,
			Messages: data.Messages,
			Chats:    data.Chats,
			Users:    data.Users,
		}, nil
	case *tg.MessagesDialogsNotModified:
		return nil, errDialogsNotModified
	default:
		return nil, errors.Errorf("unexpected dialogs response: %T", resp)
	}
}

// indexEntities складывает сущности страницы в карты по идентификатору.
func (l *dialogList) indexEntities(batch *tg.MessagesDialogs) {
	for _, entity := range batch.Users {
		if user, ok := entity.(*tg.User); ok {
			l.users[user.ID] = user
		}
	}
	for _, entity := range batch.Chats {
		switch item := entity.(type) {
		case *tg.Chat:
			l.chats[item.ID] = item
		case *tg.Channel:
			l.channels[item.ID] = item
		}
	}
}

// inputPeer восстанавливает InputPeer по peer из ответа сервера. Для
// пользователей и каналов нужен access_hash из ранее собранных карт.
func (l *dialogList) inputPeer(peer tg.PeerClass) tg.InputPeerClass {
	switch entity := peer.(type) {
	case *tg.PeerUser:
		user, ok := l.users[entity.UserID]
		if !ok {
			return &tg.InputPeerEmpty{}
		}
		return &tg.InputPeerUser{UserID: user.ID, AccessHash: user.AccessHash}
	case *tg.PeerChat:
		return &tg.InputPeerChat{ChatID: entity.ChatID}
	case *tg.PeerChannel:
		channel, ok := l.channels[entity.ChannelID]
		if !ok {
			return &tg.InputPeerEmpty{}
		}
		return &tg.InputPeerChannel{ChannelID: channel.ID, AccessHash: channel.AccessHash}
	default:
		return &tg.InputPeerEmpty{}
	}
}

func messageDate(messages []tg.MessageClass, id int) int {
	for _, msg := range messages {
		switch item := msg.(type) {
		case *tg.Message:
			if item.ID == id {
				return item.Date
			}
		case *tg.MessageService:
			if item.ID == id {
				return item.Date
			}
		}
	}
	return dialogZeroOffset
}
