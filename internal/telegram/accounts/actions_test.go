package accounts

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/gotd/td/bin"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
)

// resetInvoker отвечает BoolTrue на auth.resetAuthorizations и отклоняет
// любой другой RPC. Фиксирует wire-метод операции отзыва авторизаций.
type resetInvoker struct{}

func (resetInvoker) Invoke(_ context.Context, input bin.Encoder, output bin.Decoder) error {
	if _, ok := input.(*tg.AuthResetAuthorizationsRequest); !ok {
		return errors.Errorf("unexpected request %T", input)
	}
	var buf bin.Buffer
	if err := (&tg.BoolTrue{}).Encode(&buf); err != nil {
		return err
	}
	return output.Decode(&buf)
}

func TestKillOtherSessionsWireMethod(t *testing.T) {
	t.Parallel()

	api := tg.NewClient(resetInvoker{})
	if err := KillOtherSessions(context.Background(), api); err != nil {
		t.Fatalf("KillOtherSessions() = %v", err)
	}
}

func TestIsPermanentRPC(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "bad request", err: tgerr.New(400, "PEER_ID_INVALID"), want: true},
		{name: "peer flood", err: tgerr.New(420, "PEER_FLOOD"), want: true},
		{name: "server error", err: tgerr.New(500, "INTERNAL"), want: false},
		{name: "not an rpc error", err: errors.New("dial tcp: timeout"), want: false},
		{name: "nil", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := isPermanentRPC(tt.err); got != tt.want {
				t.Fatalf("isPermanentRPC(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestNormalizeHistoryResponse(t *testing.T) {
	t.Parallel()

	msgs := []tg.MessageClass{&tg.Message{ID: 1, Message: "hi"}}

	got, err := normalizeHistoryResponse(&tg.MessagesMessagesSlice{Messages: msgs})
	if err != nil {
		t.Fatalf("slice: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("slice messages = %d, want 1", len(got))
	}

	got, err = normalizeHistoryResponse(&tg.MessagesMessagesNotModified{})
	if err != nil {
		t.Fatalf("not modified: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("not modified must yield no messages, got %d", len(got))
	}
}

func TestMessageDate(t *testing.T) {
	t.Parallel()

	msgs := []tg.MessageClass{
		&tg.Message{ID: 10, Date: 111},
		&tg.MessageService{ID: 20, Date: 222},
	}
	if got := messageDate(msgs, 20); got != 222 {
		t.Fatalf("messageDate(20) = %d, want 222", got)
	}
	if got := messageDate(msgs, 99); got != dialogZeroOffset {
		t.Fatalf("messageDate(99) = %d, want zero offset", got)
	}
}

func TestDialogListInputPeer(t *testing.T) {
	t.Parallel()

	list := &dialogList{
		users:    map[int64]*tg.User{7: {ID: 7, AccessHash: 70}},
		chats:    map[int64]*tg.Chat{8: {ID: 8}},
		channels: map[int64]*tg.Channel{9: {ID: 9, AccessHash: 90}},
	}

	if p, ok := list.inputPeer(&tg.PeerUser{UserID: 7}).(*tg.InputPeerUser); !ok || p.AccessHash != 70 {
		t.Fatalf("user peer = %#v", p)
	}
	if _, ok := list.inputPeer(&tg.PeerChat{ChatID: 8}).(*tg.InputPeerChat); !ok {
		t.Fatal("chat peer must map to InputPeerChat")
	}
	if p, ok := list.inputPeer(&tg.PeerChannel{ChannelID: 9}).(*tg.InputPeerChannel); !ok || p.AccessHash != 90 {
		t.Fatalf("channel peer = %#v", p)
	}
	// Неизвестный пользователь: access_hash недоступен, возвращается пустой peer.
	if _, ok := list.inputPeer(&tg.PeerUser{UserID: 404}).(*tg.InputPeerEmpty); !ok {
		t.Fatal("unknown user must map to InputPeerEmpty")
	}
}
