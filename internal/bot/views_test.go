package bot

import (
	"strings"
	"testing"
	"time"

	"github.com/gotd/td/tg"

	"telegram-sessionbot/internal/domain/ingest"
	"telegram-sessionbot/internal/domain/registry"
)

func sampleRecord(id string) registry.Record {
	return registry.Record{
		AccountID:   id,
		Phone:       "+628111",
		Username:    "none",
		FirstName:   "Sari",
		LastName:    "W",
		ValidatedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

// callbackData собирает данные всех callback-кнопок клавиатуры.
func callbackData(markup *tg.ReplyInlineMarkup) []string {
	var data []string
	for _, row := range markup.Rows {
		for _, btn := range row.Buttons {
			if cb, ok := btn.(*tg.KeyboardButtonCallback); ok {
				data = append(data, string(cb.Data))
			}
		}
	}
	return data
}

func TestAccountsViewEmpty(t *testing.T) {
	t.Parallel()

	text, markup := accountsView(nil)
	if text != msgNoAccounts {
		t.Fatalf("text = %q", text)
	}
	if markup != nil {
		t.Fatal("empty list must not render a keyboard")
	}
}

func TestAccountsViewButtons(t *testing.T) {
	t.Parallel()

	records := []registry.Record{sampleRecord("5"), sampleRecord("20"), sampleRecord("111")}
	_, markup := accountsView(records)
	if markup == nil {
		t.Fatal("markup must be rendered")
	}

	got := callbackData(markup)
	want := []string{"acc_5", "acc_20", "acc_111"}
	if len(got) != len(want) {
		t.Fatalf("buttons = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("button %d = %q, want %q (list order must follow input)", i, got[i], want[i])
		}
	}
}

func TestAccountInfoViewActions(t *testing.T) {
	t.Parallel()

	text, markup := accountInfoView(sampleRecord("777"))
	if !strings.Contains(text, "+628111") {
		t.Fatalf("card must mention the phone, got %q", text)
	}

	got := callbackData(markup)
	want := []string{
		cbGetOTPPrefix + "777",
		cbClearPrefix + "777",
		cbSessionsPrefix + "777",
		cbKillAllPrefix + "777",
		cbLeaveGroupsPrefix + "777",
		cbBackAccounts,
	}
	if len(got) != len(want) {
		t.Fatalf("buttons = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("button %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestIngestProgressView(t *testing.T) {
	t.Parallel()

	s := ingest.Summary{Total: 7, Valid: 3, SecondFactor: 1, Invalid: 3}
	progress := ingestProgressView(s, false)
	if !strings.Contains(progress, "Validating") || !strings.Contains(progress, "Total: 7") {
		t.Fatalf("progress view = %q", progress)
	}
	done := ingestProgressView(s, true)
	if !strings.Contains(done, "finished") {
		t.Fatalf("final view = %q", done)
	}
}

func TestIsZipDocument(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  *tg.Document
		want bool
	}{
		{
			name: "zip mime",
			doc:  &tg.Document{MimeType: "application/zip"},
			want: true,
		},
		{
			name: "windows zip mime",
			doc:  &tg.Document{MimeType: "application/x-zip-compressed"},
			want: true,
		},
		{
			name: "zip filename with generic mime",
			doc: &tg.Document{
				MimeType: "application/octet-stream",
				Attributes: []tg.DocumentAttributeClass{
					&tg.DocumentAttributeFilename{FileName: "Sessions.ZIP"},
				},
			},
			want: true,
		},
		{
			name: "plain text",
			doc: &tg.Document{
				MimeType: "text/plain",
				Attributes: []tg.DocumentAttributeClass{
					&tg.DocumentAttributeFilename{FileName: "notes.txt"},
				},
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := isZipDocument(tt.doc); got != tt.want {
				t.Fatalf("isZipDocument() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSentMessageID(t *testing.T) {
	t.Parallel()

	if got := sentMessageID(&tg.UpdateShortSentMessage{ID: 42}); got != 42 {
		t.Fatalf("short sent message id = %d", got)
	}

	full := &tg.Updates{Updates: []tg.UpdateClass{
		&tg.UpdateNewMessage{},
		&tg.UpdateMessageID{ID: 7},
	}}
	if got := sentMessageID(full); got != 7 {
		t.Fatalf("updates message id = %d", got)
	}

	if got := sentMessageID(&tg.UpdatesTooLong{}); got != 0 {
		t.Fatalf("unknown updates must yield 0, got %d", got)
	}
}
