package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/gotd/td/tg"

	"telegram-sessionbot/internal/domain/ingest"
	"telegram-sessionbot/internal/domain/otp"
	"telegram-sessionbot/internal/domain/registry"
	"telegram-sessionbot/internal/telegram/accounts"
)

// Префиксы callback-данных inline-клавиатур. Хвост после префикса — всегда
// account_id из каталога.
const (
	cbAccountPrefix     = "acc_"
	cbGetOTPPrefix      = "getotp_"
	cbClearPrefix       = "clear_"
	cbSessionsPrefix    = "sessions_"
	cbKillAllPrefix     = "killall_"
	cbLeaveGroupsPrefix = "leavegroups_"

	cbShowAccounts = "show_accounts"
	cbBackAccounts = "back_accounts"
)

const (
	msgStart = "Session manager bot.\n\n" +
		"Send a ZIP archive with exported sessions (sessions/users/*.session) to validate and register them.\n" +
		"Use /accounts to browse registered accounts."
	msgAccessDenied = "Access denied."
	msgNoAccounts   = "No accounts registered yet. Send a ZIP archive with session files to get started."
	msgNotAZip      = "This does not look like a ZIP archive. Send a .zip file with sessions/users/*.session inside."
	msgWorking      = "Working..."
)

// showAccountsMarkup — кнопка перехода к списку аккаунтов.
func showAccountsMarkup() *tg.ReplyInlineMarkup {
	return &tg.ReplyInlineMarkup{Rows: []tg.KeyboardButtonRow{
		{Buttons: []tg.KeyboardButtonClass{
			&tg.KeyboardButtonCallback{Text: "Show accounts", Data: []byte(cbShowAccounts)},
		}},
	}}
}

// accountLabel — подпись кнопки в списке аккаунтов.
func accountLabel(rec registry.Record) string {
	name := strings.TrimSpace(rec.FirstName + " " + rec.LastName)
	if name == "" {
		name = rec.Username
	}
	return fmt.Sprintf("%s — %s", rec.Phone, name)
}

// accountsView — список аккаунтов: по кнопке на запись, отсортировано по
// числовому account_id.
func accountsView(records []registry.Record) (string, *tg.ReplyInlineMarkup) {
	if len(records) == 0 {
		return msgNoAccounts, nil
	}

	rows := make([]tg.KeyboardButtonRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, tg.KeyboardButtonRow{Buttons: []tg.KeyboardButtonClass{
			&tg.KeyboardButtonCallback{
				Text: accountLabel(rec),
				Data: []byte(cbAccountPrefix + rec.AccountID),
			},
		}})
	}
	text := fmt.Sprintf("Registered accounts: %d. Pick one:", len(records))
	return text, &tg.ReplyInlineMarkup{Rows: rows}
}

// accountInfoView — карточка аккаунта с действиями.
func accountInfoView(rec registry.Record) (string, *tg.ReplyInlineMarkup) {
	var b strings.Builder
	fmt.Fprintf(&b, "Account %s\n", rec.AccountID)
	fmt.Fprintf(&b, "Phone: %s\n", rec.Phone)
	fmt.Fprintf(&b, "Username: %s\n", rec.Username)
	fmt.Fprintf(&b, "Name: %s %s\n", rec.FirstName, rec.LastName)
	fmt.Fprintf(&b, "Validated: %s", rec.ValidatedAt.Format(time.RFC3339))

	markup := &tg.ReplyInlineMarkup{Rows: []tg.KeyboardButtonRow{
		{Buttons: []tg.KeyboardButtonClass{
			&tg.KeyboardButtonCallback{Text: "Get OTP", Data: []byte(cbGetOTPPrefix + rec.AccountID)},
			&tg.KeyboardButtonCallback{Text: "Clear chats", Data: []byte(cbClearPrefix + rec.AccountID)},
		}},
		{Buttons: []tg.KeyboardButtonClass{
			&tg.KeyboardButtonCallback{Text: "Sessions", Data: []byte(cbSessionsPrefix + rec.AccountID)},
			&tg.KeyboardButtonCallback{Text: "Kill other sessions", Data: []byte(cbKillAllPrefix + rec.AccountID)},
		}},
		{Buttons: []tg.KeyboardButtonClass{
			&tg.KeyboardButtonCallback{Text: "Leave groups", Data: []byte(cbLeaveGroupsPrefix + rec.AccountID)},
		}},
		{Buttons: []tg.KeyboardButtonClass{
			&tg.KeyboardButtonCallback{Text: "« Back", Data: []byte(cbBackAccounts)},
		}},
	}}
	return b.String(), markup
}

// backToAccountMarkup — одна кнопка возврата к карточке аккаунта.
func backToAccountMarkup(accountID string) *tg.ReplyInlineMarkup {
	return &tg.ReplyInlineMarkup{Rows: []tg.KeyboardButtonRow{
		{Buttons: []tg.KeyboardButtonClass{
			&tg.KeyboardButtonCallback{Text: "« Back", Data: []byte(cbAccountPrefix + accountID)},
		}},
	}}
}

// codesView — найденные коды входа, от свежего к старому.
func codesView(rec registry.Record, codes []otp.Code) string {
	if len(codes) == 0 {
		return fmt.Sprintf("No login codes found for %s.", rec.Phone)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Login codes for %s:\n", rec.Phone)
	for _, c := range codes {
		fmt.Fprintf(&b, "• %s (%s)\n", c.Value, c.ObservedAt.Format("2006-01-02 15:04:05"))
	}
	return strings.TrimRight(b.String(), "\n")
}

// sessionsView — активные авторизации аккаунта.
func sessionsView(rec registry.Record, list accounts.SessionList) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Active sessions for %s:\n\n", rec.Phone)
	if list.Current != nil {
		fmt.Fprintf(&b, "Current: %s\n\n", formatAuthorization(*list.Current))
	}
	if len(list.Others) == 0 {
		b.WriteString("No other sessions.")
		return b.String()
	}
	fmt.Fprintf(&b, "Others (%d):\n", len(list.Others))
	for _, auth := range list.Others {
		fmt.Fprintf(&b, "• %s\n", formatAuthorization(auth))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatAuthorization(auth tg.Authorization) string {
	active := time.Unix(int64(auth.DateActive), 0).Format("2006-01-02 15:04")
	return fmt.Sprintf("%s, %s (%s), active %s", auth.DeviceModel, auth.AppName, auth.Country, active)
}

// ingestProgressView — промежуточный и финальный отчёт о приёме архива.
func ingestProgressView(s ingest.Summary, done bool) string {
	header := "Validating sessions..."
	if done {
		header = "Validation finished."
	}
	return fmt.Sprintf(
		"%s\nTotal: %d\nValid: %d\nWith 2FA (skipped): %d\nInvalid: %d",
		header, s.Total, s.Valid, s.SecondFactor, s.Invalid,
	)
}

func clearChatsResult(rec registry.Record, cleared int, err error) string {
	if err != nil {
		return fmt.Sprintf("Cleared %d private chats for %s, then failed: %v", cleared, rec.Phone, err)
	}
	return fmt.Sprintf("Cleared %d private chats for %s.", cleared, rec.Phone)
}

func leaveGroupsResult(rec registry.Record, left, keptAdmin int, err error) string {
	if err != nil {
		return fmt.Sprintf("Left %d groups for %s (kept %d admin groups), then failed: %v", left, rec.Phone, keptAdmin, err)
	}
	return fmt.Sprintf("Left %d groups for %s. Kept %d where the account is creator or admin.", left, rec.Phone, keptAdmin)
}
