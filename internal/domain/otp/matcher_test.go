package otp_test

import (
	"reflect"
	"testing"
	"time"

	"telegram-sessionbot/internal/domain/otp"
)

func TestExtract(t *testing.T) {
	t.Parallel()

	t1 := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(-5 * time.Minute)

	cases := []struct {
		name       string
		messages   []otp.Message
		latestOnly bool
		want       []otp.Code
	}{
		{
			name:       "englishLoginCode",
			messages:   []otp.Message{{Text: "Your login code: 48213", Date: t1}},
			latestOnly: true,
			want:       []otp.Code{{Value: "48213", ObservedAt: t1}},
		},
		{
			name:       "indonesianKodeMasuk",
			messages:   []otp.Message{{Text: "Kode masuk Anda: 55531. Jangan berikan kode ini kepada siapa pun.", Date: t1}},
			latestOnly: true,
			want:       []otp.Code{{Value: "55531", ObservedAt: t1}},
		},
		{
			name:       "bareDigitsWithoutKeywordRejected",
			messages:   []otp.Message{{Text: "Call me at 481234", Date: t1}},
			latestOnly: true,
			want:       nil,
		},
		{
			name:       "bareDigitsWithKeywordAccepted",
			messages:   []otp.Message{{Text: "Telegram: 90125", Date: t1}},
			latestOnly: true,
			want:       []otp.Code{{Value: "90125", ObservedAt: t1}},
		},
		{
			name:       "emptyInput",
			messages:   nil,
			latestOnly: true,
			want:       nil,
		},
		{
			name: "latestOnlyStopsAfterFirstHit",
			messages: []otp.Message{
				{Text: "Your login code: 11111", Date: t1},
				{Text: "Your login code: 22222", Date: t2},
			},
			latestOnly: true,
			want:       []otp.Code{{Value: "11111", ObservedAt: t1}},
		},
		{
			name: "fullScanCollectsAllHits",
			messages: []otp.Message{
				{Text: "Your login code: 11111", Date: t1},
				{Text: "Nothing to see here", Date: t2},
				{Text: "Verification code: 22222", Date: t2},
			},
			latestOnly: false,
			want: []otp.Code{
				{Value: "11111", ObservedAt: t1},
				{Value: "22222", ObservedAt: t2},
			},
		},
		{
			name: "latestOnlySkipsNonMatchingHead",
			messages: []otp.Message{
				{Text: "Welcome to Telegram!", Date: t1},
				{Text: "Login code: 77701", Date: t2},
			},
			latestOnly: true,
			want:       []otp.Code{{Value: "77701", ObservedAt: t2}},
		},
		{
			name:       "firstPatternWinsPerMessage",
			messages:   []otp.Message{{Text: "Kode masuk Anda: 33333 (code: 44444)", Date: t1}},
			latestOnly: true,
			want:       []otp.Code{{Value: "33333", ObservedAt: t1}},
		},
		{
			name:       "keywordWithoutDigits",
			messages:   []otp.Message{{Text: "New login to your Telegram account detected", Date: t1}},
			latestOnly: true,
			want:       nil,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := otp.Extract(tc.messages, tc.latestOnly)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Extract() = %#v, want %#v", got, tc.want)
			}
		})
	}
}
