// Package otp — извлечение одноразовых кодов входа из служебных сообщений
// Telegram.
//
// Модель данных и инварианты:
//   - На вход подаётся упорядоченная последовательность сообщений (самые свежие
//     первыми — контракт вызывающей стороны), на выходе — найденные коды с
//     временем исходного сообщения.
//   - Шаблоны применяются строго по порядку, от специфичных языковых формулировок
//     к общим; для одного сообщения учитывается только первый совпавший шаблон.
//   - Последний шаблон — «голые» 5–6 цифр — срабатывает только при наличии в
//     тексте подтверждающего ключевого слова (без учёта регистра); иначе
//     совпадение отбрасывается как вероятный ложный позитив (номер телефона,
//     произвольное число).
//   - Отсутствие совпадений — не ошибка: возвращается пустой срез.
//
// Известное ограничение: нетипичная формулировка без ключевых слов даст ложный
// негатив. Это осознанный компромисс, менять без продуктового решения нельзя.
package otp

import (
	"regexp"
	"strings"
	"time"
)

// Message — один кандидат: текст служебного сообщения и его метка времени.
type Message struct {
	Text string
	Date time.Time
}

// Code — извлечённый одноразовый код и время исходного сообщения.
type Code struct {
	Value      string
	ObservedAt time.Time
}

// pattern связывает регулярное выражение с признаком «требует подтверждающего
// ключевого слова». Гейт включён только у запасного шаблона голых цифр.
type pattern struct {
	re           *regexp.Regexp
	keywordGated bool
}

// patterns — упорядоченный список шаблонов, от специфичного к общему.
// Первая группа захвата всегда содержит код.
var patterns = []pattern{
	// Индонезийские формулировки.
	{re: regexp.MustCompile(`(?i)Kode masuk Anda:\s*(\d+)`)},
	{re: regexp.MustCompile(`(?i)Kode masuk:\s*(\d+)`)},
	{re: regexp.MustCompile(`(?i)Kode verifikasi:\s*(\d+)`)},
	// Английские формулировки.
	{re: regexp.MustCompile(`(?i)Your login code:?\s*(\d+)`)},
	{re: regexp.MustCompile(`(?i)Your code:?\s*(\d+)`)},
	{re: regexp.MustCompile(`(?i)Login code:?\s*(\d+)`)},
	{re: regexp.MustCompile(`(?i)Verification code:?\s*(\d+)`)},
	// Общие формулировки.
	{re: regexp.MustCompile(`(?i)code:?\s*(\d+)`)},
	{re: regexp.MustCompile(`(?i)OTP:?\s*(\d+)`)},
	// Запасной вариант: любые 5–6 цифр, но только рядом с ключевым словом.
	{re: regexp.MustCompile(`\b(\d{5,6})\b`), keywordGated: true},
}

// FallbackKeywords — подтверждающие ключевые слова для запасного шаблона.
// Вынесены в явную константу пакета ради тестируемости и локализации.
var FallbackKeywords = []string{
	"code", "telegram", "login", "verification", "otp",
	"kode", "masuk", "verifikasi",
}

// Extract прогоняет сообщения по списку шаблонов в порядке поступления.
// Для каждого сообщения учитывается только первый совпавший шаблон; при
// latestOnly сканирование всей пачки останавливается после первого найденного
// кода. Пустой вход даёт пустой результат.
func Extract(messages []Message, latestOnly bool) []Code {
	var codes []Code
	for _, msg := range messages {
		value, ok := matchMessage(msg.Text)
		if !ok {
			continue
		}
		codes = append(codes, Code{Value: value, ObservedAt: msg.Date})
		if latestOnly {
			break
		}
	}
	return codes
}

// matchMessage применяет шаблоны к одному тексту и возвращает первый код.
// Гейтованный шаблон дополнительно требует подтверждающего ключевого слова.
func matchMessage(text string) (string, bool) {
	for _, p := range patterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if p.keywordGated && !hasFallbackKeyword(text) {
			// Голые цифры без контекста — пропускаем и дальше не пробуем:
			// гейтованный шаблон последний в списке.
			continue
		}
		return m[1], true
	}
	return "", false
}

// hasFallbackKeyword проверяет наличие хотя бы одного подтверждающего
// ключевого слова (без учёта регистра, вхождение подстрокой).
func hasFallbackKeyword(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range FallbackKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
