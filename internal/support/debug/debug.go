// Package debug — вспомогательные утилиты отладки. Печатает входящие апдейты
// в лог только при активном DEBUG; в прод-сборке переключатель остаётся false.
package debug

import (
	"unicode/utf8"

	"github.com/kr/pretty"

	"telegram-sessionbot/internal/infra/logger"
)

// DEBUG — глобальный переключатель режима отладки. Когда false, все функции
// пакета молчат.
var DEBUG = false

// dumpMaxLen ограничивает размер дампа, чтобы не раздувать лог.
const dumpMaxLen = 2000

// DumpUpdate пишет развёрнутое представление значения в debug-лог.
// Длинные дампы режутся по границе рун, чтобы не порвать UTF-8.
func DumpUpdate(prefix string, v any) {
	if !DEBUG || !logger.IsDebugEnabled() {
		return
	}
	text := pretty.Sprint(v)
	if utf8.RuneCountInString(text) > dumpMaxLen {
		runes := []rune(text)
		text = string(runes[:dumpMaxLen]) + "..."
	}
	logger.Debugf("%s: %s", prefix, text)
}
