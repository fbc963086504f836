// Package version — единая точка версии приложения. Значение подставляется в
// паспорт устройства MTProto-клиента и может быть переопределено при сборке
// через -ldflags "-X telegram-sessionbot/internal/support/version.Version=...".
package version

// Version — версия сборки.
var Version = "1.2.0"
