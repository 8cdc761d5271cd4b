// Package common содержит общие утилиты, используемые во всём проекте.
// text.go — экранирование HTML для подписей Telegram и очистка текста
// от управляющих/невидимых символов перед логированием.
package common

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// EscapeHTML экранирует спецсимволы HTML для parse_mode=HTML.
// Telegram принимает ограниченное подмножество HTML, но символы
// &, <, >, ", ' обязаны быть экранированы всегда.
func EscapeHTML(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, ch := range input {
		switch ch {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		case '\'':
			b.WriteString("&#39;")
		default:
			b.WriteRune(ch)
		}
	}
	return b.String()
}

// SanitizeText убирает управляющие и невидимые Unicode-символы.
// Пользовательские имена в Telegram часто содержат RTL-переопределения
// и zero-width символы, которые ломают вывод логов.
func SanitizeText(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, ch := range input {
		if isInvisibleOrControl(ch) {
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

// UserDisplay возвращает строку вида "Имя Фамилия @username" для логов
// и уведомлений. Снимок делается в момент выдачи капчи, чтобы потом
// не зависеть от доступности пользователя через API.
func UserDisplay(user *tgbotapi.User) string {
	firstName := SanitizeText(strings.TrimSpace(user.FirstName))
	lastName := SanitizeText(strings.TrimSpace(user.LastName))
	username := SanitizeText(strings.TrimSpace(user.UserName))
	if username == "" {
		username = "-"
	}
	if lastName == "" {
		return firstName + " @" + username
	}
	return firstName + " " + lastName + " @" + username
}

// UserName возвращает "Имя" или "Имя Фамилия" без username.
func UserName(user *tgbotapi.User) string {
	firstName := SanitizeText(strings.TrimSpace(user.FirstName))
	lastName := SanitizeText(strings.TrimSpace(user.LastName))
	if lastName == "" {
		return firstName
	}
	return firstName + " " + lastName
}

// ChatLabel возвращает подпись чата для логов: "@username : Title",
// только title или "unknown".
func ChatLabel(title, username string) string {
	title = strings.TrimSpace(title)
	username = strings.TrimSpace(username)
	switch {
	case username != "" && title != "":
		return "@" + username + " : " + title
	case username != "":
		return "@" + username
	case title != "":
		return title
	default:
		return "unknown"
	}
}

func isInvisibleOrControl(ch rune) bool {
	if ch < 0x20 || (ch >= 0x7f && ch < 0xa0) {
		return true
	}
	switch ch {
	case '\u00ad', // SHY
		'\u061c', // ALM
		'\u180e', // MVS
		'\u200b', // ZWSP
		'\u200c', // ZWNJ
		'\u200d', // ZWJ
		'\u200e', // LRM
		'\u200f', // RLM
		'\u202a', // LRE
		'\u202b', // RLE
		'\u202c', // PDF
		'\u202d', // LRO
		'\u202e', // RLO
		'\u2060', // WJ
		'\u2061', '\u2062', '\u2063', '\u2064',
		'\u2066', '\u2067', '\u2068', '\u2069',
		'\ufeff': // BOM
		return true
	}
	return false
}
