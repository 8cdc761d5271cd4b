// Package captcha — caption.go форматирует подпись к картинке
// и клавиатуру с вариантами ответа.
package captcha

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"serotonyl.ru/captcha-bot/internal/common"
)

// CallbackPrefix — префикс callback-данных кнопок с вариантами ответа.
const CallbackPrefix = "captcha:"

// Caption строит HTML-подпись с упоминанием пользователя, оставшимся
// временем и числом попыток.
func Caption(userID int64, firstName string, remainingSecs, attemptsLeft, attemptsTotal int) string {
	name := common.EscapeHTML(common.SanitizeText(firstName))
	mention := fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, userID, name)
	return fmt.Sprintf(
		"🖐🏼 Hi, %s\n\n"+
			"🙏🏼 <b>Please solve this captcha.</b>\n"+
			"💁🏻‍♂️ Pick the right answer from the buttons below.\n\n"+
			"⏳ Time left: <code>%d</code> s\n"+
			"🎯 Attempts: <code>%d</code>/<code>%d</code>\n\n"+
			"🗒 <i>Everything you type is deleted until you verify.</i>",
		mention, remainingSecs, attemptsLeft, attemptsTotal,
	)
}

// Keyboard строит inline-клавиатуру из вариантов, по три кнопки в ряд.
// Callback-данные всегда содержат исходный вариант; эмодзи — только
// отображение на кнопке.
func Keyboard(options []string, digitsToEmoji bool) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for start := 0; start < len(options); start += 3 {
		end := start + 3
		if end > len(options) {
			end = len(options)
		}
		var row []tgbotapi.InlineKeyboardButton
		for _, option := range options[start:end] {
			display := option
			if digitsToEmoji {
				display = optionDisplay(option)
			}
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(display, CallbackPrefix+option))
		}
		rows = append(rows, row)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// optionDisplay превращает цифры и буквы A/B в эмодзи-аналоги.
// Пара "AB" сворачивается в один символ 🆎.
func optionDisplay(option string) string {
	var b strings.Builder
	runes := []rune(option)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		switch {
		case ch == 'A' || ch == 'a':
			if i+1 < len(runes) && (runes[i+1] == 'B' || runes[i+1] == 'b') {
				b.WriteString("🆎")
				i++
			} else {
				b.WriteString("🅰️")
			}
		case ch == 'B' || ch == 'b':
			b.WriteString("🅱️")
		case ch >= '0' && ch <= '9':
			b.WriteRune(ch)
			b.WriteString("️⃣")
		default:
			b.WriteRune(ch)
		}
	}
	return b.String()
}
