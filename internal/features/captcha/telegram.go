// Package captcha — telegram.go реализует интерфейс Moderator поверх
// Telegram Bot API. Сервис капчи работает только с интерфейсом, поэтому
// в тестах его подменяет фейковая реализация.
package captcha

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Moderator — внешняя способность модерации, которую потребляет сервис.
// Все вызовы сетевые; они выполняются вне блокировки реестра.
type Moderator interface {
	// Restrict снимает у участника все права на отправку сообщений
	Restrict(ctx context.Context, chatID, userID int64) error
	// RestoreDefault возвращает участнику права чата по умолчанию
	RestoreDefault(ctx context.Context, chatID, userID int64) error
	// Ban исключает участника из чата
	Ban(ctx context.Context, chatID, userID int64) error
	// SendChallenge отправляет картинку с подписью и клавиатурой,
	// возвращает ID сообщения
	SendChallenge(ctx context.Context, chatID int64, caption string, png []byte, options []string) (int, error)
	// EditChallenge обновляет сообщение: при png == nil — только подпись
	// и клавиатуру, иначе заменяет и картинку
	EditChallenge(ctx context.Context, chatID int64, messageID int, caption string, png []byte, options []string) error
	// DeleteMessage удаляет сообщение
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	// SendLog отправляет HTML-сообщение в лог-чат
	SendLog(ctx context.Context, chatID int64, html string) error
}

// TelegramModerator — боевой Moderator на go-telegram-bot-api.
type TelegramModerator struct {
	api           *tgbotapi.BotAPI
	digitsToEmoji bool
}

// NewTelegramModerator создаёт модератора поверх API-клиента.
func NewTelegramModerator(api *tgbotapi.BotAPI, digitsToEmoji bool) *TelegramModerator {
	return &TelegramModerator{api: api, digitsToEmoji: digitsToEmoji}
}

// Restrict запрещает участнику всё: ни текста, ни медиа.
func (m *TelegramModerator) Restrict(_ context.Context, chatID, userID int64) error {
	noPermissions := tgbotapi.ChatPermissions{}
	restrict := tgbotapi.RestrictChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{
			ChatID: chatID,
			UserID: userID,
		},
		Permissions: &noPermissions,
	}
	if _, err := m.api.Request(restrict); err != nil {
		return fmt.Errorf("ошибка ограничения участника: %w", err)
	}
	return nil
}

// RestoreDefault читает права чата по умолчанию и назначает их участнику.
func (m *TelegramModerator) RestoreDefault(_ context.Context, chatID, userID int64) error {
	chat, err := m.api.GetChat(tgbotapi.ChatInfoConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
	})
	if err != nil {
		return fmt.Errorf("ошибка чтения настроек чата: %w", err)
	}
	if chat.Permissions == nil {
		return fmt.Errorf("права чата %d недоступны", chatID)
	}

	restore := tgbotapi.RestrictChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{
			ChatID: chatID,
			UserID: userID,
		},
		Permissions: chat.Permissions,
	}
	if _, err := m.api.Request(restore); err != nil {
		return fmt.Errorf("ошибка восстановления прав: %w", err)
	}
	return nil
}

// Ban исключает участника из чата.
func (m *TelegramModerator) Ban(_ context.Context, chatID, userID int64) error {
	ban := tgbotapi.BanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{
			ChatID: chatID,
			UserID: userID,
		},
	}
	if _, err := m.api.Request(ban); err != nil {
		return fmt.Errorf("ошибка бана участника: %w", err)
	}
	return nil
}

// SendChallenge отправляет фото с подписью и inline-клавиатурой.
func (m *TelegramModerator) SendChallenge(_ context.Context, chatID int64, caption string, png []byte, options []string) (int, error) {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "captcha.png", Bytes: png})
	photo.Caption = caption
	photo.ParseMode = tgbotapi.ModeHTML
	photo.ReplyMarkup = Keyboard(options, m.digitsToEmoji)

	sent, err := m.api.Send(photo)
	if err != nil {
		return 0, fmt.Errorf("ошибка отправки капчи: %w", err)
	}
	return sent.MessageID, nil
}

// EditChallenge обновляет подпись (и картинку, если png != nil).
func (m *TelegramModerator) EditChallenge(_ context.Context, chatID int64, messageID int, caption string, png []byte, options []string) error {
	keyboard := Keyboard(options, m.digitsToEmoji)

	if png == nil {
		edit := tgbotapi.NewEditMessageCaption(chatID, messageID, caption)
		edit.ParseMode = tgbotapi.ModeHTML
		edit.ReplyMarkup = &keyboard
		if _, err := m.api.Request(edit); err != nil {
			return fmt.Errorf("ошибка обновления подписи: %w", err)
		}
		return nil
	}

	media := tgbotapi.NewInputMediaPhoto(tgbotapi.FileBytes{Name: "captcha.png", Bytes: png})
	media.Caption = caption
	media.ParseMode = tgbotapi.ModeHTML
	edit := tgbotapi.EditMessageMediaConfig{
		BaseEdit: tgbotapi.BaseEdit{
			ChatID:      chatID,
			MessageID:   messageID,
			ReplyMarkup: &keyboard,
		},
		Media: media,
	}
	if _, err := m.api.Request(edit); err != nil {
		return fmt.Errorf("ошибка обновления картинки: %w", err)
	}
	return nil
}

// DeleteMessage удаляет сообщение.
func (m *TelegramModerator) DeleteMessage(_ context.Context, chatID int64, messageID int) error {
	if _, err := m.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return fmt.Errorf("ошибка удаления сообщения: %w", err)
	}
	return nil
}

// SendLog отправляет запись в лог-чат.
func (m *TelegramModerator) SendLog(_ context.Context, chatID int64, html string) error {
	msg := tgbotapi.NewMessage(chatID, html)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := m.api.Send(msg); err != nil {
		return fmt.Errorf("ошибка отправки в лог-чат: %w", err)
	}
	return nil
}
