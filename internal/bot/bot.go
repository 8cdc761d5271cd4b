// Package bot содержит главный модуль бота — запуск polling и маршрутизацию
// обновлений к обработчикам капчи и личным командам.
package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/captcha-bot/internal/bot/middleware"
	"serotonyl.ru/captcha-bot/internal/config"
	"serotonyl.ru/captcha-bot/internal/features/captcha"
)

// Version — версия бота для команды /version.
const Version = "1.2.0"

// Bot — главная структура бота, объединяющая все компоненты.
type Bot struct {
	api *tgbotapi.BotAPI
	cfg *config.Config

	captchaHandlers *captcha.Handlers

	parser *CommandParser

	// ограничитель параллелизма обработки апдейтов
	inflight chan struct{}
}

// New создаёт новый экземпляр бота со всеми зависимостями.
func New(api *tgbotapi.BotAPI, cfg *config.Config, captchaHandlers *captcha.Handlers) *Bot {
	maxInFlight := cfg.BotMaxInflight
	if maxInFlight <= 0 {
		maxInFlight = 64
	}

	return &Bot{
		api:             api,
		cfg:             cfg,
		captchaHandlers: captchaHandlers,
		parser:          NewCommandParser(),
		inflight:        make(chan struct{}, maxInFlight),
	}
}

// Start запускает polling обновлений от Telegram.
//
// chat_member надо запрашивать явно: по умолчанию Telegram его не шлёт,
// а без него бот не видит вступления по ссылке с заявкой.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.BotUpdateTimeoutSeconds
	u.AllowedUpdates = []string{"message", "callback_query", "chat_member"}

	updates := b.api.GetUpdatesChan(u)

	log.WithFields(log.Fields{
		"max_inflight": b.cfg.BotMaxInflight,
		"timeout_sec":  b.cfg.BotUpdateTimeoutSeconds,
	}).Info("Бот запущен и ожидает события...")

	for {
		select {
		case <-ctx.Done():
			log.Info("Бот останавливается (ctx done)...")
			b.api.StopReceivingUpdates()
			return

		case update, ok := <-updates:
			if !ok {
				log.Info("Канал updates закрыт, бот остановлен")
				return
			}

			// лимит параллелизма
			b.inflight <- struct{}{}
			go func(upd tgbotapi.Update) {
				defer func() { <-b.inflight }()
				b.handleUpdate(ctx, upd)
			}(update)
		}
	}
}

// handleUpdate обрабатывает одно обновление от Telegram.
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer middleware.RecoverFromPanic(update.UpdateID)

	if update.CallbackQuery != nil {
		b.captchaHandlers.HandleCallback(ctx, update.CallbackQuery)
		return
	}

	if update.ChatMember != nil {
		b.captchaHandlers.HandleChatMemberUpdated(ctx, update.ChatMember)
		return
	}

	if update.Message == nil {
		return
	}
	message := update.Message

	// Сервисные сообщения о вступлении/выходе
	if len(message.NewChatMembers) > 0 {
		b.captchaHandlers.HandleNewMembers(ctx, message)
		return
	}
	if message.LeftChatMember != nil {
		b.captchaHandlers.HandleLeftMember(ctx, message)
		return
	}

	if message.Text == "" {
		return
	}

	// Логируем входящее
	middleware.LogMessage(message)

	// Сообщения непроверенных участников удаляются и проверяются как ответ
	if !message.Chat.IsPrivate() {
		if b.captchaHandlers.HandleText(ctx, message) {
			return
		}
	}

	// Личные команды
	if message.Chat.IsPrivate() {
		if cmd, _, ok := b.parser.ParseCommand(message.Text); ok {
			b.routeCommand(message.Chat.ID, cmd)
		}
	}
}

// routeCommand маршрутизирует личную команду к нужному обработчику.
func (b *Bot) routeCommand(chatID int64, cmd string) {
	switch cmd {
	case "start", "help":
		b.sendMessage(chatID, "👋 I guard groups with an image captcha.\nAdd me to a group as admin and I will verify every newcomer.")

	case "ping":
		b.sendMessage(chatID, "🏓 pong")

	case "version", "ver", "versi":
		b.sendMessage(chatID, fmt.Sprintf(
			"🤖 captcha-bot v%s\nlog level: %s\ntimezone: %s",
			Version, b.cfg.AppLogLevel, b.cfg.AppTimezone))
	}
}

// sendMessage — утилита для отправки сообщений.
func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}

// CommandParser парсит команды с префиксами / ! и .
type CommandParser struct {
	validPrefixes []string
}

// NewCommandParser создаёт парсер команд.
func NewCommandParser() *CommandParser {
	return &CommandParser{
		validPrefixes: []string{"!", ".", "/"},
	}
}

// ParseCommand разбирает текст на команду и аргументы.
// Суффикс @botname после команды отбрасывается.
func (p *CommandParser) ParseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)

	hasPrefix := false
	for _, prefix := range p.validPrefixes {
		if strings.HasPrefix(text, prefix) {
			text = strings.TrimPrefix(text, prefix)
			hasPrefix = true
			break
		}
	}

	if !hasPrefix {
		return "", nil, false
	}

	text = strings.TrimSpace(text)
	parts := strings.Fields(text)

	if len(parts) == 0 {
		return "", nil, false
	}

	command := strings.ToLower(parts[0])
	if at := strings.IndexByte(command, '@'); at > 0 {
		command = command[:at]
	}
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}

	return command, args, true
}
