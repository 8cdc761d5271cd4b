// Package captcha — handlers.go адаптирует обновления Telegram к сервису:
// события вступления/выхода, текстовые ответы и нажатия кнопок.
package captcha

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/captcha-bot/internal/bot/middleware"
)

// Handlers — обработчики обновлений, относящихся к капче.
type Handlers struct {
	api               *tgbotapi.BotAPI
	service           *Service
	limiter           *middleware.RateLimiter
	deleteJoinMessage bool
	deleteLeftMessage bool
}

// NewHandlers создаёт обработчики капчи.
func NewHandlers(api *tgbotapi.BotAPI, service *Service, limiter *middleware.RateLimiter, deleteJoinMessage, deleteLeftMessage bool) *Handlers {
	return &Handlers{
		api:               api,
		service:           service,
		limiter:           limiter,
		deleteJoinMessage: deleteJoinMessage,
		deleteLeftMessage: deleteLeftMessage,
	}
}

// HandleNewMembers обрабатывает сервисное сообщение о вступлении:
// выдаёт капчу каждому новому участнику и, если настроено, удаляет
// само сообщение о вступлении.
func (h *Handlers) HandleNewMembers(ctx context.Context, message *tgbotapi.Message) {
	chat := message.Chat
	for i := range message.NewChatMembers {
		user := &message.NewChatMembers[i]
		if err := h.service.Issue(ctx, chat.ID, chat.Title, chat.UserName, user); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"chat_id": chat.ID,
				"user_id": user.ID,
			}).Error("не удалось выдать капчу")
		}
	}

	if h.deleteJoinMessage {
		h.deleteServiceMessage(chat.ID, message.MessageID, "вступлении")
	}
}

// HandleLeftMember обрабатывает выход участника: снимает его активную
// капчу (отсчёт завершится сам при следующем тике) и, если настроено,
// удаляет сообщение о выходе.
func (h *Handlers) HandleLeftMember(ctx context.Context, message *tgbotapi.Message) {
	chat := message.Chat
	if user := message.LeftChatMember; user != nil {
		h.cancelPending(chat.ID, user.ID)
	}

	if h.deleteLeftMessage {
		h.deleteServiceMessage(chat.ID, message.MessageID, "выходе")
	}
}

// HandleChatMemberUpdated обрабатывает изменение статуса участника.
// Вступление через chat_member приходит и тогда, когда Telegram не шлёт
// сервисное сообщение (например, вступление по ссылке с заявкой).
func (h *Handlers) HandleChatMemberUpdated(ctx context.Context, update *tgbotapi.ChatMemberUpdated) {
	oldStatus := update.OldChatMember.Status
	newStatus := update.NewChatMember.Status

	wasOut := oldStatus == "left" || oldStatus == "kicked"
	isIn := newStatus == "member" || newStatus == "restricted"
	isOut := newStatus == "left" || newStatus == "kicked"

	switch {
	case wasOut && isIn:
		user := update.NewChatMember.User
		if err := h.service.Issue(ctx, update.Chat.ID, update.Chat.Title, update.Chat.UserName, user); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"chat_id": update.Chat.ID,
				"user_id": user.ID,
			}).Error("не удалось выдать капчу")
		}
	case isOut:
		if user := update.NewChatMember.User; user != nil {
			h.cancelPending(update.Chat.ID, user.ID)
		}
	}
}

// HandleText обрабатывает текст в группе. Пока у автора активна капча,
// любое его сообщение удаляется, а текст проверяется как ответ.
// Возвращает true, если сообщение относилось к капче.
func (h *Handlers) HandleText(ctx context.Context, message *tgbotapi.Message) bool {
	user := message.From
	if user == nil {
		return false
	}
	key := Key{ChatID: message.Chat.ID, UserID: user.ID}
	if !h.service.Registry().Contains(key) {
		return false
	}

	if _, err := h.api.Request(tgbotapi.NewDeleteMessage(message.Chat.ID, message.MessageID)); err != nil {
		log.WithError(err).WithField("chat_id", message.Chat.ID).Warn("не удалось удалить сообщение непроверенного участника")
	}

	h.service.Evaluate(ctx, message.Chat.ID, user.ID, message.Text)
	return true
}

// HandleCallback обрабатывает нажатие кнопки с вариантом ответа.
func (h *Handlers) HandleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if query.Message == nil || !strings.HasPrefix(query.Data, CallbackPrefix) {
		return
	}
	answer := strings.TrimPrefix(query.Data, CallbackPrefix)
	chatID := query.Message.Chat.ID
	userID := query.From.ID

	// Кнопки видят все, но засчитывается только ответ проверяемого:
	// у нажавшего должна быть собственная активная капча в этом чате.
	if !h.service.Registry().Contains(Key{ChatID: chatID, UserID: userID}) {
		h.answerCallback(tgbotapi.NewCallbackWithAlert(query.ID, "🤷🏻 This captcha is not for you."))
		return
	}

	if h.limiter != nil && !h.limiter.Allow(chatID, userID) {
		h.answerCallback(tgbotapi.NewCallbackWithAlert(query.ID, "⏸ Slow down and try again."))
		return
	}

	result, snap := h.service.Evaluate(ctx, chatID, userID, answer)
	switch result {
	case ResultVerified:
		h.answerCallback(tgbotapi.NewCallback(query.ID, "✅ Welcome aboard!"))
	case ResultWrong:
		text := fmt.Sprintf("❌ Wrong answer. Attempts left: %d/%d", snap.AttemptsLeft, snap.AttemptsTotal)
		h.answerCallback(tgbotapi.NewCallbackWithAlert(query.ID, text))
	case ResultExhausted:
		h.answerCallback(tgbotapi.NewCallbackWithAlert(query.ID, "🚫 No attempts left."))
	default:
		h.answerCallback(tgbotapi.NewCallback(query.ID, ""))
	}
}

// cancelPending снимает капчу ушедшего участника и убирает картинку.
// Бана нет: участник вышел сам, эскалация не нужна.
func (h *Handlers) cancelPending(chatID, userID int64) {
	snap, ok := h.service.Registry().Remove(Key{ChatID: chatID, UserID: userID})
	if !ok {
		return
	}
	if _, err := h.api.Request(tgbotapi.NewDeleteMessage(chatID, snap.MessageID)); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Warn("не удалось удалить сообщение капчи")
	}
	log.WithFields(log.Fields{
		"chat_id": chatID,
		"user_id": userID,
		"user":    snap.UserDisplay,
	}).Info("👋 участник вышел, капча снята")
}

func (h *Handlers) deleteServiceMessage(chatID int64, messageID int, kind string) {
	if _, err := h.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Warn("не удалось удалить сообщение о " + kind)
	}
}

func (h *Handlers) answerCallback(config tgbotapi.CallbackConfig) {
	if _, err := h.api.Request(config); err != nil {
		log.WithError(err).Warn("не удалось ответить на callback")
	}
}
