// Package captcha — service.go содержит бизнес-логику жизненного цикла
// проверки: выдача капчи, оценка ответов, обратный отсчёт и эскалация.
//
// Переходы по ключу: ABSENT → PENDING → {VERIFIED, BANNED}. Оба терминальных
// состояния снимают запись из реестра, поэтому ключ снова становится ABSENT.
// Арбитром всех гонок служит атомарное снятие записи в реестре; сетевые
// побочные эффекты выполняет только победитель.
package captcha

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/captcha-bot/internal/common"
)

// BanReleaser ставит отложенный разбан. Реализуется сервисом release;
// nil означает, что планирование разбанов выключено.
type BanReleaser interface {
	ScheduleRelease(ctx context.Context, chatID, userID int64, info ReleaseInfo) error
}

// ReleaseInfo — денормализованные отображаемые поля, которые сохраняются
// вместе с заданием на разбан.
type ReleaseInfo struct {
	UserName     string
	UserUsername string
	ChatTitle    string
	ChatUsername string
}

// Config — параметры проверки, зафиксированные на момент выдачи капчи.
// Смена глобальной конфигурации не влияет на уже выданные капчи.
type Config struct {
	Length        int
	Width         int
	Height        int
	OptionCount   int
	Attempts      int
	Timeout       time.Duration
	CaptionUpdate time.Duration
	// LogChatID — чат журнала капчи; 0 выключает журнал
	LogChatID int64
	Location  *time.Location
}

// Service — контроллер жизненного цикла капчи.
type Service struct {
	registry *Registry
	mod      Moderator
	releaser BanReleaser
	cfg      Config
}

// NewService создаёт сервис. releaser может быть nil.
func NewService(registry *Registry, mod Moderator, releaser BanReleaser, cfg Config) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.CaptionUpdate <= 0 {
		cfg.CaptionUpdate = time.Second
	}
	return &Service{
		registry: registry,
		mod:      mod,
		releaser: releaser,
		cfg:      cfg,
	}
}

// Registry возвращает реестр активных капч (нужен обработчикам бота).
func (s *Service) Registry() *Registry {
	return s.registry
}

// Issue выдаёт капчу вступившему участнику.
//
// No-op для ботов и для участников с уже активной капчей (дублирующиеся
// события вступления). Остальным: ограничение прав, генерация кода и
// вариантов, отправка картинки, запись в реестр и запуск отсчёта.
func (s *Service) Issue(ctx context.Context, chatID int64, chatTitle, chatUsername string, user *tgbotapi.User) error {
	if user == nil || user.IsBot {
		return nil
	}
	key := Key{ChatID: chatID, UserID: user.ID}
	if s.registry.Contains(key) {
		return nil
	}

	// Ограничиваем до отправки капчи: окно, в котором участник может
	// писать, должно быть минимальным. Ошибка не фатальна — капча
	// всё равно выдаётся, участник просто остаётся неограниченным.
	if err := s.mod.Restrict(ctx, chatID, user.ID); err != nil {
		s.logRemoteError(chatID, chatTitle, chatUsername, "не удалось ограничить участника", err)
	}

	code, png, err := Generate(s.cfg.Length, s.cfg.Width, s.cfg.Height)
	if err != nil {
		return fmt.Errorf("выдача капчи (chat=%d user=%d): %w", chatID, user.ID, err)
	}
	options := GenerateOptions(code, s.cfg.OptionCount)

	remainingSecs := int(s.cfg.Timeout / time.Second)
	caption := Caption(user.ID, user.FirstName, remainingSecs, s.cfg.Attempts, s.cfg.Attempts)

	messageID, err := s.mod.SendChallenge(ctx, chatID, caption, png, options)
	if err != nil {
		return fmt.Errorf("выдача капчи (chat=%d user=%d): %w", chatID, user.ID, err)
	}

	pending := &Pending{
		Code:          code,
		MessageID:     messageID,
		Options:       options,
		AttemptsLeft:  s.cfg.Attempts,
		AttemptsTotal: s.cfg.Attempts,
		RemainingSecs: remainingSecs,
		UserFirstName: common.SanitizeText(strings.TrimSpace(user.FirstName)),
		UserName:      common.UserName(user),
		UserUsername:  common.SanitizeText(strings.TrimSpace(user.UserName)),
		UserDisplay:   common.UserDisplay(user),
		ChatTitle:     common.SanitizeText(chatTitle),
		ChatUsername:  common.SanitizeText(chatUsername),
	}

	// Событие вступления может прийти дважды и конкурентно; проигравший
	// Insert убирает своё сообщение, запись остаётся одна.
	if !s.registry.Insert(key, pending) {
		if err := s.mod.DeleteMessage(ctx, chatID, messageID); err != nil {
			s.logRemoteError(chatID, chatTitle, chatUsername, "не удалось удалить дубль капчи", err)
		}
		return nil
	}

	log.WithFields(log.Fields{
		"chat_id": chatID,
		"user_id": user.ID,
		"user":    pending.UserDisplay,
	}).Info("⏳ капча выдана")

	go s.countdown(ctx, key)
	return nil
}

// Evaluate проверяет ответ (текст или выбор кнопки) и выполняет побочные
// эффекты перехода. Возвращает исход и снимок записи на момент решения.
func (s *Service) Evaluate(ctx context.Context, chatID, userID int64, answer string) (Result, Pending) {
	key := Key{ChatID: chatID, UserID: userID}
	result, snap := s.registry.Evaluate(key, answer)

	switch result {
	case ResultVerified:
		s.finishVerified(ctx, key, snap)
	case ResultExhausted:
		s.finishBanned(ctx, key, snap, "попытки исчерпаны")
	case ResultWrong:
		s.refreshChallenge(ctx, key, snap)
	}
	return result, snap
}

// finishVerified завершает успешную проверку: удалить картинку,
// вернуть права, записать в журнал. Запись уже снята из реестра, поэтому
// все ошибки здесь — только предупреждения, переход завершён.
func (s *Service) finishVerified(ctx context.Context, key Key, snap Pending) {
	if err := s.mod.DeleteMessage(ctx, key.ChatID, snap.MessageID); err != nil {
		s.logRemoteError(key.ChatID, snap.ChatTitle, snap.ChatUsername, "не удалось удалить сообщение капчи", err)
	}
	if err := s.mod.RestoreDefault(ctx, key.ChatID, key.UserID); err != nil {
		// Участник подтверждён, но остался ограниченным — фиксируем
		// для оператора, автоматически не повторяем: участник мог уже
		// выйти, и слепой повтор будет ошибаться бесконечно.
		s.logRemoteError(key.ChatID, snap.ChatTitle, snap.ChatUsername, "не удалось восстановить права участника", err)
	}
	log.WithFields(log.Fields{
		"chat_id": key.ChatID,
		"user_id": key.UserID,
		"user":    snap.UserDisplay,
	}).Info("✅ капча решена")
	s.sendAuditLog(ctx, key, snap, true)
}

// finishBanned выполняет переход BANNED: бан, удаление картинки,
// планирование разбана, журнал. Вызывается и при исчерпании попыток,
// и при таймауте — но только победителем атомарного снятия записи.
func (s *Service) finishBanned(ctx context.Context, key Key, snap Pending, reason string) {
	banned := true
	if err := s.mod.Ban(ctx, key.ChatID, key.UserID); err != nil {
		// Известная брешь: участник остаётся без ограничений. Повтор
		// модерирующего действия вслепую небезопасен, поэтому только лог.
		banned = false
		s.logRemoteError(key.ChatID, snap.ChatTitle, snap.ChatUsername, "не удалось забанить участника ("+reason+")", err)
	}

	if err := s.mod.DeleteMessage(ctx, key.ChatID, snap.MessageID); err != nil {
		s.logRemoteError(key.ChatID, snap.ChatTitle, snap.ChatUsername, "не удалось удалить сообщение капчи", err)
	}

	if banned && s.releaser != nil {
		if key.UserID <= 0 {
			log.WithFields(log.Fields{
				"chat_id": key.ChatID,
				"user_id": key.UserID,
			}).Warn("разбан не запланирован: некорректный user_id")
		} else if err := s.releaser.ScheduleRelease(ctx, key.ChatID, key.UserID, ReleaseInfo{
			UserName:     snap.UserName,
			UserUsername: snap.UserUsername,
			ChatTitle:    snap.ChatTitle,
			ChatUsername: snap.ChatUsername,
		}); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"chat_id": key.ChatID,
				"user_id": key.UserID,
			}).Warn("не удалось сохранить задание на разбан")
		}
	}

	log.WithFields(log.Fields{
		"chat_id": key.ChatID,
		"user_id": key.UserID,
		"user":    snap.UserDisplay,
		"reason":  reason,
	}).Info("🧨 участник забанен")
	s.sendAuditLog(ctx, key, snap, false)
}

// refreshChallenge перегенерирует код и варианты после неверного ответа.
// Если рендеринг новой картинки не удался — оставляем старый код и лишь
// пересобираем ложные варианты.
func (s *Service) refreshChallenge(ctx context.Context, key Key, snap Pending) {
	code, png, err := Generate(s.cfg.Length, s.cfg.Width, s.cfg.Height)
	if err != nil {
		log.WithError(err).Error("не удалось перегенерировать капчу")
		code, png = snap.Code, nil
	}
	options := GenerateOptions(code, s.cfg.OptionCount)

	// Запись могла исчезнуть, пока рендерилась картинка (таймаут,
	// конкурирующий верный ответ) — тогда ничего не обновляем.
	if !s.registry.SetChallenge(key, code, options) {
		return
	}

	caption := Caption(key.UserID, snap.UserFirstName, snap.RemainingSecs, snap.AttemptsLeft, snap.AttemptsTotal)
	if err := s.mod.EditChallenge(ctx, key.ChatID, snap.MessageID, caption, png, options); err != nil {
		s.logRemoteError(key.ChatID, snap.ChatTitle, snap.ChatUsername, "не удалось обновить сообщение капчи", err)
	}
}

// countdown — фоновый отсчёт, один на выдачу. Явного сигнала отмены нет:
// каждый тик перепроверяет присутствие ключа и молча выходит, если запись
// снята. Цена — не более одного лишнего тика после исчезновения ключа.
func (s *Service) countdown(ctx context.Context, key Key) {
	remaining := int(s.cfg.Timeout / time.Second)
	step := int(s.cfg.CaptionUpdate / time.Second)
	if step < 1 {
		step = 1
	}

	for remaining > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.CaptionUpdate):
		}
		remaining -= step
		if remaining < 0 {
			remaining = 0
		}

		snap, ok := s.registry.Tick(key, remaining)
		if !ok {
			return
		}
		if remaining == 0 {
			break
		}

		caption := Caption(key.UserID, snap.UserFirstName, remaining, snap.AttemptsLeft, snap.AttemptsTotal)
		if err := s.mod.EditChallenge(ctx, key.ChatID, snap.MessageID, caption, nil, snap.Options); err != nil {
			s.logRemoteError(key.ChatID, snap.ChatTitle, snap.ChatUsername, "не удалось обновить отсчёт", err)
		}
	}

	// Время вышло. Снятие записи — точка сериализации: если ответ
	// успел победить, Remove вернёт false и бан не выполняется.
	snap, ok := s.registry.Remove(key)
	if !ok {
		return
	}
	s.finishBanned(ctx, key, snap, "таймаут")
}

// sendAuditLog отправляет запись в журнал капчи, если он настроен.
func (s *Service) sendAuditLog(ctx context.Context, key Key, snap Pending, passed bool) {
	if s.cfg.LogChatID == 0 {
		return
	}

	ts := time.Now().In(s.cfg.Location).Format("2006-01-02 15:04:05")
	result := "✅ passed"
	if !passed {
		result = "🚫 failed"
	}

	lines := []string{
		"🪵 Captcha Log",
		" ├⏱️ <code>" + common.EscapeHTML(ts) + "</code>",
		" ├🙋🏽 " + common.EscapeHTML(snap.UserName),
	}
	if snap.UserUsername != "" {
		lines = append(lines, " ├👤 @"+common.EscapeHTML(snap.UserUsername))
	}
	lines = append(lines,
		" ├👥 "+common.EscapeHTML(common.ChatLabel(snap.ChatTitle, snap.ChatUsername)),
		" └"+result,
	)

	if err := s.mod.SendLog(ctx, s.cfg.LogChatID, strings.Join(lines, "\n")); err != nil {
		s.logRemoteError(key.ChatID, snap.ChatTitle, snap.ChatUsername, "не удалось отправить журнал капчи", err)
	}
}

// logRemoteError логирует сбой удалённого вызова с контекстом чата.
// Сетевые ошибки Telegram никогда не фатальны.
func (s *Service) logRemoteError(chatID int64, chatTitle, chatUsername, msg string, err error) {
	log.WithError(err).WithFields(log.Fields{
		"chat_id": chatID,
		"chat":    common.ChatLabel(chatTitle, chatUsername),
	}).Error(msg)
}
