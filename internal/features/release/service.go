// Package release — service.go планирует разбаны и выполняет их воркером.
package release

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/captcha-bot/internal/common"
)

// WorkerInterval — период обхода заданий воркером.
// Фиксированный: точность разбана до минуты достаточна, а редкий обход
// не создаёт нагрузки на Telegram даже при множестве чатов.
const WorkerInterval = 60 * time.Second

// Unbanner снимает бан. Реализация обязана быть идемпотентной:
// разбан уже разбаненного участника — успех, не ошибка.
type Unbanner interface {
	Unban(ctx context.Context, chatID, userID int64) error
}

// Notifier отправляет HTML-запись о выполненном разбане в журнал.
// nil — журнал выключен.
type Notifier func(ctx context.Context, html string)

// Service планирует отложенные разбаны и выполняет созревшие.
type Service struct {
	store    Store
	unbanner Unbanner
	after    time.Duration
	notify   Notifier
}

// NewService создаёт сервис разбанов. notify может быть nil.
func NewService(store Store, unbanner Unbanner, after time.Duration, notify Notifier) *Service {
	return &Service{store: store, unbanner: unbanner, after: after, notify: notify}
}

// Schedule ставит задание на разбан через настроенный срок.
// Повторный бан того же участника сдвигает срок заново.
func (s *Service) Schedule(ctx context.Context, chatID, userID int64, display Display) error {
	job := Job{
		ChatID:       chatID,
		UserID:       userID,
		ReleaseAt:    time.Now().Add(s.after),
		UserName:     display.UserName,
		UserUsername: display.UserUsername,
		ChatTitle:    display.ChatTitle,
		ChatUsername: display.ChatUsername,
	}
	if err := s.store.Upsert(ctx, job); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"chat_id":    chatID,
		"user_id":    userID,
		"release_at": job.ReleaseAt.Format(time.RFC3339),
	}).Info("⏲ разбан запланирован")
	return nil
}

// Sweep выполняет один обход: разбанивает всех с истёкшим сроком.
//
// Доставка at-least-once: задание удаляется только после успешного
// разбана. Сбой одного задания не прерывает обход — остальные задания
// обрабатываются, неудачное остаётся до следующего обхода.
func (s *Service) Sweep(ctx context.Context) error {
	jobs, err := s.store.FetchDue(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("обход заданий на разбан: %w", err)
	}

	for _, job := range jobs {
		fields := log.Fields{
			"chat_id": job.ChatID,
			"user_id": job.UserID,
			"chat":    common.ChatLabel(job.ChatTitle, job.ChatUsername),
		}
		if err := s.unbanner.Unban(ctx, job.ChatID, job.UserID); err != nil {
			log.WithError(err).WithFields(fields).Warn("не удалось разбанить, задание останется")
			continue
		}
		if err := s.store.Delete(ctx, job.ChatID, job.UserID); err != nil {
			// Разбан уже выполнен; задание повторится и разбанит
			// вхолостую — идемпотентность Unban это покрывает
			log.WithError(err).WithFields(fields).Warn("не удалось удалить задание после разбана")
			continue
		}
		log.WithFields(fields).Info("🔓 участник разбанен")

		if s.notify != nil {
			s.notify(ctx, releaseLogEntry(job))
		}
	}
	return nil
}

// releaseLogEntry строит HTML-запись журнала о выполненном разбане.
func releaseLogEntry(job Job) string {
	lines := []string{
		"🔓 Ban Released",
		" ├🙋🏽 " + common.EscapeHTML(job.UserName),
	}
	if job.UserUsername != "" {
		lines = append(lines, " ├👤 @"+common.EscapeHTML(job.UserUsername))
	}
	lines = append(lines, " └👥 "+common.EscapeHTML(common.ChatLabel(job.ChatTitle, job.ChatUsername)))
	return strings.Join(lines, "\n")
}

// TelegramUnbanner — боевой Unbanner на go-telegram-bot-api.
type TelegramUnbanner struct {
	api *tgbotapi.BotAPI
}

// NewTelegramUnbanner создаёт Unbanner поверх API-клиента.
func NewTelegramUnbanner(api *tgbotapi.BotAPI) *TelegramUnbanner {
	return &TelegramUnbanner{api: api}
}

// Unban снимает бан. OnlyIfBanned делает вызов идемпотентным:
// для уже разбаненного участника Telegram отвечает успехом.
func (u *TelegramUnbanner) Unban(_ context.Context, chatID, userID int64) error {
	unban := tgbotapi.UnbanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{
			ChatID: chatID,
			UserID: userID,
		},
		OnlyIfBanned: true,
	}
	if _, err := u.api.Request(unban); err != nil {
		return fmt.Errorf("ошибка разбана участника: %w", err)
	}
	return nil
}
