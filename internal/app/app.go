// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: создаёт хранилище заданий, сервисы, обработчики
// и собирает всё в один объект Bot.
package app

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/captcha-bot/internal/bot"
	"serotonyl.ru/captcha-bot/internal/bot/middleware"
	"serotonyl.ru/captcha-bot/internal/config"
	"serotonyl.ru/captcha-bot/internal/features/captcha"
	"serotonyl.ru/captcha-bot/internal/features/release"
	"serotonyl.ru/captcha-bot/internal/jobs"
)

// App содержит все компоненты приложения.
type App struct {
	Bot          *bot.Bot
	Scheduler    *jobs.Scheduler
	BotAPI       *tgbotapi.BotAPI
	ReleaseStore release.Store
	RateLimiter  *middleware.RateLimiter
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен — компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// === 1. Telegram Bot API ===
	botAPI, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
	}
	log.Infof("Авторизован как @%s", botAPI.Self.UserName)

	// === 2. Хранилище заданий на разбан ===
	// Недоступность хранилища не роняет бота: капча и баны работают,
	// отключается только планирование автоматических разбанов.
	var store release.Store
	if cfg.BanReleaseEnabled {
		store, err = openReleaseStore(ctx, cfg)
		if err != nil {
			log.WithError(err).Warn("Хранилище заданий недоступно, автоматический разбан отключён")
			store = nil
		}
	}

	// === 3. Сервис разбанов ===
	moderator := captcha.NewTelegramModerator(botAPI, cfg.CaptchaOptionDigitsToEmoji)
	var logChatID int64
	if cfg.CaptchaLogEnabled {
		logChatID = cfg.CaptchaLogChatID
	}

	var releaseService *release.Service
	if store != nil {
		var notify release.Notifier
		if logChatID != 0 {
			notify = func(ctx context.Context, html string) {
				if err := moderator.SendLog(ctx, logChatID, html); err != nil {
					log.WithError(err).Warn("не удалось отправить журнал разбана")
				}
			}
		}
		releaseService = release.NewService(store, release.NewTelegramUnbanner(botAPI), cfg.BanReleaseAfter(), notify)
	}

	// === 4. Сервис капчи ===
	captchaService := captcha.NewService(
		captcha.NewRegistry(),
		moderator,
		banReleaserOrNil(releaseService),
		captcha.Config{
			Length:        cfg.CaptchaLen,
			Width:         cfg.CaptchaWidth,
			Height:        cfg.CaptchaHeight,
			OptionCount:   cfg.CaptchaOptionCount,
			Attempts:      cfg.CaptchaAttempts,
			Timeout:       cfg.CaptchaTimeout(),
			CaptionUpdate: cfg.CaptchaCaptionUpdate(),
			LogChatID:     logChatID,
			Location:      cfg.Location(),
		},
	)

	// === 5. Обработчики ===
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)
	captchaHandlers := captcha.NewHandlers(botAPI, captchaService, rateLimiter,
		cfg.DeleteJoinMessage, cfg.DeleteLeftMessage)

	// === 6. Собираем бота ===
	b := bot.New(botAPI, cfg, captchaHandlers)

	// === 7. Планировщик задач ===
	scheduler := jobs.NewScheduler(cfg.Location(), releaseService)

	return &App{
		Bot:          b,
		Scheduler:    scheduler,
		BotAPI:       botAPI,
		ReleaseStore: store,
		RateLimiter:  rateLimiter,
	}, nil
}

// openReleaseStore выбирает бэкенд хранилища: PostgreSQL, если задан
// BAN_RELEASE_DATABASE_URL, иначе SQLite-файл рядом с ботом.
func openReleaseStore(ctx context.Context, cfg *config.Config) (release.Store, error) {
	if cfg.BanReleaseDatabaseURL != "" {
		store, err := release.NewPostgresStore(ctx, cfg.BanReleaseDatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("хранилище PostgreSQL: %w", err)
		}
		log.Info("Задания на разбан хранятся в PostgreSQL")
		return store, nil
	}

	store, err := release.NewSQLiteStore(ctx, cfg.BanReleaseDBPath)
	if err != nil {
		return nil, fmt.Errorf("хранилище SQLite: %w", err)
	}
	log.WithField("path", cfg.BanReleaseDBPath).Info("Задания на разбан хранятся в SQLite")
	return store, nil
}

// banReleaser адаптирует release.Service к контракту сервиса капчи.
type banReleaser struct {
	releases *release.Service
}

func (b *banReleaser) ScheduleRelease(ctx context.Context, chatID, userID int64, info captcha.ReleaseInfo) error {
	return b.releases.Schedule(ctx, chatID, userID, release.Display{
		UserName:     info.UserName,
		UserUsername: info.UserUsername,
		ChatTitle:    info.ChatTitle,
		ChatUsername: info.ChatUsername,
	})
}

// banReleaserOrNil возвращает nil-интерфейс, когда сервис разбанов
// не создан. Типизированный nil внутри интерфейса сломал бы проверку
// `!= nil` в сервисе капчи.
func banReleaserOrNil(releases *release.Service) captcha.BanReleaser {
	if releases == nil {
		return nil
	}
	return &banReleaser{releases: releases}
}
