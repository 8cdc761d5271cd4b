// Package config загружает конфигурацию бота из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры.
//
// Политика валидации мягкая: значение вне допустимого диапазона не роняет
// процесс, а заменяется дефолтом с человекочитаемым предупреждением.
// Предупреждения накапливаются в Warnings и логируются один раз на старте.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Telegram ---
	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN" required:"true"`

	// --- Captcha ---
	// Длина кода на картинке
	CaptchaLen int `envconfig:"CAPTCHA_LEN" default:"6"`
	// Сколько секунд даётся на решение
	CaptchaTimeoutSeconds int `envconfig:"CAPTCHA_TIMEOUT_SECONDS" default:"120"`
	// Как часто обновлять подпись с оставшимся временем
	CaptchaCaptionUpdateSeconds int `envconfig:"CAPTCHA_CAPTION_UPDATE_SECONDS" default:"10"`
	// Размер картинки в пикселях
	CaptchaWidth  int `envconfig:"CAPTCHA_WIDTH" default:"320"`
	CaptchaHeight int `envconfig:"CAPTCHA_HEIGHT" default:"100"`
	// Сколько вариантов ответа показывать под картинкой (включая верный)
	CaptchaOptionCount int `envconfig:"CAPTCHA_OPTION_COUNT" default:"6"`
	// Сколько попыток даётся пользователю
	CaptchaAttempts int `envconfig:"CAPTCHA_ATTEMPTS" default:"3"`
	// Показывать цифры и A/B на кнопках как эмодзи
	CaptchaOptionDigitsToEmoji bool `envconfig:"CAPTCHA_OPTION_DIGITS_TO_EMOJI" default:"true"`

	// --- Служебные сообщения ---
	DeleteJoinMessage bool `envconfig:"DELETE_JOIN_MESSAGE" default:"true"`
	DeleteLeftMessage bool `envconfig:"DELETE_LEFT_MESSAGE" default:"true"`

	// --- Автоматический разбан ---
	BanReleaseEnabled      bool   `envconfig:"BAN_RELEASE_ENABLED" default:"false"`
	BanReleaseAfterSeconds int    `envconfig:"BAN_RELEASE_AFTER_SECONDS" default:"21600"`
	BanReleaseDBPath       string `envconfig:"BAN_RELEASE_DB_PATH" default:"captcha-bot.sqlite"`
	// Если задан — задания хранятся в PostgreSQL вместо SQLite-файла
	BanReleaseDatabaseURL string `envconfig:"BAN_RELEASE_DATABASE_URL" default:""`

	// --- Журнал капчи (отдельный лог-чат) ---
	CaptchaLogEnabled bool  `envconfig:"CAPTCHA_LOG_ENABLED" default:"false"`
	CaptchaLogChatID  int64 `envconfig:"CAPTCHA_LOG_CHAT_ID" default:"0"`

	// --- Application ---
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"info"`
	AppTimezone string `envconfig:"APP_TIMEZONE" default:"Asia/Jakarta"`

	// --- Bot runtime ---
	// Сколько апдейтов обрабатываем параллельно. Иначе "go на каждый апдейт" = утечка памяти при флуде.
	BotMaxInflight int `envconfig:"BOT_MAX_INFLIGHT" default:"64"`
	// Таймаут long polling (секунды)
	BotUpdateTimeoutSeconds int `envconfig:"BOT_UPDATE_TIMEOUT_SECONDS" default:"60"`

	// --- Rate Limiting (попытки ответа на капчу) ---
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"10"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	// Предупреждения мягкой валидации, заполняются в Load
	Warnings []string `envconfig:"-"`
}

// intRange описывает допустимый диапазон одного числового параметра.
type intRange struct {
	name  string
	value *int
	def   int
	min   int
	max   int
}

// Normalize проверяет диапазоны и возвращает значения к дефолтам,
// если они вне допустимых границ. Каждое нарушение — одно предупреждение.
func (c *Config) Normalize() {
	ranges := []intRange{
		{"CAPTCHA_LEN", &c.CaptchaLen, 6, 4, 12},
		{"CAPTCHA_TIMEOUT_SECONDS", &c.CaptchaTimeoutSeconds, 120, 30, 600},
		{"CAPTCHA_CAPTION_UPDATE_SECONDS", &c.CaptchaCaptionUpdateSeconds, 10, 2, 30},
		{"CAPTCHA_WIDTH", &c.CaptchaWidth, 320, 160, 400},
		{"CAPTCHA_HEIGHT", &c.CaptchaHeight, 100, 60, 200},
		{"CAPTCHA_OPTION_COUNT", &c.CaptchaOptionCount, 6, 3, 12},
		{"CAPTCHA_ATTEMPTS", &c.CaptchaAttempts, 3, 1, 10},
		{"BAN_RELEASE_AFTER_SECONDS", &c.BanReleaseAfterSeconds, 21600, 60, 2592000},
		{"BOT_MAX_INFLIGHT", &c.BotMaxInflight, 64, 1, 1024},
		{"BOT_UPDATE_TIMEOUT_SECONDS", &c.BotUpdateTimeoutSeconds, 60, 1, 120},
	}
	for _, r := range ranges {
		if *r.value < r.min || *r.value > r.max {
			c.Warnings = append(c.Warnings, fmt.Sprintf(
				"%s вне диапазона (%d), используется дефолт %d (диапазон %d..%d)",
				r.name, *r.value, r.def, r.min, r.max,
			))
			*r.value = r.def
		}
	}

	if c.CaptchaLogEnabled && c.CaptchaLogChatID == 0 {
		c.Warnings = append(c.Warnings,
			"CAPTCHA_LOG_ENABLED=true, но CAPTCHA_LOG_CHAT_ID не задан — журнал капчи отключён")
		c.CaptchaLogEnabled = false
	}
	if c.RateLimitRequests <= 0 {
		c.Warnings = append(c.Warnings,
			fmt.Sprintf("RATE_LIMIT_REQUESTS некорректен (%d), используется 10", c.RateLimitRequests))
		c.RateLimitRequests = 10
	}
	if c.RateLimitWindow <= 0 {
		c.Warnings = append(c.Warnings,
			"RATE_LIMIT_WINDOW некорректен, используется 1m")
		c.RateLimitWindow = time.Minute
	}
}

// Location возвращает часовой пояс приложения. Если пояс не загрузился —
// предупреждение и UTC (теряем только локальное время в журнале капчи).
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.AppTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// CaptchaTimeout возвращает таймаут капчи как Duration.
func (c *Config) CaptchaTimeout() time.Duration {
	return time.Duration(c.CaptchaTimeoutSeconds) * time.Second
}

// CaptchaCaptionUpdate возвращает период обновления подписи как Duration.
func (c *Config) CaptchaCaptionUpdate() time.Duration {
	return time.Duration(c.CaptchaCaptionUpdateSeconds) * time.Second
}

// BanReleaseAfter возвращает задержку автоматического разбана.
func (c *Config) BanReleaseAfter() time.Duration {
	return time.Duration(c.BanReleaseAfterSeconds) * time.Second
}

// Load читает переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	cfg.Normalize()

	if _, err := time.LoadLocation(cfg.AppTimezone); err != nil {
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf(
			"APP_TIMEZONE некорректен (%q), используется UTC", cfg.AppTimezone))
		cfg.AppTimezone = "UTC"
	}

	return &cfg, nil
}
