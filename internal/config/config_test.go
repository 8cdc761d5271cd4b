package config

import (
	"testing"
	"time"
)

func loadWithEnv(t *testing.T, env map[string]string) *Config {
	t.Helper()
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:test")
	for k, v := range env {
		t.Setenv(k, v)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	cfg := loadWithEnv(t, nil)

	if cfg.CaptchaLen != 6 {
		t.Errorf("CaptchaLen = %d, ожидалось 6", cfg.CaptchaLen)
	}
	if cfg.CaptchaTimeout() != 2*time.Minute {
		t.Errorf("CaptchaTimeout = %v, ожидалось 2m", cfg.CaptchaTimeout())
	}
	if cfg.CaptchaAttempts != 3 {
		t.Errorf("CaptchaAttempts = %d, ожидалось 3", cfg.CaptchaAttempts)
	}
	if cfg.BanReleaseEnabled {
		t.Error("автоматический разбан по умолчанию выключен")
	}
	if cfg.BanReleaseAfter() != 6*time.Hour {
		t.Errorf("BanReleaseAfter = %v, ожидалось 6h", cfg.BanReleaseAfter())
	}
	if len(cfg.Warnings) != 0 {
		t.Errorf("предупреждения на дефолтах: %v", cfg.Warnings)
	}
}

func TestLoadOutOfRangeFallsBackToDefault(t *testing.T) {
	cfg := loadWithEnv(t, map[string]string{
		"CAPTCHA_LEN":             "99",
		"CAPTCHA_TIMEOUT_SECONDS": "5",
		"CAPTCHA_ATTEMPTS":        "0",
	})

	// Мягкая валидация: процесс жив, значения заменены дефолтами
	if cfg.CaptchaLen != 6 {
		t.Errorf("CaptchaLen = %d, ожидался дефолт 6", cfg.CaptchaLen)
	}
	if cfg.CaptchaTimeoutSeconds != 120 {
		t.Errorf("CaptchaTimeoutSeconds = %d, ожидался дефолт 120", cfg.CaptchaTimeoutSeconds)
	}
	if cfg.CaptchaAttempts != 3 {
		t.Errorf("CaptchaAttempts = %d, ожидался дефолт 3", cfg.CaptchaAttempts)
	}
	if len(cfg.Warnings) != 3 {
		t.Errorf("предупреждений %d, ожидалось 3: %v", len(cfg.Warnings), cfg.Warnings)
	}
}

func TestLoadBoundaryValuesAccepted(t *testing.T) {
	cfg := loadWithEnv(t, map[string]string{
		"CAPTCHA_LEN":             "4",
		"CAPTCHA_TIMEOUT_SECONDS": "600",
		"CAPTCHA_ATTEMPTS":        "10",
	})

	if cfg.CaptchaLen != 4 || cfg.CaptchaTimeoutSeconds != 600 || cfg.CaptchaAttempts != 10 {
		t.Errorf("граничные значения не должны заменяться: len=%d timeout=%d attempts=%d",
			cfg.CaptchaLen, cfg.CaptchaTimeoutSeconds, cfg.CaptchaAttempts)
	}
	if len(cfg.Warnings) != 0 {
		t.Errorf("предупреждения на граничных значениях: %v", cfg.Warnings)
	}
}

func TestLoadBadTimezoneFallsBackToUTC(t *testing.T) {
	cfg := loadWithEnv(t, map[string]string{"APP_TIMEZONE": "Mars/Olympus"})

	if cfg.AppTimezone != "UTC" {
		t.Errorf("AppTimezone = %q, ожидался UTC", cfg.AppTimezone)
	}
	if len(cfg.Warnings) == 0 {
		t.Error("некорректный пояс должен дать предупреждение")
	}
	if cfg.Location() != time.UTC {
		t.Error("Location() должен вернуть UTC")
	}
}

func TestLoadLogChatRequiredWhenEnabled(t *testing.T) {
	cfg := loadWithEnv(t, map[string]string{"CAPTCHA_LOG_ENABLED": "true"})

	if cfg.CaptchaLogEnabled {
		t.Error("журнал без chat_id должен быть выключен")
	}
	if len(cfg.Warnings) == 0 {
		t.Error("ожидалось предупреждение про CAPTCHA_LOG_CHAT_ID")
	}
}
