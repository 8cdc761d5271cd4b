// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает периодический обход заданий на разбан.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/captcha-bot/internal/features/release"
)

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron           *cron.Cron
	releaseService *release.Service
}

// NewScheduler создаёт планировщик задач.
// releaseService может быть nil — тогда обход разбанов не планируется
// (хранилище недоступно или функция выключена), остальной бот работает.
func NewScheduler(loc *time.Location, releaseService *release.Service) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		cron:           cron.New(cron.WithLocation(loc)),
		releaseService: releaseService,
	}
}

// Start запускает все фоновые задачи.
func (s *Scheduler) Start(ctx context.Context) {
	if s.releaseService != nil {
		every := fmt.Sprintf("@every %s", release.WorkerInterval)
		_, err := s.cron.AddFunc(every, func() {
			if err := s.releaseService.Sweep(ctx); err != nil {
				log.WithError(err).Error("[CRON] Ошибка обхода разбанов")
			}
		})
		if err != nil {
			log.WithError(err).Error("[CRON] Не удалось запланировать обход разбанов")
		}
	} else {
		log.Warn("Обход разбанов не запланирован: хранилище недоступно или выключено")
	}

	s.cron.Start()
	log.Info("Планировщик задач запущен")
}

// Stop останавливает планировщик, дожидаясь завершения текущих задач.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}
