package middleware

import (
	"sync"
	"time"
)

// attemptKey — пара (чат, участник): та же гранулярность, что у активной
// капчи. Лимит в одном чате не съедает попытки того же участника в другом.
type attemptKey struct {
	chatID int64
	userID int64
}

// RateLimiter ограничивает частоту попыток ответа на капчу.
// Использует алгоритм скользящего окна: неверные нажатия и перебор
// кнопок быстрее лимита отбрасываются до проверки ответа.
type RateLimiter struct {
	mu       sync.Mutex
	attempts map[attemptKey][]time.Time
	limit    int
	window   time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		attempts: make(map[attemptKey][]time.Time),
		limit:    limit,
		window:   window,
		stopCh:   make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// Close останавливает фоновую горутину очистки.
// Его надо вызывать на shutdown (иначе cleanup будет жить вечно).
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Allow сообщает, можно ли засчитать очередную попытку ответа.
func (rl *RateLimiter) Allow(chatID, userID int64) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	key := attemptKey{chatID: chatID, userID: userID}
	now := time.Now()
	cutoff := now.Add(-rl.window)

	var recent []time.Time
	for _, t := range rl.attempts[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= rl.limit {
		rl.attempts[key] = recent
		return false
	}

	recent = append(recent, now)
	rl.attempts[key] = recent
	return true
}

// cleanup убирает ключи решённых и истёкших капч: после снятия записи
// из реестра сюда больше никто не пишет, без очистки карта только растёт.
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.mu.Lock()
			cutoff := time.Now().Add(-rl.window)
			for key, times := range rl.attempts {
				var recent []time.Time
				for _, t := range times {
					if t.After(cutoff) {
						recent = append(recent, t)
					}
				}
				if len(recent) == 0 {
					delete(rl.attempts, key)
				} else {
					rl.attempts[key] = recent
				}
			}
			rl.mu.Unlock()
		}
	}
}
