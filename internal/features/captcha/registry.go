// Package captcha — registry.go хранит все активные капчи в памяти.
//
// Реестр — единственная точка сериализации для переходов по одному ключу:
// кто первым атомарно снял запись (верный ответ, исчерпание попыток или
// таймаут), тот и выполняет побочные эффекты. Все операции — короткие
// критические секции; сетевые вызовы выполняются строго вне блокировки.
package captcha

import (
	"strings"
	"sync"
)

// Registry — защищённая мьютексом таблица (чат, пользователь) → Pending.
type Registry struct {
	mu      sync.Mutex
	pending map[Key]*Pending
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{pending: make(map[Key]*Pending)}
}

// Insert добавляет запись, если её ещё нет.
// Возвращает false, если капча для ключа уже существует — это защита
// от дублирующихся событий вступления (join-flood).
func (r *Registry) Insert(key Key, p *Pending) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[key]; ok {
		return false
	}
	r.pending[key] = p
	return true
}

// Contains сообщает, есть ли активная капча для ключа.
func (r *Registry) Contains(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[key]
	return ok
}

// Evaluate проверяет ответ в одной критической секции.
//
// Верный ответ (без учёта регистра) атомарно снимает запись — ровно один
// конкурирующий вызов получит ResultVerified, остальные увидят
// ResultNoPending. Неверный ответ уменьшает счётчик попыток; достижение
// нуля также атомарно снимает запись (ResultExhausted).
// Возвращаемый снимок — копия записи на момент решения.
func (r *Registry) Evaluate(key Key, answer string) (Result, Pending) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pending[key]
	if !ok {
		return ResultNoPending, Pending{}
	}

	if strings.EqualFold(strings.TrimSpace(answer), p.Code) {
		snap := *p
		delete(r.pending, key)
		return ResultVerified, snap
	}

	if p.AttemptsLeft > 0 {
		p.AttemptsLeft--
	}
	if p.AttemptsLeft == 0 {
		snap := *p
		delete(r.pending, key)
		return ResultExhausted, snap
	}
	return ResultWrong, *p
}

// Remove атомарно снимает запись, если она есть.
// Это арбитр гонки между таймаутом и конкурирующим ответом: побеждает
// тот, чей Remove/Evaluate первым застал запись на месте.
func (r *Registry) Remove(key Key) (Pending, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[key]
	if !ok {
		return Pending{}, false
	}
	snap := *p
	delete(r.pending, key)
	return snap, true
}

// Tick обновляет оставшееся время и возвращает снимок для обновления
// подписи. false — запись уже снята, фоновый отсчёт должен завершиться.
func (r *Registry) Tick(key Key, remainingSecs int) (Pending, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[key]
	if !ok {
		return Pending{}, false
	}
	p.RemainingSecs = remainingSecs
	return *p, true
}

// SetChallenge заменяет код и варианты после неверного ответа.
// No-op, если запись исчезла, пока генерировалась новая картинка.
func (r *Registry) SetChallenge(key Key, code string, options []string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[key]
	if !ok {
		return false
	}
	p.Code = code
	p.Options = options
	return true
}

// Len возвращает число активных капч (для логов и тестов).
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
