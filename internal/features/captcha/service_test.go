package captcha

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// fakeModerator записывает вызовы вместо обращения к Telegram.
type fakeModerator struct {
	mu         sync.Mutex
	restricted int
	restored   int
	banned     int
	sent       int
	edited     int
	deleted    int
	logs       int
	nextMsgID  int
	failBan    bool
}

func (f *fakeModerator) Restrict(_ context.Context, _, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restricted++
	return nil
}

func (f *fakeModerator) RestoreDefault(_ context.Context, _, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restored++
	return nil
}

func (f *fakeModerator) Ban(_ context.Context, _, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failBan {
		return errors.New("нет прав")
	}
	f.banned++
	return nil
}

func (f *fakeModerator) SendChallenge(_ context.Context, _ int64, _ string, _ []byte, _ []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent++
	f.nextMsgID++
	return f.nextMsgID, nil
}

func (f *fakeModerator) EditChallenge(_ context.Context, _ int64, _ int, _ string, _ []byte, _ []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edited++
	return nil
}

func (f *fakeModerator) DeleteMessage(_ context.Context, _ int64, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted++
	return nil
}

func (f *fakeModerator) SendLog(_ context.Context, _ int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs++
	return nil
}

func (f *fakeModerator) counts() (restricted, restored, banned, deleted int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.restricted, f.restored, f.banned, f.deleted
}

// fakeReleaser записывает запланированные разбаны.
type fakeReleaser struct {
	mu   sync.Mutex
	jobs []Key
}

func (f *fakeReleaser) ScheduleRelease(_ context.Context, chatID, userID int64, _ ReleaseInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, Key{ChatID: chatID, UserID: userID})
	return nil
}

func (f *fakeReleaser) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

func testConfig(attempts int, timeout time.Duration) Config {
	return Config{
		Length:        4,
		Width:         160,
		Height:        60,
		OptionCount:   4,
		Attempts:      attempts,
		Timeout:       timeout,
		CaptionUpdate: 5 * time.Millisecond,
	}
}

func testUser(id int64) *tgbotapi.User {
	return &tgbotapi.User{ID: id, FirstName: "Test", UserName: "tester"}
}

// currentCode читает актуальный код капчи прямо из реестра.
func currentCode(t *testing.T, r *Registry, key Key) string {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[key]
	if !ok {
		t.Fatal("активной капчи нет")
	}
	return p.Code
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("условие не выполнилось за отведённое время")
}

func TestIssueSkipsBotsAndDuplicates(t *testing.T) {
	mod := &fakeModerator{}
	svc := NewService(NewRegistry(), mod, nil, testConfig(3, time.Hour))
	ctx := context.Background()

	bot := testUser(1)
	bot.IsBot = true
	if err := svc.Issue(ctx, -100, "Chat", "chat", bot); err != nil {
		t.Fatalf("Issue для бота: %v", err)
	}
	if svc.Registry().Len() != 0 {
		t.Error("боту капча выдаваться не должна")
	}

	if err := svc.Issue(ctx, -100, "Chat", "chat", testUser(2)); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := svc.Issue(ctx, -100, "Chat", "chat", testUser(2)); err != nil {
		t.Fatalf("повторный Issue: %v", err)
	}
	if got := svc.Registry().Len(); got != 1 {
		t.Errorf("Len() = %d, ожидалась одна капча на ключ", got)
	}
	restricted, _, _, _ := mod.counts()
	if restricted == 0 {
		t.Error("участник должен быть ограничен при выдаче")
	}
}

func TestEvaluateWrongThenCorrect(t *testing.T) {
	mod := &fakeModerator{}
	svc := NewService(NewRegistry(), mod, nil, testConfig(3, time.Hour))
	ctx := context.Background()
	key := Key{ChatID: -100, UserID: 7}

	if err := svc.Issue(ctx, -100, "Chat", "chat", testUser(7)); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Два промаха: счётчик убывает, код каждый раз меняется
	for want := 2; want >= 1; want-- {
		result, snap := svc.Evaluate(ctx, -100, 7, "\x00nope")
		if result != ResultWrong {
			t.Fatalf("Evaluate = %v, ожидалось ResultWrong", result)
		}
		if snap.AttemptsLeft != want {
			t.Fatalf("попыток осталось %d, ожидалось %d", snap.AttemptsLeft, want)
		}
	}

	code := currentCode(t, svc.Registry(), key)
	result, _ := svc.Evaluate(ctx, -100, 7, code)
	if result != ResultVerified {
		t.Fatalf("Evaluate = %v, ожидалось ResultVerified", result)
	}
	if svc.Registry().Contains(key) {
		t.Error("после верного ответа капча должна быть снята")
	}

	_, restored, banned, deleted := mod.counts()
	if restored != 1 {
		t.Errorf("восстановлений прав %d, ожидалось 1", restored)
	}
	if banned != 0 {
		t.Errorf("банов %d, ожидалось 0", banned)
	}
	if deleted != 1 {
		t.Errorf("удалений сообщения %d, ожидалось 1", deleted)
	}
}

func TestEvaluateExhaustedBansAndSchedulesRelease(t *testing.T) {
	mod := &fakeModerator{}
	releaser := &fakeReleaser{}
	svc := NewService(NewRegistry(), mod, releaser, testConfig(1, time.Hour))
	ctx := context.Background()

	if err := svc.Issue(ctx, -100, "Chat", "chat", testUser(9)); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	result, _ := svc.Evaluate(ctx, -100, 9, "\x00nope")
	if result != ResultExhausted {
		t.Fatalf("Evaluate = %v, ожидалось ResultExhausted", result)
	}
	if svc.Registry().Len() != 0 {
		t.Error("после исчерпания попыток капча должна быть снята")
	}

	_, _, banned, _ := mod.counts()
	if banned != 1 {
		t.Errorf("банов %d, ожидался 1", banned)
	}
	if releaser.count() != 1 {
		t.Errorf("заданий на разбан %d, ожидалось 1", releaser.count())
	}
}

func TestBanFailureSkipsRelease(t *testing.T) {
	mod := &fakeModerator{failBan: true}
	releaser := &fakeReleaser{}
	svc := NewService(NewRegistry(), mod, releaser, testConfig(1, time.Hour))
	ctx := context.Background()

	if err := svc.Issue(ctx, -100, "Chat", "chat", testUser(9)); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	result, _ := svc.Evaluate(ctx, -100, 9, "\x00nope")
	if result != ResultExhausted {
		t.Fatalf("Evaluate = %v, ожидалось ResultExhausted", result)
	}
	// Бан не прошёл — разбан планировать нечего
	if releaser.count() != 0 {
		t.Errorf("заданий на разбан %d, ожидалось 0", releaser.count())
	}
	if svc.Registry().Len() != 0 {
		t.Error("запись снимается независимо от исхода бана")
	}
}

func TestCountdownTimeoutBans(t *testing.T) {
	mod := &fakeModerator{}
	svc := NewService(NewRegistry(), mod, nil, testConfig(3, 2*time.Second))
	ctx := context.Background()

	if err := svc.Issue(ctx, -100, "Chat", "chat", testUser(5)); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// CaptionUpdate = 5ms, каждый тик списывает одну «секунду»:
	// таймаут наступает за десятки миллисекунд
	waitFor(t, 2*time.Second, func() bool {
		_, _, banned, _ := mod.counts()
		return banned == 1
	})
	if svc.Registry().Len() != 0 {
		t.Error("после таймаута капча должна быть снята")
	}
}

func TestCountdownCancelledByVerification(t *testing.T) {
	mod := &fakeModerator{}
	svc := NewService(NewRegistry(), mod, nil, testConfig(3, 2*time.Second))
	ctx := context.Background()
	key := Key{ChatID: -100, UserID: 6}

	if err := svc.Issue(ctx, -100, "Chat", "chat", testUser(6)); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	code := currentCode(t, svc.Registry(), key)
	if result, _ := svc.Evaluate(ctx, -100, 6, code); result != ResultVerified {
		t.Fatal("ожидалось ResultVerified")
	}

	// Отсчёт замечает снятую запись и выходит, не дойдя до бана
	time.Sleep(100 * time.Millisecond)
	_, _, banned, _ := mod.counts()
	if banned != 0 {
		t.Errorf("банов %d после верного ответа, ожидалось 0", banned)
	}
}
