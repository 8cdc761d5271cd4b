package release

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobs.sqlite")
	store, err := NewSQLiteStore(context.Background(), path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return store
}

func TestSQLitePragmasApplied(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Прагмы накатываются на каждое соединение пула; если хоть одна
	// не прошла, Take вернёт ошибку и хранилище не откроется вовсе
	conn, err := store.pool.Take(ctx)
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	defer store.pool.Put(conn)

	var journalMode string
	err = sqlitex.ExecuteTransient(conn, "PRAGMA journal_mode", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			journalMode = stmt.ColumnText(0)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %q, ожидался wal", journalMode)
	}

	var synchronous int64
	err = sqlitex.ExecuteTransient(conn, "PRAGMA synchronous", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			synchronous = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("PRAGMA synchronous: %v", err)
	}
	if synchronous != 1 {
		t.Errorf("synchronous = %d, ожидался 1 (NORMAL)", synchronous)
	}
}

func TestSQLiteFetchDueOrderAndBoundary(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	jobs := []Job{
		{ChatID: -1, UserID: 3, ReleaseAt: now.Add(-time.Minute)},
		{ChatID: -1, UserID: 1, ReleaseAt: now.Add(-time.Hour)},
		{ChatID: -1, UserID: 2, ReleaseAt: now}, // ровно на границе — должно выбраться
		{ChatID: -1, UserID: 4, ReleaseAt: now.Add(time.Hour)},
	}
	for _, job := range jobs {
		if err := store.Upsert(ctx, job); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	due, err := store.FetchDue(ctx, now)
	if err != nil {
		t.Fatalf("FetchDue: %v", err)
	}
	if len(due) != 3 {
		t.Fatalf("созревших %d, ожидалось 3", len(due))
	}
	wantOrder := []int64{1, 3, 2}
	for i, job := range due {
		if job.UserID != wantOrder[i] {
			t.Errorf("позиция %d: user_id = %d, ожидался %d (сортировка по сроку)", i, job.UserID, wantOrder[i])
		}
	}
}

func TestSQLiteUpsertOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	first := Job{ChatID: -1, UserID: 1, ReleaseAt: now.Add(-time.Minute), UserName: "Old"}
	if err := store.Upsert(ctx, first); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	// Повторный бан сдвигает срок в будущее и обновляет поля
	second := Job{ChatID: -1, UserID: 1, ReleaseAt: now.Add(time.Hour), UserName: "New"}
	if err := store.Upsert(ctx, second); err != nil {
		t.Fatalf("повторный Upsert: %v", err)
	}

	due, err := store.FetchDue(ctx, now)
	if err != nil {
		t.Fatalf("FetchDue: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("созревших %d, ожидалось 0: срок перезаписан", len(due))
	}

	due, err = store.FetchDue(ctx, now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("FetchDue: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("созревших %d, ожидался 1", len(due))
	}
	if due[0].UserName != "New" {
		t.Errorf("user_name = %q, ожидалось %q", due[0].UserName, "New")
	}
}

func TestSQLiteDeleteIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := Job{ChatID: -1, UserID: 1, ReleaseAt: time.Now()}
	if err := store.Upsert(ctx, job); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if err := store.Delete(ctx, -1, 1); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	// Удаление отсутствующего задания — no-op, не ошибка
	if err := store.Delete(ctx, -1, 1); err != nil {
		t.Errorf("повторный Delete: %v", err)
	}
	if err := store.Delete(ctx, -999, 999); err != nil {
		t.Errorf("Delete несуществующего: %v", err)
	}
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "jobs.sqlite")

	store, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	job := Job{ChatID: -1, UserID: 1, ReleaseAt: time.Now().Add(-time.Minute), ChatTitle: "Chat"}
	if err := store.Upsert(ctx, job); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Задание переживает перезапуск процесса
	reopened, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("повторное открытие: %v", err)
	}
	defer reopened.Close()

	due, err := reopened.FetchDue(ctx, time.Now())
	if err != nil {
		t.Fatalf("FetchDue: %v", err)
	}
	if len(due) != 1 || due[0].ChatTitle != "Chat" {
		t.Errorf("после переоткрытия: %+v, ожидалось одно задание с chat_title=Chat", due)
	}
}
