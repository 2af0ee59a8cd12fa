package repo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tg-reminder-bot/internal/domain"
	"tg-reminder-bot/internal/infra/db"
)

type store interface {
	domain.ReminderRepo
	domain.Directory
}

func sample(id string, owner int64, created time.Time) domain.Reminder {
	end := domain.Date{Year: 2026, Month: time.December, Day: 31}
	return domain.Reminder{
		ID:         id,
		OwnerID:    owner,
		Rule:       domain.Rule{Kind: domain.RuleCustomDays, Weekdays: domain.NewWeekdaySet(domain.Monday, domain.Friday)},
		Time:       domain.TimeOfDay{Hour: 9, Minute: 30},
		Messages:   []domain.MessagePart{domain.TextPart("first"), domain.TextPart("второе")},
		Attachment: &domain.Attachment{Kind: domain.AttachmentDocument, FileID: "doc-1"},
		ChatID:     -1003342043555,
		EndDate:    &end,
		CreatedAt:  created,
	}
}

func runStoreContract(t *testing.T, s store) {
	ctx := context.Background()
	base := time.Date(2026, time.October, 15, 8, 0, 0, 0, time.UTC)

	first := sample("aaaa1111", 7, base)
	if err := s.Put(ctx, first); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(ctx, first); !errors.Is(err, domain.ErrDuplicateID) {
		t.Fatalf("ожидали ErrDuplicateID, получили %v", err)
	}

	got, err := s.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Rule != first.Rule || got.Time != first.Time || got.ChatID != first.ChatID || got.OwnerID != 7 {
		t.Fatalf("fields differ: %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[1].Content != "второе" || got.Messages[0].Kind != domain.MessageText {
		t.Fatalf("messages differ: %+v", got.Messages)
	}
	if got.Attachment == nil || *got.Attachment != *first.Attachment {
		t.Fatalf("attachment differs: %+v", got.Attachment)
	}
	if got.EndDate == nil || *got.EndDate != *first.EndDate {
		t.Fatalf("end date differs: %v", got.EndDate)
	}

	second := sample("bbbb2222", 7, base.Add(time.Minute))
	second.Attachment = nil
	second.EndDate = nil
	second.Rule = domain.Rule{Kind: domain.RuleDaily}
	other := sample("cccc3333", 8, base.Add(2*time.Minute))
	for _, r := range []domain.Reminder{second, other} {
		if err := s.Put(ctx, r); err != nil {
			t.Fatalf("put %s: %v", r.ID, err)
		}
	}

	list, err := s.ListByOwner(ctx, 7, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != first.ID || list[1].ID != second.ID {
		t.Fatalf("unexpected owner list: %+v", list)
	}
	if list[1].Attachment != nil || list[1].EndDate != nil {
		t.Fatalf("optional fields must stay empty: %+v", list[1])
	}

	evening := domain.TimeOfDay{Hour: 18}
	patched, err := s.Patch(ctx, first.ID, domain.ReminderPatch{Time: &evening, ClearEndDate: true})
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	if patched.Time != evening || patched.EndDate != nil {
		t.Fatalf("patch not applied: %+v", patched)
	}
	if patched.Rule != first.Rule || len(patched.Messages) != 2 || patched.Attachment == nil {
		t.Fatalf("patch touched other fields: %+v", patched)
	}

	weekly := domain.Rule{Kind: domain.RuleWeekly}
	end := domain.Date{Year: 2027, Month: time.January, Day: 5}
	patched, err = s.Patch(ctx, first.ID, domain.ReminderPatch{Rule: &weekly, EndDate: &end, Messages: []domain.MessagePart{domain.TextPart("new")}})
	if err != nil {
		t.Fatalf("patch rule: %v", err)
	}
	if patched.Rule != weekly || patched.EndDate == nil || *patched.EndDate != end || len(patched.Messages) != 1 || patched.Time != evening {
		t.Fatalf("unexpected patched reminder: %+v", patched)
	}
	if _, err := s.Patch(ctx, "missing", domain.ReminderPatch{Time: &evening}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("patch missing: expected ErrNotFound, got %v", err)
	}

	if err := s.MarkCompleted(ctx, second.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	active, err := s.ListActive(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 active reminders, got %d", len(active))
	}
	all, _ := s.ListByOwner(ctx, 7, true)
	if len(all) != 2 {
		t.Fatalf("completed reminders must be listed on request, got %d", len(all))
	}

	if err := s.Delete(ctx, first.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, first.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("get deleted: expected ErrNotFound, got %v", err)
	}
	if err := s.Delete(ctx, first.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("delete twice: expected ErrNotFound, got %v", err)
	}
	if err := s.MarkCompleted(ctx, first.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("complete deleted: expected ErrNotFound, got %v", err)
	}

	once := sample("dddd4444", 9, base.Add(3*time.Minute))
	once.Rule = domain.Rule{Kind: domain.RuleOneTime}
	if err := s.Put(ctx, once); err != nil {
		t.Fatalf("put one-time: %v", err)
	}
	if _, err := s.Patch(ctx, once.ID, domain.ReminderPatch{Time: &evening}); err != nil {
		t.Fatalf("patch one-time: %v", err)
	}
	ok, err := s.CompleteIfUnchanged(ctx, once.ID, domain.RuleOneTime, once.Time)
	if err != nil || ok {
		t.Fatalf("edited reminder must stay active: ok=%v err=%v", ok, err)
	}
	if got, _ := s.Get(ctx, once.ID); got.Completed {
		t.Fatal("edited reminder was completed")
	}
	if ok, err := s.CompleteIfUnchanged(ctx, once.ID, domain.RuleDaily, evening); err != nil || ok {
		t.Fatalf("kind mismatch must not complete: ok=%v err=%v", ok, err)
	}
	if ok, err := s.CompleteIfUnchanged(ctx, once.ID, domain.RuleOneTime, evening); err != nil || !ok {
		t.Fatalf("matching reminder must complete: ok=%v err=%v", ok, err)
	}
	if got, _ := s.Get(ctx, once.ID); !got.Completed {
		t.Fatal("reminder not completed")
	}
	if ok, err := s.CompleteIfUnchanged(ctx, once.ID, domain.RuleOneTime, evening); err != nil || ok {
		t.Fatalf("second completion must report false: ok=%v err=%v", ok, err)
	}
	if ok, err := s.CompleteIfUnchanged(ctx, "missing", domain.RuleOneTime, evening); err != nil || ok {
		t.Fatalf("missing reminder: ok=%v err=%v", ok, err)
	}

	if err := s.RegisterUser(ctx, 42, "@Alice"); err != nil {
		t.Fatalf("register: %v", err)
	}
	id, err := s.ResolveUsername(ctx, "alice")
	if err != nil || id != 42 {
		t.Fatalf("resolve: id=%d err=%v", id, err)
	}
	if _, err := s.ResolveUsername(ctx, "@bob"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("resolve unknown: expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, NewMemory())
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if err := m.Put(ctx, sample("aaaa1111", 1, time.Now())); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, _ := m.Get(ctx, "aaaa1111")
	got.Messages[0].Content = "mutated"
	again, _ := m.Get(ctx, "aaaa1111")
	if again.Messages[0].Content != "first" {
		t.Fatal("stored reminder must not alias returned slices")
	}
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "reminders.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer s.Close()
	runStoreContract(t, s)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reminders.db")
	ctx := context.Background()
	s, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := s.Put(ctx, sample("aaaa1111", 1, time.Now())); err != nil {
		t.Fatalf("put: %v", err)
	}
	_ = s.Close()

	s, err = OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen sqlite: %v", err)
	}
	defer s.Close()
	active, err := s.ListActive(ctx)
	if err != nil || len(active) != 1 {
		t.Fatalf("expected reminder after reopen, got %d (%v)", len(active), err)
	}
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("PG_TEST_DSN")
	if dsn == "" {
		t.Skip("PG_TEST_DSN не задан")
	}
	pool, err := db.Connect(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()
	p := NewPostgres(pool)
	ctx := context.Background()
	if err := p.EnsureSchema(ctx); err != nil {
		t.Fatalf("schema: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE reminders, bot_users`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	runStoreContract(t, p)
}
