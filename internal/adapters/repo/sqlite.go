package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"tg-reminder-bot/internal/domain"
	"tg-reminder-bot/internal/infra/metrics"
)

// SQLite хранит напоминания в одном файле.
type SQLite struct {
	db *sql.DB
}

var (
	_ domain.ReminderRepo = (*SQLite)(nil)
	_ domain.Directory    = (*SQLite)(nil)
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS reminders (
	id          TEXT NOT NULL PRIMARY KEY,
	owner_id    INTEGER NOT NULL,
	kind        TEXT NOT NULL,
	weekdays    INTEGER NOT NULL DEFAULT 0,
	hour        INTEGER NOT NULL,
	minute      INTEGER NOT NULL,
	messages    TEXT NOT NULL,
	attachment  TEXT,
	chat_id     INTEGER NOT NULL,
	end_date    TEXT,
	completed   INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL
) WITHOUT ROWID;

CREATE INDEX IF NOT EXISTS reminders_owner_idx ON reminders (owner_id, created_at);
CREATE INDEX IF NOT EXISTS reminders_completed_idx ON reminders (completed);

CREATE TABLE IF NOT EXISTS bot_users (
	user_id     INTEGER NOT NULL PRIMARY KEY,
	username    TEXT NOT NULL,
	updated_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS bot_users_username_idx ON bot_users (username);
`

// OpenSQLite открывает файл базы и создаёт схему.
func OpenSQLite(ctx context.Context, file string) (*SQLite, error) {
	db, err := sql.Open("sqlite", sqliteConnString(file))
	if err != nil {
		return nil, err
	}
	s := &SQLite{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("создание схемы sqlite: %w", err)
	}
	return s, nil
}

func sqliteConnString(file string) string {
	busyTimeoutMs := 2000
	qs := url.Values{
		"_txlock": []string{"immediate"},
		"_pragma": []string{
			"journal_mode(WAL)",
			fmt.Sprintf("busy_timeout(%d)", busyTimeoutMs),
		},
	}
	return "file:" + file + "?" + qs.Encode()
}

// Close закрывает соединение.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) ensureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.db.ExecContext(ctx, sqliteSchema)
	return err
}

// Put реализует domain.ReminderRepo.
func (s *SQLite) Put(ctx context.Context, r domain.Reminder) error {
	messages, attachment, err := encodeParts(r)
	if err != nil {
		return err
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	start := time.Now()
	res, err := s.db.ExecContext(ctx, `
INSERT INTO reminders (`+reminderColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING
`, r.ID, r.OwnerID, string(r.Rule.Kind), int(r.Rule.Weekdays), r.Time.Hour, r.Time.Minute,
		messages, attachment, r.ChatID, dateText(r.EndDate), r.Completed, r.CreatedAt.UnixMilli())
	metrics.ObserveNetworkRequest("sqlite", "reminders_insert", "reminders", start, err)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return domain.ErrDuplicateID
	}
	return nil
}

// Get реализует domain.ReminderRepo.
func (s *SQLite) Get(ctx context.Context, id string) (domain.Reminder, error) {
	start := time.Now()
	row := s.db.QueryRowContext(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE id=?`, id)
	r, err := scanSQLiteReminder(row)
	metrics.ObserveNetworkRequest("sqlite", "reminders_get", "reminders", start, err)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Reminder{}, domain.ErrNotFound
	}
	return r, err
}

// Delete реализует domain.ReminderRepo.
func (s *SQLite) Delete(ctx context.Context, id string) error {
	start := time.Now()
	res, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE id=?`, id)
	metrics.ObserveNetworkRequest("sqlite", "reminders_delete", "reminders", start, err)
	return affectedOne(res, err)
}

// ListByOwner реализует domain.ReminderRepo.
func (s *SQLite) ListByOwner(ctx context.Context, ownerID int64, includeCompleted bool) ([]domain.Reminder, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, `
SELECT `+reminderColumns+` FROM reminders
WHERE owner_id=? AND (? OR completed=0)
ORDER BY created_at, id
`, ownerID, includeCompleted)
	metrics.ObserveNetworkRequest("sqlite", "reminders_list_owner", "reminders", start, err)
	if err != nil {
		return nil, err
	}
	return collectSQLiteReminders(rows)
}

// ListActive реализует domain.ReminderRepo.
func (s *SQLite) ListActive(ctx context.Context) ([]domain.Reminder, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE completed=0 ORDER BY created_at, id`)
	metrics.ObserveNetworkRequest("sqlite", "reminders_list_active", "reminders", start, err)
	if err != nil {
		return nil, err
	}
	return collectSQLiteReminders(rows)
}

// Patch обновляет только переданные поля одним UPDATE.
func (s *SQLite) Patch(ctx context.Context, id string, patch domain.ReminderPatch) (domain.Reminder, error) {
	if patch.Empty() {
		return s.Get(ctx, id)
	}
	var hour, minute, kind, weekdays, messages any
	if patch.Time != nil {
		hour, minute = patch.Time.Hour, patch.Time.Minute
	}
	if patch.Rule != nil {
		kind, weekdays = string(patch.Rule.Kind), int(patch.Rule.Weekdays)
	}
	if patch.Messages != nil {
		encoded, _, err := encodeParts(domain.Reminder{Messages: patch.Messages})
		if err != nil {
			return domain.Reminder{}, err
		}
		messages = encoded
	}

	start := time.Now()
	row := s.db.QueryRowContext(ctx, `
UPDATE reminders SET
	hour = COALESCE(?, hour),
	minute = COALESCE(?, minute),
	kind = COALESCE(?, kind),
	weekdays = COALESCE(?, weekdays),
	messages = COALESCE(?, messages),
	end_date = CASE WHEN ? THEN NULL ELSE COALESCE(?, end_date) END
WHERE id=?
RETURNING `+reminderColumns, hour, minute, kind, weekdays, messages, patch.ClearEndDate, dateText(patch.EndDate), id)
	r, err := scanSQLiteReminder(row)
	metrics.ObserveNetworkRequest("sqlite", "reminders_patch", "reminders", start, err)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Reminder{}, domain.ErrNotFound
	}
	return r, err
}

// MarkCompleted реализует domain.ReminderRepo.
func (s *SQLite) MarkCompleted(ctx context.Context, id string) error {
	start := time.Now()
	res, err := s.db.ExecContext(ctx, `UPDATE reminders SET completed=1 WHERE id=?`, id)
	metrics.ObserveNetworkRequest("sqlite", "reminders_complete", "reminders", start, err)
	return affectedOne(res, err)
}

// CompleteIfUnchanged реализует domain.ReminderRepo.
func (s *SQLite) CompleteIfUnchanged(ctx context.Context, id string, kind domain.RuleKind, at domain.TimeOfDay) (bool, error) {
	start := time.Now()
	res, err := s.db.ExecContext(ctx, `UPDATE reminders SET completed=1
WHERE id=? AND kind=? AND hour=? AND minute=? AND completed=0`, id, string(kind), at.Hour, at.Minute)
	metrics.ObserveNetworkRequest("sqlite", "reminders_complete_fired", "reminders", start, err)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// RegisterUser реализует domain.Directory.
func (s *SQLite) RegisterUser(ctx context.Context, userID int64, username string) error {
	username = domain.NormalizeUsername(username)
	if username == "" {
		return nil
	}
	start := time.Now()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO bot_users (user_id, username, updated_at) VALUES (?, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET username = excluded.username, updated_at = excluded.updated_at
`, userID, username, time.Now().UnixNano())
	metrics.ObserveNetworkRequest("sqlite", "bot_users_upsert", "bot_users", start, err)
	return err
}

// ResolveUsername реализует domain.Directory.
func (s *SQLite) ResolveUsername(ctx context.Context, username string) (int64, error) {
	var userID int64
	start := time.Now()
	err := s.db.QueryRowContext(ctx, `
SELECT user_id FROM bot_users WHERE username=? ORDER BY updated_at DESC LIMIT 1
`, domain.NormalizeUsername(username)).Scan(&userID)
	metrics.ObserveNetworkRequest("sqlite", "bot_users_resolve", "bot_users", start, err)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	return userID, err
}

func scanSQLiteReminder(row interface{ Scan(...any) error }) (domain.Reminder, error) {
	var (
		r          domain.Reminder
		kind       string
		weekdays   int64
		messages   string
		attachment sql.NullString
		endDate    sql.NullString
		createdAt  int64
	)
	if err := row.Scan(&r.ID, &r.OwnerID, &kind, &weekdays, &r.Time.Hour, &r.Time.Minute,
		&messages, &attachment, &r.ChatID, &endDate, &r.Completed, &createdAt); err != nil {
		return domain.Reminder{}, err
	}
	r.Rule = domain.Rule{Kind: domain.RuleKind(kind), Weekdays: domain.WeekdaySet(weekdays)}
	r.CreatedAt = time.UnixMilli(createdAt).UTC()
	if endDate.Valid && strings.TrimSpace(endDate.String) != "" {
		d, err := domain.ParseDate(endDate.String)
		if err != nil {
			return domain.Reminder{}, fmt.Errorf("разбор даты окончания %s: %w", r.ID, err)
		}
		r.EndDate = &d
	}
	var att []byte
	if attachment.Valid {
		att = []byte(attachment.String)
	}
	if err := decodeParts(&r, []byte(messages), att); err != nil {
		return domain.Reminder{}, err
	}
	return r, nil
}

func collectSQLiteReminders(rows *sql.Rows) ([]domain.Reminder, error) {
	defer rows.Close()
	var out []domain.Reminder
	for rows.Next() {
		r, err := scanSQLiteReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func dateText(d *domain.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}
