package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tg-reminder-bot/internal/domain"
	"tg-reminder-bot/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.ReminderRepo = (*Postgres)(nil)
	_ domain.Directory    = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS reminders (
	id          TEXT PRIMARY KEY,
	owner_id    BIGINT NOT NULL,
	kind        TEXT NOT NULL,
	weekdays    INT[] NOT NULL DEFAULT '{}',
	hour        INT NOT NULL,
	minute      INT NOT NULL,
	messages    JSONB NOT NULL,
	attachment  JSONB,
	chat_id     BIGINT NOT NULL,
	end_date    DATE,
	completed   BOOLEAN NOT NULL DEFAULT false,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS reminders_owner_idx ON reminders (owner_id, created_at);
CREATE INDEX IF NOT EXISTS reminders_active_idx ON reminders (completed) WHERE NOT completed;

CREATE TABLE IF NOT EXISTS bot_users (
	user_id     BIGINT PRIMARY KEY,
	username    TEXT NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS bot_users_username_idx ON bot_users (username);
`

const reminderColumns = `id, owner_id, kind, weekdays, hour, minute, messages, attachment, chat_id, end_date, completed, created_at`

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), 5*time.Second)
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// EnsureSchema создаёт таблицы, если их ещё нет.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	_, err := p.pool.Exec(ctx, postgresSchema)
	metrics.ObserveNetworkRequest("postgres", "ensure_schema", "reminders", start, err)
	return err
}

// Put реализует domain.ReminderRepo.
func (p *Postgres) Put(ctx context.Context, r domain.Reminder) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	messages, attachment, err := encodeParts(r)
	if err != nil {
		return err
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	start := time.Now()
	res, err := p.pool.Exec(ctx, `
INSERT INTO reminders (`+reminderColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (id) DO NOTHING
`, r.ID, r.OwnerID, string(r.Rule.Kind), weekdaysArray(r.Rule.Weekdays), r.Time.Hour, r.Time.Minute,
		messages, attachment, r.ChatID, dateValue(r.EndDate), r.Completed, r.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "reminders_insert", "reminders", start, err)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrDuplicateID
		}
		return err
	}
	if res.RowsAffected() == 0 {
		return domain.ErrDuplicateID
	}
	return nil
}

// Get реализует domain.ReminderRepo.
func (p *Postgres) Get(ctx context.Context, id string) (domain.Reminder, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE id=$1`, id)
	r, err := scanPostgresReminder(row)
	metrics.ObserveNetworkRequest("postgres", "reminders_get", "reminders", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Reminder{}, domain.ErrNotFound
	}
	return r, err
}

// Delete реализует domain.ReminderRepo.
func (p *Postgres) Delete(ctx context.Context, id string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `DELETE FROM reminders WHERE id=$1`, id)
	metrics.ObserveNetworkRequest("postgres", "reminders_delete", "reminders", start, err)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByOwner реализует domain.ReminderRepo.
func (p *Postgres) ListByOwner(ctx context.Context, ownerID int64, includeCompleted bool) ([]domain.Reminder, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+reminderColumns+` FROM reminders
WHERE owner_id=$1 AND ($2 OR NOT completed)
ORDER BY created_at, id
`, ownerID, includeCompleted)
	metrics.ObserveNetworkRequest("postgres", "reminders_list_owner", "reminders", start, err)
	if err != nil {
		return nil, err
	}
	return collectPostgresReminders(rows)
}

// ListActive реализует domain.ReminderRepo.
func (p *Postgres) ListActive(ctx context.Context) ([]domain.Reminder, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE NOT completed ORDER BY created_at, id`)
	metrics.ObserveNetworkRequest("postgres", "reminders_list_active", "reminders", start, err)
	if err != nil {
		return nil, err
	}
	return collectPostgresReminders(rows)
}

// Patch обновляет только переданные поля одним UPDATE.
func (p *Postgres) Patch(ctx context.Context, id string, patch domain.ReminderPatch) (domain.Reminder, error) {
	if patch.Empty() {
		return p.Get(ctx, id)
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var hour, minute, kind, weekdays, messages any
	if patch.Time != nil {
		hour, minute = patch.Time.Hour, patch.Time.Minute
	}
	if patch.Rule != nil {
		kind, weekdays = string(patch.Rule.Kind), weekdaysArray(patch.Rule.Weekdays)
	}
	if patch.Messages != nil {
		data, err := json.Marshal(patch.Messages)
		if err != nil {
			return domain.Reminder{}, fmt.Errorf("кодирование сообщений: %w", err)
		}
		messages = string(data)
	}

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
UPDATE reminders SET
	hour = COALESCE($2::int, hour),
	minute = COALESCE($3::int, minute),
	kind = COALESCE($4::text, kind),
	weekdays = COALESCE($5::int[], weekdays),
	messages = COALESCE($6::jsonb, messages),
	end_date = CASE WHEN $7 THEN NULL ELSE COALESCE($8::date, end_date) END
WHERE id=$1
RETURNING `+reminderColumns, id, hour, minute, kind, weekdays, messages, patch.ClearEndDate, dateValue(patch.EndDate))
	r, err := scanPostgresReminder(row)
	metrics.ObserveNetworkRequest("postgres", "reminders_patch", "reminders", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Reminder{}, domain.ErrNotFound
	}
	return r, err
}

// MarkCompleted реализует domain.ReminderRepo.
func (p *Postgres) MarkCompleted(ctx context.Context, id string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `UPDATE reminders SET completed=true WHERE id=$1`, id)
	metrics.ObserveNetworkRequest("postgres", "reminders_complete", "reminders", start, err)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CompleteIfUnchanged реализует domain.ReminderRepo.
func (p *Postgres) CompleteIfUnchanged(ctx context.Context, id string, kind domain.RuleKind, at domain.TimeOfDay) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `UPDATE reminders SET completed=true
WHERE id=$1 AND kind=$2 AND hour=$3 AND minute=$4 AND NOT completed`, id, string(kind), at.Hour, at.Minute)
	metrics.ObserveNetworkRequest("postgres", "reminders_complete_fired", "reminders", start, err)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() == 1, nil
}

// RegisterUser реализует domain.Directory.
func (p *Postgres) RegisterUser(ctx context.Context, userID int64, username string) error {
	username = domain.NormalizeUsername(username)
	if username == "" {
		return nil
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO bot_users (user_id, username) VALUES ($1, $2)
ON CONFLICT (user_id) DO UPDATE SET username = EXCLUDED.username, updated_at = now()
`, userID, username)
	metrics.ObserveNetworkRequest("postgres", "bot_users_upsert", "bot_users", start, err)
	return err
}

// ResolveUsername реализует domain.Directory.
func (p *Postgres) ResolveUsername(ctx context.Context, username string) (int64, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var userID int64
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT user_id FROM bot_users WHERE username=$1 ORDER BY updated_at DESC LIMIT 1
`, domain.NormalizeUsername(username)).Scan(&userID)
	metrics.ObserveNetworkRequest("postgres", "bot_users_resolve", "bot_users", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	return userID, err
}

func scanPostgresReminder(row pgx.Row) (domain.Reminder, error) {
	var (
		r          domain.Reminder
		kind       string
		weekdays   []int32
		messages   []byte
		attachment []byte
		endDate    *time.Time
	)
	if err := row.Scan(&r.ID, &r.OwnerID, &kind, &weekdays, &r.Time.Hour, &r.Time.Minute,
		&messages, &attachment, &r.ChatID, &endDate, &r.Completed, &r.CreatedAt); err != nil {
		return domain.Reminder{}, err
	}
	days := make([]int, 0, len(weekdays))
	for _, d := range weekdays {
		days = append(days, int(d))
	}
	r.Rule = domain.Rule{Kind: domain.RuleKind(kind), Weekdays: domain.WeekdaySetFromInts(days)}
	if endDate != nil {
		d := domain.DateOf(*endDate)
		r.EndDate = &d
	}
	if err := decodeParts(&r, messages, attachment); err != nil {
		return domain.Reminder{}, err
	}
	return r, nil
}

func collectPostgresReminders(rows pgx.Rows) ([]domain.Reminder, error) {
	defer rows.Close()
	var out []domain.Reminder
	for rows.Next() {
		r, err := scanPostgresReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func weekdaysArray(set domain.WeekdaySet) []int32 {
	days := set.Ints()
	out := make([]int32, 0, len(days))
	for _, d := range days {
		out = append(out, int32(d))
	}
	return out
}

func dateValue(d *domain.Date) *time.Time {
	if d == nil {
		return nil
	}
	t := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
	return &t
}

// encodeParts сериализует сообщения и вложение в JSON для хранения.
func encodeParts(r domain.Reminder) (string, *string, error) {
	messages := r.Messages
	if messages == nil {
		messages = []domain.MessagePart{}
	}
	data, err := json.Marshal(messages)
	if err != nil {
		return "", nil, fmt.Errorf("кодирование сообщений: %w", err)
	}
	if r.Attachment == nil {
		return string(data), nil, nil
	}
	att, err := json.Marshal(r.Attachment)
	if err != nil {
		return "", nil, fmt.Errorf("кодирование вложения: %w", err)
	}
	attachment := string(att)
	return string(data), &attachment, nil
}

func decodeParts(r *domain.Reminder, messages, attachment []byte) error {
	if len(messages) > 0 {
		if err := json.Unmarshal(messages, &r.Messages); err != nil {
			return fmt.Errorf("разбор сообщений %s: %w", r.ID, err)
		}
	}
	if len(attachment) > 0 && string(attachment) != "null" {
		var att domain.Attachment
		if err := json.Unmarshal(attachment, &att); err != nil {
			return fmt.Errorf("разбор вложения %s: %w", r.ID, err)
		}
		r.Attachment = &att
	}
	return nil
}
