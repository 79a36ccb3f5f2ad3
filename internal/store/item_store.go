package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/mail-scheduler/internal/apperr"
	"github.com/nhle/mail-scheduler/internal/model"
)

const itemColumns = `id, subject, recipients, body, attachment,
	mode, frequency, interval_minutes, schedule_time,
	last_sent, created_at, updated_at`

// ListItems returns every item ordered by creation time.
func (s *SQLiteStore) ListItems(ctx context.Context) ([]model.ScheduleItem, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT "+itemColumns+" FROM schedule_items ORDER BY created_at, id")
	if err != nil {
		return nil, apperr.Store("querying items", err)
	}
	defer rows.Close()

	var items []model.ScheduleItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, apperr.Store("listing items", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Store("listing items", err)
	}

	return items, nil
}

// GetItem retrieves a single item by ID.
func (s *SQLiteStore) GetItem(ctx context.Context, id string) (*model.ScheduleItem, error) {
	row := s.db.QueryRowxContext(ctx,
		"SELECT "+itemColumns+" FROM schedule_items WHERE id = ?", id)

	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, apperr.Store(fmt.Sprintf("getting item %s", id), err)
	}

	return &item, nil
}

// InsertItem stores a new item with a fresh UUID and no last_sent.
func (s *SQLiteStore) InsertItem(ctx context.Context, item model.ScheduleItem) (*model.ScheduleItem, error) {
	item.ID = uuid.New().String()
	item.LastSent = nil
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schedule_items (
			id, subject, recipients, body, attachment,
			mode, frequency, interval_minutes, schedule_time,
			last_sent, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)`,
		item.ID, item.Subject, model.JoinRecipients(item.Recipients), item.Body, item.Attachment,
		string(item.Mode), string(item.Frequency), item.IntervalMinutes, item.ScheduleTime,
		item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return nil, apperr.Store("inserting item", err)
	}

	return &item, nil
}

// UpdateItem rewrites the editable fields of an existing item. last_sent
// is left alone so an edit never races with a dispatch stamp.
func (s *SQLiteStore) UpdateItem(ctx context.Context, item model.ScheduleItem) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE schedule_items SET
			subject = ?, recipients = ?, body = ?, attachment = ?,
			mode = ?, frequency = ?, interval_minutes = ?, schedule_time = ?,
			updated_at = ?
		WHERE id = ?`,
		item.Subject, model.JoinRecipients(item.Recipients), item.Body, item.Attachment,
		string(item.Mode), string(item.Frequency), item.IntervalMinutes, item.ScheduleTime,
		time.Now().UTC(),
		item.ID,
	)
	if err != nil {
		return apperr.Store(fmt.Sprintf("updating item %s", item.ID), err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("item %s: %w", item.ID, ErrNotFound)
	}
	return nil
}

// DeleteItem removes an item by ID.
func (s *SQLiteStore) DeleteItem(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM schedule_items WHERE id = ?", id)
	if err != nil {
		return apperr.Store(fmt.Sprintf("deleting item %s", id), err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	return nil
}

// UpdateLastSent stamps a successful send. The read and the write share a
// transaction so last_sent never moves backwards.
func (s *SQLiteStore) UpdateLastSent(ctx context.Context, id string, ts time.Time) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Store("beginning transaction", err)
	}
	defer tx.Rollback()

	var current *time.Time
	err = tx.QueryRowxContext(ctx, "SELECT last_sent FROM schedule_items WHERE id = ?", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return apperr.Store(fmt.Sprintf("reading last_sent of %s", id), err)
	}
	if current != nil && ts.Before(*current) {
		return nil
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE schedule_items SET last_sent = ? WHERE id = ?",
		ts.UTC(), id,
	); err != nil {
		return apperr.Store(fmt.Sprintf("stamping item %s", id), err)
	}

	if err := tx.Commit(); err != nil {
		return apperr.Store(fmt.Sprintf("stamping item %s", id), err)
	}
	return nil
}

// scanItem scans a schedule_items row selected with itemColumns.
func scanItem(row interface{ Scan(dest ...interface{}) error }) (model.ScheduleItem, error) {
	var (
		item       model.ScheduleItem
		recipients string
		mode       string
		frequency  string
		lastSent   *time.Time
	)

	err := row.Scan(
		&item.ID, &item.Subject, &recipients, &item.Body, &item.Attachment,
		&mode, &frequency, &item.IntervalMinutes, &item.ScheduleTime,
		&lastSent, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return model.ScheduleItem{}, err
	}

	item.Recipients = model.SplitRecipients(recipients)
	item.Mode = model.Mode(mode)
	item.Frequency = model.Frequency(frequency)
	item.LastSent = lastSent

	return item, nil
}
