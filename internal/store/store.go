// Package store persists scraped events so that repeated scrapes of the
// same feed are idempotent.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"mailru-backend/internal/chrono"
	"mailru-backend/internal/mailru/objects"

	_ "embed"
)

//go:embed schema.sql
var Schema string

type Store struct {
	db   *sql.DB
	time chrono.TimeAPI
}

func NewStore(database *sql.DB, time chrono.TimeAPI) Store {
	return Store{db: database, time: time}
}

// Upsert stores events of the feed of author, replacing previously stored
// copies of the same events. It returns the number of events that were not
// stored before.
func (s Store) Upsert(ctx context.Context, author string, events []objects.Event) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	now := s.time.Now().Unix()
	inserted := 0
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return 0, fmt.Errorf("encode event %s: %w", e.ID, err)
		}

		var exists int
		err = tx.QueryRowContext(ctx,
			"select count(*) from event where author = ? and id = ?",
			author, e.ID,
		).Scan(&exists)
		if err != nil {
			return 0, err
		}
		if exists == 0 {
			inserted++
		}

		_, err = tx.ExecContext(ctx, `
			insert into event(author, id, time, type, subtype, payload, scraped_at)
			values (?, ?, ?, ?, ?, ?, ?)
			on conflict(author, id) do update set
				time = excluded.time,
				type = excluded.type,
				subtype = excluded.subtype,
				payload = excluded.payload,
				scraped_at = excluded.scraped_at`,
			author, e.ID, e.Time, e.Type, e.Subtype, string(payload), now,
		)
		if err != nil {
			return 0, err
		}
	}
	return inserted, tx.Commit()
}

// List returns the stored events of author from the newest, at most limit
// of them when limit is positive.
func (s Store) List(ctx context.Context, author string, limit int) ([]objects.Event, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		"select payload from event where author = ? order by time desc, id limit ?",
		author, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []objects.Event
	for rows.Next() {
		var payload string
		err = rows.Scan(&payload)
		if err != nil {
			return nil, err
		}
		var e objects.Event
		err = json.Unmarshal([]byte(payload), &e)
		if err != nil {
			return nil, fmt.Errorf("decode stored event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Oldest returns the id of the oldest stored event of author, the point
// a scrape continues from.
func (s Store) Oldest(ctx context.Context, author string) (string, bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		"select id from event where author = ? order by time asc, id desc limit 1",
		author,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}
