package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 50

// Publish is one command sent to the lamp.
type Publish struct {
	ID          string    `json:"id"`
	FingerCount int       `json:"finger_count"`
	Level       int       `json:"level"`
	Topic       string    `json:"topic"`
	Error       string    `json:"error,omitempty"` // transport failure, empty on success
	CreatedAt   time.Time `json:"created_at"`
}

// PublishRepository records and lists publishes.
type PublishRepository struct {
	db *sql.DB
}

// Publishes returns the publish repository for this store.
func (s *Store) Publishes() *PublishRepository {
	return &PublishRepository{db: s.db}
}

// Record inserts p, assigning an ID and timestamp when they are unset.
func (r *PublishRepository) Record(p *Publish) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.Exec(
		`INSERT INTO publishes (id, finger_count, level, topic, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.FingerCount, p.Level, p.Topic, p.Error, p.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record publish: %w", err)
	}
	return nil
}

// List returns up to limit publishes, newest first.
func (r *PublishRepository) List(limit int) ([]Publish, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := r.db.Query(
		`SELECT id, finger_count, level, topic, error, created_at
		 FROM publishes ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	publishes := []Publish{}
	for rows.Next() {
		var p Publish
		if err := rows.Scan(&p.ID, &p.FingerCount, &p.Level, &p.Topic, &p.Error, &p.CreatedAt); err != nil {
			return nil, err
		}
		publishes = append(publishes, p)
	}

	return publishes, rows.Err()
}

// Latest returns the most recent publish.
func (r *PublishRepository) Latest() (*Publish, error) {
	list, err := r.List(1)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return &list[0], nil
}

// Count returns the number of recorded publishes.
func (r *PublishRepository) Count() (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM publishes`).Scan(&n)
	return n, err
}

// Prune deletes publishes older than before and returns how many were removed.
func (r *PublishRepository) Prune(before time.Time) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM publishes WHERE created_at < ?`, before.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
