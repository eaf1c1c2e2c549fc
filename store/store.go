// Package store persists action outcomes and learned UI patterns.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"devicegateway/models"

	json "github.com/bytedance/sonic"
	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrNotFound is returned when no pattern matches
var ErrNotFound = errors.New("not found")

type Store struct {
	db       *sql.DB
	patterns *lru.Cache[string, models.Pattern]
}

// New wraps an open database. cacheSize bounds the pattern read cache.
func New(db *sql.DB, cacheSize int) (*Store, error) {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	cache, err := lru.New[string, models.Pattern](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create pattern cache: %w", err)
	}
	return &Store{db: db, patterns: cache}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RecordAction appends one action log row and returns its id
func (s *Store) RecordAction(ctx context.Context, entry *models.ActionLog) (int64, error) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO action_log (action_type, method_used, success, duration_ms, cost_usd, ui_signature, error_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ActionType, entry.MethodUsed, entry.Success, entry.DurationMs, entry.CostUSD,
		nullString(entry.UISignature), nullString(entry.ErrorType), entry.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert action log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	entry.ID = id
	return id, nil
}

// RecentActions returns up to limit rows, newest first
func (s *Store) RecentActions(ctx context.Context, limit int) ([]models.ActionLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action_type, method_used, success, duration_ms, cost_usd, ui_signature, error_type, created_at
		FROM action_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query action log: %w", err)
	}
	defer rows.Close()

	actions := []models.ActionLog{}
	for rows.Next() {
		var a models.ActionLog
		var sig, errType sql.NullString
		if err := rows.Scan(&a.ID, &a.ActionType, &a.MethodUsed, &a.Success, &a.DurationMs, &a.CostUSD, &sig, &errType, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan action log: %w", err)
		}
		a.UISignature = sig.String
		a.ErrorType = errType.String
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// UpsertPattern inserts or updates the pattern keyed by (ui_signature,
// action_type). Counters are replaced, not added.
func (s *Store) UpsertPattern(ctx context.Context, p *models.Pattern) error {
	if p.UISignature == "" || p.ActionType == "" {
		return fmt.Errorf("pattern needs ui_signature and action_type")
	}
	data := p.PatternData
	if len(data) == 0 {
		data = []byte("{}")
	}
	if !json.Valid(data) {
		return fmt.Errorf("pattern_data is not valid JSON")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO patterns (action_type, method, pattern_data, success_count, failure_count, last_success, ui_signature)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (ui_signature, action_type) DO UPDATE SET
			method = excluded.method,
			pattern_data = excluded.pattern_data,
			success_count = excluded.success_count,
			failure_count = excluded.failure_count,
			last_success = excluded.last_success`,
		p.ActionType, p.Method, string(data), p.SuccessCount, p.FailureCount, p.LastSuccess, p.UISignature,
	)
	if err != nil {
		return fmt.Errorf("upsert pattern: %w", err)
	}

	s.patterns.Remove(cacheKey(p.UISignature, p.ActionType))
	return nil
}

// FindPattern looks up a pattern, serving repeated reads from the cache
func (s *Store) FindPattern(ctx context.Context, signature, actionType string) (models.Pattern, error) {
	key := cacheKey(signature, actionType)
	if p, ok := s.patterns.Get(key); ok {
		return p, nil
	}

	var (
		p           models.Pattern
		data        string
		lastSuccess sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, action_type, method, pattern_data, success_count, failure_count, last_success, ui_signature
		FROM patterns WHERE ui_signature = ? AND action_type = ?`, signature, actionType,
	).Scan(&p.ID, &p.ActionType, &p.Method, &data, &p.SuccessCount, &p.FailureCount, &lastSuccess, &p.UISignature)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Pattern{}, ErrNotFound
	}
	if err != nil {
		return models.Pattern{}, fmt.Errorf("query pattern: %w", err)
	}

	p.PatternData = []byte(data)
	if lastSuccess.Valid {
		t := lastSuccess.Time
		p.LastSuccess = &t
	}

	s.patterns.Add(key, p)
	return p, nil
}

// FindPatterns returns every pattern recorded for a UI signature
func (s *Store) FindPatterns(ctx context.Context, signature string) ([]models.Pattern, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT action_type FROM patterns WHERE ui_signature = ? ORDER BY action_type`, signature)
	if err != nil {
		return nil, fmt.Errorf("query patterns: %w", err)
	}
	var types []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			rows.Close()
			return nil, err
		}
		types = append(types, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	patterns := make([]models.Pattern, 0, len(types))
	for _, t := range types {
		p, err := s.FindPattern(ctx, signature, t)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}

func cacheKey(signature, actionType string) string {
	return signature + "\x00" + actionType
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
