package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Page size limits for List.
const (
	defaultLimit = 50
	maxLimit     = 500
)

// Capture is one written capture file.
type Capture struct {
	ID         string    `json:"id"`
	Device     string    `json:"device"`
	Chip       string    `json:"chip"`
	Path       string    `json:"path"`
	Format     string    `json:"format"`
	Size       int       `json:"size_bytes"`
	Hash       string    `json:"hash,omitempty"`
	Error      string    `json:"error,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

// Filter controls which captures List returns.
type Filter struct {
	Device string    // optional
	Chip   string    // optional
	Since  time.Time // optional: captures at or after this time
	Failed *bool     // optional: only failed (true) or successful (false) writes
	Limit  int       // default 50, max 500
	Offset int
}

// ListResult is one page of captures, newest first.
type ListResult struct {
	Captures []Capture `json:"captures"`
	Total    int       `json:"total"`
	Limit    int       `json:"limit"`
	Offset   int       `json:"offset"`
}

// Repository stores captures.
type Repository interface {
	Create(ctx context.Context, c *Capture) error
	Get(ctx context.Context, id string) (*Capture, error)
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores captures in the captures table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a capture repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a capture. ID and CapturedAt are generated when empty.
func (r *SQLiteRepository) Create(ctx context.Context, c *Capture) error {
	if c.Device == "" || c.Path == "" {
		return fmt.Errorf("%w: device and path are required", ErrInvalidCapture)
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CapturedAt.IsZero() {
		c.CapturedAt = time.Now()
	}
	c.CapturedAt = c.CapturedAt.UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO captures (id, device, chip, path, format, size_bytes, hash, error, captured_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Device, c.Chip, c.Path, c.Format, c.Size,
		nullableString(c.Hash), nullableString(c.Error),
		c.CapturedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting capture: %w", err)
	}
	return nil
}

// Get returns one capture by id.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Capture, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, device, chip, path, format, size_bytes, hash, error, captured_at
		 FROM captures WHERE id = ?`, id)

	c, err := scanCapture(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// List returns captures matching the filter, newest first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.Device != "" {
		conditions = append(conditions, "device = ?")
		args = append(args, filter.Device)
	}
	if filter.Chip != "" {
		conditions = append(conditions, "chip = ?")
		args = append(args, filter.Chip)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "captured_at >= ?")
		args = append(args, filter.Since.UTC().Format(time.RFC3339Nano))
	}
	if filter.Failed != nil {
		if *filter.Failed {
			conditions = append(conditions, "error IS NOT NULL")
		} else {
			conditions = append(conditions, "error IS NULL")
		}
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := "SELECT COUNT(*) FROM captures " + where //nolint:gosec // WHERE built from parameterised conditions
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting captures: %w", err)
	}

	query := `SELECT id, device, chip, path, format, size_bytes, hash, error, captured_at
		FROM captures ` + where + ` ORDER BY captured_at DESC, id LIMIT ? OFFSET ?` //nolint:gosec // as above
	rows, err := r.db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying captures: %w", err)
	}
	defer rows.Close()

	captures := []Capture{}
	for rows.Next() {
		c, err := scanCapture(rows)
		if err != nil {
			return nil, err
		}
		captures = append(captures, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating captures: %w", err)
	}

	return &ListResult{
		Captures: captures,
		Total:    total,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCapture(s scanner) (*Capture, error) {
	var c Capture
	var hash, errText sql.NullString
	var capturedAt string
	if err := s.Scan(&c.ID, &c.Device, &c.Chip, &c.Path, &c.Format, &c.Size, &hash, &errText, &capturedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning capture: %w", err)
	}
	c.Hash = hash.String
	c.Error = errText.String

	t, err := time.Parse(time.RFC3339Nano, capturedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing capture timestamp %q: %w", capturedAt, err)
	}
	c.CapturedAt = t
	return &c, nil
}

// nullableString maps "" to NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
