package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"clipflow/internal/automation"
	"clipflow/internal/provider"
)

//go:embed schema.sql
var schemaSQL string

// Store is the SQLite-backed automation store. SQLite runs in WAL mode
// with a single-writer connection pool, so the conditional UPDATE in
// CompareAndSetStatus is atomic without explicit transactions.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ automation.Store = (*Store)(nil)

// Open creates or opens the automation database at path. Idempotent.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// SQLite supports one writer at a time; a larger pool only produces
	// SQLITE_BUSY errors under contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}

	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Create(ctx context.Context, request *automation.AutomationRequest) error {
	tags, err := json.Marshal(request.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	query, args, err := sq.Insert("automation_requests").
		Columns("id", "prompt", "target_audience", "min_seconds", "max_seconds",
			"script", "title", "description", "tags", "thumbnail_url",
			"render_job_id", "rendered_video_url", "published_url",
			"status", "last_error", "last_error_kind", "created_at", "updated_at").
		Values(request.ID, request.Prompt, request.TargetAudience, request.MinSeconds, request.MaxSeconds,
			request.Script, request.Title, request.Description, string(tags), request.ThumbnailURL,
			request.RenderJobID, request.RenderedVideoURL, request.PublishedURL,
			string(request.Status), request.LastError, string(request.LastErrorKind),
			request.CreatedAt, request.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert request %s: %w", request.ID, err)
	}

	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*automation.AutomationRequest, error) {
	query, args, err := selectRequests().Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	request, err := scanRequest(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("request %s: %w", id, automation.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get request %s: %w", id, err)
	}

	return request, nil
}

func (s *Store) List(ctx context.Context, filter automation.Filter) ([]*automation.AutomationRequest, error) {
	builder := selectRequests().OrderBy("created_at DESC", "id DESC")
	if filter.Status != "" {
		builder = builder.Where(sq.Eq{"status": string(filter.Status)})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var requests []*automation.AutomationRequest
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		requests = append(requests, request)
	}

	return requests, rows.Err()
}

// CompareAndSetStatus applies patch only while the stored status still
// equals expected. The WHERE clause on status is the optimistic check:
// zero affected rows means either a missing record or a lost race, which
// is resolved by re-reading the row.
func (s *Store) CompareAndSetStatus(ctx context.Context, id string, expected automation.Status, patch automation.Patch) (*automation.AutomationRequest, error) {
	if !automation.CanTransition(expected, patch.Status) {
		return nil, fmt.Errorf("illegal transition %q -> %q for request %s", expected, patch.Status, id)
	}

	builder := sq.Update("automation_requests").
		Set("status", string(patch.Status)).
		Set("updated_at", s.now().UTC())

	builder = applyPatch(builder, patch)

	query, args, err := builder.
		Where(sq.Eq{"id": id, "status": string(expected)}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update request %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		current, err := s.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, &automation.ConflictError{ID: id, Expected: expected, Actual: current.Status}
	}

	return s.GetByID(ctx, id)
}

func applyPatch(builder sq.UpdateBuilder, patch automation.Patch) sq.UpdateBuilder {
	if patch.Script != nil {
		builder = builder.Set("script", *patch.Script)
	}
	if patch.Title != nil {
		builder = builder.Set("title", *patch.Title)
	}
	if patch.Description != nil {
		builder = builder.Set("description", *patch.Description)
	}
	if patch.Tags != nil {
		tags, _ := json.Marshal(patch.Tags)
		builder = builder.Set("tags", string(tags))
	}
	if patch.ThumbnailURL != nil {
		builder = builder.Set("thumbnail_url", *patch.ThumbnailURL)
	}
	if patch.RenderJobID != nil {
		builder = builder.Set("render_job_id", *patch.RenderJobID)
	}
	if patch.RenderedVideoURL != nil {
		builder = builder.Set("rendered_video_url", *patch.RenderedVideoURL)
	}
	if patch.PublishedURL != nil {
		builder = builder.Set("published_url", *patch.PublishedURL)
	}
	if patch.LastError != nil {
		builder = builder.Set("last_error", *patch.LastError)
	}
	if patch.LastErrorKind != nil {
		builder = builder.Set("last_error_kind", *patch.LastErrorKind)
	}
	if patch.ApprovedAt != nil {
		builder = builder.Set("approved_at", patch.ApprovedAt.UTC())
	}
	if patch.PublishedAt != nil {
		builder = builder.Set("published_at", patch.PublishedAt.UTC())
	}
	return builder
}

func selectRequests() sq.SelectBuilder {
	return sq.Select("id", "prompt", "target_audience", "min_seconds", "max_seconds",
		"script", "title", "description", "tags", "thumbnail_url",
		"render_job_id", "rendered_video_url", "published_url",
		"status", "last_error", "last_error_kind",
		"created_at", "updated_at", "approved_at", "published_at").
		From("automation_requests")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*automation.AutomationRequest, error) {
	var (
		request     automation.AutomationRequest
		tags        string
		status      string
		errorKind   string
		approvedAt  sql.NullTime
		publishedAt sql.NullTime
	)

	err := row.Scan(&request.ID, &request.Prompt, &request.TargetAudience,
		&request.MinSeconds, &request.MaxSeconds,
		&request.Script, &request.Title, &request.Description, &tags, &request.ThumbnailURL,
		&request.RenderJobID, &request.RenderedVideoURL, &request.PublishedURL,
		&status, &request.LastError, &errorKind,
		&request.CreatedAt, &request.UpdatedAt, &approvedAt, &publishedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tags), &request.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}

	request.Status = automation.Status(status)
	request.LastErrorKind = provider.Kind(errorKind)
	if approvedAt.Valid {
		t := approvedAt.Time
		request.ApprovedAt = &t
	}
	if publishedAt.Valid {
		t := publishedAt.Time
		request.PublishedAt = &t
	}

	return &request, nil
}
