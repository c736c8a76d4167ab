package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const modelColumns = "id, filename, format, size_bytes, checksum_sha256, storage_path, uploaded_at"

// InsertModel persists a freshly uploaded model record.
func (s *Store) InsertModel(ctx context.Context, model *Model) error {
	if model == nil {
		return errors.New("model is nil")
	}
	if model.UploadedAt.IsZero() {
		model.UploadedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO models (`+modelColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		model.ID,
		model.Filename,
		model.Format,
		model.SizeBytes,
		model.ChecksumSHA256,
		model.StoragePath,
		model.UploadedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert model: %w", err)
	}
	return nil
}

// GetModel fetches a model by identifier. Returns (nil, nil) when absent.
func (s *Store) GetModel(ctx context.Context, id string) (*Model, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+modelColumns+` FROM models WHERE id = ?`, id)
	model, err := scanModel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get model: %w", err)
	}
	return model, nil
}

// ListModels returns a page of models ordered newest first, plus the total count.
func (s *Store) ListModels(ctx context.Context, limit, offset int) ([]*Model, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM models`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count models: %w", err)
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+modelColumns+` FROM models ORDER BY uploaded_at DESC, id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()

	var models []*Model
	for rows.Next() {
		model, err := scanModel(rows)
		if err != nil {
			return nil, 0, err
		}
		models = append(models, model)
	}
	return models, total, rows.Err()
}

func scanModel(scanner interface{ Scan(dest ...any) error }) (*Model, error) {
	var (
		model       Model
		uploadedRaw string
	)
	if err := scanner.Scan(
		&model.ID,
		&model.Filename,
		&model.Format,
		&model.SizeBytes,
		&model.ChecksumSHA256,
		&model.StoragePath,
		&uploadedRaw,
	); err != nil {
		return nil, err
	}
	if uploaded, err := parseTimeString(uploadedRaw); err == nil {
		model.UploadedAt = uploaded
	}
	return &model, nil
}
