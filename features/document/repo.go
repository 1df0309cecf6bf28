package document

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"docqa/internal/apperr"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const selectColumns = `id, filename, file_path, upload_date, processed, status, error, page_count, chunk_count`

func (r *PostgresRepo) Save(ctx context.Context, doc *Document) error {
	query := `INSERT INTO documents (filename, file_path, status) VALUES ($1, $2, $3) RETURNING id, upload_date`
	return r.db.QueryRowContext(ctx, query, doc.Filename, doc.FilePath, doc.Status).Scan(&doc.ID, &doc.UploadDate)
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Document, error) {
	query := `SELECT ` + selectColumns + ` FROM documents WHERE id = $1`
	d := &Document{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&d.ID, &d.Filename, &d.FilePath, &d.UploadDate, &d.Processed, &d.Status, &d.Error, &d.PageCount, &d.ChunkCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *PostgresRepo) List(ctx context.Context) ([]Document, error) {
	query := `SELECT ` + selectColumns + ` FROM documents ORDER BY upload_date DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Filename, &d.FilePath, &d.UploadDate, &d.Processed, &d.Status, &d.Error, &d.PageCount, &d.ChunkCount); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (r *PostgresRepo) ExistsByFilename(ctx context.Context, filename string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM documents WHERE filename = $1)`
	err := r.db.QueryRowContext(ctx, query, filename).Scan(&exists)
	return exists, err
}

func (r *PostgresRepo) UpdateStatus(ctx context.Context, id, status string) error {
	query := `UPDATE documents SET status = $1, updated_at = NOW() WHERE id = $2`
	return r.exec(ctx, id, query, status, id)
}

func (r *PostgresRepo) MarkProcessed(ctx context.Context, id string, pages, chunks int) error {
	query := `UPDATE documents SET processed = TRUE, status = 'ready', error = '', page_count = $1, chunk_count = $2, updated_at = NOW() WHERE id = $3`
	return r.exec(ctx, id, query, pages, chunks, id)
}

func (r *PostgresRepo) MarkFailed(ctx context.Context, id, reason string) error {
	query := `UPDATE documents SET processed = FALSE, status = 'failed', error = $1, updated_at = NOW() WHERE id = $2`
	return r.exec(ctx, id, query, reason, id)
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM documents WHERE id = $1`
	return r.exec(ctx, id, query, id)
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

func (r *PostgresRepo) CountProcessed(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE processed = TRUE`).Scan(&count)
	return count, err
}

func (r *PostgresRepo) exec(ctx context.Context, id, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("document %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}
