package document_test

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/features/document"
	"docqa/internal/apperr"
)

var docColumns = []string{"id", "filename", "file_path", "upload_date", "processed", "status", "error", "page_count", "chunk_count"}

func TestPostgresRepo_Save(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)
	now := time.Now()
	doc := &document.Document{Filename: "report.pdf", FilePath: "/data/x_report.pdf", Status: document.StatusPending}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO documents (filename, file_path, status) VALUES ($1, $2, $3) RETURNING id, upload_date")).
		WithArgs("report.pdf", "/data/x_report.pdf", document.StatusPending).
		WillReturnRows(sqlmock.NewRows([]string{"id", "upload_date"}).AddRow("doc-1", now))

	require.NoError(t, repo.Save(context.Background(), doc))
	assert.Equal(t, "doc-1", doc.ID)
	assert.Equal(t, now, doc.UploadDate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)
	query := regexp.QuoteMeta("SELECT id, filename, file_path, upload_date, processed, status, error, page_count, chunk_count FROM documents WHERE id = $1")

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs("doc-1").
			WillReturnRows(sqlmock.NewRows(docColumns).AddRow("doc-1", "a.pdf", "/p/a.pdf", time.Now(), true, "ready", "", 3, 7))

		d, err := repo.Get(context.Background(), "doc-1")
		require.NoError(t, err)
		assert.Equal(t, "a.pdf", d.Filename)
		assert.True(t, d.Processed)
		assert.Equal(t, 7, d.ChunkCount)
	})

	t.Run("Not Found", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs("missing").WillReturnError(sql.ErrNoRows)

		_, err := repo.Get(context.Background(), "missing")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, filename, file_path, upload_date, processed, status, error, page_count, chunk_count FROM documents ORDER BY upload_date DESC")).
		WillReturnRows(sqlmock.NewRows(docColumns).
			AddRow("2", "b.pdf", "/p/b.pdf", now, false, "pending", "", 0, 0).
			AddRow("1", "a.pdf", "/p/a.pdf", now, true, "ready", "", 2, 4))

	docs, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "2", docs[0].ID)
	assert.Equal(t, "ready", docs[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_ExistsByFilename(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM documents WHERE filename = $1)")).
		WithArgs("a.pdf").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := document.NewPostgresRepo(db).ExistsByFilename(context.Background(), "a.pdf")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestPostgresRepo_Updates(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)
	ctx := context.Background()

	t.Run("MarkProcessed", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET processed = TRUE, status = 'ready', error = '', page_count = $1, chunk_count = $2, updated_at = NOW() WHERE id = $3")).
			WithArgs(3, 9, "doc-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.MarkProcessed(ctx, "doc-1", 3, 9))
	})

	t.Run("MarkFailed", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET processed = FALSE, status = 'failed', error = $1, updated_at = NOW() WHERE id = $2")).
			WithArgs("boom", "doc-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.MarkFailed(ctx, "doc-1", "boom"))
	})

	t.Run("UpdateStatus Missing Row", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET status = $1, updated_at = NOW() WHERE id = $2")).
			WithArgs("processing", "gone").
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, repo.UpdateStatus(ctx, "gone", "processing"), apperr.ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM documents WHERE id = $1")).
			WithArgs("doc-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.Delete(ctx, "doc-1"))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_Counts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM documents")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM documents WHERE processed = TRUE")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	total, err := repo.Count(context.Background())
	require.NoError(t, err)
	processed, err := repo.CountProcessed(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, total)
	assert.Equal(t, 3, processed)
}
