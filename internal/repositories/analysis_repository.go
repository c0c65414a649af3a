package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carepulse/engage/internal/domain/analytics"
)

// AnalysisRepository implements analytics.AnalysisRepository with PostgreSQL.
// Records are append-only; the unique constraint on code is the backstop
// behind the service-level serialization of code generation.
type AnalysisRepository struct {
	db *pgxpool.Pool
}

// NewAnalysisRepository creates a new PostgreSQL analysis repository
func NewAnalysisRepository(db *pgxpool.Pool) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// Insert persists a completed analysis record
func (r *AnalysisRepository) Insert(ctx context.Context, record *analytics.Record) error {
	query := `
		INSERT INTO analysis_records (
			id, code, tenant_id, tenant_name, date_str,
			serialized_metrics, start_date, end_date,
			json_url, excel_url, pdf_url, canonical_url, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)`

	_, err := r.db.Exec(ctx, query,
		record.ID,
		record.Code,
		record.TenantID,
		record.TenantName,
		record.DateStr,
		record.SerializedMetrics,
		record.StartDate,
		record.EndDate,
		record.JSONURL,
		record.ExcelURL,
		record.PDFURL,
		record.CanonicalURL,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert analysis record: %w", err)
	}
	return nil
}

// GetByCode retrieves an analysis record by exact code match
func (r *AnalysisRepository) GetByCode(ctx context.Context, code string) (*analytics.Record, error) {
	query := `
		SELECT id, code, tenant_id, tenant_name, date_str,
		       serialized_metrics, start_date, end_date,
		       json_url, excel_url, pdf_url, canonical_url, created_at
		FROM analysis_records
		WHERE code = $1`

	var rec analytics.Record
	err := r.db.QueryRow(ctx, query, code).Scan(
		&rec.ID,
		&rec.Code,
		&rec.TenantID,
		&rec.TenantName,
		&rec.DateStr,
		&rec.SerializedMetrics,
		&rec.StartDate,
		&rec.EndDate,
		&rec.JSONURL,
		&rec.ExcelURL,
		&rec.PDFURL,
		&rec.CanonicalURL,
		&rec.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, analytics.ErrAnalysisNotFound
		}
		return nil, fmt.Errorf("failed to get analysis record: %w", err)
	}
	return &rec, nil
}

// CountCodesWithPrefix counts persisted codes sharing a date/tenant prefix
func (r *AnalysisRepository) CountCodesWithPrefix(ctx context.Context, prefix string) (int64, error) {
	query := `SELECT COUNT(*) FROM analysis_records WHERE code LIKE $1 || '-%'`

	var n int64
	if err := r.db.QueryRow(ctx, query, prefix).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count analysis codes: %w", err)
	}
	return n, nil
}
