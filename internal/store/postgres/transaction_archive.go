package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/bondsim/internal/domain"
)

// TransactionArchive implements domain.TransactionArchive using PostgreSQL.
type TransactionArchive struct {
	pool *pgxpool.Pool
}

// NewTransactionArchive creates a TransactionArchive backed by the given pool.
func NewTransactionArchive(pool *pgxpool.Pool) *TransactionArchive {
	return &TransactionArchive{pool: pool}
}

// InsertBatch stores terminal transactions in one round trip. Transactions
// already archived are skipped.
func (s *TransactionArchive) InsertBatch(ctx context.Context, txs []domain.TransactionEvent) error {
	if len(txs) == 0 {
		return nil
	}

	const query = `
		INSERT INTO transaction_archive (id, occurred_at, type, status, details, dlt_hash)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		ON CONFLICT (id) DO NOTHING`
	batch := &pgx.Batch{}
	for _, tx := range txs {
		batch.Queue(query, tx.ID, tx.Timestamp, string(tx.Type), string(tx.Status), tx.Details, tx.DLTHash)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := range txs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: archive transaction %d (%s): %w", i, txs[i].ID, err)
		}
	}
	return nil
}

// List returns archived transactions newest first.
func (s *TransactionArchive) List(ctx context.Context, opts domain.ListOpts) ([]domain.TransactionEvent, error) {
	query, args := listQuery(
		`SELECT id, occurred_at, type, status, details, COALESCE(dlt_hash, '') FROM transaction_archive WHERE 1=1`,
		"occurred_at", opts,
	)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list archived transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.TransactionEvent
	for rows.Next() {
		var (
			tx           domain.TransactionEvent
			typ, status  string
		)
		if err := rows.Scan(&tx.ID, &tx.Timestamp, &typ, &status, &tx.Details, &tx.DLTHash); err != nil {
			return nil, fmt.Errorf("postgres: scan archived transaction: %w", err)
		}
		tx.Type = domain.TransactionType(typ)
		tx.Status = domain.TransactionStatus(status)
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list archived transactions rows: %w", err)
	}
	return out, nil
}

var _ domain.TransactionArchive = (*TransactionArchive)(nil)
