package journal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/NCGHoldings/StoresONE-sub004/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for journal entries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertEntry writes the entry and its lines in one transaction.
func (r *Repository) InsertEntry(ctx context.Context, input PostInput) (*Entry, error) {
	var entry Entry
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO journal_entries (entry_date, source_module, source_ref, memo, created_at)
			VALUES ($1, $2, $3, $4, NOW())
			RETURNING id, created_at`,
			input.Date, input.SourceModule, input.SourceRef, input.Memo,
		).Scan(&entry.ID, &entry.CreatedAt)
		if err != nil {
			return fmt.Errorf("journal: insert entry: %w", err)
		}

		for _, line := range input.Lines {
			var l Line
			err := tx.QueryRow(ctx, `
				INSERT INTO journal_lines (entry_id, account, debit, credit, created_at)
				VALUES ($1, $2, $3, $4, NOW())
				RETURNING id, created_at`,
				entry.ID, line.Account, line.Debit, line.Credit,
			).Scan(&l.ID, &l.CreatedAt)
			if err != nil {
				return fmt.Errorf("journal: insert line: %w", err)
			}
			l.EntryID = entry.ID
			l.Account = line.Account
			l.Debit = line.Debit
			l.Credit = line.Credit
			entry.Lines = append(entry.Lines, l)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	entry.Date = input.Date
	entry.SourceModule = input.SourceModule
	entry.SourceRef = input.SourceRef
	entry.Memo = input.Memo
	return &entry, nil
}
