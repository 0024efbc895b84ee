package infrastructure

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sebuszqo/ClaritySpend/internal/finance/domain"
	financeErrors "github.com/sebuszqo/ClaritySpend/internal/finance/errors"
)

const insertTransactionQuery = `
	INSERT INTO transactions (user_id, description, amount, category, created_at)
	VALUES ($1, $2, $3, $4, NOW())
	RETURNING id, created_at`

type TransactionRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewTransactionRepository(db *sql.DB, log zerolog.Logger) *TransactionRepository {
	return &TransactionRepository{db: db, log: log}
}

func (r *TransactionRepository) Save(ctx context.Context, transaction *domain.Transaction) error {
	err := r.db.QueryRowContext(ctx, insertTransactionQuery,
		transaction.OwnerID, transaction.Description, transaction.Amount, transaction.Category,
	).Scan(&transaction.ID, &transaction.CreatedAt)
	if err != nil {
		return fmt.Errorf("could not save transaction: %w", err)
	}
	return nil
}

func (r *TransactionRepository) SaveAll(ctx context.Context, transactions []*domain.Transaction) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			r.safeRollback(tx)
			panic(p)
		} else if err != nil {
			r.safeRollback(tx)
		} else {
			err = tx.Commit()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertTransactionQuery)
	if err != nil {
		return fmt.Errorf("could not prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, transaction := range transactions {
		err = stmt.QueryRowContext(ctx,
			transaction.OwnerID, transaction.Description, transaction.Amount, transaction.Category,
		).Scan(&transaction.ID, &transaction.CreatedAt)
		if err != nil {
			return fmt.Errorf("database error at transaction %d: %w", i+1, err)
		}
	}
	return nil
}

func (r *TransactionRepository) safeRollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		r.log.Error().Err(err).Msg("Error during transaction rollback")
	}
}

func (r *TransactionRepository) FindByOwner(ctx context.Context, ownerID int64) ([]domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, description, amount, category, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY id`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := []domain.Transaction{}
	for rows.Next() {
		var transaction domain.Transaction
		if err := rows.Scan(&transaction.ID, &transaction.OwnerID, &transaction.Description,
			&transaction.Amount, &transaction.Category, &transaction.CreatedAt); err != nil {
			return nil, err
		}
		transactions = append(transactions, transaction)
	}
	return transactions, rows.Err()
}

func (r *TransactionRepository) FindByID(ctx context.Context, transactionID int64) (*domain.Transaction, error) {
	var transaction domain.Transaction
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, description, amount, category, created_at
		FROM transactions
		WHERE id = $1`, transactionID,
	).Scan(&transaction.ID, &transaction.OwnerID, &transaction.Description,
		&transaction.Amount, &transaction.Category, &transaction.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, financeErrors.ErrTransactionNotFound
		}
		return nil, err
	}
	return &transaction, nil
}

// UpdateCategory only touches a row owned by ownerID; any other row is
// reported as not found.
func (r *TransactionRepository) UpdateCategory(ctx context.Context, transactionID, ownerID int64, category string) (*domain.Transaction, error) {
	var transaction domain.Transaction
	err := r.db.QueryRowContext(ctx, `
		UPDATE transactions
		SET category = $1
		WHERE id = $2 AND user_id = $3
		RETURNING id, user_id, description, amount, category, created_at`,
		category, transactionID, ownerID,
	).Scan(&transaction.ID, &transaction.OwnerID, &transaction.Description,
		&transaction.Amount, &transaction.Category, &transaction.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, financeErrors.ErrTransactionNotFound
		}
		return nil, err
	}
	return &transaction, nil
}
