package application

import (
	"context"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sebuszqo/ClaritySpend/internal/finance/domain"
	financeErrors "github.com/sebuszqo/ClaritySpend/internal/finance/errors"
	"github.com/sebuszqo/ClaritySpend/internal/user"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Classifier predicts a category for a description. It never fails; when
// the prediction service is unavailable it answers with Fallback().
type Classifier interface {
	Categorize(ctx context.Context, description string) string
	Fallback() string
}

type BulkResult struct {
	Created int
}

type TransactionService struct {
	repo        domain.TransactionRepository
	classifier  Classifier
	concurrency int
	log         zerolog.Logger
}

func NewTransactionService(repo domain.TransactionRepository, classifier Classifier, concurrency int, log zerolog.Logger) *TransactionService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &TransactionService{repo: repo, classifier: classifier, concurrency: concurrency, log: log}
}

// List returns exactly the caller's transactions in insertion order.
func (s *TransactionService) List(ctx context.Context, caller user.Identity) ([]domain.Transaction, error) {
	transactions, err := s.repo.FindByOwner(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	if transactions == nil {
		return []domain.Transaction{}, nil
	}
	return transactions, nil
}

func (s *TransactionService) Create(ctx context.Context, caller user.Identity, description string, amount decimal.Decimal) (*domain.Transaction, error) {
	transaction := &domain.Transaction{
		OwnerID:     caller.UserID,
		Description: description,
		Amount:      amount,
		Category:    s.classifier.Fallback(),
	}
	if err := transaction.Validate(); err != nil {
		return nil, err
	}

	transaction.Category = s.categorize(ctx, description)
	if err := s.repo.Save(ctx, transaction); err != nil {
		return nil, err
	}

	s.log.Debug().Int64("user_id", caller.UserID).Int64("transaction_id", transaction.ID).Str("category", transaction.Category).Msg("transaction created")
	return transaction, nil
}

// UpdateCategory changes only the category. A missing transaction is
// reported before ownership is checked.
func (s *TransactionService) UpdateCategory(ctx context.Context, caller user.Identity, transactionID int64, category string) (*domain.Transaction, error) {
	existing, err := s.repo.FindByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if existing.OwnerID != caller.UserID {
		s.log.Warn().Int64("user_id", caller.UserID).Int64("transaction_id", transactionID).Msg("category update on a foreign transaction")
		return nil, financeErrors.ErrForbidden
	}

	category = strings.TrimSpace(category)
	if err := domain.ValidateCategory(category); err != nil {
		return nil, err
	}

	return s.repo.UpdateCategory(ctx, transactionID, caller.UserID, category)
}

// BulkCreate stores every usable row of a CSV upload or nothing at all.
// All rows are parsed and validated before the classifier is called.
func (s *TransactionService) BulkCreate(ctx context.Context, caller user.Identity, r io.Reader) (BulkResult, error) {
	rows, err := ReadRows(r)
	if err != nil {
		return BulkResult{}, err
	}

	validationErrors := &financeErrors.ValidationErrors{}
	transactions := make([]*domain.Transaction, len(rows))
	for i, row := range rows {
		transactions[i] = &domain.Transaction{
			OwnerID:     caller.UserID,
			Description: row.Description,
			Amount:      row.Amount,
			Category:    s.classifier.Fallback(),
		}
		if err := transactions[i].Validate(); err != nil {
			validationErrors.Add(financeErrors.NewIndexedValidationError(row.Line, err.Error()))
		}
	}
	if len(validationErrors.Errors) > 0 {
		return BulkResult{}, validationErrors
	}
	if len(transactions) == 0 {
		return BulkResult{}, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, transaction := range transactions {
		transaction := transaction
		g.Go(func() error {
			transaction.Category = s.categorize(gctx, transaction.Description)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return BulkResult{}, err
	}

	if err := s.repo.SaveAll(ctx, transactions); err != nil {
		return BulkResult{}, err
	}

	s.log.Info().Int64("user_id", caller.UserID).Int("created", len(transactions)).Msg("bulk upload stored")
	return BulkResult{Created: len(transactions)}, nil
}

func (s *TransactionService) categorize(ctx context.Context, description string) string {
	category := strings.TrimSpace(s.classifier.Categorize(ctx, description))
	if err := domain.ValidateCategory(category); err != nil {
		s.log.Warn().Str("category", category).Msg("classifier returned an unusable category")
		return s.classifier.Fallback()
	}
	return category
}
