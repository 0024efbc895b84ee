package infrastructure

import (
	"context"
	"sync"
	"time"

	"github.com/sebuszqo/ClaritySpend/internal/finance/domain"
	financeErrors "github.com/sebuszqo/ClaritySpend/internal/finance/errors"
)

// MemoryTransactionRepository keeps transactions in process memory in
// insertion order. It backs the memory storage driver and tests.
type MemoryTransactionRepository struct {
	mu           sync.RWMutex
	nextID       int64
	transactions []domain.Transaction
	// FailSaveAll makes SaveAll fail without storing anything.
	FailSaveAll error
}

func NewMemoryTransactionRepository() *MemoryTransactionRepository {
	return &MemoryTransactionRepository{}
}

func (m *MemoryTransactionRepository) Save(_ context.Context, transaction *domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insert(transaction)
	return nil
}

func (m *MemoryTransactionRepository) SaveAll(_ context.Context, transactions []*domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSaveAll != nil {
		return m.FailSaveAll
	}
	for _, transaction := range transactions {
		m.insert(transaction)
	}
	return nil
}

func (m *MemoryTransactionRepository) insert(transaction *domain.Transaction) {
	m.nextID++
	transaction.ID = m.nextID
	transaction.CreatedAt = time.Now().UTC()
	m.transactions = append(m.transactions, *transaction)
}

func (m *MemoryTransactionRepository) FindByOwner(_ context.Context, ownerID int64) ([]domain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	filtered := []domain.Transaction{}
	for _, transaction := range m.transactions {
		if transaction.OwnerID == ownerID {
			filtered = append(filtered, transaction)
		}
	}
	return filtered, nil
}

func (m *MemoryTransactionRepository) FindByID(_ context.Context, transactionID int64) (*domain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, transaction := range m.transactions {
		if transaction.ID == transactionID {
			found := transaction
			return &found, nil
		}
	}
	return nil, financeErrors.ErrTransactionNotFound
}

func (m *MemoryTransactionRepository) UpdateCategory(_ context.Context, transactionID, ownerID int64, category string) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.transactions {
		if m.transactions[i].ID == transactionID && m.transactions[i].OwnerID == ownerID {
			m.transactions[i].Category = category
			updated := m.transactions[i]
			return &updated, nil
		}
	}
	return nil, financeErrors.ErrTransactionNotFound
}
