package postgres

import (
	"context"

	"gorm.io/gorm"

	"spec-forge-api/internal/domain/repository"
)

// TxManager 基于 GORM 的 repository.Transactor
type TxManager struct {
	client *Client
}

func NewTxManager(client *Client) *TxManager {
	return &TxManager{client: client}
}

// WithTransaction 嵌套调用复用外层事务，状态迁移与产物写入因此同成同败
func (m *TxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txFrom(ctx); ok {
		return fn(ctx)
	}
	return m.client.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(repository.WithTx(ctx, tx))
	})
}

func txFrom(ctx context.Context) (*gorm.DB, bool) {
	tx, ok := repository.TxFrom(ctx).(*gorm.DB)
	return tx, ok && tx != nil
}

// getDB 当前 ctx 中有事务时使用事务句柄
func getDB(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := txFrom(ctx); ok {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}
