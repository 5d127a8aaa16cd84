// Package indexer keeps an off-chain, queryable history of cupcake grants.
// It is fed from committed receipts and never influences chain state.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"cupcakechain/core/types"
	"cupcakechain/native/vending"
)

// DefaultHistoryLimit bounds History when the caller passes no limit.
const DefaultHistoryLimit = 100

// Grant is one indexed successful grant.
type Grant struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TxHash      string    `gorm:"index" json:"txHash"`
	BlockHeight uint64    `gorm:"index:idx_grant_order" json:"blockHeight"`
	Sequence    int       `gorm:"index:idx_grant_order" json:"sequence"`
	Account     string    `gorm:"index" json:"account"`
	Balance     string    `json:"balance"`
	GrantedAt   uint64    `json:"grantedAt"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Indexer persists grants with gorm.
type Indexer struct {
	db *gorm.DB
}

// Open connects to the database at dsn and migrates the schema. PostgreSQL
// URLs and keyword DSNs select the postgres driver; anything else is treated
// as a sqlite path or URI.
func Open(dsn string) (*Indexer, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("indexer: dsn required")
	}
	db, err := gorm.Open(dialector(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open database: %w", err)
	}
	return New(db)
}

func dialector(dsn string) gorm.Dialector {
	if isPostgresDSN(dsn) {
		return postgres.Open(dsn)
	}
	return sqlite.Open(dsn)
}

func isPostgresDSN(dsn string) bool {
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return true
	}
	return strings.HasPrefix(lower, "host=") || strings.Contains(lower, " dbname=")
}

// New wraps an existing gorm handle.
func New(db *gorm.DB) (*Indexer, error) {
	if err := db.AutoMigrate(&Grant{}); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return &Indexer{db: db}, nil
}

// Close releases the underlying connection pool.
func (i *Indexer) Close() error {
	if i == nil || i.db == nil {
		return nil
	}
	sqlDB, err := i.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record indexes every grant event carried by successful receipts and
// returns how many rows were written.
func (i *Indexer) Record(ctx context.Context, receipts []*types.Receipt) (int, error) {
	var rows []Grant
	for _, receipt := range receipts {
		if !receipt.Succeeded() {
			continue
		}
		for _, ev := range receipt.Events {
			if ev == nil || ev.Type != vending.EventTypeCupcakeGranted {
				continue
			}
			grantedAt, err := strconv.ParseUint(ev.Attributes["grantedAt"], 10, 64)
			if err != nil {
				return 0, fmt.Errorf("indexer: grantedAt %q: %w", ev.Attributes["grantedAt"], err)
			}
			rows = append(rows, Grant{
				ID:          uuid.New(),
				TxHash:      receipt.TxHash.Hex(),
				BlockHeight: receipt.BlockHeight,
				Sequence:    len(rows),
				Account:     strings.ToLower(ev.Attributes["account"]),
				Balance:     ev.Attributes["balance"],
				GrantedAt:   grantedAt,
			})
		}
	}
	if len(rows) == 0 {
		return 0, nil
	}
	if err := i.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return 0, fmt.Errorf("indexer: insert grants: %w", err)
	}
	return len(rows), nil
}

// History returns the most recent grants to account, newest first.
func (i *Indexer) History(ctx context.Context, account common.Address, limit int) ([]Grant, error) {
	if limit <= 0 || limit > DefaultHistoryLimit {
		limit = DefaultHistoryLimit
	}
	var grants []Grant
	err := i.db.WithContext(ctx).
		Where("account = ?", strings.ToLower(account.Hex())).
		Order("block_height desc").
		Order("sequence desc").
		Limit(limit).
		Find(&grants).Error
	if err != nil {
		return nil, fmt.Errorf("indexer: query history: %w", err)
	}
	return grants, nil
}

// Count returns the number of indexed grants to account.
func (i *Indexer) Count(ctx context.Context, account common.Address) (int64, error) {
	var total int64
	err := i.db.WithContext(ctx).Model(&Grant{}).
		Where("account = ?", strings.ToLower(account.Hex())).
		Count(&total).Error
	return total, err
}
