package indexer

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

const exportBatchSize = 500

type parquetGrant struct {
	ID          string `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	TxHash      string `parquet:"name=tx_hash, type=BYTE_ARRAY, convertedtype=UTF8"`
	BlockHeight int64  `parquet:"name=block_height, type=INT64"`
	Sequence    int32  `parquet:"name=sequence, type=INT32"`
	Account     string `parquet:"name=account, type=BYTE_ARRAY, convertedtype=UTF8"`
	Balance     string `parquet:"name=balance, type=BYTE_ARRAY, convertedtype=UTF8"`
	GrantedAt   int64  `parquet:"name=granted_at, type=INT64"`
}

// ExportParquet streams indexed grants to w as a parquet file, oldest first.
// A non-nil account restricts the export to grants to that account. It
// returns the number of rows written.
func (i *Indexer) ExportParquet(ctx context.Context, w io.Writer, account *common.Address) (int, error) {
	pw, err := writer.NewParquetWriter(writerfile.NewWriterFile(w), new(parquetGrant), 1)
	if err != nil {
		return 0, fmt.Errorf("indexer: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	written := 0
	for offset := 0; ; offset += exportBatchSize {
		query := i.db.WithContext(ctx).Order("block_height asc").Order("sequence asc")
		if account != nil {
			query = query.Where("account = ?", strings.ToLower(account.Hex()))
		}
		var batch []Grant
		if err := query.Offset(offset).Limit(exportBatchSize).Find(&batch).Error; err != nil {
			_ = pw.WriteStop()
			return 0, fmt.Errorf("indexer: export grants: %w", err)
		}
		for _, grant := range batch {
			if err := pw.Write(toParquet(grant)); err != nil {
				_ = pw.WriteStop()
				return 0, fmt.Errorf("indexer: write parquet row: %w", err)
			}
			written++
		}
		if len(batch) < exportBatchSize {
			break
		}
	}
	if err := pw.WriteStop(); err != nil {
		return 0, fmt.Errorf("indexer: finish parquet: %w", err)
	}
	return written, nil
}

func toParquet(grant Grant) *parquetGrant {
	return &parquetGrant{
		ID:          grant.ID.String(),
		TxHash:      grant.TxHash,
		BlockHeight: int64(grant.BlockHeight),
		Sequence:    int32(grant.Sequence),
		Account:     grant.Account,
		Balance:     grant.Balance,
		GrantedAt:   int64(grant.GrantedAt),
	}
}
