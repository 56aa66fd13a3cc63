// Package chain implements the append-only provenance hash-chain:
// anchoring a data hash links it to the previous block's tx_hash,
// forming a tamper-evident log backed by a Postgres transaction.
package chain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rawblock/watermark-gateway/internal/store"
)

// GenesisPrevHash is the prev_hash of the first block ever anchored:
// 64 hex chars representing 32 zero bytes.
var GenesisPrevHash = strings.Repeat("0", 64)

// computeTxHash derives a block's tx_hash deterministically from its
// preimage: prevHash || dataHash || issuerID || timestamp.
func computeTxHash(prevHash, dataHash string, issuerID int64, timestamp string) string {
	preimage := prevHash + dataHash + fmt.Sprintf("%d", issuerID) + timestamp
	sum := sha256.Sum256([]byte(preimage))
	return hex.EncodeToString(sum[:])
}

// Chain wraps a Store's pool for transactional anchoring.
type Chain struct {
	pool *pgxpool.Pool
}

// New builds a Chain backed by the given Store's connection pool.
func New(s *store.Store) *Chain {
	return &Chain{pool: s.Pool()}
}

// Receipt is returned after successfully anchoring a record.
type Receipt struct {
	TxHash    string
	BlockNum  int64
	DataHash  string
	IssuerID  int64
	Timestamp string
}

// Record is one block read back from the chain.
type Record struct {
	BlockNum     int64
	PrevHash     string
	TxHash       string
	DataHash     string
	IssuerID     int64
	SignatureHex string
	Timestamp    string
}

// Anchor appends a new block under a serializable transaction: it
// reads the current tip and inserts the new block in the same
// transaction, so concurrent anchors cannot observe or link to a stale
// prev_hash.
func (c *Chain) Anchor(ctx context.Context, dataHash string, issuerID int64, signatureHex string, metadata map[string]interface{}) (*Receipt, error) {
	ts := time.Now().UTC().Format(time.RFC3339Nano)

	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("chain: marshal metadata: %w", err)
	}

	var receipt Receipt
	err = pgx.BeginTxFunc(ctx, c.pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
		latest, err := store.GetLatestBlockTx(ctx, tx)
		if err != nil {
			return fmt.Errorf("chain: read latest block: %w", err)
		}
		prevHash := GenesisPrevHash
		if latest != nil {
			prevHash = latest.TxHash
		}

		txHash := computeTxHash(prevHash, dataHash, issuerID, ts)

		blockNum, err := store.InsertBlockTx(ctx, tx, prevHash, txHash, dataHash, issuerID, signatureHex, string(metaJSON))
		if err != nil {
			return fmt.Errorf("chain: insert block: %w", err)
		}

		receipt = Receipt{
			TxHash:    txHash,
			BlockNum:  blockNum,
			DataHash:  dataHash,
			IssuerID:  issuerID,
			Timestamp: ts,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

// Lookup finds the block anchoring dataHash.
func (c *Chain) Lookup(ctx context.Context, s *store.Store, dataHash string) (*Record, error) {
	b, err := s.GetBlockByDataHash(ctx, dataHash)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, nil
	}
	return blockToRecord(b), nil
}

// LookupTx finds the block with the given tx_hash.
func (c *Chain) LookupTx(ctx context.Context, s *store.Store, txHash string) (*Record, error) {
	b, err := s.GetBlockByTxHash(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, nil
	}
	return blockToRecord(b), nil
}

// Verify confirms that dataHash is anchored under exactly txHash.
func (c *Chain) Verify(ctx context.Context, s *store.Store, dataHash, txHash string) (bool, error) {
	b, err := s.GetBlockByDataHash(ctx, dataHash)
	if err != nil {
		return false, err
	}
	if b == nil {
		return false, nil
	}
	return b.TxHash == txHash, nil
}

// ChainLength reports the total number of anchored blocks.
func (c *Chain) ChainLength(ctx context.Context, s *store.Store) (int64, error) {
	return s.ChainLength(ctx)
}

// ValidateChain walks every block in order and verifies prev_hash
// linkage back to genesis, reporting the first break found.
func (c *Chain) ValidateChain(ctx context.Context, s *store.Store) (valid bool, message string, err error) {
	blocks, err := s.ListBlocksOrdered(ctx)
	if err != nil {
		return false, "", err
	}
	return validateLinkage(blocks)
}

// validateLinkage is the pure prev_hash-linkage check behind
// ValidateChain, factored out so it can be exercised without a
// database connection.
func validateLinkage(blocks []store.ChainBlock) (valid bool, message string, err error) {
	if len(blocks) == 0 {
		return true, "empty chain", nil
	}

	if blocks[0].PrevHash != GenesisPrevHash {
		return false, fmt.Sprintf("block %d: invalid genesis prev_hash", blocks[0].BlockNum), nil
	}

	for i := 1; i < len(blocks); i++ {
		if blocks[i].PrevHash != blocks[i-1].TxHash {
			return false, fmt.Sprintf(
				"block %d: prev_hash mismatch (expected %s, got %s)",
				blocks[i].BlockNum, blocks[i-1].TxHash, blocks[i].PrevHash,
			), nil
		}
	}

	return true, fmt.Sprintf("valid chain with %d blocks", len(blocks)), nil
}

func blockToRecord(b *store.ChainBlock) *Record {
	return &Record{
		BlockNum:     b.BlockNum,
		PrevHash:     b.PrevHash,
		TxHash:       b.TxHash,
		DataHash:     b.DataHash,
		IssuerID:     b.IssuerID,
		SignatureHex: b.SignatureHex,
		Timestamp:    b.Timestamp,
	}
}
