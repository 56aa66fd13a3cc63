// Package store is the pgxpool-backed persistence layer for companies,
// signed responses, and the append-only chain_blocks table.
package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// Store wraps a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens and pings a connection pool against connStr.
func Connect(ctx context.Context, connStr string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("store: unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("store: ping failed: %w", err)
	}
	log.Println("store: connected to PostgreSQL provenance database")
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema creates every table this package owns if they do not
// already exist.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("store: schema init failed: %w", err)
	}
	log.Println("store: provenance registry schema initialized")
	return nil
}

// Pool exposes the underlying pool for subsystems (chain anchoring)
// that need explicit transaction control.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Company is a row of the companies table.
type Company struct {
	ID           int64
	Name         string
	IssuerID     int64
	EthAddress   string
	PublicKeyHex string
	Active       bool
	CreatedAt    string
}

// InsertCompany creates a new company row and returns its assigned id.
func (s *Store) InsertCompany(ctx context.Context, name string, issuerID int64, ethAddress, publicKeyHex string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO companies (name, issuer_id, eth_address, public_key_hex) VALUES ($1, $2, $3, $4) RETURNING id`,
		name, issuerID, ethAddress, publicKeyHex,
	).Scan(&id)
	if err != nil {
		return 0, classifyWriteError(err, "insert company")
	}
	return id, nil
}

// MaxIssuerID returns the highest allocated issuer_id, or nil if the
// companies table is empty. Callers combine this with
// credentials.NextIssuerID to allocate the next id.
func (s *Store) MaxIssuerID(ctx context.Context) (*int64, error) {
	var maxID *int64
	if err := s.pool.QueryRow(ctx, `SELECT MAX(issuer_id) FROM companies`).Scan(&maxID); err != nil {
		return nil, fmt.Errorf("store: max issuer id: %w", err)
	}
	return maxID, nil
}

func scanCompany(row pgx.Row) (*Company, error) {
	var c Company
	err := row.Scan(&c.ID, &c.Name, &c.IssuerID, &c.EthAddress, &c.PublicKeyHex, &c.Active, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// GetCompanyByIssuer returns the active company with issuerID, or nil
// if none exists.
func (s *Store) GetCompanyByIssuer(ctx context.Context, issuerID int64) (*Company, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, issuer_id, eth_address, public_key_hex, active, created_at::text
		 FROM companies WHERE issuer_id = $1 AND active = TRUE`, issuerID)
	c, err := scanCompany(row)
	if err != nil {
		return nil, fmt.Errorf("store: get company by issuer: %w", err)
	}
	return c, nil
}

// GetCompanyByAddress returns the active company whose eth_address
// matches address exactly (the caller is responsible for normalizing
// case before calling, or falling back to ListCompanies otherwise).
func (s *Store) GetCompanyByAddress(ctx context.Context, address string) (*Company, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, issuer_id, eth_address, public_key_hex, active, created_at::text
		 FROM companies WHERE eth_address = $1 AND active = TRUE`, address)
	c, err := scanCompany(row)
	if err != nil {
		return nil, fmt.Errorf("store: get company by address: %w", err)
	}
	return c, nil
}

// ListCompanies returns every company, active or not, ordered by id.
func (s *Store) ListCompanies(ctx context.Context) ([]Company, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, issuer_id, eth_address, public_key_hex, active, created_at::text
		 FROM companies ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list companies: %w", err)
	}
	defer rows.Close()

	var out []Company
	for rows.Next() {
		var c Company
		if err := rows.Scan(&c.ID, &c.Name, &c.IssuerID, &c.EthAddress, &c.PublicKeyHex, &c.Active, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan company: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeactivateCompany flips active to false for issuerID.
func (s *Store) DeactivateCompany(ctx context.Context, issuerID int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE companies SET active = FALSE WHERE issuer_id = $1`, issuerID)
	if err != nil {
		return fmt.Errorf("store: deactivate company: %w", err)
	}
	return nil
}

// Response is a row of the responses table.
type Response struct {
	ID              int64
	SHA256Hash      string
	IssuerID        int64
	SignatureHex    string
	RawText         string
	WatermarkedText string
	MetadataJSON    string
	CreatedAt       string
}

// InsertResponse records one signed generation.
func (s *Store) InsertResponse(ctx context.Context, sha256Hash string, issuerID int64, signatureHex, rawText, watermarkedText, metadataJSON string) (int64, error) {
	if metadataJSON == "" {
		metadataJSON = "{}"
	}
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO responses (sha256_hash, issuer_id, signature_hex, raw_text, watermarked_text, metadata_json)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		sha256Hash, issuerID, signatureHex, rawText, watermarkedText, metadataJSON,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: insert response: %w", err)
	}
	return id, nil
}

// GetResponseByHash returns the most recent response matching hash, or
// nil if none exists.
func (s *Store) GetResponseByHash(ctx context.Context, hash string) (*Response, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, sha256_hash, issuer_id, signature_hex, raw_text, watermarked_text, metadata_json::text, created_at::text
		 FROM responses WHERE sha256_hash = $1 ORDER BY id DESC LIMIT 1`, hash)

	var r Response
	err := row.Scan(&r.ID, &r.SHA256Hash, &r.IssuerID, &r.SignatureHex, &r.RawText, &r.WatermarkedText, &r.MetadataJSON, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get response by hash: %w", err)
	}
	return &r, nil
}

// ChainBlock is a row of the chain_blocks table.
type ChainBlock struct {
	BlockNum     int64
	PrevHash     string
	TxHash       string
	DataHash     string
	IssuerID     int64
	SignatureHex string
	PayloadJSON  string
	Timestamp    string
}

func scanChainBlock(row pgx.Row) (*ChainBlock, error) {
	var b ChainBlock
	err := row.Scan(&b.BlockNum, &b.PrevHash, &b.TxHash, &b.DataHash, &b.IssuerID, &b.SignatureHex, &b.PayloadJSON, &b.Timestamp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

const chainBlockColumns = `block_num, prev_hash, tx_hash, data_hash, issuer_id, signature_hex, payload_json::text, timestamp::text`

// GetLatestBlockTx returns the highest-numbered block within tx, or
// nil if the chain is empty. Callers anchoring a new block must run
// this inside the same transaction as the subsequent insert to avoid
// a lost-update race on prev_hash.
func GetLatestBlockTx(ctx context.Context, tx pgx.Tx) (*ChainBlock, error) {
	row := tx.QueryRow(ctx, `SELECT `+chainBlockColumns+` FROM chain_blocks ORDER BY block_num DESC LIMIT 1`)
	return scanChainBlock(row)
}

// InsertBlockTx appends a new block within tx and returns its assigned
// block number.
func InsertBlockTx(ctx context.Context, tx pgx.Tx, prevHash, txHash, dataHash string, issuerID int64, signatureHex, payloadJSON string) (int64, error) {
	if payloadJSON == "" {
		payloadJSON = "{}"
	}
	var blockNum int64
	err := tx.QueryRow(ctx,
		`INSERT INTO chain_blocks (prev_hash, tx_hash, data_hash, issuer_id, signature_hex, payload_json)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING block_num`,
		prevHash, txHash, dataHash, issuerID, signatureHex, payloadJSON,
	).Scan(&blockNum)
	if err != nil {
		return 0, classifyWriteError(err, "insert chain block")
	}
	return blockNum, nil
}

// GetBlockByDataHash returns the block anchoring dataHash, or nil.
func (s *Store) GetBlockByDataHash(ctx context.Context, dataHash string) (*ChainBlock, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+chainBlockColumns+` FROM chain_blocks WHERE data_hash = $1`, dataHash)
	b, err := scanChainBlock(row)
	if err != nil {
		return nil, fmt.Errorf("store: get block by data hash: %w", err)
	}
	return b, nil
}

// GetBlockByTxHash returns the block with the given tx_hash, or nil.
func (s *Store) GetBlockByTxHash(ctx context.Context, txHash string) (*ChainBlock, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+chainBlockColumns+` FROM chain_blocks WHERE tx_hash = $1`, txHash)
	b, err := scanChainBlock(row)
	if err != nil {
		return nil, fmt.Errorf("store: get block by tx hash: %w", err)
	}
	return b, nil
}

// ListBlocksOrdered returns every block ordered by block_num ascending,
// for chain validation.
func (s *Store) ListBlocksOrdered(ctx context.Context) ([]ChainBlock, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+chainBlockColumns+` FROM chain_blocks ORDER BY block_num ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: list blocks: %w", err)
	}
	defer rows.Close()

	var out []ChainBlock
	for rows.Next() {
		var b ChainBlock
		if err := rows.Scan(&b.BlockNum, &b.PrevHash, &b.TxHash, &b.DataHash, &b.IssuerID, &b.SignatureHex, &b.PayloadJSON, &b.Timestamp); err != nil {
			return nil, fmt.Errorf("store: scan block: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// GetBlockByNum returns the block at blockNum, or nil if absent.
func (s *Store) GetBlockByNum(ctx context.Context, blockNum int64) (*ChainBlock, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+chainBlockColumns+` FROM chain_blocks WHERE block_num = $1`, blockNum)
	b, err := scanChainBlock(row)
	if err != nil {
		return nil, fmt.Errorf("store: get block by num: %w", err)
	}
	return b, nil
}

// ListBlocksPaged returns blocks ordered by block_num ascending, limited
// and offset for the registry's block-listing endpoint.
func (s *Store) ListBlocksPaged(ctx context.Context, limit, offset int64) ([]ChainBlock, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+chainBlockColumns+` FROM chain_blocks ORDER BY block_num ASC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("store: list blocks paged: %w", err)
	}
	defer rows.Close()

	var out []ChainBlock
	for rows.Next() {
		var b ChainBlock
		if err := rows.Scan(&b.BlockNum, &b.PrevHash, &b.TxHash, &b.DataHash, &b.IssuerID, &b.SignatureHex, &b.PayloadJSON, &b.Timestamp); err != nil {
			return nil, fmt.Errorf("store: scan block: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ChainLength returns the total number of anchored blocks.
func (s *Store) ChainLength(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chain_blocks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: chain length: %w", err)
	}
	return n, nil
}

// classifyWriteError turns a pgx unique-violation into a sentinel the
// caller can detect with errors.Is.
var ErrUniqueViolation = errors.New("store: unique constraint violation")

func classifyWriteError(err error, action string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("store: %s: %w", action, ErrUniqueViolation)
	}
	return fmt.Errorf("store: %s: %w", action, err)
}
