package contracts

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresABIStore keeps registered ABIs in PostgreSQL.
type PostgresABIStore struct {
	db        *sql.DB
	tableName string
}

// NewPostgresABIStore initializes PostgreSQL storage.
// connStr: Connection string
// tablePrefix: Table prefix (defaults to "celo_reader_") -> Resulting table is prefix + "contract_abis"
func NewPostgresABIStore(connStr string, tablePrefix string) (*PostgresABIStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	if tablePrefix == "" {
		tablePrefix = "celo_reader_"
	}
	tableName := tablePrefix + "contract_abis"

	store := &PostgresABIStore{
		db:        db,
		tableName: tableName,
	}

	if err := store.initTable(); err != nil {
		return nil, err
	}

	return store, nil
}

// initTable automatically creates the ABI registry table
func (p *PostgresABIStore) initTable() error {
	query := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		address VARCHAR(42) PRIMARY KEY,
		name VARCHAR(255) NOT NULL DEFAULT '',
		abi_json TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`, p.tableName)
	_, err := p.db.Exec(query)
	return err
}

func (p *PostgresABIStore) LoadABI(ctx context.Context, address string) (string, bool, error) {
	var abiJSON string
	query := fmt.Sprintf("SELECT abi_json FROM %s WHERE address = $1", p.tableName)
	err := p.db.QueryRowContext(ctx, query, normalizeKey(address)).Scan(&abiJSON)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return abiJSON, true, nil
}

func (p *PostgresABIStore) SaveABI(ctx context.Context, address, name, abiJSON string) error {
	// Upsert using Postgres ON CONFLICT syntax
	query := fmt.Sprintf(`
	INSERT INTO %s (address, name, abi_json, updated_at)
	VALUES ($1, $2, $3, NOW())
	ON CONFLICT (address)
	DO UPDATE SET name = EXCLUDED.name, abi_json = EXCLUDED.abi_json, updated_at = NOW();
	`, p.tableName)
	_, err := p.db.ExecContext(ctx, query, normalizeKey(address), name, abiJSON)
	return err
}

func (p *PostgresABIStore) LoadName(ctx context.Context, address string) (string, error) {
	var name string
	query := fmt.Sprintf("SELECT name FROM %s WHERE address = $1", p.tableName)
	err := p.db.QueryRowContext(ctx, query, normalizeKey(address)).Scan(&name)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return name, err
}

func (p *PostgresABIStore) Close() error {
	return p.db.Close()
}
