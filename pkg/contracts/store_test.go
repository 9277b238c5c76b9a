package contracts

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	storeAddr = "0xAbCd000000000000000000000000000000000001"
	storeABI  = `[{"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}]`
)

// --- Memory Store Tests ---

func TestMemoryABIStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryABIStore()

	_, found, err := s.LoadABI(ctx, storeAddr)
	assert.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SaveABI(ctx, storeAddr, "Token", storeABI))

	// Lookup is case-insensitive on the address.
	got, found, err := s.LoadABI(ctx, "0xabcd000000000000000000000000000000000001")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, storeABI, got)

	name, err := s.LoadName(ctx, storeAddr)
	assert.NoError(t, err)
	assert.Equal(t, "Token", name)

	assert.NoError(t, s.Close())
}

// --- Postgres Store Tests ---

func TestPostgresABIStore_InitTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := &PostgresABIStore{db: db, tableName: "custom_contract_abis"}

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS custom_contract_abis")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, store.initTable())
}

func TestPostgresABIStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := &PostgresABIStore{db: db, tableName: "celo_reader_contract_abis"}
	key := normalizeKey(storeAddr)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO celo_reader_contract_abis")).
		WithArgs(key, "Token", storeABI).
		WillReturnResult(sqlmock.NewResult(1, 1))
	assert.NoError(t, store.SaveABI(ctx, storeAddr, "Token", storeABI))

	rows := sqlmock.NewRows([]string{"abi_json"}).AddRow(storeABI)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT abi_json FROM celo_reader_contract_abis")).
		WithArgs(key).
		WillReturnRows(rows)
	got, found, err := store.LoadABI(ctx, storeAddr)
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, storeABI, got)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT abi_json FROM celo_reader_contract_abis")).
		WithArgs(key).
		WillReturnError(sql.ErrNoRows)
	_, found, err = store.LoadABI(ctx, storeAddr)
	assert.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// --- Redis Store Tests ---

func TestRedisABIStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	store := NewRedisABIStoreWithClient(client, "")
	key := "celo_reader:abi:" + normalizeKey(storeAddr)

	mock.ExpectSet(key, storeABI, 0).SetVal("OK")
	mock.ExpectSet("celo_reader:abi:name:"+normalizeKey(storeAddr), "Token", 0).SetVal("OK")
	assert.NoError(t, store.SaveABI(ctx, storeAddr, "Token", storeABI))

	mock.ExpectGet(key).SetVal(storeABI)
	got, found, err := store.LoadABI(ctx, storeAddr)
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, storeABI, got)

	mock.ExpectGet(key).RedisNil()
	_, found, err = store.LoadABI(ctx, storeAddr)
	assert.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, mock.ExpectationsWereMet())
}
