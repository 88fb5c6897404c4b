package repositories

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err, "open sqlite")
	return db
}

func mustExec(t *testing.T, db *gorm.DB, q string, args ...interface{}) {
	t.Helper()
	require.NoError(t, db.Exec(q, args...).Error, "exec failed: query=%s", q)
}

func createWalletTable(t *testing.T, db *gorm.DB) {
	mustExec(t, db, `CREATE TABLE wallets (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL UNIQUE,
		address TEXT NOT NULL UNIQUE,
		encrypted_private_key TEXT NOT NULL,
		encrypted_mnemonic TEXT,
		network TEXT NOT NULL,
		is_monitored BOOLEAN DEFAULT false,
		created_at DATETIME,
		updated_at DATETIME
	);`)
}

func createDepositTable(t *testing.T, db *gorm.DB) {
	mustExec(t, db, `CREATE TABLE deposits (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		wallet_address TEXT NOT NULL,
		expected_amount TEXT,
		received_amount TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL,
		tx_hash TEXT UNIQUE,
		from_address TEXT,
		block_number INTEGER,
		confirmations INTEGER,
		sweep_tx_hash TEXT,
		gas_tx_hash TEXT,
		created_at DATETIME,
		updated_at DATETIME,
		confirmed_at DATETIME
	);`)
}

func createLedgerTables(t *testing.T, db *gorm.DB) {
	mustExec(t, db, `CREATE TABLE ledger_transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		type TEXT NOT NULL,
		amount TEXT NOT NULL,
		balance_before TEXT NOT NULL,
		balance_after TEXT NOT NULL,
		reference_hash TEXT NOT NULL UNIQUE,
		deposit_id TEXT,
		description TEXT,
		created_at DATETIME
	);`)
	mustExec(t, db, `CREATE TABLE profiles (
		user_id TEXT PRIMARY KEY,
		balance TEXT NOT NULL DEFAULT '0',
		created_at DATETIME,
		updated_at DATETIME
	);`)
}

func createGasOperationTable(t *testing.T, db *gorm.DB) {
	mustExec(t, db, `CREATE TABLE gas_operations (
		id TEXT PRIMARY KEY,
		operation_type TEXT NOT NULL,
		wallet_addresses TEXT,
		tx_hashes TEXT,
		native_amount TEXT NOT NULL DEFAULT '0',
		token_amount TEXT NOT NULL DEFAULT '0',
		gas_used INTEGER,
		cost_usd TEXT NOT NULL DEFAULT '0',
		success_count INTEGER,
		failure_count INTEGER,
		status TEXT NOT NULL,
		error_message TEXT,
		created_at DATETIME,
		completed_at DATETIME
	);`)
}

func createMasterWalletConfigTable(t *testing.T, db *gorm.DB) {
	mustExec(t, db, `CREATE TABLE master_wallet_configs (
		id TEXT PRIMARY KEY,
		address TEXT NOT NULL,
		encrypted_private_key TEXT NOT NULL,
		min_native_reserve TEXT NOT NULL,
		gas_amount_per_wallet TEXT NOT NULL,
		high_threshold_usd TEXT NOT NULL,
		medium_threshold_usd TEXT NOT NULL,
		low_threshold_usd TEXT NOT NULL,
		auto_sweep_enabled BOOLEAN DEFAULT false,
		created_at DATETIME,
		updated_at DATETIME
	);`)
}
