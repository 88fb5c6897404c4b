package models

import "testing"

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		(Wallet{}).TableName():             "wallets",
		(Deposit{}).TableName():            "deposits",
		(LedgerTransaction{}).TableName():  "ledger_transactions",
		(Profile{}).TableName():            "profiles",
		(GasOperation{}).TableName():       "gas_operations",
		(MasterWalletConfig{}).TableName(): "master_wallet_configs",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("unexpected table name: got %s want %s", got, want)
		}
	}
}
