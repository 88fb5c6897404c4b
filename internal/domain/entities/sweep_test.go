package entities

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestMasterWalletConfig_Thresholds(t *testing.T) {
	cfg := &MasterWalletConfig{
		HighThresholdUSD:   decimal.NewFromInt(100),
		MediumThresholdUSD: decimal.NewFromInt(20),
		LowThresholdUSD:    decimal.NewFromInt(5),
	}
	th := cfg.Thresholds()
	if !th.High.Equal(decimal.NewFromInt(100)) || !th.Medium.Equal(decimal.NewFromInt(20)) || !th.Low.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("unexpected thresholds: %+v", th)
	}
}

func TestDepositRecord_StatusHelpers(t *testing.T) {
	cases := []struct {
		status   DepositStatus
		terminal bool
		credited bool
	}{
		{DepositStatusPending, false, false},
		{DepositStatusConfirmed, true, true},
		{DepositStatusSwept, true, true},
		{DepositStatusSweepFailed, true, true},
		{DepositStatusFailed, true, false},
	}
	for _, tc := range cases {
		d := &DepositRecord{Status: tc.status}
		if d.IsTerminal() != tc.terminal {
			t.Fatalf("%s: terminal=%v", tc.status, d.IsTerminal())
		}
		if d.IsCredited() != tc.credited {
			t.Fatalf("%s: credited=%v", tc.status, d.IsCredited())
		}
	}
}
