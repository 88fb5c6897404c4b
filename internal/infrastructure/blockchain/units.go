package blockchain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// NativeDecimals is the precision of BNB and ETH
const NativeDecimals int32 = 18

// ToDecimal converts an integer base-unit amount to a decimal value
func ToDecimal(value *big.Int, decimals int32) decimal.Decimal {
	if value == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(value, -decimals)
}

// ToBaseUnits converts a decimal amount into integer base units, truncating extra precision
func ToBaseUnits(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).Truncate(0).BigInt()
}
