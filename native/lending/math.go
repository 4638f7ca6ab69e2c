package lending

import "math/big"

// wad is the fixed-point scale shared by every monetary quantity and ratio in
// the module: 1e18, eighteen fractional decimal digits.
var wad = mustBigInt("1000000000000000000")

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// wadMul computes a*b/1e18, truncating towards zero. Both operands are
// non-negative by construction everywhere in the engine.
func wadMul(a, b *big.Int) *big.Int {
	if a == nil || b == nil {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(a, b)
	return product.Quo(product, wad)
}

// checkedSub returns a-b, failing with underflow=false semantics: the second
// return is false when the result would be negative and no value is produced.
func checkedSub(a, b *big.Int) (*big.Int, bool) {
	if a == nil || b == nil {
		return nil, false
	}
	diff := new(big.Int).Sub(a, b)
	if diff.Sign() < 0 {
		return nil, false
	}
	return diff, true
}

func addAmount(a, b *big.Int) *big.Int {
	if a == nil {
		a = big.NewInt(0)
	}
	if b == nil {
		b = big.NewInt(0)
	}
	return new(big.Int).Add(a, b)
}

func isPositive(amount *big.Int) bool {
	return amount != nil && amount.Sign() > 0
}
