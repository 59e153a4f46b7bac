package pool

import (
	"math/big"
	"testing"
)

func TestWeiStorageConversion(t *testing.T) {
	// The storage unit floors away the last eight decimals.
	wei := new(big.Int).Add(StorageToWei(big.NewInt(7)), big.NewInt(99_999_999))
	if got := WeiToStorage(wei); got.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("storage = %s, want 7", got)
	}

	// Round-tripping through storage never returns more wei than went in.
	roundTrip := StorageToWei(WeiToStorage(wei))
	if roundTrip.Cmp(wei) > 0 {
		t.Fatalf("round trip %s exceeds original %s", roundTrip, wei)
	}

	if got := WeiToStorage(nil); got.Sign() != 0 {
		t.Fatalf("nil wei = %s, want 0", got)
	}
	if got := StorageToWei(big.NewInt(-5)); got.Sign() != 0 {
		t.Fatalf("negative storage = %s, want 0", got)
	}
}

func TestMulDivFloorsAndGuards(t *testing.T) {
	if got := mulDiv(big.NewInt(10), big.NewInt(3), big.NewInt(4)); got.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("10*3/4 = %s, want 7", got)
	}
	if got := mulDiv(big.NewInt(10), big.NewInt(3), big.NewInt(0)); got.Sign() != 0 {
		t.Fatalf("zero denominator = %s, want 0", got)
	}
	if got := mulDiv(nil, big.NewInt(3), big.NewInt(4)); got.Sign() != 0 {
		t.Fatalf("nil operand = %s, want 0", got)
	}
}

func TestSaturatingSub(t *testing.T) {
	if got := saturatingSub(big.NewInt(5), big.NewInt(8)); got.Sign() != 0 {
		t.Fatalf("5-8 = %s, want 0", got)
	}
	if got := saturatingSub(big.NewInt(8), big.NewInt(5)); got.Cmp(big.NewInt(3)) != 0 {
		t.Fatalf("8-5 = %s, want 3", got)
	}
	if got := saturatingSub(big.NewInt(8), nil); got.Cmp(big.NewInt(8)) != 0 {
		t.Fatalf("8-nil = %s, want 8", got)
	}
}

func TestAccruedInterest(t *testing.T) {
	// 100 at 10% over exactly one year yields 10.
	got := AccruedInterest(big.NewInt(100), 100_000_000, yearMs)
	if got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("interest = %s, want 10", got)
	}

	// Half a year halves the interest.
	got = AccruedInterest(big.NewInt(100), 100_000_000, yearMs/2)
	if got.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("half-year interest = %s, want 5", got)
	}

	if got := AccruedInterest(big.NewInt(100), 0, yearMs); got.Sign() != 0 {
		t.Fatalf("zero rate interest = %s, want 0", got)
	}
	if got := AccruedInterest(nil, 100_000_000, yearMs); got.Sign() != 0 {
		t.Fatalf("nil principal interest = %s, want 0", got)
	}
}
