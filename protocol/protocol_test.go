package protocol

import (
	"errors"
	"math/big"
	"testing"

	"github.com/Kleo-Protocol/kleo-contracts/crypto"
	nativecommon "github.com/Kleo-Protocol/kleo-contracts/native/common"
	"github.com/Kleo-Protocol/kleo-contracts/native/loan"
	"github.com/Kleo-Protocol/kleo-contracts/native/params"
	"github.com/Kleo-Protocol/kleo-contracts/native/pool"
	"github.com/Kleo-Protocol/kleo-contracts/storage"
)

const yearMs = uint64(31_557_600_000)

func testAddr(b byte) crypto.Address {
	buf := make([]byte, 20)
	buf[19] = b
	return crypto.NewAddress(crypto.KleoPrefix, buf)
}

func wei(amount int64) *big.Int {
	return pool.StorageToWei(big.NewInt(amount))
}

type testEnv struct {
	p   *Protocol
	now uint64
}

// newTestEnv wires a fresh protocol over MemDB with flat 10% rates, no
// reserve skim, no star discount and a unit tier scaling factor so the
// lifecycle numbers stay exact.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	p, err := New(storage.NewMemDB())
	if err != nil {
		t.Fatalf("new protocol: %v", err)
	}
	env := &testEnv{p: p, now: 1_000_000}
	p.SetNowFunc(func() uint64 { return env.now })

	if err := p.Params.SetRates(params.Rates{
		BaseRate:             100_000_000,
		OptimalUtilization:   params.RateScale,
		Slope1:               0,
		Slope2:               0,
		MaxRate:              params.RateScale,
		ReserveFactorPercent: 0,
	}); err != nil {
		t.Fatalf("set rates: %v", err)
	}
	if err := p.Params.SetVouching(params.Vouching{
		ExposureCap:     params.RateScale,
		MinStarsToVouch: 1,
		Boost:           2,
	}); err != nil {
		t.Fatalf("set vouching: %v", err)
	}
	loans := params.DefaultLoans()
	loans.TierScalingFactor = 1
	loans.StarDiscountPercentPerStar = 0
	loans.GracePeriodMs = 500_000
	if err := p.Params.SetLoans(loans); err != nil {
		t.Fatalf("set loans: %v", err)
	}
	return env
}

// earnStars builds a user's reputation past the creation cooldown.
func (env *testEnv) earnStars(t *testing.T, user crypto.Address, target uint32) {
	t.Helper()
	if err := env.p.Reputation.AddStars(user, 0); err != nil {
		t.Fatalf("create reputation: %v", err)
	}
	env.now += params.DefaultReputation().CooldownPeriodMs
	if err := env.p.Reputation.AddStars(user, target-1); err != nil {
		t.Fatalf("add stars: %v", err)
	}
}

// openLoan funds a lender, deposits 1000 into the pool, and walks a loan of
// 100 through request and vouch to activation.
func (env *testEnv) openLoan(t *testing.T, lender, borrower crypto.Address, termMs uint64) uint64 {
	t.Helper()
	env.earnStars(t, borrower, 10)
	env.earnStars(t, lender, 20)

	if err := env.p.FundAccount(lender, wei(1_000)); err != nil {
		t.Fatalf("fund lender: %v", err)
	}
	if err := env.p.Pool.Deposit(lender, wei(1_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	id, err := env.p.Loans.RequestLoan(borrower, big.NewInt(100), termMs)
	if err != nil {
		t.Fatalf("request loan: %v", err)
	}
	if err := env.p.Loans.VouchForLoan(id, lender, 10, 20); err != nil {
		t.Fatalf("vouch: %v", err)
	}
	return id
}

func TestLoanLifecycleRepaid(t *testing.T) {
	env := newTestEnv(t)
	lender := testAddr(1)
	borrower := testAddr(2)
	if err := env.p.FundAccount(borrower, wei(50)); err != nil {
		t.Fatalf("fund borrower: %v", err)
	}

	id := env.openLoan(t, lender, borrower, 2*yearMs)

	record, err := env.p.Loans.GetLoan(id)
	if err != nil {
		t.Fatalf("get loan: %v", err)
	}
	if record.Status != loan.StatusActive {
		t.Fatalf("status = %v, want active", record.Status)
	}
	if record.InterestRate != 100_000_000 {
		t.Fatalf("rate = %d, want flat 10%%", record.InterestRate)
	}
	// Disbursement landed in the borrower's account.
	balance, err := env.p.Balance(borrower)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(wei(150)) != 0 {
		t.Fatalf("borrower balance = %s, want %s", balance, wei(150))
	}

	env.now += yearMs
	due, err := env.p.Loans.RepaymentAmount(id)
	if err != nil {
		t.Fatalf("repayment amount: %v", err)
	}
	if due.Cmp(big.NewInt(110)) != 0 {
		t.Fatalf("due = %s, want 110 after one year at 10%%", due)
	}
	if err := env.p.Loans.RepayLoan(id, borrower, pool.StorageToWei(due)); err != nil {
		t.Fatalf("repay: %v", err)
	}

	record, err = env.p.Loans.GetLoan(id)
	if err != nil {
		t.Fatalf("get loan: %v", err)
	}
	if record.Status != loan.StatusRepaid {
		t.Fatalf("status = %v, want repaid", record.Status)
	}
	balance, err = env.p.Balance(borrower)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(wei(40)) != 0 {
		t.Fatalf("borrower balance = %s, want %s", balance, wei(40))
	}

	// The voucher's stake came back with the boost on top.
	stars, err := env.p.Reputation.Stars(lender)
	if err != nil {
		t.Fatalf("stars: %v", err)
	}
	if stars != 22 {
		t.Fatalf("voucher stars = %d, want 22", stars)
	}
	available, err := env.p.Pool.AvailableBalance(lender)
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	if available.Sign() == 0 {
		t.Fatal("voucher capital still locked after resolution")
	}

	borrowed, err := env.p.Pool.TotalLiquidity()
	if err != nil {
		t.Fatalf("liquidity: %v", err)
	}
	if borrowed.Cmp(big.NewInt(1_020)) != 0 {
		t.Fatalf("liquidity = %s, want 1020", borrowed)
	}
	yield, err := env.p.Pool.UserYield(lender)
	if err != nil {
		t.Fatalf("yield: %v", err)
	}
	if yield.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("lender yield = %s, want 20", yield)
	}

	exposure, err := env.p.Vouches.Exposure(borrower)
	if err != nil {
		t.Fatalf("exposure: %v", err)
	}
	if exposure.Sign() != 0 {
		t.Fatalf("exposure = %s, want 0 after resolution", exposure)
	}
}

func TestLoanLifecycleDefaulted(t *testing.T) {
	env := newTestEnv(t)
	lender := testAddr(1)
	borrower := testAddr(2)

	id := env.openLoan(t, lender, borrower, 1_000_000)

	// Not overdue until term plus grace has fully elapsed.
	env.now += 1_000_000 + 500_000
	if err := env.p.Loans.CheckDefault(id); !errors.Is(err, loan.ErrLoanNotOverdue) {
		t.Fatalf("err = %v, want ErrLoanNotOverdue", err)
	}

	env.now++
	if err := env.p.Loans.CheckDefault(id); err != nil {
		t.Fatalf("default: %v", err)
	}

	record, err := env.p.Loans.GetLoan(id)
	if err != nil {
		t.Fatalf("get loan: %v", err)
	}
	if record.Status != loan.StatusDefaulted {
		t.Fatalf("status = %v, want defaulted", record.Status)
	}

	// The borrower's 10 stars were wiped by the 100-star penalty and the
	// account is permanently banned.
	rep, ok, err := env.p.Reputation.Reputation(borrower)
	if err != nil || !ok {
		t.Fatalf("reputation: ok=%v err=%v", ok, err)
	}
	if rep.Stars != 0 || !rep.Banned {
		t.Fatalf("borrower record = %+v, want banned at zero", rep)
	}

	// The voucher forfeited the staked stars.
	stars, err := env.p.Reputation.Stars(lender)
	if err != nil {
		t.Fatalf("stars: %v", err)
	}
	if stars != 10 {
		t.Fatalf("voucher stars = %d, want 10", stars)
	}

	// Slashed capital (200) covered the 100 principal in full, so nothing
	// was booked as an unrecovered loss and the loan left the book.
	liquidity, err := env.p.Pool.TotalLiquidity()
	if err != nil {
		t.Fatalf("liquidity: %v", err)
	}
	if liquidity.Cmp(big.NewInt(800)) != 0 {
		t.Fatalf("liquidity = %s, want 800", liquidity)
	}

	// Terminal state: repayment is no longer possible.
	if err := env.p.Loans.RepayLoan(id, borrower, wei(100)); !errors.Is(err, loan.ErrLoanNotActive) {
		t.Fatalf("repay err = %v, want ErrLoanNotActive", err)
	}
}

func TestRepayLoanSucceedsWithBannedVoucher(t *testing.T) {
	env := newTestEnv(t)
	lender := testAddr(1)
	borrower := testAddr(2)
	if err := env.p.FundAccount(borrower, wei(50)); err != nil {
		t.Fatalf("fund borrower: %v", err)
	}

	id := env.openLoan(t, lender, borrower, 2*yearMs)

	// The voucher loses their free stars to a slash and is banned while the
	// loan is still active.
	if err := env.p.Reputation.SlashStars(lender, 10); err != nil {
		t.Fatalf("slash: %v", err)
	}

	env.now += yearMs
	due, err := env.p.Loans.RepaymentAmount(id)
	if err != nil {
		t.Fatalf("repayment amount: %v", err)
	}
	if err := env.p.Loans.RepayLoan(id, borrower, pool.StorageToWei(due)); err != nil {
		t.Fatalf("repay: %v", err)
	}

	record, err := env.p.Loans.GetLoan(id)
	if err != nil {
		t.Fatalf("get loan: %v", err)
	}
	if record.Status != loan.StatusRepaid {
		t.Fatalf("status = %v, want repaid", record.Status)
	}

	// The banned voucher's capital is released even though their stake
	// cannot return.
	available, err := env.p.Pool.AvailableBalance(lender)
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	if available.Sign() == 0 {
		t.Fatal("voucher capital still locked after resolution")
	}
	rep, ok, err := env.p.Reputation.Reputation(lender)
	if err != nil || !ok {
		t.Fatalf("reputation: ok=%v err=%v", ok, err)
	}
	if rep.Stars != 0 || !rep.Banned {
		t.Fatalf("voucher record = %+v, want banned at zero", rep)
	}

	exposure, err := env.p.Vouches.Exposure(borrower)
	if err != nil {
		t.Fatalf("exposure: %v", err)
	}
	if exposure.Sign() != 0 {
		t.Fatalf("exposure = %s, want 0 after resolution", exposure)
	}
}

func TestPauseSwitchHaltsModule(t *testing.T) {
	env := newTestEnv(t)
	lender := testAddr(1)
	if err := env.p.FundAccount(lender, wei(100)); err != nil {
		t.Fatalf("fund: %v", err)
	}

	if err := env.p.Params.SetPauses(params.Pauses{Pool: true}); err != nil {
		t.Fatalf("set pauses: %v", err)
	}
	if err := env.p.Pool.Deposit(lender, wei(100)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("err = %v, want ErrModulePaused", err)
	}

	// Lifting the pause is picked up without rewiring.
	if err := env.p.Params.SetPauses(params.Pauses{}); err != nil {
		t.Fatalf("clear pauses: %v", err)
	}
	if err := env.p.Pool.Deposit(lender, wei(100)); err != nil {
		t.Fatalf("deposit after unpause: %v", err)
	}
}

func TestStatePersistsAcrossInstances(t *testing.T) {
	db := storage.NewMemDB()
	first, err := New(db)
	if err != nil {
		t.Fatalf("new protocol: %v", err)
	}
	lender := testAddr(1)
	if err := first.FundAccount(lender, wei(500)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if err := first.Pool.Deposit(lender, wei(500)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	second, err := New(db)
	if err != nil {
		t.Fatalf("reopen protocol: %v", err)
	}
	deposit, err := second.Pool.UserDeposit(lender)
	if err != nil {
		t.Fatalf("user deposit: %v", err)
	}
	if deposit.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("deposit = %s, want 500", deposit)
	}
}
