package custodian

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"pingpay/internal/errs"
	"pingpay/internal/models"
)

// fakeStore mimics the database's exactly-once wallet creation: the
// first insert per handle wins, later inserts return the stored row.
type fakeStore struct {
	mu      sync.Mutex
	wallets map[string]*models.Wallet
}

func newFakeStore() *fakeStore {
	return &fakeStore{wallets: make(map[string]*models.Wallet)}
}

func (f *fakeStore) GetWalletByHandle(_ context.Context, handle string) (*models.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.wallets[handle], nil
}

func (f *fakeStore) CreateWallet(_ context.Context, handle, address, privateKey string) (*models.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.wallets[handle]; ok {
		return existing, nil
	}
	w := &models.Wallet{Handle: handle, Address: address, PrivateKey: privateKey}
	f.wallets[handle] = w
	return w, nil
}

type fakeChain struct {
	tokenBalance  *big.Int
	nativeBalance *big.Int
	feeCost       *big.Int
	submitErr     error
	submitted     int
	lastTo        string
	lastAmount    *big.Int
}

func (f *fakeChain) TokenBalance(context.Context, string) *big.Int {
	if f.tokenBalance == nil {
		return big.NewInt(0)
	}
	return f.tokenBalance
}

func (f *fakeChain) NativeBalance(context.Context, string) *big.Int {
	if f.nativeBalance == nil {
		return big.NewInt(0)
	}
	return f.nativeBalance
}

func (f *fakeChain) FeeCostWei(context.Context) *big.Int {
	if f.feeCost == nil {
		return big.NewInt(0)
	}
	return f.feeCost
}

func (f *fakeChain) SubmitTransfer(_ context.Context, _ string, to string, amount *big.Int) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitted++
	f.lastTo = to
	f.lastAmount = amount
	return "0xdeadbeef", nil
}

// Any valid secp256k1 key works for the fakes; the custodian only
// threads it through.
const testKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func newTestCustodian(store *fakeStore, chain *fakeChain) *Custodian {
	return New(store, chain, zerolog.New(nil))
}

func TestGetOrCreateNormalizesHandle(t *testing.T) {
	c := newTestCustodian(newFakeStore(), &fakeChain{})
	ctx := context.Background()

	first, err := c.GetOrCreate(ctx, "@Alice")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if first.Handle != "alice" {
		t.Errorf("handle = %q, want %q", first.Handle, "alice")
	}

	for _, variant := range []string{"alice", "ALICE", "@alice", " @Alice "} {
		w, err := c.GetOrCreate(ctx, variant)
		if err != nil {
			t.Fatalf("GetOrCreate(%q): %v", variant, err)
		}
		if w.Address != first.Address {
			t.Errorf("GetOrCreate(%q) address = %q, want %q", variant, w.Address, first.Address)
		}
	}
}

func TestProvisionReportsNew(t *testing.T) {
	c := newTestCustodian(newFakeStore(), &fakeChain{})
	ctx := context.Background()

	first, created, err := c.Provision(ctx, "@Alice")
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if !created {
		t.Error("first provision did not report a new wallet")
	}

	second, created, err := c.Provision(ctx, "alice")
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if created {
		t.Error("repeat provision reported a new wallet")
	}
	if second.Address != first.Address {
		t.Errorf("repeat provision address = %q, want %q", second.Address, first.Address)
	}
}

func TestGetOrCreateConcurrent(t *testing.T) {
	c := newTestCustodian(newFakeStore(), &fakeChain{})

	const n = 16
	addresses := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w, err := c.GetOrCreate(context.Background(), "bob")
			if err != nil {
				t.Errorf("GetOrCreate: %v", err)
				return
			}
			addresses[i] = w.Address
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if addresses[i] != addresses[0] {
			t.Fatalf("caller %d observed address %q, caller 0 observed %q", i, addresses[i], addresses[0])
		}
	}
}

func TestSendInsufficientFunds(t *testing.T) {
	store := newFakeStore()
	store.wallets["bob"] = &models.Wallet{Handle: "bob", Address: "0xb0b", PrivateKey: testKey}
	chain := &fakeChain{tokenBalance: big.NewInt(5000000)} // 5 USDC

	c := newTestCustodian(store, chain)
	_, _, err := c.Send(context.Background(), "bob", "0xdest", big.NewInt(10000000))
	if !errs.IsKind(err, errs.InsufficientFunds) {
		t.Fatalf("error kind = %q, want %q", errs.KindOf(err), errs.InsufficientFunds)
	}
	if chain.submitted != 0 {
		t.Errorf("submission attempted despite insufficient funds")
	}
}

func TestSendAllZeroBalance(t *testing.T) {
	store := newFakeStore()
	store.wallets["bob"] = &models.Wallet{Handle: "bob", Address: "0xb0b", PrivateKey: testKey}
	chain := &fakeChain{}

	c := newTestCustodian(store, chain)
	_, _, err := c.SendAll(context.Background(), "bob", "0xdest")
	if !errs.IsKind(err, errs.InsufficientFunds) {
		t.Fatalf("error kind = %q, want %q", errs.KindOf(err), errs.InsufficientFunds)
	}
	if chain.submitted != 0 {
		t.Errorf("submission attempted despite zero balance")
	}
}

func TestSendAllInsufficientGas(t *testing.T) {
	store := newFakeStore()
	store.wallets["bob"] = &models.Wallet{Handle: "bob", Address: "0xb0b", PrivateKey: testKey}
	chain := &fakeChain{
		tokenBalance:  big.NewInt(10000000),
		nativeBalance: big.NewInt(100),
		feeCost:       big.NewInt(1000000),
	}

	c := newTestCustodian(store, chain)
	_, _, err := c.SendAll(context.Background(), "bob", "0xdest")
	if !errs.IsKind(err, errs.InsufficientGas) {
		t.Fatalf("error kind = %q, want %q", errs.KindOf(err), errs.InsufficientGas)
	}
	if chain.submitted != 0 {
		t.Errorf("submission attempted despite insufficient gas")
	}
}

func TestSendAllDrainsBalance(t *testing.T) {
	store := newFakeStore()
	store.wallets["bob"] = &models.Wallet{Handle: "bob", Address: "0xb0b", PrivateKey: testKey}
	chain := &fakeChain{
		tokenBalance:  big.NewInt(10050000),
		nativeBalance: big.NewInt(10000000),
		feeCost:       big.NewInt(1000000),
	}

	c := newTestCustodian(store, chain)
	txHash, amount, err := c.SendAll(context.Background(), "@Bob", "0xdest")
	if err != nil {
		t.Fatalf("SendAll: %v", err)
	}
	if txHash == "" {
		t.Errorf("empty tx hash")
	}
	if amount.Cmp(big.NewInt(10050000)) != 0 {
		t.Errorf("sent %v, want full balance", amount)
	}
	if chain.lastTo != "0xdest" {
		t.Errorf("sent to %q, want 0xdest", chain.lastTo)
	}
}

func TestSendUnknownHandle(t *testing.T) {
	c := newTestCustodian(newFakeStore(), &fakeChain{})
	_, _, err := c.Send(context.Background(), "ghost", "0xdest", big.NewInt(1))
	if !errs.IsKind(err, errs.NotFound) {
		t.Fatalf("error kind = %q, want %q", errs.KindOf(err), errs.NotFound)
	}
}
