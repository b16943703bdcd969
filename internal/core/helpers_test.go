package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"datamarket/internal/infra/persistence/memory"
	"datamarket/pkg/domain"
)

const (
	testAdmin    Principal = "admin"
	testVerifier Principal = "verifier"
	testTreasury Principal = "treasury"
	testOwner    Principal = "alice"
	testBuyer    Principal = "bob"

	testPrice uint64 = 100_000
)

// testClock is a settable clock shared by the store and the service.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func uint64Ptr(v uint64) *uint64 { return &v }
func uint32Ptr(v uint32) *uint32 { return &v }
func strPtr(v string) *string    { return &v }

type market struct {
	svc   *Service
	store *memory.Store
	clock *testClock
}

// newMarket returns an initialized marketplace with the default rules, a
// 500 bps fee, one unit of deposit per byte, and funded owner and buyer.
func newMarket(t *testing.T, opts ...Option) market {
	t.Helper()
	clock := newTestClock()
	store := memory.NewStore(NewDefaultRulesEngine(), memory.WithClock(clock.Now))
	svc := NewService(store, opts...)
	ctx := context.Background()
	if _, _, err := svc.InitializePlatform(ctx, testAdmin, PlatformInit{
		Verifier:       testVerifier,
		Treasury:       testTreasury,
		DepositPerByte: 1,
	}); err != nil {
		t.Fatalf("initialize platform: %v", err)
	}
	for _, p := range []Principal{testOwner, testBuyer} {
		if _, _, err := svc.Deposit(ctx, p, 10_000_000); err != nil {
			t.Fatalf("deposit %s: %v", p, err)
		}
	}
	return market{svc: svc, store: store, clock: clock}
}

func computedInput(key string) RegisterInput {
	return RegisterInput{
		Key:         key,
		MetadataURI: "ipfs://meta/" + key,
		Computed:    &ComputedHash{FileKey: "files/" + key, DatasetID: 7, FileSize: 4096},
		Price:       testPrice,
	}
}

func (m market) register(t *testing.T, key string) Dataset {
	t.Helper()
	d, _, err := m.svc.Register(context.Background(), testOwner, computedInput(key))
	if err != nil {
		t.Fatalf("register %s: %v", key, err)
	}
	return d
}

func (m market) registerWith(t *testing.T, in RegisterInput) Dataset {
	t.Helper()
	d, _, err := m.svc.Register(context.Background(), testOwner, in)
	if err != nil {
		t.Fatalf("register %s: %v", in.Key, err)
	}
	return d
}

func (m market) verify(t *testing.T, id string, score int) Dataset {
	t.Helper()
	d, _, err := m.svc.Verify(context.Background(), testVerifier, id, VerifyInput{Score: score})
	if err != nil {
		t.Fatalf("verify %s: %v", id, err)
	}
	return d
}

// listed registers and verifies a purchasable dataset.
func (m market) listed(t *testing.T, key string) Dataset {
	t.Helper()
	d := m.register(t, key)
	return m.verify(t, d.ID, 75)
}

func (m market) dataset(t *testing.T, id string) Dataset {
	t.Helper()
	d, err := m.svc.GetDataset(context.Background(), id)
	if err != nil {
		t.Fatalf("get dataset %s: %v", id, err)
	}
	return d
}

func (m market) config(t *testing.T) PlatformConfig {
	t.Helper()
	cfg, err := m.svc.GetPlatformConfig(context.Background())
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	return cfg
}

func (m market) balance(t *testing.T, p Principal) uint64 {
	t.Helper()
	amount, err := m.svc.Balance(context.Background(), p)
	if err != nil {
		t.Fatalf("balance %s: %v", p, err)
	}
	return amount
}

func (m market) lastEvent(t *testing.T) Event {
	t.Helper()
	events, err := m.svc.Events(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) == 0 {
		t.Fatalf("expected events")
	}
	return events[len(events)-1]
}

func (m market) eventCount(t *testing.T) int {
	t.Helper()
	events, err := m.svc.Events(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	return len(events)
}

func expectCode(t *testing.T, err error, code domain.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", code)
	}
	if got := domain.CodeOf(err); got != code {
		t.Fatalf("expected %s, got %s (%v)", code, got, err)
	}
}
