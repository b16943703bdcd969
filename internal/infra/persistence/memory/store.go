// Package memory provides the in-memory transactional store that every
// persistent driver builds upon. A transaction works on a clone of the state
// and the clone replaces the live state only after the rules engine accepts
// the recorded changes.
package memory

import (
	"context"
	"fmt"
	"math/bits"
	"sort"
	"sync"
	"time"

	"datamarket/pkg/domain"

	"github.com/google/uuid"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// PlatformConfig aliases domain.PlatformConfig.
	PlatformConfig = domain.PlatformConfig
	// Dataset aliases domain.Dataset.
	Dataset = domain.Dataset
	// Purchase aliases domain.Purchase.
	Purchase = domain.Purchase
	// LedgerEntry aliases domain.LedgerEntry.
	LedgerEntry = domain.LedgerEntry
	// Event aliases domain.Event.
	Event = domain.Event
	// Principal aliases domain.Principal.
	Principal = domain.Principal
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	config         *PlatformConfig
	datasets       map[string]Dataset
	purchases      map[string]Purchase
	balances       map[Principal]uint64
	ledger         []LedgerEntry
	events         []Event
	accessRequests map[string]string
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Config         *PlatformConfig      `json:"config,omitempty"`
	Datasets       map[string]Dataset   `json:"datasets"`
	Purchases      map[string]Purchase  `json:"purchases"`
	Balances       map[Principal]uint64 `json:"balances"`
	Ledger         []LedgerEntry        `json:"ledger"`
	Events         []Event              `json:"events"`
	AccessRequests map[string]string    `json:"access_requests"`
}

func newMemoryState() memoryState {
	return memoryState{
		datasets:       make(map[string]Dataset),
		purchases:      make(map[string]Purchase),
		balances:       make(map[Principal]uint64),
		accessRequests: make(map[string]string),
	}
}

// clone copies every map. The ledger and event logs are append-only, so the
// clone shares their backing arrays but caps capacity to force a copy on append.
func (s memoryState) clone() memoryState {
	out := newMemoryState()
	if s.config != nil {
		cfg := *s.config
		out.config = &cfg
	}
	for id, d := range s.datasets {
		out.datasets[id] = cloneDataset(d)
	}
	for id, p := range s.purchases {
		out.purchases[id] = clonePurchase(p)
	}
	for p, amount := range s.balances {
		out.balances[p] = amount
	}
	for req, purchaseID := range s.accessRequests {
		out.accessRequests[req] = purchaseID
	}
	out.ledger = s.ledger[:len(s.ledger):len(s.ledger)]
	out.events = s.events[:len(s.events):len(s.events)]
	return out
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	cloned := state.clone()
	snapshot := Snapshot{
		Config:         cloned.config,
		Datasets:       cloned.datasets,
		Purchases:      cloned.purchases,
		Balances:       cloned.balances,
		Ledger:         append([]LedgerEntry(nil), cloned.ledger...),
		Events:         make([]Event, 0, len(cloned.events)),
		AccessRequests: cloned.accessRequests,
	}
	for _, e := range cloned.events {
		snapshot.Events = append(snapshot.Events, e.Clone())
	}
	return snapshot
}

func memoryStateFromSnapshot(snapshot Snapshot) memoryState {
	state := newMemoryState()
	if snapshot.Config != nil {
		cfg := *snapshot.Config
		state.config = &cfg
	}
	for id, d := range snapshot.Datasets {
		state.datasets[id] = cloneDataset(d)
	}
	for id, p := range snapshot.Purchases {
		state.purchases[id] = clonePurchase(p)
	}
	for p, amount := range snapshot.Balances {
		state.balances[p] = amount
	}
	for req, purchaseID := range snapshot.AccessRequests {
		state.accessRequests[req] = purchaseID
	}
	state.ledger = append([]LedgerEntry(nil), snapshot.Ledger...)
	sort.SliceStable(state.ledger, func(i, j int) bool { return state.ledger[i].Sequence < state.ledger[j].Sequence })
	for _, e := range snapshot.Events {
		state.events = append(state.events, e.Clone())
	}
	sort.SliceStable(state.events, func(i, j int) bool { return state.events[i].Sequence < state.events[j].Sequence })
	return state
}

func cloneDataset(d Dataset) Dataset {
	d.Source.DatasetID = cloneUint64(d.Source.DatasetID)
	d.Source.FileSize = cloneUint64(d.Source.FileSize)
	d.License.MaxOwners = cloneUint32(d.License.MaxOwners)
	d.License.DurationDays = cloneUint32(d.License.DurationDays)
	d.Verification.VerifiedAt = cloneTime(d.Verification.VerifiedAt)
	return d
}

func clonePurchase(p Purchase) Purchase {
	p.ExpiresAt = cloneTime(p.ExpiresAt)
	if p.AccessLog != nil {
		p.AccessLog = append([]domain.AccessRecord(nil), p.AccessLog...)
	}
	return p
}

func cloneUint64(v *uint64) *uint64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneUint32(v *uint32) *uint32 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

// Store provides an in-memory transactional store for marketplace records.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
	commit CommitHook
}

// CommitHook receives the candidate state of a transaction that passed the
// rules engine. It runs under the store lock; a non-nil error aborts the
// commit and leaves the live state untouched.
type CommitHook func(ctx context.Context, candidate Snapshot) error

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the time source used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// WithCommitHook installs a hook that must succeed before a transaction's
// state replaces the live state. Durable drivers write their snapshot here.
func WithCommitHook(hook CommitHook) Option {
	return func(s *Store) {
		s.commit = hook
	}
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the configured engine so callers can register rules.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// RunInTransaction executes fn within a transactional copy of the store state.
// The copy is committed only when fn succeeds and no rule blocks the change set.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if s.commit != nil {
		if err := s.commit(context.WithoutCancel(ctx), snapshotFromMemoryState(tx.state)); err != nil {
			return result, domain.WrapError(domain.CodePersistenceFailed, err, "persist state")
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(newTransactionView(&snapshot))
}

func (tx *transaction) recordChange(entity domain.EntityType, action domain.Action, id string, before, after any) {
	change := Change{Entity: entity, Action: action, EntityID: id}
	if before != nil {
		change.Before = domain.MustChangePayload(before)
	}
	if after != nil {
		change.After = domain.MustChangePayload(after)
	}
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// Now returns the timestamp shared by every write in this transaction.
func (tx *transaction) Now() time.Time { return tx.now }

// PlatformConfig returns the singleton configuration if it exists.
func (tx *transaction) PlatformConfig() (PlatformConfig, bool) {
	if tx.state.config == nil {
		return PlatformConfig{}, false
	}
	return *tx.state.config, true
}

// CreatePlatformConfig stores the singleton configuration.
func (tx *transaction) CreatePlatformConfig(cfg PlatformConfig) (PlatformConfig, error) {
	if tx.state.config != nil {
		return PlatformConfig{}, fmt.Errorf("platform config already exists")
	}
	cfg.ID = domain.PlatformConfigID
	cfg.CreatedAt = tx.now
	cfg.UpdatedAt = tx.now
	stored := cfg
	tx.state.config = &stored
	tx.recordChange(domain.EntityPlatformConfig, domain.ActionCreate, cfg.ID, nil, cfg)
	return cfg, nil
}

// UpdatePlatformConfig mutates the singleton configuration.
func (tx *transaction) UpdatePlatformConfig(mutator func(*PlatformConfig) error) (PlatformConfig, error) {
	if tx.state.config == nil {
		return PlatformConfig{}, fmt.Errorf("platform config not found")
	}
	before := *tx.state.config
	current := before
	if err := mutator(&current); err != nil {
		return PlatformConfig{}, err
	}
	current.ID = domain.PlatformConfigID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	stored := current
	tx.state.config = &stored
	tx.recordChange(domain.EntityPlatformConfig, domain.ActionUpdate, current.ID, before, current)
	return current, nil
}

// FindDataset exposes dataset lookup within the transaction scope.
func (tx *transaction) FindDataset(id string) (Dataset, bool) {
	d, ok := tx.state.datasets[id]
	if !ok {
		return Dataset{}, false
	}
	return cloneDataset(d), true
}

// CreateDataset stores a new dataset. The caller assigns the deterministic ID.
func (tx *transaction) CreateDataset(d Dataset) (Dataset, error) {
	if d.ID == "" {
		return Dataset{}, fmt.Errorf("dataset id required")
	}
	if _, exists := tx.state.datasets[d.ID]; exists {
		return Dataset{}, fmt.Errorf("dataset %q already exists", d.ID)
	}
	d.CreatedAt = tx.now
	d.UpdatedAt = tx.now
	tx.state.datasets[d.ID] = cloneDataset(d)
	tx.recordChange(domain.EntityDataset, domain.ActionCreate, d.ID, nil, d)
	return cloneDataset(d), nil
}

// UpdateDataset mutates a dataset using the provided mutator function.
func (tx *transaction) UpdateDataset(id string, mutator func(*Dataset) error) (Dataset, error) {
	current, ok := tx.state.datasets[id]
	if !ok {
		return Dataset{}, fmt.Errorf("dataset %q not found", id)
	}
	before := cloneDataset(current)
	current = cloneDataset(current)
	if err := mutator(&current); err != nil {
		return Dataset{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.datasets[id] = cloneDataset(current)
	tx.recordChange(domain.EntityDataset, domain.ActionUpdate, id, before, current)
	return cloneDataset(current), nil
}

// DeleteDataset removes a dataset from the transaction state.
func (tx *transaction) DeleteDataset(id string) error {
	current, ok := tx.state.datasets[id]
	if !ok {
		return fmt.Errorf("dataset %q not found", id)
	}
	delete(tx.state.datasets, id)
	tx.recordChange(domain.EntityDataset, domain.ActionDelete, id, current, nil)
	return nil
}

// FindPurchase exposes purchase lookup within the transaction scope.
func (tx *transaction) FindPurchase(id string) (Purchase, bool) {
	p, ok := tx.state.purchases[id]
	if !ok {
		return Purchase{}, false
	}
	return clonePurchase(p), true
}

// CreatePurchase stores a new purchase. The caller assigns the deterministic ID.
func (tx *transaction) CreatePurchase(p Purchase) (Purchase, error) {
	if p.ID == "" {
		return Purchase{}, fmt.Errorf("purchase id required")
	}
	if _, exists := tx.state.purchases[p.ID]; exists {
		return Purchase{}, fmt.Errorf("purchase %q already exists", p.ID)
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.purchases[p.ID] = clonePurchase(p)
	tx.recordChange(domain.EntityPurchase, domain.ActionCreate, p.ID, nil, p)
	return clonePurchase(p), nil
}

// UpdatePurchase mutates a purchase using the provided mutator function.
func (tx *transaction) UpdatePurchase(id string, mutator func(*Purchase) error) (Purchase, error) {
	current, ok := tx.state.purchases[id]
	if !ok {
		return Purchase{}, fmt.Errorf("purchase %q not found", id)
	}
	before := clonePurchase(current)
	current = clonePurchase(current)
	if err := mutator(&current); err != nil {
		return Purchase{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.purchases[id] = clonePurchase(current)
	tx.recordChange(domain.EntityPurchase, domain.ActionUpdate, id, before, current)
	return clonePurchase(current), nil
}

// Balance returns the value held by p.
func (tx *transaction) Balance(p Principal) uint64 {
	return tx.state.balances[p]
}

// Transfer moves value between two accounts and appends a ledger entry.
// ExternalAccount is an unbounded source and sink. A zero amount is a no-op.
func (tx *transaction) Transfer(from, to Principal, amount uint64, reason domain.LedgerReason, reference string) (LedgerEntry, error) {
	if amount == 0 {
		return LedgerEntry{}, nil
	}
	if from == to {
		return LedgerEntry{}, domain.NewError(domain.CodeInvalidPaymentDestination, "transfer from %q to itself", from)
	}
	if from != domain.ExternalAccount {
		held := tx.state.balances[from]
		if held < amount {
			return LedgerEntry{}, domain.NewError(domain.CodePaymentRejected, "%s holds %d, transfer needs %d", from, held, amount)
		}
	}
	if to != domain.ExternalAccount {
		if _, carry := bits.Add64(tx.state.balances[to], amount, 0); carry != 0 {
			return LedgerEntry{}, domain.NewError(domain.CodeArithmeticOverflow, "balance of %s overflows", to)
		}
	}
	if from != domain.ExternalAccount {
		tx.setBalance(from, tx.state.balances[from]-amount)
	}
	if to != domain.ExternalAccount {
		tx.setBalance(to, tx.state.balances[to]+amount)
	}
	var seq uint64 = 1
	if n := len(tx.state.ledger); n > 0 {
		seq = tx.state.ledger[n-1].Sequence + 1
	}
	entry := LedgerEntry{
		ID:        uuid.NewString(),
		Sequence:  seq,
		From:      from,
		To:        to,
		Amount:    amount,
		Reason:    reason,
		Reference: reference,
		At:        tx.now,
	}
	tx.state.ledger = append(tx.state.ledger, entry)
	tx.recordChange(domain.EntityLedgerEntry, domain.ActionCreate, entry.ID, nil, entry)
	return entry, nil
}

func (tx *transaction) setBalance(p Principal, amount uint64) {
	before, existed := tx.state.balances[p]
	tx.state.balances[p] = amount
	action := domain.ActionUpdate
	var beforePayload any = domain.Balance{Principal: p, Amount: before}
	if !existed {
		action = domain.ActionCreate
		beforePayload = nil
	}
	tx.recordChange(domain.EntityBalance, action, string(p), beforePayload, domain.Balance{Principal: p, Amount: amount})
}

// AccessRequest returns the purchase an access request ID was applied to.
func (tx *transaction) AccessRequest(requestID string) (string, bool) {
	id, ok := tx.state.accessRequests[requestID]
	return id, ok
}

// RememberAccessRequest marks a request ID as applied.
func (tx *transaction) RememberAccessRequest(requestID, purchaseID string) {
	tx.state.accessRequests[requestID] = purchaseID
}

// AppendEvent adds an event to the outbox, assigning its ID, sequence and
// timestamp when unset.
func (tx *transaction) AppendEvent(e Event) (Event, error) {
	if e.Type == "" {
		return Event{}, fmt.Errorf("event type required")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.Sequence = 1
	if n := len(tx.state.events); n > 0 {
		e.Sequence = tx.state.events[n-1].Sequence + 1
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = tx.now
	}
	e = e.Clone()
	tx.state.events = append(tx.state.events, e)
	tx.recordChange(domain.EntityEvent, domain.ActionCreate, e.ID, nil, e)
	return e.Clone(), nil
}

// PlatformConfig returns the singleton configuration within the view.
func (v transactionView) PlatformConfig() (PlatformConfig, bool) {
	if v.state.config == nil {
		return PlatformConfig{}, false
	}
	return *v.state.config, true
}

// FindDataset returns a dataset by ID.
func (v transactionView) FindDataset(id string) (Dataset, bool) {
	d, ok := v.state.datasets[id]
	if !ok {
		return Dataset{}, false
	}
	return cloneDataset(d), true
}

// ListDatasets returns every dataset ordered by creation time then ID.
func (v transactionView) ListDatasets() []Dataset {
	out := make([]Dataset, 0, len(v.state.datasets))
	for _, d := range v.state.datasets {
		out = append(out, cloneDataset(d))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// FindPurchase returns a purchase by ID.
func (v transactionView) FindPurchase(id string) (Purchase, bool) {
	p, ok := v.state.purchases[id]
	if !ok {
		return Purchase{}, false
	}
	return clonePurchase(p), true
}

// ListPurchases returns every purchase ordered by purchase time then ID.
func (v transactionView) ListPurchases() []Purchase {
	out := make([]Purchase, 0, len(v.state.purchases))
	for _, p := range v.state.purchases {
		out = append(out, clonePurchase(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PurchasedAt.Equal(out[j].PurchasedAt) {
			return out[i].PurchasedAt.Before(out[j].PurchasedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Balance returns the value held by p.
func (v transactionView) Balance(p Principal) uint64 {
	return v.state.balances[p]
}

// ListBalances returns every balance ordered by principal.
func (v transactionView) ListBalances() []domain.Balance {
	out := make([]domain.Balance, 0, len(v.state.balances))
	for p, amount := range v.state.balances {
		out = append(out, domain.Balance{Principal: p, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Principal < out[j].Principal })
	return out
}

// ListLedgerEntries returns the ledger in sequence order.
func (v transactionView) ListLedgerEntries() []LedgerEntry {
	return append([]LedgerEntry(nil), v.state.ledger...)
}

// ListEvents returns up to limit events with a sequence above afterSequence.
// A non-positive limit returns every remaining event.
func (v transactionView) ListEvents(afterSequence uint64, limit int) []Event {
	events := v.state.events
	start := sort.Search(len(events), func(i int) bool { return events[i].Sequence > afterSequence })
	end := len(events)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	out := make([]Event, 0, end-start)
	for _, e := range events[start:end] {
		out = append(out, e.Clone())
	}
	return out
}
