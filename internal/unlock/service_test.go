package unlock

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/khidma/backend/internal/ledger"
	"github.com/khidma/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Transaction-aware in-memory mocks. memTx collects undo closures so a
// rollback actually reverses the mutations made inside it, which is what
// the double-unlock race tests depend on.
// ---------------------------------------------------------------------------

type memTx struct {
	mu   sync.Mutex
	undo []func()
	done bool
}

func (t *memTx) onRollback(f func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.undo = append(t.undo, f)
}

func (t *memTx) Commit(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done = true
	return nil
}

func (t *memTx) Rollback(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	return nil
}

func (t *memTx) Begin(context.Context) (pgx.Tx, error) { return t, nil }
func (t *memTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *memTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (t *memTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (t *memTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *memTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (t *memTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (t *memTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *memTx) Conn() *pgx.Conn { return nil }

type mockPool struct{}

func (mockPool) Begin(context.Context) (pgx.Tx, error) { return &memTx{}, nil }

// --- wallet mock: implements both unlock.WalletDirectory and ledger.WalletStore ---

type mockWallets struct {
	mu      sync.Mutex
	wallets map[uuid.UUID]*models.Wallet
}

func newMockWallets(ws ...*models.Wallet) *mockWallets {
	m := &mockWallets{wallets: make(map[uuid.UUID]*models.Wallet)}
	for _, w := range ws {
		cp := *w
		m.wallets[w.ID] = &cp
	}
	return m
}

func (m *mockWallets) GetOrCreateByProvider(_ context.Context, providerID uuid.UUID) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.wallets {
		if w.ProviderID == providerID {
			cp := *w
			return &cp, nil
		}
	}
	w := &models.Wallet{ID: uuid.New(), ProviderID: providerID, Currency: models.DefaultCurrency}
	m.wallets[w.ID] = w
	cp := *w
	return &cp, nil
}

func (m *mockWallets) GetByIDForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *w
	return &cp, nil
}

func (m *mockWallets) GetByProviderForUpdate(_ context.Context, _ pgx.Tx, providerID uuid.UUID) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.wallets {
		if w.ProviderID == providerID {
			cp := *w
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockWallets) Credit(_ context.Context, tx pgx.Tx, id uuid.UUID, amountCents int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[id]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	w.BalanceCents += amountCents
	if mt, ok := tx.(*memTx); ok {
		mt.onRollback(func() { m.add(id, -amountCents) })
	}
	return w.BalanceCents, nil
}

func (m *mockWallets) Debit(_ context.Context, tx pgx.Tx, id uuid.UUID, amountCents int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[id]
	if !ok || w.BalanceCents < amountCents {
		return 0, pgx.ErrNoRows
	}
	w.BalanceCents -= amountCents
	if mt, ok := tx.(*memTx); ok {
		mt.onRollback(func() { m.add(id, amountCents) })
	}
	return w.BalanceCents, nil
}

func (m *mockWallets) add(id uuid.UUID, delta int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.wallets[id]; ok {
		w.BalanceCents += delta
	}
}

func (m *mockWallets) balance(id uuid.UUID) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wallets[id].BalanceCents
}

// --- transaction store mock (ledger.TransactionStore) ---

type mockTxns struct {
	mu   sync.Mutex
	rows []*models.WalletTransaction
}

func (m *mockTxns) CreateTx(_ context.Context, tx pgx.Tx, t *models.WalletTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.rows = append(m.rows, &cp)
	if mt, ok := tx.(*memTx); ok {
		id := cp.ID
		mt.onRollback(func() { m.remove(id) })
	}
	return nil
}

func (m *mockTxns) remove(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.rows {
		if r.ID == id {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return
		}
	}
}

func (m *mockTxns) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// --- unlock store mock: enforces the partial unique index ---

type mockUnlockStore struct {
	mu      sync.Mutex
	unlocks map[uuid.UUID]*models.LeadUnlock
}

func newMockUnlockStore() *mockUnlockStore {
	return &mockUnlockStore{unlocks: make(map[uuid.UUID]*models.LeadUnlock)}
}

func (m *mockUnlockStore) CreateTx(_ context.Context, tx pgx.Tx, u *models.LeadUnlock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.unlocks {
		if existing.RequestID == u.RequestID && existing.ProviderID == u.ProviderID &&
			existing.Status == models.UnlockStatusCompleted {
			return &pgconn.PgError{Code: "23505", ConstraintName: "uq_lead_unlocks_active"}
		}
	}
	cp := *u
	m.unlocks[u.ID] = &cp
	if mt, ok := tx.(*memTx); ok {
		id := cp.ID
		mt.onRollback(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.unlocks, id)
		})
	}
	return nil
}

func (m *mockUnlockStore) FindCompleted(_ context.Context, requestID, providerID uuid.UUID) (*models.LeadUnlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.unlocks {
		if u.RequestID == requestID && u.ProviderID == providerID && u.Status == models.UnlockStatusCompleted {
			cp := *u
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockUnlockStore) ListByProvider(_ context.Context, providerID uuid.UUID) ([]*models.LeadUnlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.LeadUnlock
	for _, u := range m.unlocks {
		if u.ProviderID == providerID {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockUnlockStore) markRefunded(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.unlocks[id]; ok {
		u.Status = models.UnlockStatusRefunded
	}
}

func (m *mockUnlockStore) completedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, u := range m.unlocks {
		if u.Status == models.UnlockStatusCompleted {
			n++
		}
	}
	return n
}

// --- request store mock ---

type mockRequests struct {
	requests map[uuid.UUID]*models.ServiceRequest
}

func (m *mockRequests) GetByID(_ context.Context, id uuid.UUID) (*models.ServiceRequest, error) {
	req, ok := m.requests[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return req, nil
}

// --- access cache mock ---

type mockAccess struct {
	mu     sync.Mutex
	grants map[string]bool
}

func newMockAccess() *mockAccess { return &mockAccess{grants: make(map[string]bool)} }

func (m *mockAccess) key(p, r uuid.UUID) string { return p.String() + "/" + r.String() }

func (m *mockAccess) Grant(_ context.Context, providerID, requestID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grants[m.key(providerID, requestID)] = true
	return nil
}

func (m *mockAccess) Has(_ context.Context, providerID, requestID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.grants[m.key(providerID, requestID)], nil
}

// ---------------------------------------------------------------------------
// Test fixture
// ---------------------------------------------------------------------------

type fixture struct {
	svc      Service
	wallets  *mockWallets
	txns     *mockTxns
	unlocks  *mockUnlockStore
	access   *mockAccess
	walletID uuid.UUID
	provider uuid.UUID
	request  uuid.UUID
}

func newFixture(t *testing.T, balanceCents, feeCents int64) *fixture {
	t.Helper()
	provider := uuid.New()
	walletID := uuid.New()
	requestID := uuid.New()

	wallets := newMockWallets(&models.Wallet{
		ID:           walletID,
		ProviderID:   provider,
		BalanceCents: balanceCents,
		Currency:     models.DefaultCurrency,
	})
	txns := &mockTxns{}
	unlocks := newMockUnlockStore()
	access := newMockAccess()
	reqs := &mockRequests{requests: map[uuid.UUID]*models.ServiceRequest{
		requestID: {
			ID:             requestID,
			ClientID:       uuid.New(),
			Title:          "kitchen renovation",
			UnlockFeeCents: feeCents,
			Status:         models.RequestStatusOpen,
		},
	}}

	ledgerSvc := ledger.NewService(mockPool{}, wallets, txns, nil, nil, nil, nil)
	svc := NewService(mockPool{}, reqs, unlocks, wallets, ledgerSvc, access, nil, nil)

	return &fixture{
		svc:      svc,
		wallets:  wallets,
		txns:     txns,
		unlocks:  unlocks,
		access:   access,
		walletID: walletID,
		provider: provider,
		request:  requestID,
	}
}

// ---------------------------------------------------------------------------
// 1. TestUnlockRequest
// ---------------------------------------------------------------------------

func TestUnlockRequest(t *testing.T) {
	f := newFixture(t, 500_00, 50_00)
	ctx := context.Background()

	u, err := f.svc.UnlockRequest(ctx, f.provider, f.request)
	if err != nil {
		t.Fatalf("UnlockRequest: %v", err)
	}

	if got := f.wallets.balance(f.walletID); got != 450_00 {
		t.Errorf("balance after unlock: got %d, want %d", got, 450_00)
	}
	if u.Status != models.UnlockStatusCompleted {
		t.Errorf("unlock status: got %q, want %q", u.Status, models.UnlockStatusCompleted)
	}
	if u.UnlockFeeCents != 50_00 {
		t.Errorf("unlock fee: got %d, want %d", u.UnlockFeeCents, 50_00)
	}
	if u.WalletTransactionID == uuid.Nil {
		t.Error("unlock should link to its debit transaction")
	}
	if f.txns.count() != 1 {
		t.Errorf("expected exactly one ledger row, got %d", f.txns.count())
	}

	// Contact access is cached after commit.
	if ok, _ := f.access.Has(ctx, f.provider, f.request); !ok {
		t.Error("access cache should be warm after unlock")
	}
	if ok, err := f.svc.HasAccess(ctx, f.provider, f.request); err != nil || !ok {
		t.Errorf("HasAccess: got %v, %v, want true", ok, err)
	}

	if _, err := f.svc.UnlockRequest(ctx, f.provider, uuid.New()); err != ErrRequestNotFound {
		t.Errorf("unknown request: expected ErrRequestNotFound, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// 2. TestUnlockRequest_AlreadyUnlocked
// ---------------------------------------------------------------------------

func TestUnlockRequest_AlreadyUnlocked(t *testing.T) {
	f := newFixture(t, 500_00, 50_00)
	ctx := context.Background()

	if _, err := f.svc.UnlockRequest(ctx, f.provider, f.request); err != nil {
		t.Fatalf("first unlock: %v", err)
	}
	if _, err := f.svc.UnlockRequest(ctx, f.provider, f.request); err != ErrAlreadyUnlocked {
		t.Fatalf("second unlock: expected ErrAlreadyUnlocked, got %v", err)
	}

	// Only charged once.
	if got := f.wallets.balance(f.walletID); got != 450_00 {
		t.Errorf("balance: got %d, want %d", got, 450_00)
	}
	if f.unlocks.completedCount() != 1 {
		t.Errorf("completed unlocks: got %d, want 1", f.unlocks.completedCount())
	}
}

// ---------------------------------------------------------------------------
// 3. TestUnlockRequest_InsufficientBalance
// ---------------------------------------------------------------------------

func TestUnlockRequest_InsufficientBalance(t *testing.T) {
	f := newFixture(t, 20_00, 50_00)
	ctx := context.Background()

	_, err := f.svc.UnlockRequest(ctx, f.provider, f.request)
	if err != ledger.ErrInsufficientBalance {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	if got := f.wallets.balance(f.walletID); got != 20_00 {
		t.Errorf("balance must be unchanged: got %d, want %d", got, 20_00)
	}
	if f.unlocks.completedCount() != 0 {
		t.Error("no unlock row may exist after a failed charge")
	}
	if f.txns.count() != 0 {
		t.Error("no ledger row may exist after a failed charge")
	}
	if ok, _ := f.svc.HasAccess(ctx, f.provider, f.request); ok {
		t.Error("no access may be granted after a failed charge")
	}
}

// ---------------------------------------------------------------------------
// 4. TestUnlockRequest_ConcurrentSingleCharge
// ---------------------------------------------------------------------------

// Two attempts racing past the duplicate fast path must resolve to
// exactly one charge; the loser's debit rolls back with its transaction.
func TestUnlockRequest_ConcurrentSingleCharge(t *testing.T) {
	f := newFixture(t, 500_00, 50_00)
	ctx := context.Background()

	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.UnlockRequest(ctx, f.provider, f.request)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for i, err := range errs {
		switch err {
		case nil:
			succeeded++
		case ErrAlreadyUnlocked:
		default:
			t.Errorf("attempt %d: unexpected error %v", i, err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("successful unlocks: got %d, want exactly 1", succeeded)
	}
	if got := f.wallets.balance(f.walletID); got != 450_00 {
		t.Errorf("balance: got %d, want %d (charged once)", got, 450_00)
	}
	if f.unlocks.completedCount() != 1 {
		t.Errorf("completed unlocks: got %d, want 1", f.unlocks.completedCount())
	}
	if f.txns.count() != 1 {
		t.Errorf("ledger rows: got %d, want 1", f.txns.count())
	}
}

// ---------------------------------------------------------------------------
// 5. TestUnlockRequest_AfterRefund
// ---------------------------------------------------------------------------

// A refunded unlock no longer blocks a fresh unlock for the same pair:
// the partial unique index only covers status = 'completed'.
func TestUnlockRequest_AfterRefund(t *testing.T) {
	f := newFixture(t, 500_00, 50_00)
	ctx := context.Background()

	first, err := f.svc.UnlockRequest(ctx, f.provider, f.request)
	if err != nil {
		t.Fatalf("first unlock: %v", err)
	}
	f.unlocks.markRefunded(first.ID)

	second, err := f.svc.UnlockRequest(ctx, f.provider, f.request)
	if err != nil {
		t.Fatalf("unlock after refund: %v", err)
	}
	if second.ID == first.ID {
		t.Error("re-unlock must create a new unlock row")
	}
	if got := f.wallets.balance(f.walletID); got != 400_00 {
		t.Errorf("balance: got %d, want %d (charged twice)", got, 400_00)
	}
	if f.unlocks.completedCount() != 1 {
		t.Errorf("completed unlocks: got %d, want 1", f.unlocks.completedCount())
	}
}

// ---------------------------------------------------------------------------
// 6. TestHasAccess_CacheFallback
// ---------------------------------------------------------------------------

func TestHasAccess_CacheFallback(t *testing.T) {
	f := newFixture(t, 500_00, 50_00)
	ctx := context.Background()

	if _, err := f.svc.UnlockRequest(ctx, f.provider, f.request); err != nil {
		t.Fatalf("unlock: %v", err)
	}

	// Simulate a cache flush: the DB row must still answer, and the
	// lookup re-warms the cache.
	f.access.mu.Lock()
	f.access.grants = make(map[string]bool)
	f.access.mu.Unlock()

	ok, err := f.svc.HasAccess(ctx, f.provider, f.request)
	if err != nil || !ok {
		t.Fatalf("HasAccess after cache flush: got %v, %v, want true", ok, err)
	}
	if warm, _ := f.access.Has(ctx, f.provider, f.request); !warm {
		t.Error("cache should be re-warmed by the DB fallback")
	}

	if ok, _ := f.svc.HasAccess(ctx, uuid.New(), f.request); ok {
		t.Error("unrelated provider must not have access")
	}
}
