package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"marketplace-escrow/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// The fakes below back the full application stack in integration tests.
// Reads return copies so service-side mutation only persists through an
// explicit Update, mirroring how the SQL repos behave.

// --- In-Memory User Repo ---

type inMemoryUserRepo struct {
	mu    sync.RWMutex
	users map[uuid.UUID]domain.User
}

func newInMemoryUserRepo() *inMemoryUserRepo {
	return &inMemoryUserRepo{users: make(map[uuid.UUID]domain.User)}
}

func (r *inMemoryUserRepo) Create(ctx context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Username == u.Username {
			return fmt.Errorf("username already exists")
		}
	}
	r.users[u.ID] = *u
	return nil
}

func (r *inMemoryUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *inMemoryUserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Username == username {
			out := u
			return &out, nil
		}
	}
	return nil, nil
}

// --- In-Memory Currency Repo ---

type inMemoryCurrencyRepo struct {
	mu         sync.RWMutex
	currencies map[string]domain.Currency
}

func newInMemoryCurrencyRepo() *inMemoryCurrencyRepo {
	return &inMemoryCurrencyRepo{currencies: make(map[string]domain.Currency)}
}

func (r *inMemoryCurrencyRepo) Upsert(ctx context.Context, c *domain.Currency) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currencies[c.Code] = *c
	return nil
}

func (r *inMemoryCurrencyRepo) GetByCode(ctx context.Context, code string) (*domain.Currency, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.currencies[code]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *inMemoryCurrencyRepo) List(ctx context.Context) ([]domain.Currency, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Currency, 0, len(r.currencies))
	for _, c := range r.currencies {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// --- In-Memory Wallet Repo ---

type inMemoryWalletRepo struct {
	mu      sync.RWMutex
	wallets map[uuid.UUID]domain.Wallet
	entries map[uuid.UUID][]domain.WalletEntry
}

func newInMemoryWalletRepo() *inMemoryWalletRepo {
	return &inMemoryWalletRepo{
		wallets: make(map[uuid.UUID]domain.Wallet),
		entries: make(map[uuid.UUID][]domain.WalletEntry),
	}
}

func (r *inMemoryWalletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wallets[w.ID] = *w
	return nil
}

func (r *inMemoryWalletRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.wallets {
		if w.UserID == userID {
			out := w
			return &out, nil
		}
	}
	return nil, nil
}

func (r *inMemoryWalletRepo) GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error) {
	return r.GetByUserID(ctx, userID)
}

func (r *inMemoryWalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balance decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[walletID]
	if !ok {
		return fmt.Errorf("wallet not found")
	}
	w.Balance = balance
	w.UpdatedAt = time.Now().UTC()
	r.wallets[walletID] = w
	return nil
}

func (r *inMemoryWalletRepo) AppendEntry(ctx context.Context, tx pgx.Tx, entry *domain.WalletEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := *entry
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	r.entries[e.WalletID] = append(r.entries[e.WalletID], e)
	return nil
}

func (r *inMemoryWalletRepo) ListEntries(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]domain.WalletEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.entries[walletID]
	if offset >= len(all) {
		return []domain.WalletEntry{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	out := make([]domain.WalletEntry, end-offset)
	copy(out, all[offset:end])
	return out, nil
}

// --- In-Memory Order Repo ---

type inMemoryOrderRepo struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]domain.Order
}

func newInMemoryOrderRepo() *inMemoryOrderRepo {
	return &inMemoryOrderRepo{orders: make(map[uuid.UUID]domain.Order)}
}

func (r *inMemoryOrderRepo) Create(ctx context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = *o
	return nil
}

func (r *inMemoryOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (r *inMemoryOrderRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.OrderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return fmt.Errorf("order not found")
	}
	o.Status = status
	o.UpdatedAt = time.Now().UTC()
	r.orders[id] = o
	return nil
}

// --- In-Memory Payment Repo ---

type inMemoryPaymentRepo struct {
	mu       sync.RWMutex
	payments map[uuid.UUID]domain.Payment
}

func newInMemoryPaymentRepo() *inMemoryPaymentRepo {
	return &inMemoryPaymentRepo{payments: make(map[uuid.UUID]domain.Payment)}
}

func (r *inMemoryPaymentRepo) Create(ctx context.Context, tx pgx.Tx, p *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments[p.ID] = *p
	return nil
}

func (r *inMemoryPaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *inMemoryPaymentRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Payment, error) {
	return r.GetByID(ctx, id)
}

func (r *inMemoryPaymentRepo) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.payments {
		if p.OrderID == orderID {
			out := p
			return &out, nil
		}
	}
	return nil, nil
}

func (r *inMemoryPaymentRepo) Update(ctx context.Context, tx pgx.Tx, p *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.payments[p.ID]; !ok {
		return fmt.Errorf("payment not found")
	}
	stored := *p
	stored.UpdatedAt = time.Now().UTC()
	r.payments[p.ID] = stored
	return nil
}

// --- In-Memory Escrow Repo ---

type inMemoryEscrowRepo struct {
	mu      sync.RWMutex
	escrows map[uuid.UUID]domain.Escrow
	history map[uuid.UUID][]domain.EscrowHistoryEntry
}

func newInMemoryEscrowRepo() *inMemoryEscrowRepo {
	return &inMemoryEscrowRepo{
		escrows: make(map[uuid.UUID]domain.Escrow),
		history: make(map[uuid.UUID][]domain.EscrowHistoryEntry),
	}
}

func copyEscrow(e domain.Escrow) domain.Escrow {
	out := e
	if e.Dispute != nil {
		d := *e.Dispute
		out.Dispute = &d
	}
	return out
}

func (r *inMemoryEscrowRepo) Create(ctx context.Context, tx pgx.Tx, e *domain.Escrow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.escrows[e.ID] = copyEscrow(*e)
	return nil
}

func (r *inMemoryEscrowRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Escrow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.escrows[id]
	if !ok {
		return nil, nil
	}
	out := copyEscrow(e)
	return &out, nil
}

func (r *inMemoryEscrowRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Escrow, error) {
	return r.GetByID(ctx, id)
}

func (r *inMemoryEscrowRepo) GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*domain.Escrow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.escrows {
		if e.PaymentID == paymentID {
			out := copyEscrow(e)
			return &out, nil
		}
	}
	return nil, nil
}

func (r *inMemoryEscrowRepo) Update(ctx context.Context, tx pgx.Tx, e *domain.Escrow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.escrows[e.ID]; !ok {
		return fmt.Errorf("escrow not found")
	}
	stored := copyEscrow(*e)
	stored.UpdatedAt = time.Now().UTC()
	r.escrows[e.ID] = stored
	return nil
}

func (r *inMemoryEscrowRepo) AppendHistory(ctx context.Context, tx pgx.Tx, entry *domain.EscrowHistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := *entry
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	r.history[e.EscrowID] = append(r.history[e.EscrowID], e)
	return nil
}

func (r *inMemoryEscrowRepo) ListHistory(ctx context.Context, escrowID uuid.UUID) ([]domain.EscrowHistoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.EscrowHistoryEntry, len(r.history[escrowID]))
	copy(out, r.history[escrowID])
	return out, nil
}

func (r *inMemoryEscrowRepo) ListAutoReleaseDue(ctx context.Context, now time.Time, limit int) ([]domain.Escrow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Escrow
	for _, e := range r.escrows {
		if e.Status == domain.EscrowStatusFunded && e.AutoReleaseDate != nil && !now.Before(*e.AutoReleaseDate) {
			out = append(out, copyEscrow(e))
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// --- Serializing Transactor ---

// lockingTransactor hands out transactions guarded by a single mutex, so
// each transactional section runs alone. This stands in for the row locks
// the SQL repos take with SELECT ... FOR UPDATE.
type lockingTransactor struct {
	mu sync.Mutex
}

func newLockingTransactor() *lockingTransactor {
	return &lockingTransactor{}
}

func (t *lockingTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	t.mu.Lock()
	return &memTx{release: &t.mu}, nil
}

// memTx releases the transactor lock exactly once, on Commit or the first
// Rollback.
type memTx struct {
	release *sync.Mutex
	once    sync.Once
}

func (t *memTx) done() {
	t.once.Do(t.release.Unlock)
}

func (t *memTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *memTx) Commit(ctx context.Context) error          { t.done(); return nil }
func (t *memTx) Rollback(ctx context.Context) error        { t.done(); return nil }
func (t *memTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *memTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *memTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *memTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *memTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *memTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *memTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *memTx) Conn() *pgx.Conn { return nil }
