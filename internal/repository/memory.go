package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/orderpay/internal/model"
)

// MemoryRepository хранит агрегаты в памяти процесса. Блокировки агрегатов
// реализованы каналами и уважают дедлайн контекста, записи транзакции
// применяются атомарно при коммите.
type MemoryRepository struct {
	lockTimeout time.Duration
	locks       lockTable

	mu          sync.Mutex
	payments    map[uuid.UUID]model.Payment
	claims      map[uuid.UUID]model.Claim
	items       map[string]model.OrderItem
	events      []model.OrderEvent
	webhooks    map[string]time.Time
	lastEventID int64
}

// NewMemoryRepository создаёт пустое хранилище. lockTimeout ограничивает ожидание
// блокировки агрегата; при 0 ожидание ограничено только дедлайном контекста.
func NewMemoryRepository(lockTimeout time.Duration) *MemoryRepository {
	return &MemoryRepository{
		lockTimeout: lockTimeout,
		locks:       lockTable{held: make(map[string]*lockEntry)},
		payments:    make(map[uuid.UUID]model.Payment),
		claims:      make(map[uuid.UUID]model.Claim),
		items:       make(map[string]model.OrderItem),
		webhooks:    make(map[string]time.Time),
	}
}

// Close ничего не освобождает и нужен для совместимости с PostgresRepository.
func (r *MemoryRepository) Close() error {
	return nil
}

// WithinTx выполняет fn в транзакции. Ошибка fn откатывает все записи.
func (r *MemoryRepository) WithinTx(ctx context.Context, fn TxFunc) error {
	tx := &memoryTx{
		repo:     r,
		held:     make(map[string]struct{}),
		payments: make(map[uuid.UUID]model.Payment),
		claims:   make(map[uuid.UUID]model.Claim),
		items:    make(map[string]model.OrderItem),
		webhooks: make(map[string]time.Time),
	}
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

// GetPayment возвращает платёж по идентификатору.
func (r *MemoryRepository) GetPayment(_ context.Context, id uuid.UUID) (model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.payments[id]
	if !ok {
		return model.Payment{}, fmt.Errorf("%w: payment %s", model.ErrNotFound, id)
	}
	return p, nil
}

// GetClaim возвращает заявку по идентификатору.
func (r *MemoryRepository) GetClaim(_ context.Context, id uuid.UUID) (model.Claim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.claims[id]
	if !ok {
		return model.Claim{}, fmt.Errorf("%w: claim %s", model.ErrNotFound, id)
	}
	return c, nil
}

// ListClaimsByOrder возвращает заявки заказа в порядке подачи.
func (r *MemoryRepository) ListClaimsByOrder(_ context.Context, orderID string) ([]model.Claim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.Claim
	for _, c := range r.claims {
		if c.OrderID == orderID {
			res = append(res, c)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].RequestedAt.Equal(res[j].RequestedAt) {
			return res[i].RequestedAt.Before(res[j].RequestedAt)
		}
		return res[i].ID.String() < res[j].ID.String()
	})
	return res, nil
}

// Timeline возвращает журнал заказа в порядке (CreatedAt, ID).
func (r *MemoryRepository) Timeline(_ context.Context, orderID string, f model.TimelineFilter) ([]model.OrderEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		res    []model.OrderEvent
		cursor *model.OrderEvent
	)
	for i, e := range r.events {
		if e.OrderID != orderID {
			continue
		}
		if f.AfterID != 0 && e.ID == f.AfterID {
			cursor = &r.events[i]
		}
		res = append(res, e)
	}
	if f.AfterID != 0 && cursor == nil {
		return nil, fmt.Errorf("%w: event %d in order %s", model.ErrNotFound, f.AfterID, orderID)
	}

	sort.Slice(res, func(i, j int) bool { return res[i].Before(res[j]) })

	if cursor != nil {
		after := res[:0]
		for _, e := range res {
			if cursor.Before(e) {
				after = append(after, e)
			}
		}
		res = after
	}
	if f.Limit > 0 && len(res) > f.Limit {
		res = res[:f.Limit]
	}
	return res, nil
}

// ListStalePendingPayments возвращает платежи PENDING, созданные раньше before.
func (r *MemoryRepository) ListStalePendingPayments(_ context.Context, before time.Time, limit int) ([]model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.Payment
	for _, p := range r.payments {
		if p.Status == model.PaymentStatusPending && p.CreatedAt.Before(before) {
			res = append(res, p)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

// lockTable выдаёт блокировки по ключу. Запись живёт, пока ключ удерживается
// или ожидается, и удаляется последним участником.
type lockTable struct {
	mu   sync.Mutex
	held map[string]*lockEntry
}

type lockEntry struct {
	ch   chan struct{}
	refs int
}

func (l *lockTable) acquire(ctx context.Context, key string) error {
	l.mu.Lock()
	e, ok := l.held[key]
	if !ok {
		e = &lockEntry{ch: make(chan struct{}, 1)}
		l.held[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.unref(key, e)
		return fmt.Errorf("%w: lock %s: %v", model.ErrBusy, key, ctx.Err())
	}
}

func (l *lockTable) release(key string) {
	l.mu.Lock()
	e := l.held[key]
	l.mu.Unlock()
	<-e.ch
	l.unref(key, e)
}

func (l *lockTable) unref(key string, e *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.held, key)
	}
}

func (l *lockTable) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}

type memoryTx struct {
	repo *MemoryRepository
	held map[string]struct{}

	payments map[uuid.UUID]model.Payment
	claims   map[uuid.UUID]model.Claim
	items    map[string]model.OrderItem
	events   []model.OrderEvent
	webhooks map[string]time.Time
}

func itemKey(orderID, itemID string) string {
	return orderID + "/" + itemID
}

func (tx *memoryTx) lock(ctx context.Context, key string) error {
	if _, ok := tx.held[key]; ok {
		return nil
	}
	if tx.repo.lockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, tx.repo.lockTimeout)
		defer cancel()
	}
	if err := tx.repo.locks.acquire(ctx, key); err != nil {
		return err
	}
	tx.held[key] = struct{}{}
	return nil
}

func (tx *memoryTx) release() {
	for key := range tx.held {
		tx.repo.locks.release(key)
	}
	tx.held = nil
}

func (tx *memoryTx) payment(id uuid.UUID) (model.Payment, bool) {
	if p, ok := tx.payments[id]; ok {
		return p, true
	}
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	p, ok := tx.repo.payments[id]
	return p, ok
}

// findPayment ищет платёж среди записанных и подготовленных в транзакции, выбирая самый поздний.
func (tx *memoryTx) findPayment(match func(model.Payment) bool) (uuid.UUID, bool) {
	tx.repo.mu.Lock()
	candidates := make(map[uuid.UUID]model.Payment, len(tx.repo.payments))
	for id, p := range tx.repo.payments {
		candidates[id] = p
	}
	tx.repo.mu.Unlock()
	for id, p := range tx.payments {
		candidates[id] = p
	}

	var (
		found  model.Payment
		exists bool
	)
	for _, p := range candidates {
		if match(p) && (!exists || p.CreatedAt.After(found.CreatedAt)) {
			found, exists = p, true
		}
	}
	return found.ID, exists
}

func (tx *memoryTx) lockPaymentWhere(ctx context.Context, what string, match func(model.Payment) bool) (model.Payment, error) {
	id, ok := tx.findPayment(match)
	if !ok {
		return model.Payment{}, fmt.Errorf("%w: payment %s", model.ErrNotFound, what)
	}
	p, err := tx.LockPayment(ctx, id)
	if err != nil {
		return model.Payment{}, err
	}
	if !match(p) {
		return model.Payment{}, fmt.Errorf("%w: payment %s", model.ErrNotFound, what)
	}
	return p, nil
}

func (tx *memoryTx) InsertPayment(ctx context.Context, p model.Payment) error {
	if err := tx.lock(ctx, "payment:"+p.ID.String()); err != nil {
		return err
	}
	tx.payments[p.ID] = p
	return nil
}

func (tx *memoryTx) LockPayment(ctx context.Context, id uuid.UUID) (model.Payment, error) {
	if err := tx.lock(ctx, "payment:"+id.String()); err != nil {
		return model.Payment{}, err
	}
	p, ok := tx.payment(id)
	if !ok {
		return model.Payment{}, fmt.Errorf("%w: payment %s", model.ErrNotFound, id)
	}
	return p, nil
}

func (tx *memoryTx) LockPaymentByTransactionID(ctx context.Context, pgTxID string) (model.Payment, error) {
	return tx.lockPaymentWhere(ctx, "with pg transaction "+pgTxID, func(p model.Payment) bool {
		return p.PgTransactionID == pgTxID
	})
}

func (tx *memoryTx) LockActivePaymentByCheckout(ctx context.Context, checkoutID string) (model.Payment, error) {
	return tx.lockPaymentWhere(ctx, "active for checkout "+checkoutID, func(p model.Payment) bool {
		return p.CheckoutID == checkoutID && p.Status.Active()
	})
}

func (tx *memoryTx) LockLatestPaymentByCheckout(ctx context.Context, checkoutID string) (model.Payment, error) {
	return tx.lockPaymentWhere(ctx, "for checkout "+checkoutID, func(p model.Payment) bool {
		return p.CheckoutID == checkoutID
	})
}

func (tx *memoryTx) LockActivePaymentByOrder(ctx context.Context, orderID string) (model.Payment, error) {
	return tx.lockPaymentWhere(ctx, "active for order "+orderID, func(p model.Payment) bool {
		return p.OrderID == orderID && p.Status.Active()
	})
}

func (tx *memoryTx) UpdatePayment(_ context.Context, p model.Payment) error {
	if _, ok := tx.held["payment:"+p.ID.String()]; !ok {
		return fmt.Errorf("update payment %s without lock", p.ID)
	}
	tx.payments[p.ID] = p
	return nil
}

func (tx *memoryTx) UpsertOrderItems(ctx context.Context, items []model.OrderItem) error {
	for _, it := range items {
		key := itemKey(it.OrderID, it.ItemID)
		if err := tx.lock(ctx, "item:"+key); err != nil {
			return err
		}
		tx.items[key] = it
	}
	return nil
}

func (tx *memoryTx) LockOrderItem(ctx context.Context, orderID, itemID string) (model.OrderItem, error) {
	key := itemKey(orderID, itemID)
	if err := tx.lock(ctx, "item:"+key); err != nil {
		return model.OrderItem{}, err
	}
	if it, ok := tx.items[key]; ok {
		return it, nil
	}

	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	it, ok := tx.repo.items[key]
	if !ok {
		return model.OrderItem{}, fmt.Errorf("%w: order item %s", model.ErrNotFound, key)
	}
	return it, nil
}

func (tx *memoryTx) itemClaims(orderID, itemID string) []model.Claim {
	tx.repo.mu.Lock()
	merged := make(map[uuid.UUID]model.Claim)
	for id, c := range tx.repo.claims {
		if c.OrderID == orderID && c.OrderItemID == itemID {
			merged[id] = c
		}
	}
	tx.repo.mu.Unlock()
	for id, c := range tx.claims {
		if c.OrderID == orderID && c.OrderItemID == itemID {
			merged[id] = c
		}
	}

	res := make([]model.Claim, 0, len(merged))
	for _, c := range merged {
		res = append(res, c)
	}
	return res
}

func (tx *memoryTx) ClaimedQuantity(_ context.Context, orderID, itemID string) (int, error) {
	total := 0
	for _, c := range tx.itemClaims(orderID, itemID) {
		if c.Status != model.ClaimStatusRejected {
			total += c.Quantity
		}
	}
	return total, nil
}

func (tx *memoryTx) HasOpenClaim(_ context.Context, orderID, itemID string) (bool, error) {
	for _, c := range tx.itemClaims(orderID, itemID) {
		if c.Status.Open() {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryTx) InsertClaim(ctx context.Context, c model.Claim) error {
	if err := tx.lock(ctx, "claim:"+c.ID.String()); err != nil {
		return err
	}
	tx.claims[c.ID] = c
	return nil
}

func (tx *memoryTx) LockClaim(ctx context.Context, id uuid.UUID) (model.Claim, error) {
	if err := tx.lock(ctx, "claim:"+id.String()); err != nil {
		return model.Claim{}, err
	}
	if c, ok := tx.claims[id]; ok {
		return c, nil
	}

	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	c, ok := tx.repo.claims[id]
	if !ok {
		return model.Claim{}, fmt.Errorf("%w: claim %s", model.ErrNotFound, id)
	}
	return c, nil
}

func (tx *memoryTx) UpdateClaim(_ context.Context, c model.Claim) error {
	if _, ok := tx.held["claim:"+c.ID.String()]; !ok {
		return fmt.Errorf("update claim %s without lock", c.ID)
	}
	tx.claims[c.ID] = c
	return nil
}

func (tx *memoryTx) AppendEvents(ctx context.Context, events []model.OrderEvent) ([]model.OrderEvent, error) {
	for _, orderID := range eventOrders(events) {
		if err := tx.lock(ctx, "events:"+orderID); err != nil {
			return nil, err
		}
	}

	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()

	floor := make(map[string]time.Time)
	for _, logged := range [][]model.OrderEvent{tx.repo.events, tx.events} {
		for _, e := range logged {
			if e.CreatedAt.After(floor[e.OrderID]) {
				floor[e.OrderID] = e.CreatedAt
			}
		}
	}

	res := make([]model.OrderEvent, len(events))
	for i, e := range events {
		if last := floor[e.OrderID]; e.CreatedAt.Before(last) {
			e.CreatedAt = last
		}
		tx.repo.lastEventID++
		e.ID = tx.repo.lastEventID
		res[i] = e
	}
	tx.events = append(tx.events, res...)
	return res, nil
}

func (tx *memoryTx) RecordWebhook(ctx context.Context, key string, at time.Time) (bool, error) {
	if err := tx.lock(ctx, "webhook:"+key); err != nil {
		return false, err
	}
	if _, ok := tx.webhooks[key]; ok {
		return false, nil
	}

	tx.repo.mu.Lock()
	_, seen := tx.repo.webhooks[key]
	tx.repo.mu.Unlock()
	if seen {
		return false, nil
	}
	tx.webhooks[key] = at
	return true, nil
}

func (tx *memoryTx) commit() error {
	r := tx.repo
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range tx.payments {
		for id, other := range r.payments {
			if id == p.ID {
				continue
			}
			if p.PgTransactionID != "" && other.PgTransactionID == p.PgTransactionID {
				return fmt.Errorf("%w: %s", model.ErrDuplicateTransaction, p.PgTransactionID)
			}
			if p.Status.Active() && other.Status.Active() && other.CheckoutID == p.CheckoutID {
				if _, exists := r.payments[p.ID]; !exists {
					return fmt.Errorf("%w: checkout %s", model.ErrPaymentExists, p.CheckoutID)
				}
			}
		}
	}
	for _, c := range tx.claims {
		if !c.Status.Open() {
			continue
		}
		for id, other := range r.claims {
			if id != c.ID && other.Status.Open() && other.OrderID == c.OrderID && other.OrderItemID == c.OrderItemID {
				return fmt.Errorf("%w: order %s item %s", model.ErrDuplicateOpenClaim, c.OrderID, c.OrderItemID)
			}
		}
	}

	for id, p := range tx.payments {
		r.payments[id] = p
	}
	for id, c := range tx.claims {
		r.claims[id] = c
	}
	for key, it := range tx.items {
		r.items[key] = it
	}
	for key, at := range tx.webhooks {
		r.webhooks[key] = at
	}
	r.events = append(r.events, tx.events...)
	return nil
}
