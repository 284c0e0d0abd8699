package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/orderpay/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresRepository предоставляет доступ к агрегатам в PostgreSQL.
// Агрегат блокируется через SELECT ... FOR UPDATE до конца транзакции.
type PostgresRepository struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string, lockTimeout time.Duration) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool, lockTimeout: lockTimeout}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет чтение при временных ошибках БД. Для изменяющих операций
// не используется: их повторяет вызывающий по ErrBusy.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{50 * time.Millisecond, 150 * time.Millisecond, 300 * time.Millisecond}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !isTransient(err) || i == len(delays) {
			break
		}

		timer := time.NewTimer(delays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// mapError переводит ошибки PostgreSQL в доменные.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.LockNotAvailable, pgerrcode.SerializationFailure,
			pgerrcode.DeadlockDetected, pgerrcode.QueryCanceled:
			return fmt.Errorf("%w: %v", model.ErrBusy, err)
		case pgerrcode.UniqueViolation:
			switch pgErr.ConstraintName {
			case "claims_open_order_item_key":
				return fmt.Errorf("%w: %v", model.ErrDuplicateOpenClaim, err)
			case "payments_pg_transaction_id_key":
				return fmt.Errorf("%w: %v", model.ErrDuplicateTransaction, err)
			case "payments_active_checkout_key":
				return fmt.Errorf("%w: %v", model.ErrPaymentExists, err)
			}
		case pgerrcode.CheckViolation:
			if pgErr.ConstraintName == "payments_refund_within_approved" {
				return fmt.Errorf("%w: %v", model.ErrRefundExceedsApproved, err)
			}
		}
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || isConnectionError(err) {
		return fmt.Errorf("%w: %v", model.ErrBusy, err)
	}
	return err
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// WithinTx выполняет fn в транзакции с ограничением ожидания блокировок.
func (r *PostgresRepository) WithinTx(ctx context.Context, fn TxFunc) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return mapError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx)

	if r.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return mapError(fmt.Errorf("set lock timeout: %w", err))
		}
	}

	if err := fn(&pgTx{tx: tx}); err != nil {
		return mapError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return mapError(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

const paymentColumns = `id, order_id, checkout_id, pg_provider, pg_transaction_id, method, status, currency,
	requested_amount, approved_amount, refunded_amount, failure_reason, cancel_reason,
	approved_at, failed_at, cancelled_at, created_at, updated_at`

const claimColumns = `id, order_id, order_item_id, claim_type, claim_reason, claim_reason_detail, quantity,
	currency, refund_amount, status, payment_id, requested_by_type, requested_by_id,
	decided_by_type, decided_by_id, requested_at, decided_at, resolved_at`

const eventColumns = `id, order_id, event_type, event_source, source_id, previous_status, current_status,
	actor_type, actor_id, description, metadata, created_at`

func scanPayment(row pgx.Row) (model.Payment, error) {
	var (
		p         model.Payment
		pgTxID    *string
		currency  model.Currency
		requested int64
		approved  *int64
		refunded  int64
	)
	err := row.Scan(&p.ID, &p.OrderID, &p.CheckoutID, &p.PgProvider, &pgTxID, &p.Method, &p.Status, &currency,
		&requested, &approved, &refunded, &p.FailureReason, &p.CancelReason,
		&p.ApprovedAt, &p.FailedAt, &p.CancelledAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Payment{}, model.ErrNotFound
		}
		return model.Payment{}, fmt.Errorf("scan payment: %w", err)
	}

	if pgTxID != nil {
		p.PgTransactionID = *pgTxID
	}
	p.RequestedAmount = model.Money{Amount: requested, Currency: currency}
	p.RefundedAmount = model.Money{Amount: refunded, Currency: currency}
	if approved != nil {
		p.ApprovedAmount = &model.Money{Amount: *approved, Currency: currency}
	}
	return p, nil
}

func scanClaim(row pgx.Row) (model.Claim, error) {
	var (
		c            model.Claim
		currency     model.Currency
		refund       int64
		decidedType  *model.ActorType
		decidedActor *string
	)
	err := row.Scan(&c.ID, &c.OrderID, &c.OrderItemID, &c.ClaimType, &c.ClaimReason, &c.ClaimReasonDetail, &c.Quantity,
		&currency, &refund, &c.Status, &c.PaymentID, &c.RequestedBy.Type, &c.RequestedBy.ID,
		&decidedType, &decidedActor, &c.RequestedAt, &c.DecidedAt, &c.ResolvedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Claim{}, model.ErrNotFound
		}
		return model.Claim{}, fmt.Errorf("scan claim: %w", err)
	}

	c.RefundAmount = model.Money{Amount: refund, Currency: currency}
	if decidedType != nil {
		c.DecidedBy = &model.Actor{Type: *decidedType}
		if decidedActor != nil {
			c.DecidedBy.ID = *decidedActor
		}
	}
	return c, nil
}

func scanEvent(row pgx.Row) (model.OrderEvent, error) {
	var e model.OrderEvent
	err := row.Scan(&e.ID, &e.OrderID, &e.EventType, &e.EventSource, &e.SourceID, &e.PreviousStatus, &e.CurrentStatus,
		&e.ActorType, &e.ActorID, &e.Description, &e.Metadata, &e.CreatedAt)
	if err != nil {
		return model.OrderEvent{}, fmt.Errorf("scan event: %w", err)
	}
	return e, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// GetPayment возвращает платёж по идентификатору.
func (r *PostgresRepository) GetPayment(ctx context.Context, id uuid.UUID) (model.Payment, error) {
	var p model.Payment
	err := r.withRetry(ctx, func() error {
		var err error
		p, err = scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
		return err
	})
	if errors.Is(err, model.ErrNotFound) {
		return model.Payment{}, fmt.Errorf("%w: payment %s", model.ErrNotFound, id)
	}
	return p, err
}

// GetClaim возвращает заявку по идентификатору.
func (r *PostgresRepository) GetClaim(ctx context.Context, id uuid.UUID) (model.Claim, error) {
	var c model.Claim
	err := r.withRetry(ctx, func() error {
		var err error
		c, err = scanClaim(r.pool.QueryRow(ctx, `SELECT `+claimColumns+` FROM claims WHERE id = $1`, id))
		return err
	})
	if errors.Is(err, model.ErrNotFound) {
		return model.Claim{}, fmt.Errorf("%w: claim %s", model.ErrNotFound, id)
	}
	return c, err
}

// ListClaimsByOrder возвращает заявки заказа в порядке подачи.
func (r *PostgresRepository) ListClaimsByOrder(ctx context.Context, orderID string) ([]model.Claim, error) {
	var res []model.Claim
	err := r.withRetry(ctx, func() error {
		rows, err := r.pool.Query(ctx,
			`SELECT `+claimColumns+` FROM claims WHERE order_id = $1 ORDER BY requested_at, id`,
			orderID,
		)
		if err != nil {
			return fmt.Errorf("select claims: %w", err)
		}
		defer rows.Close()

		res = nil
		for rows.Next() {
			c, err := scanClaim(rows)
			if err != nil {
				return err
			}
			res = append(res, c)
		}
		return rows.Err()
	})
	return res, err
}

// Timeline возвращает журнал заказа в порядке (created_at, id), начиная после события f.AfterID.
func (r *PostgresRepository) Timeline(ctx context.Context, orderID string, f model.TimelineFilter) ([]model.OrderEvent, error) {
	var res []model.OrderEvent
	err := r.withRetry(ctx, func() error {
		var (
			cursorAt time.Time
			cursorID int64
		)
		if f.AfterID != 0 {
			err := r.pool.QueryRow(ctx,
				`SELECT created_at, id FROM order_events WHERE id = $1 AND order_id = $2`,
				f.AfterID, orderID,
			).Scan(&cursorAt, &cursorID)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return fmt.Errorf("%w: event %d in order %s", model.ErrNotFound, f.AfterID, orderID)
				}
				return fmt.Errorf("select cursor: %w", err)
			}
		}

		rows, err := r.pool.Query(ctx,
			`SELECT `+eventColumns+`
			 FROM order_events
			 WHERE order_id = $1 AND ($2::bigint = 0 OR (created_at, id) > ($3::timestamptz, $2::bigint))
			 ORDER BY created_at, id
			 LIMIT NULLIF($4::int, 0)`,
			orderID, cursorID, cursorAt, f.Limit,
		)
		if err != nil {
			return fmt.Errorf("select events: %w", err)
		}
		defer rows.Close()

		res = nil
		for rows.Next() {
			e, err := scanEvent(rows)
			if err != nil {
				return err
			}
			res = append(res, e)
		}
		return rows.Err()
	})
	return res, err
}

// ListStalePendingPayments возвращает платежи PENDING, созданные раньше before.
func (r *PostgresRepository) ListStalePendingPayments(ctx context.Context, before time.Time, limit int) ([]model.Payment, error) {
	var res []model.Payment
	err := r.withRetry(ctx, func() error {
		rows, err := r.pool.Query(ctx,
			`SELECT `+paymentColumns+`
			 FROM payments
			 WHERE status = $1 AND created_at < $2
			 ORDER BY created_at
			 LIMIT $3`,
			string(model.PaymentStatusPending), before, limit,
		)
		if err != nil {
			return fmt.Errorf("select stale payments: %w", err)
		}
		defer rows.Close()

		res = nil
		for rows.Next() {
			p, err := scanPayment(rows)
			if err != nil {
				return err
			}
			res = append(res, p)
		}
		return rows.Err()
	})
	return res, err
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) InsertPayment(ctx context.Context, p model.Payment) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO payments (`+paymentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		paymentArgs(p)...,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func paymentArgs(p model.Payment) []any {
	var approved *int64
	if p.ApprovedAmount != nil {
		approved = &p.ApprovedAmount.Amount
	}
	return []any{
		p.ID, p.OrderID, p.CheckoutID, string(p.PgProvider), nullableString(p.PgTransactionID), string(p.Method),
		string(p.Status), string(p.RequestedAmount.Currency), p.RequestedAmount.Amount, approved, p.RefundedAmount.Amount,
		p.FailureReason, p.CancelReason, p.ApprovedAt, p.FailedAt, p.CancelledAt, p.CreatedAt, p.UpdatedAt,
	}
}

func (t *pgTx) lockPayment(ctx context.Context, what, where string, args ...any) (model.Payment, error) {
	p, err := scanPayment(t.tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE `+where+` FOR UPDATE`, args...))
	if errors.Is(err, model.ErrNotFound) {
		return model.Payment{}, fmt.Errorf("%w: payment %s", model.ErrNotFound, what)
	}
	if err != nil {
		return model.Payment{}, fmt.Errorf("lock payment %s: %w", what, err)
	}
	return p, nil
}

func (t *pgTx) LockPayment(ctx context.Context, id uuid.UUID) (model.Payment, error) {
	return t.lockPayment(ctx, id.String(), `id = $1`, id)
}

func (t *pgTx) LockPaymentByTransactionID(ctx context.Context, pgTxID string) (model.Payment, error) {
	return t.lockPayment(ctx, "with pg transaction "+pgTxID, `pg_transaction_id = $1`, pgTxID)
}

func (t *pgTx) LockActivePaymentByCheckout(ctx context.Context, checkoutID string) (model.Payment, error) {
	return t.lockPayment(ctx, "active for checkout "+checkoutID,
		`checkout_id = $1 AND status NOT IN ('FAILED', 'CANCELLED') ORDER BY created_at DESC LIMIT 1`, checkoutID)
}

func (t *pgTx) LockLatestPaymentByCheckout(ctx context.Context, checkoutID string) (model.Payment, error) {
	return t.lockPayment(ctx, "for checkout "+checkoutID,
		`checkout_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`, checkoutID)
}

func (t *pgTx) LockActivePaymentByOrder(ctx context.Context, orderID string) (model.Payment, error) {
	return t.lockPayment(ctx, "active for order "+orderID,
		`order_id = $1 AND status NOT IN ('FAILED', 'CANCELLED') ORDER BY created_at DESC LIMIT 1`, orderID)
}

func (t *pgTx) UpdatePayment(ctx context.Context, p model.Payment) error {
	var approved *int64
	if p.ApprovedAmount != nil {
		approved = &p.ApprovedAmount.Amount
	}
	tag, err := t.tx.Exec(ctx,
		`UPDATE payments SET
			pg_transaction_id = $2, status = $3, approved_amount = $4, refunded_amount = $5,
			failure_reason = $6, cancel_reason = $7, approved_at = $8, failed_at = $9,
			cancelled_at = $10, updated_at = $11
		 WHERE id = $1`,
		p.ID, nullableString(p.PgTransactionID), string(p.Status), approved, p.RefundedAmount.Amount,
		p.FailureReason, p.CancelReason, p.ApprovedAt, p.FailedAt, p.CancelledAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("%w: payment %s", model.ErrNotFound, p.ID)
	}
	return nil
}

func (t *pgTx) UpsertOrderItems(ctx context.Context, items []model.OrderItem) error {
	for _, it := range items {
		_, err := t.tx.Exec(ctx,
			`INSERT INTO order_items (order_id, item_id, currency, unit_price, quantity)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (order_id, item_id) DO UPDATE
			 SET currency = EXCLUDED.currency, unit_price = EXCLUDED.unit_price, quantity = EXCLUDED.quantity`,
			it.OrderID, it.ItemID, string(it.UnitPrice.Currency), it.UnitPrice.Amount, it.Quantity,
		)
		if err != nil {
			return fmt.Errorf("upsert order item %s/%s: %w", it.OrderID, it.ItemID, err)
		}
	}
	return nil
}

func (t *pgTx) LockOrderItem(ctx context.Context, orderID, itemID string) (model.OrderItem, error) {
	it := model.OrderItem{OrderID: orderID, ItemID: itemID}
	err := t.tx.QueryRow(ctx,
		`SELECT currency, unit_price, quantity FROM order_items WHERE order_id = $1 AND item_id = $2 FOR UPDATE`,
		orderID, itemID,
	).Scan(&it.UnitPrice.Currency, &it.UnitPrice.Amount, &it.Quantity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.OrderItem{}, fmt.Errorf("%w: order item %s/%s", model.ErrNotFound, orderID, itemID)
		}
		return model.OrderItem{}, fmt.Errorf("lock order item: %w", err)
	}
	return it, nil
}

func (t *pgTx) ClaimedQuantity(ctx context.Context, orderID, itemID string) (int, error) {
	var total int
	err := t.tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(quantity), 0) FROM claims WHERE order_id = $1 AND order_item_id = $2 AND status <> $3`,
		orderID, itemID, string(model.ClaimStatusRejected),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum claimed quantity: %w", err)
	}
	return total, nil
}

func (t *pgTx) HasOpenClaim(ctx context.Context, orderID, itemID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM claims WHERE order_id = $1 AND order_item_id = $2 AND status IN ($3, $4))`,
		orderID, itemID, string(model.ClaimStatusRequested), string(model.ClaimStatusApproved),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check open claim: %w", err)
	}
	return exists, nil
}

func claimArgs(c model.Claim) []any {
	var decidedType, decidedID *string
	if c.DecidedBy != nil {
		dt := string(c.DecidedBy.Type)
		decidedType, decidedID = &dt, &c.DecidedBy.ID
	}
	return []any{
		c.ID, c.OrderID, c.OrderItemID, string(c.ClaimType), string(c.ClaimReason), c.ClaimReasonDetail, c.Quantity,
		string(c.RefundAmount.Currency), c.RefundAmount.Amount, string(c.Status), c.PaymentID,
		string(c.RequestedBy.Type), c.RequestedBy.ID, decidedType, decidedID, c.RequestedAt, c.DecidedAt, c.ResolvedAt,
	}
}

func (t *pgTx) InsertClaim(ctx context.Context, c model.Claim) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO claims (`+claimColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		claimArgs(c)...,
	)
	if err != nil {
		return fmt.Errorf("insert claim: %w", err)
	}
	return nil
}

func (t *pgTx) LockClaim(ctx context.Context, id uuid.UUID) (model.Claim, error) {
	c, err := scanClaim(t.tx.QueryRow(ctx, `SELECT `+claimColumns+` FROM claims WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, model.ErrNotFound) {
		return model.Claim{}, fmt.Errorf("%w: claim %s", model.ErrNotFound, id)
	}
	if err != nil {
		return model.Claim{}, fmt.Errorf("lock claim %s: %w", id, err)
	}
	return c, nil
}

func (t *pgTx) UpdateClaim(ctx context.Context, c model.Claim) error {
	args := claimArgs(c)
	tag, err := t.tx.Exec(ctx,
		`UPDATE claims SET status = $2, payment_id = $3, decided_by_type = $4, decided_by_id = $5,
			decided_at = $6, resolved_at = $7
		 WHERE id = $1`,
		args[0], args[9], args[10], args[13], args[14], args[16], args[17],
	)
	if err != nil {
		return fmt.Errorf("update claim: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("%w: claim %s", model.ErrNotFound, c.ID)
	}
	return nil
}

// AppendEvents удерживает advisory-блокировку заказа до конца транзакции и не
// ставит событие раньше уже записанных, поэтому курсор журнала не пропускает
// записи конкурентных транзакций.
func (t *pgTx) AppendEvents(ctx context.Context, events []model.OrderEvent) ([]model.OrderEvent, error) {
	floor := make(map[string]time.Time)
	for _, orderID := range eventOrders(events) {
		if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, orderID); err != nil {
			return nil, fmt.Errorf("lock events of order %s: %w", orderID, err)
		}
		var last *time.Time
		if err := t.tx.QueryRow(ctx,
			`SELECT max(created_at) FROM order_events WHERE order_id = $1`, orderID,
		).Scan(&last); err != nil {
			return nil, fmt.Errorf("select last event of order %s: %w", orderID, err)
		}
		if last != nil {
			floor[orderID] = *last
		}
	}

	res := make([]model.OrderEvent, 0, len(events))
	for _, e := range events {
		if last, ok := floor[e.OrderID]; ok && e.CreatedAt.Before(last) {
			e.CreatedAt = last
		}
		metadata := e.Metadata
		if metadata == nil {
			metadata = map[string]string{}
		}
		err := t.tx.QueryRow(ctx,
			`INSERT INTO order_events (order_id, event_type, event_source, source_id, previous_status, current_status,
				actor_type, actor_id, description, metadata, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			 RETURNING id`,
			e.OrderID, string(e.EventType), string(e.EventSource), e.SourceID, e.PreviousStatus, e.CurrentStatus,
			string(e.ActorType), e.ActorID, e.Description, metadata, e.CreatedAt,
		).Scan(&e.ID)
		if err != nil {
			return nil, fmt.Errorf("insert order event: %w", err)
		}
		res = append(res, e)
	}
	return res, nil
}

func (t *pgTx) RecordWebhook(ctx context.Context, key string, at time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx,
		`INSERT INTO pg_webhook_ledger (idempotency_key, processed_at) VALUES ($1, $2) ON CONFLICT (idempotency_key) DO NOTHING`,
		key, at,
	)
	if err != nil {
		return false, fmt.Errorf("record webhook: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
