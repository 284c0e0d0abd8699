// Package repository содержит хранилища агрегатов ядра платежей: PostgreSQL
// для эксплуатации и in-memory реализацию для тестов и локального запуска.
package repository

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/orderpay/internal/model"
)

// Tx представляет единицу работы над агрегатами. Методы Lock* берут блокировку агрегата
// до конца транзакции и читают его актуальное состояние. Update* допустимы
// только для заблокированных в этой же транзакции агрегатов.
type Tx interface {
	InsertPayment(ctx context.Context, p model.Payment) error
	LockPayment(ctx context.Context, id uuid.UUID) (model.Payment, error)
	LockPaymentByTransactionID(ctx context.Context, pgTxID string) (model.Payment, error)
	LockActivePaymentByCheckout(ctx context.Context, checkoutID string) (model.Payment, error)
	// LockLatestPaymentByCheckout блокирует последний платёж checkout в любом статусе.
	LockLatestPaymentByCheckout(ctx context.Context, checkoutID string) (model.Payment, error)
	LockActivePaymentByOrder(ctx context.Context, orderID string) (model.Payment, error)
	UpdatePayment(ctx context.Context, p model.Payment) error

	UpsertOrderItems(ctx context.Context, items []model.OrderItem) error
	LockOrderItem(ctx context.Context, orderID, itemID string) (model.OrderItem, error)

	// ClaimedQuantity возвращает количество позиции, занятое не отклонёнными заявками.
	ClaimedQuantity(ctx context.Context, orderID, itemID string) (int, error)
	HasOpenClaim(ctx context.Context, orderID, itemID string) (bool, error)
	InsertClaim(ctx context.Context, c model.Claim) error
	LockClaim(ctx context.Context, id uuid.UUID) (model.Claim, error)
	UpdateClaim(ctx context.Context, c model.Claim) error

	// AppendEvents добавляет записи журнала и возвращает их с присвоенными ID.
	// Запись журнала заказа сериализуется до конца транзакции, так что ID событий
	// одного заказа возрастают в порядке фиксации.
	AppendEvents(ctx context.Context, events []model.OrderEvent) ([]model.OrderEvent, error)

	// RecordWebhook заносит ключ в журнал идемпотентности. false означает, что ключ уже был обработан.
	RecordWebhook(ctx context.Context, key string, at time.Time) (bool, error)
}

// TxFunc описывает тело транзакции.
type TxFunc func(tx Tx) error

// eventOrders возвращает заказы событий в фиксированном порядке блокировки.
func eventOrders(events []model.OrderEvent) []string {
	seen := make(map[string]struct{}, 1)
	orders := make([]string, 0, 1)
	for _, e := range events {
		if _, ok := seen[e.OrderID]; ok {
			continue
		}
		seen[e.OrderID] = struct{}{}
		orders = append(orders, e.OrderID)
	}
	sort.Strings(orders)
	return orders
}
