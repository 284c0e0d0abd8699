package model

import "errors"

// Ошибки доменного ядра. Все ошибки сравниваются через errors.Is,
// конкретика добавляется обёрткой fmt.Errorf("...: %w", err).
var (
	// ErrInvalidTransition возвращается, если операция недопустима из текущего статуса.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrAmountMismatch возвращается, если сумма от PG расходится с запрошенной сверх допуска.
	ErrAmountMismatch = errors.New("approved amount does not match requested amount")
	// ErrRefundExceedsApproved возвращается, если возврат превышает оставшуюся сумму платежа.
	ErrRefundExceedsApproved = errors.New("refund exceeds approved amount")
	// ErrDuplicateOpenClaim возвращается при попытке открыть вторую заявку на ту же позицию заказа.
	ErrDuplicateOpenClaim = errors.New("open claim already exists for order item")
	// ErrNegativeAmount возвращается, если арифметика над Money дала бы отрицательный результат.
	ErrNegativeAmount = errors.New("negative amount")
	// ErrCurrencyMismatch возвращается при операциях над суммами в разных валютах.
	ErrCurrencyMismatch = errors.New("currency mismatch")
	// ErrBusy возвращается, если блокировку агрегата не удалось получить вовремя. Всегда безопасно повторять.
	ErrBusy = errors.New("resource busy")
	// ErrNotFound возвращается, если агрегат не найден.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument возвращается при некорректных входных данных.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidQuantity возвращается, если количество в заявке вне допустимого диапазона.
	ErrInvalidQuantity = errors.New("invalid claim quantity")
	// ErrCheckoutNotFinalizable возвращается, если по checkout нельзя создать платёж.
	ErrCheckoutNotFinalizable = errors.New("checkout is not finalizable")
	// ErrPaymentExists возвращается, если у checkout уже есть активный платёж.
	ErrPaymentExists = errors.New("active payment already exists for checkout")
	// ErrDuplicateTransaction возвращается, если pgTransactionId уже закреплён за другим платежом.
	ErrDuplicateTransaction = errors.New("pg transaction id already bound to another payment")
)

// IsRetryable сообщает, можно ли автоматически повторить операцию с задержкой.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrBusy)
}
