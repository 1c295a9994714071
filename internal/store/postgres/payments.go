package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/msgdeck/msgdeck/internal/apperr"
	"github.com/msgdeck/msgdeck/internal/store"
	"github.com/pkg/errors"
)

const paymentColumns = `id, payment_number, tenant_id, invoice_id, status, amount, refunded_amount, currency,
	payment_method, transaction_id, payment_date, failure_reason, created_at, updated_at`

func scanPayment(row pgx.Row) (*store.Payment, error) {
	var p store.Payment
	err := row.Scan(
		&p.ID, &p.PaymentNumber, &p.TenantID, &p.InvoiceID, &p.Status, &p.Amount, &p.RefundedAmount, &p.Currency,
		&p.PaymentMethod, &p.TransactionID, &p.PaymentDate, &p.FailureReason, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &p, nil
}

func (r *repositories) CreatePayment(ctx context.Context, p *store.Payment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	query := `INSERT INTO payments (
	              id, payment_number, tenant_id, invoice_id, status, amount, refunded_amount, currency,
	              payment_method, transaction_id, payment_date, failure_reason
	          ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	          RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		p.ID, p.PaymentNumber, p.TenantID, p.InvoiceID, string(p.Status), p.Amount, p.RefundedAmount, p.Currency,
		p.PaymentMethod, p.TransactionID, p.PaymentDate, p.FailureReason,
	).Scan(&p.CreatedAt, &p.UpdatedAt)

	return mapError(err, "unable to create payment "+p.PaymentNumber)
}

func (r *repositories) GetPayment(ctx context.Context, id uuid.UUID) (*store.Payment, error) {
	return r.getPayment(ctx, id, "")
}

func (r *repositories) GetPaymentForUpdate(ctx context.Context, id uuid.UUID) (*store.Payment, error) {
	return r.getPayment(ctx, id, " FOR UPDATE")
}

func (r *repositories) getPayment(ctx context.Context, id uuid.UUID, lock string) (*store.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1 AND deleted_at IS NULL` + lock

	p, err := scanPayment(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "payment %s not found", id)
	}

	return p, nil
}

func (r *repositories) UpdatePayment(ctx context.Context, p *store.Payment) error {
	query := `UPDATE payments
	          SET status = $2, refunded_amount = $3, payment_method = $4, transaction_id = $5,
	              payment_date = $6, failure_reason = $7, updated_at = $8
	          WHERE id = $1 AND deleted_at IS NULL
	          RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		p.ID, string(p.Status), p.RefundedAmount, p.PaymentMethod, p.TransactionID,
		p.PaymentDate, p.FailureReason, time.Now(),
	).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("payment %s not found", p.ID)
	}

	return mapError(err, "unable to update payment")
}

func (r *repositories) ListTenantPayments(ctx context.Context, tenantID uuid.UUID, limit int) ([]*store.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments
	          WHERE tenant_id = $1 AND deleted_at IS NULL
	          ORDER BY created_at DESC
	          LIMIT NULLIF($2::int, 0)`

	rows, err := r.db.Query(ctx, query, tenantID, limit)
	if err != nil {
		return nil, mapError(err, "unable to list payments")
	}
	defer rows.Close()

	var payments []*store.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, mapError(err, "unable to scan payment")
		}
		payments = append(payments, p)
	}

	return payments, mapError(rows.Err(), "unable to list payments")
}
