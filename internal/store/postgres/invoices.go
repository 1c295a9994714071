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

const invoiceColumns = `id, invoice_number, tenant_id, subscription_id, status, currency, subtotal, tax, discount, total,
	period_start, period_end, due_date, paid_at, created_at, updated_at`

func scanInvoice(row pgx.Row) (*store.Invoice, error) {
	var inv store.Invoice
	err := row.Scan(
		&inv.ID, &inv.InvoiceNumber, &inv.TenantID, &inv.SubscriptionID, &inv.Status, &inv.Currency,
		&inv.Subtotal, &inv.Tax, &inv.Discount, &inv.Total,
		&inv.PeriodStart, &inv.PeriodEnd, &inv.DueDate, &inv.PaidAt, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &inv, nil
}

func (r *repositories) CreateInvoice(ctx context.Context, inv *store.Invoice) error {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}

	query := `INSERT INTO invoices (
	              id, invoice_number, tenant_id, subscription_id, status, currency,
	              subtotal, tax, discount, total, period_start, period_end, due_date, paid_at
	          ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	          RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		inv.ID, inv.InvoiceNumber, inv.TenantID, inv.SubscriptionID, string(inv.Status), inv.Currency,
		inv.Subtotal, inv.Tax, inv.Discount, inv.Total, inv.PeriodStart, inv.PeriodEnd, inv.DueDate, inv.PaidAt,
	).Scan(&inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return mapError(err, "unable to create invoice "+inv.InvoiceNumber)
	}

	for i := range inv.Items {
		item := &inv.Items[i]
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		item.InvoiceID = inv.ID

		err := r.db.QueryRow(ctx,
			`INSERT INTO invoice_items (
			     id, invoice_id, item_type, reference_id, description, quantity, unit_price, amount, tax, discount
			 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 RETURNING created_at`,
			item.ID, item.InvoiceID, string(item.ItemType), item.ReferenceID, item.Description,
			item.Quantity, item.UnitPrice, item.Amount, item.Tax, item.Discount,
		).Scan(&item.CreatedAt)
		if err != nil {
			return mapError(err, "unable to create invoice item")
		}
	}

	return nil
}

func (r *repositories) GetInvoice(ctx context.Context, id uuid.UUID) (*store.Invoice, error) {
	return r.getInvoice(ctx, id, "")
}

func (r *repositories) GetInvoiceForUpdate(ctx context.Context, id uuid.UUID) (*store.Invoice, error) {
	return r.getInvoice(ctx, id, " FOR UPDATE")
}

func (r *repositories) getInvoice(ctx context.Context, id uuid.UUID, lock string) (*store.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1 AND deleted_at IS NULL` + lock

	inv, err := scanInvoice(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "invoice %s not found", id)
	}

	items, err := r.invoiceItems(ctx, []uuid.UUID{inv.ID})
	if err != nil {
		return nil, err
	}

	inv.Items = items[inv.ID]

	return inv, nil
}

func (r *repositories) UpdateInvoice(ctx context.Context, inv *store.Invoice) error {
	query := `UPDATE invoices SET status = $2, paid_at = $3, updated_at = $4
	          WHERE id = $1 AND deleted_at IS NULL
	          RETURNING updated_at`

	err := r.db.QueryRow(ctx, query, inv.ID, string(inv.Status), inv.PaidAt, time.Now()).Scan(&inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("invoice %s not found", inv.ID)
	}

	return mapError(err, "unable to update invoice")
}

func (r *repositories) ListTenantInvoices(ctx context.Context, tenantID uuid.UUID, limit int) ([]*store.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices
	          WHERE tenant_id = $1 AND deleted_at IS NULL
	          ORDER BY created_at DESC
	          LIMIT NULLIF($2::int, 0)`

	rows, err := r.db.Query(ctx, query, tenantID, limit)
	if err != nil {
		return nil, mapError(err, "unable to list invoices")
	}
	defer rows.Close()

	var (
		invoices []*store.Invoice
		ids      []uuid.UUID
	)

	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, mapError(err, "unable to scan invoice")
		}
		invoices = append(invoices, inv)
		ids = append(ids, inv.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, mapError(err, "unable to list invoices")
	}

	items, err := r.invoiceItems(ctx, ids)
	if err != nil {
		return nil, err
	}

	for _, inv := range invoices {
		inv.Items = items[inv.ID]
	}

	return invoices, nil
}

func (r *repositories) invoiceItems(ctx context.Context, invoiceIDs []uuid.UUID) (map[uuid.UUID][]store.InvoiceItem, error) {
	out := make(map[uuid.UUID][]store.InvoiceItem, len(invoiceIDs))
	if len(invoiceIDs) == 0 {
		return out, nil
	}

	query := `SELECT id, invoice_id, item_type, reference_id, description, quantity, unit_price, amount, tax, discount, created_at
	          FROM invoice_items
	          WHERE invoice_id = ANY($1::uuid[]) AND deleted_at IS NULL
	          ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, uuidStrings(invoiceIDs))
	if err != nil {
		return nil, mapError(err, "unable to list invoice items")
	}
	defer rows.Close()

	for rows.Next() {
		var item store.InvoiceItem
		err := rows.Scan(
			&item.ID, &item.InvoiceID, &item.ItemType, &item.ReferenceID, &item.Description,
			&item.Quantity, &item.UnitPrice, &item.Amount, &item.Tax, &item.Discount, &item.CreatedAt,
		)
		if err != nil {
			return nil, mapError(err, "unable to scan invoice item")
		}
		out[item.InvoiceID] = append(out[item.InvoiceID], item)
	}

	return out, mapError(rows.Err(), "unable to list invoice items")
}
