package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ekagifts/storefront/internal/domain/order"
)

const (
	orderColumns = `id, items, customer_name, customer_email, customer_phone,
		shipping_address, subtotal, discount, coupon_code, total, currency, status,
		delivery_status, razorpay_order_id, payment_id, razorpay_signature, notes,
		version, created_at, updated_at`

	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderByGatewayIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE razorpay_order_id = $1`

	updateOrderSQL = `UPDATE orders SET status = $3, delivery_status = $4,
		razorpay_order_id = $5, payment_id = $6, razorpay_signature = $7, notes = $8,
		updated_at = $9, version = version + 1
		WHERE id = $1 AND version = $2`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`

	deleteOrderSQL = `DELETE FROM orders WHERE id = $1`

	orderStatsSQL = `SELECT status, COUNT(*), COALESCE(SUM(total), 0)
		FROM orders GROUP BY status`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. Items and the shipping address are serialized
// to JSON for storage in JSONB columns.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}
	addressJSON, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshaling shipping address: %w", err)
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, itemsJSON, o.Customer.Name, o.Customer.Email, o.Customer.Phone,
		addressJSON, o.Subtotal, o.Discount, o.CouponCode, o.Total, o.Currency,
		string(o.Status), string(o.DeliveryStatus), o.GatewayOrderID, o.PaymentID,
		o.Signature, o.Notes, o.Version, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// Get returns the order with the given id or order.ErrNotFound.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, getOrderSQL, id)
}

// GetByGatewayOrderID returns the order paid through the given gateway order.
func (r *OrderRepository) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*order.Order, error) {
	if gatewayOrderID == "" {
		return nil, order.ErrNotFound
	}
	return r.getOne(ctx, getOrderByGatewayIDSQL, gatewayOrderID)
}

func (r *OrderRepository) getOne(ctx context.Context, query, arg string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", arg, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", arg, err)
	}
	return &o, nil
}

// List returns a filtered page of orders, newest first.
func (r *OrderRepository) List(ctx context.Context, f order.Filter) (*order.Page, error) {
	where, args := listWhere(f)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting orders: %w", err)
	}

	n := len(args)
	args = append(args, f.Limit, f.Offset)
	query := `SELECT ` + orderColumns + ` FROM orders` + where +
		` ORDER BY created_at DESC, id LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("scanning orders: %w", err)
	}
	return &order.Page{Orders: orders, Total: total}, nil
}

// listWhere builds the WHERE clause shared by the count and page queries.
func listWhere(f order.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}
	if f.Status != "" {
		add("status = ?", string(f.Status))
	}
	if f.DeliveryStatus != "" {
		add("delivery_status = ?", string(f.DeliveryStatus))
	}
	if f.Search != "" {
		add("(id ILIKE ? OR customer_name ILIKE ? OR customer_email ILIKE ? OR customer_phone ILIKE ?)",
			"%"+escapeLike(f.Search)+"%")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// Update stores the mutable fields of o when the stored version matches.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order, expectedVersion int) error {
	tag, err := r.pool.Exec(ctx, updateOrderSQL,
		o.ID, expectedVersion, string(o.Status), string(o.DeliveryStatus),
		o.GatewayOrderID, o.PaymentID, o.Signature, o.Notes, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", o.ID, err)
	}
	if tag.RowsAffected() == 1 {
		o.Version = expectedVersion + 1
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, orderExistsSQL, o.ID).Scan(&exists); err != nil {
		return fmt.Errorf("checking order %q: %w", o.ID, err)
	}
	if !exists {
		return order.ErrNotFound
	}
	return order.ErrConflict
}

// Delete removes an order by id.
func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteOrderSQL, id)
	if err != nil {
		return fmt.Errorf("deleting order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// Stats aggregates order counts per status and the paid revenue.
func (r *OrderRepository) Stats(ctx context.Context) (*order.Stats, error) {
	rows, err := r.pool.Query(ctx, orderStatsSQL)
	if err != nil {
		return nil, fmt.Errorf("querying order stats: %w", err)
	}
	defer rows.Close()

	st := &order.Stats{ByStatus: make(map[order.Status]int), PaidRevenue: decimal.Zero}
	for rows.Next() {
		var (
			status string
			count  int
			sum    decimal.Decimal
		)
		if err := rows.Scan(&status, &count, &sum); err != nil {
			return nil, fmt.Errorf("scanning order stats: %w", err)
		}
		st.Orders += count
		st.ByStatus[order.Status(status)] = count
		if order.Status(status) == order.StatusPaid {
			st.PaidRevenue = sum
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading order stats: %w", err)
	}
	return st, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o              order.Order
		itemsJSON      []byte
		addressJSON    []byte
		status         string
		deliveryStatus string
	)
	err := row.Scan(
		&o.ID, &itemsJSON, &o.Customer.Name, &o.Customer.Email, &o.Customer.Phone,
		&addressJSON, &o.Subtotal, &o.Discount, &o.CouponCode, &o.Total, &o.Currency,
		&status, &deliveryStatus, &o.GatewayOrderID, &o.PaymentID, &o.Signature,
		&o.Notes, &o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}
	o.Status = order.Status(status)
	o.DeliveryStatus = order.DeliveryStatus(deliveryStatus)

	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return o, fmt.Errorf("unmarshaling items of order %q: %w", o.ID, err)
	}
	if err := json.Unmarshal(addressJSON, &o.ShippingAddress); err != nil {
		return o, fmt.Errorf("unmarshaling address of order %q: %w", o.ID, err)
	}
	return o, nil
}
