package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ekagifts/storefront/internal/domain/coupon"
	"github.com/ekagifts/storefront/internal/domain/order"
)

type cartItem struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
	Image    string          `json:"image,omitempty"`
}

type addressBody struct {
	Line1   string `json:"line1"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
	Country string `json:"country,omitempty"`
}

func toLineItems(in []cartItem) []order.LineItem {
	items := make([]order.LineItem, 0, len(in))
	for _, it := range in {
		items = append(items, order.LineItem{
			ProductID: it.ID,
			Name:      it.Name,
			Price:     it.Price,
			Quantity:  it.Quantity,
			Image:     it.Image,
		})
	}
	return items
}

type customerBody struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// orderRequest is the body of POST /api/orders.
type orderRequest struct {
	Items           []cartItem      `json:"items"`
	Customer        customerBody    `json:"customer"`
	ShippingAddress addressBody     `json:"shippingAddress"`
	Notes           string          `json:"notes,omitempty"`
	Discount        decimal.Decimal `json:"discount"`
	CouponCode      string          `json:"couponCode,omitempty"`
}

func (o orderRequest) toDomain() order.CreateOrderRequest {
	return order.CreateOrderRequest{
		Items:           toLineItems(o.Items),
		Customer:        order.Customer(o.Customer),
		ShippingAddress: order.Address(o.ShippingAddress),
		Notes:           o.Notes,
		Discount:        o.Discount,
		CouponCode:      coupon.NormalizeCode(o.CouponCode),
	}
}

// checkoutRequest is the flat cart submitted with payment initiation.
type checkoutRequest struct {
	// CustomerOrderID retries payment for an order that already exists.
	CustomerOrderID string           `json:"customerOrderId,omitempty"`
	Amount          *decimal.Decimal `json:"amount,omitempty"`
	CustomerName    string           `json:"customerName"`
	Email           string           `json:"email"`
	Phone           string           `json:"phone"`
	Address         addressBody      `json:"address"`
	Items           []cartItem       `json:"items"`
	Discount        decimal.Decimal  `json:"discount"`
	CouponCode      string           `json:"couponCode,omitempty"`
	Notes           string           `json:"notes,omitempty"`
}

func (c checkoutRequest) toDomain() order.CreateOrderRequest {
	return order.CreateOrderRequest{
		Items: toLineItems(c.Items),
		Customer: order.Customer{
			Name:  c.CustomerName,
			Email: c.Email,
			Phone: c.Phone,
		},
		ShippingAddress: order.Address(c.Address),
		Notes:           c.Notes,
		Discount:        c.Discount,
		CouponCode:      coupon.NormalizeCode(c.CouponCode),
		ExpectedTotal:   c.Amount,
	}
}

type createOrderResponse struct {
	OrderID string `json:"orderId"`
}

type paymentOrderResponse struct {
	OrderID         string  `json:"orderId"`
	Amount          int64   `json:"amount"`
	Currency        string  `json:"currency"`
	KeyID           string  `json:"keyId"`
	CustomerOrderID string  `json:"customerOrderId"`
	Total           float64 `json:"total"`
}

type verifyRequest struct {
	GatewayOrderID  string `json:"razorpay_order_id"`
	PaymentID       string `json:"razorpay_payment_id"`
	Signature       string `json:"razorpay_signature"`
	CustomerOrderID string `json:"customerOrderId"`
}

type verifyResponse struct {
	Success bool         `json:"success"`
	Order   *orderDetail `json:"order,omitempty"`
	Message string       `json:"message,omitempty"`
}

type paymentFailure struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type lineItemBody struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
	Image    string  `json:"image,omitempty"`
}

// orderSummary is the public view of an order.
type orderSummary struct {
	ID             string         `json:"id"`
	Status         string         `json:"status"`
	DeliveryStatus string         `json:"deliveryStatus"`
	Subtotal       float64        `json:"subtotal"`
	Discount       float64        `json:"discount"`
	Total          float64        `json:"total"`
	Currency       string         `json:"currency"`
	Items          []lineItemBody `json:"items"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// orderDetail is the admin view of an order.
type orderDetail struct {
	orderSummary
	CustomerName    string      `json:"customerName"`
	Email           string      `json:"email"`
	Phone           string      `json:"phone"`
	ShippingAddress addressBody `json:"shippingAddress"`
	CouponCode      string      `json:"couponCode,omitempty"`
	GatewayOrderID  string      `json:"razorpayOrderId,omitempty"`
	PaymentID       string      `json:"paymentId,omitempty"`
	Notes           string      `json:"notes,omitempty"`
	Version         int         `json:"version"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

func toSummary(o *order.Order) orderSummary {
	items := make([]lineItemBody, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, lineItemBody{
			ID:       it.ProductID,
			Name:     it.Name,
			Price:    it.Price.InexactFloat64(),
			Quantity: it.Quantity,
			Image:    it.Image,
		})
	}
	return orderSummary{
		ID:             o.ID,
		Status:         string(o.Status),
		DeliveryStatus: string(o.DeliveryStatus),
		Subtotal:       o.Subtotal.InexactFloat64(),
		Discount:       o.Discount.InexactFloat64(),
		Total:          o.Total.InexactFloat64(),
		Currency:       o.Currency,
		Items:          items,
		CreatedAt:      o.CreatedAt,
	}
}

func toDetail(o *order.Order) *orderDetail {
	return &orderDetail{
		orderSummary:    toSummary(o),
		CustomerName:    o.Customer.Name,
		Email:           o.Customer.Email,
		Phone:           o.Customer.Phone,
		ShippingAddress: addressBody(o.ShippingAddress),
		CouponCode:      o.CouponCode,
		GatewayOrderID:  o.GatewayOrderID,
		PaymentID:       o.PaymentID,
		Notes:           o.Notes,
		Version:         o.Version,
		UpdatedAt:       o.UpdatedAt,
	}
}

type orderListResponse struct {
	Orders []*orderDetail `json:"orders"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

type orderPatchRequest struct {
	Status         *string `json:"status"`
	DeliveryStatus *string `json:"deliveryStatus"`
	Notes          *string `json:"notes"`
	Version        *int    `json:"version"`
}

func (p orderPatchRequest) toDomain() order.Patch {
	var out order.Patch
	if p.Status != nil {
		s := order.Status(*p.Status)
		out.Status = &s
	}
	if p.DeliveryStatus != nil {
		d := order.DeliveryStatus(*p.DeliveryStatus)
		out.DeliveryStatus = &d
	}
	out.Notes = p.Notes
	out.Version = p.Version
	return out
}

type statsResponse struct {
	TotalOrders int            `json:"totalOrders"`
	ByStatus    map[string]int `json:"byStatus"`
	PaidRevenue float64        `json:"paidRevenue"`
}

// couponPublic is a coupon as shown to shoppers.
type couponPublic struct {
	Code          string  `json:"code"`
	Label         string  `json:"label"`
	DiscountType  string  `json:"discountType"`
	DiscountValue float64 `json:"discountValue"`
	MinSubtotal   float64 `json:"minSubtotal"`
}

func toCouponPublic(c coupon.Coupon) couponPublic {
	return couponPublic{
		Code:          c.Code,
		Label:         c.Label,
		DiscountType:  string(c.DiscountType),
		DiscountValue: c.DiscountValue.InexactFloat64(),
		MinSubtotal:   c.MinSubtotal.InexactFloat64(),
	}
}

// couponAdmin is the full admin view of a coupon.
type couponAdmin struct {
	ID string `json:"id"`
	couponPublic
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toCouponAdmin(c coupon.Coupon) couponAdmin {
	return couponAdmin{
		ID:           c.ID,
		couponPublic: toCouponPublic(c),
		IsActive:     c.IsActive,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

type couponListResponse[T any] struct {
	Coupons []T `json:"coupons"`
}

type validateRequest struct {
	Code     string          `json:"code"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type appliedCoupon struct {
	Code     string  `json:"code"`
	Label    string  `json:"label"`
	Discount float64 `json:"discount"`
}

type validateResponse struct {
	Valid   bool           `json:"valid"`
	Coupon  *appliedCoupon `json:"coupon,omitempty"`
	Message string         `json:"message,omitempty"`
}

type couponRequest struct {
	Code          *string          `json:"code"`
	Label         *string          `json:"label"`
	DiscountType  *string          `json:"discountType"`
	DiscountValue *decimal.Decimal `json:"discountValue"`
	MinSubtotal   *decimal.Decimal `json:"minSubtotal"`
	IsActive      *bool            `json:"isActive"`
}

func (c couponRequest) toPatch() coupon.Patch {
	p := coupon.Patch{
		Code:          c.Code,
		Label:         c.Label,
		DiscountValue: c.DiscountValue,
		MinSubtotal:   c.MinSubtotal,
		IsActive:      c.IsActive,
	}
	if c.DiscountType != nil {
		t := coupon.DiscountType(*c.DiscountType)
		p.DiscountType = &t
	}
	return p
}

// toCoupon builds a new coupon. Coupons are active unless stated otherwise.
func (c couponRequest) toCoupon() coupon.Coupon {
	return c.toPatch().Apply(coupon.Coupon{IsActive: true})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Admin     adminBody `json:"admin"`
}

type adminBody struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}
