package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/ekagifts/storefront/internal/domain/auth"
	"github.com/ekagifts/storefront/internal/domain/order"
)

type principalKey struct{}

// PrincipalFromContext returns the admin authenticated by requireAdmin.
func PrincipalFromContext(ctx context.Context) (*auth.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*auth.Principal)
	return p, ok
}

// requireAdmin rejects requests without a valid Bearer token.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			writeMessage(w, http.StatusUnauthorized, "Missing bearer token")
			return
		}

		p, err := h.auth.Authenticate(strings.TrimSpace(token))
		if err != nil {
			writeError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), principalKey{}, p)
		ctx = zctx.With(ctx, zap.String("admin_id", p.AdminID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) adminLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, r, badRequest("Email and password are required"))
		return
	}

	s, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt,
		Admin: adminBody{
			ID:    s.Admin.ID,
			Email: s.Admin.Email,
			Name:  s.Admin.Name,
		},
	})
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, badRequest(name + " must be a non-negative integer")
	}
	return n, nil
}

func (h *Handler) adminListOrders(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	page, err := h.orders.ListOrders(r.Context(), order.Filter{
		Status:         order.Status(q.Get("status")),
		DeliveryStatus: order.DeliveryStatus(q.Get("deliveryStatus")),
		Search:         q.Get("search"),
		Limit:          limit,
		Offset:         offset,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := orderListResponse{
		Orders: make([]*orderDetail, 0, len(page.Orders)),
		Total:  page.Total,
		Limit:  page.Limit,
		Offset: page.Offset,
	}
	for i := range page.Orders {
		out.Orders = append(out.Orders, toDetail(&page.Orders[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) adminGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDetail(o))
}

func (h *Handler) adminUpdateOrder(w http.ResponseWriter, r *http.Request) {
	var req orderPatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.UpdateOrder(r.Context(), chi.URLParam(r, "orderId"), req.toDomain())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDetail(o))
}

func (h *Handler) adminDeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.DeleteOrder(r.Context(), chi.URLParam(r, "orderId")); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Order deleted")
}

func (h *Handler) adminStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.orders.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	byStatus := make(map[string]int, len(st.ByStatus))
	for s, n := range st.ByStatus {
		byStatus[string(s)] = n
	}
	writeJSON(w, http.StatusOK, statsResponse{
		TotalOrders: st.Orders,
		ByStatus:    byStatus,
		PaidRevenue: st.PaidRevenue.InexactFloat64(),
	})
}
