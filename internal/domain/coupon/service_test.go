package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type mockRepo struct {
	byID    map[string]Coupon
	lookups int
	err     error
	created *Coupon
	updated *Coupon
	deleted string
}

func newMockRepo(coupons ...Coupon) *mockRepo {
	m := &mockRepo{byID: make(map[string]Coupon)}
	for _, c := range coupons {
		m.byID[c.ID] = c
	}
	return m
}

func (m *mockRepo) FindActiveByCode(_ context.Context, code string) (*Coupon, error) {
	m.lookups++
	if m.err != nil {
		return nil, m.err
	}
	for _, c := range m.byID {
		if c.Code == code && c.IsActive {
			return &c, nil
		}
	}
	return nil, ErrInvalidCoupon
}

func (m *mockRepo) ListActive(_ context.Context) ([]Coupon, error) {
	var out []Coupon
	for _, c := range m.byID {
		if c.IsActive {
			out = append(out, c)
		}
	}
	return out, m.err
}

func (m *mockRepo) ListAll(_ context.Context) ([]Coupon, error) {
	var out []Coupon
	for _, c := range m.byID {
		out = append(out, c)
	}
	return out, m.err
}

func (m *mockRepo) ListCodes(_ context.Context) ([]string, error) {
	var out []string
	for _, c := range m.byID {
		out = append(out, c.Code)
	}
	return out, m.err
}

func (m *mockRepo) Get(_ context.Context, id string) (*Coupon, error) {
	c, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *mockRepo) Create(_ context.Context, c *Coupon) error {
	if m.err != nil {
		return m.err
	}
	for _, existing := range m.byID {
		if existing.Code == c.Code {
			return ErrDuplicateCode
		}
	}
	m.created = c
	m.byID[c.ID] = *c
	return nil
}

func (m *mockRepo) Update(_ context.Context, c *Coupon) error {
	m.updated = c
	m.byID[c.ID] = *c
	return m.err
}

func (m *mockRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.byID[id]; !ok {
		return ErrNotFound
	}
	m.deleted = id
	delete(m.byID, id)
	return nil
}

type mockCache struct {
	coupons     []Coupon
	hit         bool
	sets        int
	invalidated int
	getErr      error
}

func (m *mockCache) GetActive(_ context.Context) ([]Coupon, bool, error) {
	return m.coupons, m.hit, m.getErr
}

func (m *mockCache) SetActive(_ context.Context, coupons []Coupon) error {
	m.sets++
	m.coupons = coupons
	return nil
}

func (m *mockCache) Invalidate(_ context.Context) error {
	m.invalidated++
	m.hit = false
	return nil
}

// --- Tests ---

func launchCoupons() []Coupon {
	flat := *percentCoupon("FLATEKA10", "10", "400")
	flat.ID = "c1"
	eka := *fixedCoupon("EKA200", "200", "1000")
	eka.ID = "c2"
	old := *fixedCoupon("OLD50", "50", "0")
	old.ID = "c3"
	old.IsActive = false
	return []Coupon{flat, eka, old}
}

func TestService_Validate(t *testing.T) {
	tests := []struct {
		name         string
		code         string
		subtotal     string
		wantValid    bool
		wantDiscount string
		wantReason   string
	}{
		{name: "case insensitive", code: " flateka10 ", subtotal: "5297", wantValid: true, wantDiscount: "530"},
		{name: "below minimum", code: "EKA200", subtotal: "300", wantDiscount: "0", wantReason: "Minimum order value of ₹1000 required"},
		{name: "fixed applies", code: "eka200", subtotal: "1500", wantValid: true, wantDiscount: "200"},
		{name: "unknown", code: "NOPE", subtotal: "1500", wantDiscount: "0", wantReason: ReasonInvalidCode},
		{name: "inactive", code: "OLD50", subtotal: "1500", wantDiscount: "0", wantReason: ReasonInvalidCode},
		{name: "empty", code: "  ", subtotal: "1500", wantDiscount: "0", wantReason: ReasonInvalidCode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(newMockRepo(launchCoupons()...), nil, nil)

			c, res, err := svc.Validate(context.Background(), tt.code, d(tt.subtotal))
			require.NoError(t, err)

			assert.Equal(t, tt.wantValid, res.Valid)
			assert.True(t, d(tt.wantDiscount).Equal(res.Discount), "got discount %s", res.Discount)
			if tt.wantReason != "" {
				assert.Equal(t, tt.wantReason, res.Reason)
			}
			if tt.wantValid {
				require.NotNil(t, c)
			}
		})
	}
}

func TestService_Validate_RepoError(t *testing.T) {
	repo := newMockRepo()
	repo.err = errors.New("db down")
	svc := NewService(repo, nil, nil)

	_, _, err := svc.Validate(context.Background(), "FLATEKA10", d("100"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lookup coupon")
}

func TestService_Validate_PrefilterSkipsLookup(t *testing.T) {
	repo := newMockRepo(launchCoupons()...)
	filter := NewCodeFilter(1000, 0.0001)
	svc := NewService(repo, nil, filter)
	require.NoError(t, svc.WarmUp(context.Background()))

	_, res, err := svc.Validate(context.Background(), "DEFINITELY-NOT-A-CODE", d("100"))
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, 0, repo.lookups)

	_, res, err = svc.Validate(context.Background(), "flateka10", d("1000"))
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, 1, repo.lookups)
}

func TestService_Create(t *testing.T) {
	repo := newMockRepo(launchCoupons()...)
	cache := &mockCache{hit: true}
	filter := NewCodeFilter(1000, 0.0001)
	svc := NewService(repo, cache, filter)
	svc.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	svc.newID = func() string { return "new-id" }
	require.NoError(t, svc.WarmUp(context.Background()))

	created, err := svc.Create(context.Background(), Coupon{
		Code:          " diwali25 ",
		Label:         "Diwali 25% off",
		DiscountType:  DiscountPercentage,
		DiscountValue: d("25"),
		MinSubtotal:   d("999"),
		IsActive:      true,
	})
	require.NoError(t, err)

	assert.Equal(t, "new-id", created.ID)
	assert.Equal(t, "DIWALI25", created.Code)
	assert.Equal(t, svc.now(), created.CreatedAt)
	assert.Equal(t, 1, cache.invalidated)
	assert.True(t, filter.MayContain("diwali25"))
}

func TestService_Create_Invalid(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, nil, nil)

	_, err := svc.Create(context.Background(), *percentCoupon("X", "150", "0"))
	var fieldErr *InvalidFieldError
	require.ErrorAs(t, err, &fieldErr)
	assert.Nil(t, repo.created)
}

func TestService_Create_Duplicate(t *testing.T) {
	svc := NewService(newMockRepo(launchCoupons()...), nil, nil)

	_, err := svc.Create(context.Background(), *fixedCoupon("eka200", "100", "0"))
	require.ErrorIs(t, err, ErrDuplicateCode)
}

func TestService_Update(t *testing.T) {
	repo := newMockRepo(launchCoupons()...)
	cache := &mockCache{}
	svc := NewService(repo, cache, nil)

	inactive := false
	value := d("15")
	updated, err := svc.Update(context.Background(), "c1", Patch{IsActive: &inactive, DiscountValue: &value})
	require.NoError(t, err)

	assert.False(t, updated.IsActive)
	assert.True(t, value.Equal(updated.DiscountValue))
	assert.Equal(t, "FLATEKA10", updated.Code)
	assert.Equal(t, 1, cache.invalidated)
}

func TestService_Update_NotFound(t *testing.T) {
	svc := NewService(newMockRepo(), nil, nil)

	_, err := svc.Update(context.Background(), "missing", Patch{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestService_Update_RejectsInvalidResult(t *testing.T) {
	svc := NewService(newMockRepo(launchCoupons()...), nil, nil)

	pct := DiscountPercentage
	// EKA200 has value 200, which is not a valid percentage.
	_, err := svc.Update(context.Background(), "c2", Patch{DiscountType: &pct})
	var fieldErr *InvalidFieldError
	require.ErrorAs(t, err, &fieldErr)
}

func TestService_Delete(t *testing.T) {
	repo := newMockRepo(launchCoupons()...)
	cache := &mockCache{}
	svc := NewService(repo, cache, nil)

	require.NoError(t, svc.Delete(context.Background(), "c1"))
	assert.Equal(t, "c1", repo.deleted)
	assert.Equal(t, 1, cache.invalidated)

	require.ErrorIs(t, svc.Delete(context.Background(), "c1"), ErrNotFound)
}

func TestService_ListActive_UsesCache(t *testing.T) {
	repo := newMockRepo(launchCoupons()...)
	cache := &mockCache{}
	svc := NewService(repo, cache, nil)

	first, err := svc.ListActive(context.Background())
	require.NoError(t, err)
	assert.Len(t, first, 2)
	assert.Equal(t, 1, cache.sets)

	cache.hit = true
	second, err := svc.ListActive(context.Background())
	require.NoError(t, err)
	assert.Len(t, second, 2)
	assert.Equal(t, 1, cache.sets)
}

func TestService_ListActive_CacheErrorFallsBack(t *testing.T) {
	repo := newMockRepo(launchCoupons()...)
	cache := &mockCache{getErr: errors.New("redis down")}
	svc := NewService(repo, cache, nil)

	got, err := svc.ListActive(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestCodeFilter(t *testing.T) {
	f := NewCodeFilter(100, 0.0001)
	assert.True(t, f.MayContain("ANY"), "unloaded filter must not reject")

	f.Add("IGNORED")
	f.Reset([]string{"flateka10", "EKA200"})
	assert.True(t, f.MayContain("FLATEKA10"))
	assert.True(t, f.MayContain("eka200"))
	assert.False(t, f.MayContain("NOT-THERE-AT-ALL"))

	f.Add("late")
	assert.True(t, f.MayContain("LATE"))
}
