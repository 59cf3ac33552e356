package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekagifts/storefront/internal/domain/coupon"
)

const sample = `code,label,discount_type,discount_value,min_subtotal,active
flateka10,Flat 10% off,percentage,10,400,true
EKA200,₹200 off,Fixed,200,1000,
DIWALI,Festive,percentage,150,0,true
BROKEN,Bad value,fixed,lots,0,true
SUMMER,Inactive,fixed,50,0,false
`

func TestParseRecords(t *testing.T) {
	res, err := parseRecords(strings.NewReader(sample), "coupons.csv")
	require.NoError(t, err)

	require.Len(t, res.coupons, 3)
	assert.Equal(t, "FLATEKA10", res.coupons[0].Code)
	assert.Equal(t, coupon.DiscountPercentage, res.coupons[0].DiscountType)
	assert.True(t, res.coupons[0].MinSubtotal.Equal(decimal.NewFromInt(400)))

	assert.Equal(t, coupon.DiscountFixed, res.coupons[1].DiscountType)
	assert.True(t, res.coupons[1].IsActive, "empty active defaults to true")
	assert.False(t, res.coupons[2].IsActive)
	assert.Equal(t, []int{2, 3, 6}, res.lines)

	require.Len(t, res.invalid, 2)
	assert.Equal(t, "coupons.csv:4: discountValue: percentage must not exceed 100", res.invalid[0].Error())
	assert.Equal(t, 5, res.invalid[1].Line)
}

func TestParseRecords_Header(t *testing.T) {
	_, err := parseRecords(strings.NewReader("code,label\nA,B\n"), "bad.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing column "discount_type"`)

	_, err = parseRecords(strings.NewReader(""), "empty.csv")
	require.Error(t, err)
}

func TestReadFile_Gzip(t *testing.T) {
	var buf bytes.Buffer
	gz := pgzip.NewWriter(&buf)
	_, err := gz.Write([]byte(sample))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	path := filepath.Join(t.TempDir(), "coupons.csv.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	res, err := readFile(path)
	require.NoError(t, err)
	assert.Len(t, res.coupons, 3)
	assert.Equal(t, path, res.source)
}

func TestDedup(t *testing.T) {
	first, err := parseRecords(strings.NewReader(sample), "a.csv")
	require.NoError(t, err)
	second, err := parseRecords(strings.NewReader(
		"code,label,discount_type,discount_value,min_subtotal\nEKA200,Override,fixed,250,0\nNEWYEAR,New,fixed,100,500\n",
	), "b.csv")
	require.NoError(t, err)

	out, dups := dedup([]*fileResult{first, second}, 5)

	codes := make([]string, 0, len(out))
	for _, c := range out {
		codes = append(codes, c.Code)
	}
	assert.Equal(t, []string{"FLATEKA10", "EKA200", "SUMMER", "NEWYEAR"}, codes)
	assert.True(t, out[1].DiscountValue.Equal(decimal.NewFromInt(200)), "first occurrence wins")

	require.Len(t, dups, 1)
	assert.Equal(t, "b.csv:2: duplicate code EKA200", dups[0].Error())
}
