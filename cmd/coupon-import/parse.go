package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/ekagifts/storefront/internal/domain/coupon"
)

// columns is the expected header of an import file. The active column is
// optional and defaults to true.
var columns = []string{"code", "label", "discount_type", "discount_value", "min_subtotal", "active"}

// rowError reports a rejected input row.
type rowError struct {
	Source string
	Line   int
	Err    error
}

func (e *rowError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.Source, e.Line, e.Err)
}

// fileResult holds the rows parsed from one file.
type fileResult struct {
	source  string
	coupons []coupon.Coupon
	lines   []int
	invalid []*rowError
}

// readFile parses a gzip-compressed, or plain when the name does not end in
// .gz, CSV file of coupon rules.
func readFile(path string) (*fileResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}
	return parseRecords(r, path)
}

// parseRecords reads CSV rows from r. Malformed rows are collected in
// invalid rather than failing the whole file.
func parseRecords(r io.Reader, source string) (*fileResult, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrapf(err, "read header of %s", source)
	}
	index, err := headerIndex(header)
	if err != nil {
		return nil, errors.Wrap(err, source)
	}

	res := &fileResult{source: source}
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return res, nil
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				res.invalid = append(res.invalid, &rowError{Source: source, Line: parseErr.Line, Err: parseErr.Err})
				continue
			}
			return nil, errors.Wrapf(err, "read %s", source)
		}

		line, _ := cr.FieldPos(0)
		c, err := parseRow(record, index)
		if err != nil {
			res.invalid = append(res.invalid, &rowError{Source: source, Line: line, Err: err})
			continue
		}
		res.coupons = append(res.coupons, c)
		res.lines = append(res.lines, line)
	}
}

func headerIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range columns[:5] {
		if _, ok := index[name]; !ok {
			return nil, errors.Errorf("missing column %q", name)
		}
	}
	return index, nil
}

func parseRow(record []string, index map[string]int) (coupon.Coupon, error) {
	field := func(name string) string {
		i, ok := index[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	value, err := decimal.NewFromString(field("discount_value"))
	if err != nil {
		return coupon.Coupon{}, errors.Errorf("discount_value: %q is not a number", field("discount_value"))
	}
	minSubtotal := decimal.Zero
	if raw := field("min_subtotal"); raw != "" {
		if minSubtotal, err = decimal.NewFromString(raw); err != nil {
			return coupon.Coupon{}, errors.Errorf("min_subtotal: %q is not a number", raw)
		}
	}
	active := true
	if raw := field("active"); raw != "" {
		if active, err = strconv.ParseBool(raw); err != nil {
			return coupon.Coupon{}, errors.Errorf("active: %q is not a boolean", raw)
		}
	}

	c := coupon.Coupon{
		Code:          coupon.NormalizeCode(field("code")),
		Label:         field("label"),
		DiscountType:  coupon.DiscountType(strings.ToLower(field("discount_type"))),
		DiscountValue: value,
		MinSubtotal:   minSubtotal,
		IsActive:      active,
	}
	if err := c.Validate(); err != nil {
		return coupon.Coupon{}, err
	}
	return c, nil
}

// dedup merges file results in order. The first row for a code wins and
// later rows are reported as duplicates. The bloom filter answers for codes
// not seen yet, which is the common case, and the exact set confirms its
// positives.
func dedup(results []*fileResult, expected uint) ([]coupon.Coupon, []*rowError) {
	seenFilter := bloom.NewWithEstimates(max(expected, 1), 0.001)
	seen := make(map[string]struct{}, expected)

	var (
		out  []coupon.Coupon
		dups []*rowError
	)
	for _, res := range results {
		for i, c := range res.coupons {
			if seenFilter.TestAndAddString(c.Code) {
				if _, ok := seen[c.Code]; ok {
					dups = append(dups, &rowError{
						Source: res.source,
						Line:   res.lines[i],
						Err:    errors.Errorf("duplicate code %s", c.Code),
					})
					continue
				}
			}
			seen[c.Code] = struct{}{}
			out = append(out, c)
		}
	}
	return out, dups
}
