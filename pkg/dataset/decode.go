package dataset

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/eunmann/shopsight/pkg/model"
	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"
)

// articleIDWidth is the zero-padded width of numeric article ids.
const articleIDWidth = 10

// NormalizeArticleID trims s and left-pads all-digit ids to ten digits, so
// integer-typed sources ("108775001") and string-typed sources
// ("0108775001") produce the same key.
func NormalizeArticleID(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || len(s) >= articleIDWidth {
		return s
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return s
		}
	}
	return strings.Repeat("0", articleIDWidth-len(s)) + s
}

type (
	idDecoder    func(parquet.Value) (string, bool)
	dateDecoder  func(parquet.Value) (model.Date, bool)
	priceDecoder func(parquet.Value) (decimal.Decimal, bool)
	textDecoder  func(parquet.Value) (string, bool)
)

func newIDDecoder(t columnType) (idDecoder, error) {
	text, err := newTextDecoder(t)
	if err != nil {
		return nil, err
	}
	return func(v parquet.Value) (string, bool) {
		s, ok := text(v)
		if !ok {
			return "", false
		}
		s = NormalizeArticleID(s)
		return s, s != ""
	}, nil
}

func newTextDecoder(t columnType) (textDecoder, error) {
	switch t.kind {
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return func(v parquet.Value) (string, bool) {
			if v.IsNull() {
				return "", false
			}
			return strings.TrimSpace(string(v.ByteArray())), true
		}, nil
	case parquet.Int32:
		return func(v parquet.Value) (string, bool) {
			if v.IsNull() {
				return "", false
			}
			return strconv.FormatInt(int64(v.Int32()), 10), true
		}, nil
	case parquet.Int64:
		return func(v parquet.Value) (string, bool) {
			if v.IsNull() {
				return "", false
			}
			return strconv.FormatInt(v.Int64(), 10), true
		}, nil
	}
	return nil, fmt.Errorf("%w: text column stored as %s", model.ErrSchemaMismatch, t.kind)
}

func newDateDecoder(t columnType) (dateDecoder, error) {
	lt := t.logical
	switch t.kind {
	case parquet.ByteArray:
		return func(v parquet.Value) (model.Date, bool) {
			if v.IsNull() {
				return 0, false
			}
			d, err := model.ParseDate(strings.TrimSpace(string(v.ByteArray())))
			return d, err == nil
		}, nil
	case parquet.Int32:
		if lt != nil && lt.Date == nil {
			break
		}
		return func(v parquet.Value) (model.Date, bool) {
			if v.IsNull() {
				return 0, false
			}
			return model.Date(v.Int32()), true
		}, nil
	case parquet.Int64:
		if lt == nil || lt.Timestamp == nil {
			break
		}
		unit := time.Millisecond
		switch {
		case lt.Timestamp.Unit.Micros != nil:
			unit = time.Microsecond
		case lt.Timestamp.Unit.Nanos != nil:
			unit = time.Nanosecond
		}
		return func(v parquet.Value) (model.Date, bool) {
			if v.IsNull() {
				return 0, false
			}
			ns := v.Int64() * int64(unit)
			return model.DateOf(time.Unix(0, ns).UTC()), true
		}, nil
	}
	return nil, fmt.Errorf("%w: date column stored as %s", model.ErrSchemaMismatch, t.kind)
}

func newPriceDecoder(t columnType) (priceDecoder, error) {
	var scale int32
	if t.logical != nil && t.logical.Decimal != nil {
		scale = t.logical.Decimal.Scale
	}
	nonNeg := func(d decimal.Decimal) (decimal.Decimal, bool) {
		return d, !d.IsNegative()
	}
	switch t.kind {
	case parquet.Double:
		return func(v parquet.Value) (decimal.Decimal, bool) {
			if v.IsNull() {
				return decimal.Zero, false
			}
			return nonNeg(decimal.NewFromFloat(v.Double()))
		}, nil
	case parquet.Float:
		return func(v parquet.Value) (decimal.Decimal, bool) {
			if v.IsNull() {
				return decimal.Zero, false
			}
			return nonNeg(decimal.NewFromFloat32(v.Float()))
		}, nil
	case parquet.Int32:
		return func(v parquet.Value) (decimal.Decimal, bool) {
			if v.IsNull() {
				return decimal.Zero, false
			}
			return nonNeg(decimal.New(int64(v.Int32()), -scale))
		}, nil
	case parquet.Int64:
		return func(v parquet.Value) (decimal.Decimal, bool) {
			if v.IsNull() {
				return decimal.Zero, false
			}
			return nonNeg(decimal.New(v.Int64(), -scale))
		}, nil
	case parquet.ByteArray, parquet.FixedLenByteArray:
		if t.logical != nil && t.logical.Decimal != nil {
			return func(v parquet.Value) (decimal.Decimal, bool) {
				if v.IsNull() {
					return decimal.Zero, false
				}
				return nonNeg(decimal.NewFromBigInt(twosComplement(v.ByteArray()), -scale))
			}, nil
		}
		return func(v parquet.Value) (decimal.Decimal, bool) {
			if v.IsNull() {
				return decimal.Zero, false
			}
			d, err := decimal.NewFromString(strings.TrimSpace(string(v.ByteArray())))
			if err != nil {
				return decimal.Zero, false
			}
			return nonNeg(d)
		}, nil
	}
	return nil, fmt.Errorf("%w: price column stored as %s", model.ErrSchemaMismatch, t.kind)
}

// twosComplement decodes a big-endian two's complement integer, the encoding
// of binary-backed parquet DECIMAL values.
func twosComplement(b []byte) *big.Int {
	n := new(big.Int).SetBytes(b)
	if len(b) > 0 && b[0]&0x80 != 0 {
		n.Sub(n, new(big.Int).Lsh(big.NewInt(1), uint(len(b))*8))
	}
	return n
}
