package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/koustreak/piiscan/internal/errs"
)

// ErrorMapper translates a driver-native error into *errs.Error.
type ErrorMapper func(err error, msg string) *errs.Error

// CollectSample reads all rows from the result set into a Sample, stopping
// after limit rows even if the driver returns more. Values are normalised
// with NormalizeValue. Driver errors go through mapErr when it is non-nil.
// The caller closes rows.
func CollectSample(rows Rows, limit int, mapErr ErrorMapper) (*Sample, error) {
	if mapErr == nil {
		mapErr = wrapQueryFailed
	}

	columns, err := rows.Columns()
	if err != nil {
		return nil, mapErr(err, "failed to read column names")
	}

	sample := &Sample{Columns: columns, Rows: make([][]any, 0)}

	for rows.Next() {
		if limit >= 0 && len(sample.Rows) >= limit {
			break
		}

		// Allocate scan targets as *any so the driver can write any type.
		dest := make([]any, len(columns))
		destPtrs := make([]any, len(columns))
		for i := range dest {
			destPtrs[i] = &dest[i]
		}

		if err := rows.Scan(destPtrs...); err != nil {
			return nil, mapErr(err, "failed to scan row")
		}

		for i := range dest {
			dest[i] = NormalizeValue(dest[i])
		}
		sample.Rows = append(sample.Rows, dest)
	}

	if err := rows.Err(); err != nil {
		return nil, mapErr(err, "error during row iteration")
	}

	return sample, nil
}

func wrapQueryFailed(err error, msg string) *errs.Error {
	if e := ContextError(err, msg); e != nil {
		return e
	}
	return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
}

// NormalizeValue converts driver-specific representations into values the
// detector can treat uniformly. Valid UTF-8 byte slices become strings and
// binary blobs become nil, so they are never classified. Timestamps are
// rendered as RFC 3339, UUIDs in their canonical form, and decoded JSON
// documents or arrays as JSON text so the values inside them stay visible.
func NormalizeValue(v any) any {
	switch x := v.(type) {
	case []byte:
		if utf8.Valid(x) {
			return string(x)
		}
		return nil
	case time.Time:
		return x.Format(time.RFC3339)
	case [16]byte:
		return uuid.UUID(x).String()
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return nil
		}
		return string(b)
	default:
		return v
	}
}

// CellString renders a normalised cell as text for classification.
// It reports false for NULLs and values that carry no text.
func CellString(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, x != ""
	case int64:
		return strconv.FormatInt(x, 10), true
	case int32:
		return strconv.FormatInt(int64(x), 10), true
	case int:
		return strconv.Itoa(x), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case bool:
		return "", false
	case driver.Valuer:
		inner, err := x.Value()
		if err != nil {
			return "", false
		}
		if _, nested := inner.(driver.Valuer); nested {
			return "", false
		}
		return CellString(NormalizeValue(inner))
	case fmt.Stringer:
		s := x.String()
		return s, s != ""
	default:
		s := fmt.Sprint(x)
		return s, s != ""
	}
}
