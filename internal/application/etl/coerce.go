package etl

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/domain/etl"
)

// errMissing marks a required key that is absent or null
var errMissing = errors.New("missing required value")

// timeLayouts are tried in order when parsing timestamps
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// value returns raw[key] when present and not null
func value(raw etl.RawRecord, key string) (any, bool) {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", n.String())
		}
		return integral(f)
	case float64:
		return integral(n)
	case float32:
		return integral(float64(n))
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", n)
		}
		return integral(f)
	default:
		return 0, fmt.Errorf("unsupported number type %T", v)
	}
}

func integral(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("not an integer: %v", f)
	}
	if f > math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("out of range: %v", f)
	}
	return int64(f), nil
}

func toInt(v any) (int, error) {
	i, err := toInt64(v)
	if err != nil {
		return 0, err
	}
	if i > math.MaxInt32 || i < math.MinInt32 {
		return 0, fmt.Errorf("out of range: %d", i)
	}
	return int(i), nil
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case json.Number:
		return decimal.NewFromString(n.String())
	case float64:
		return decimal.NewFromFloat(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		if err != nil {
			return decimal.Zero, fmt.Errorf("not a number: %q", n)
		}
		return d, nil
	default:
		return decimal.Zero, fmt.Errorf("unsupported number type %T", v)
	}
}

func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q", t)
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "1":
			return true, nil
		case "false", "0":
			return false, nil
		}
		return false, fmt.Errorf("not a boolean: %q", b)
	case json.Number, float64, int, int64:
		i, err := toInt64(b)
		if err != nil || (i != 0 && i != 1) {
			return false, fmt.Errorf("not a boolean: %v", b)
		}
		return i == 1, nil
	default:
		return false, fmt.Errorf("unsupported boolean type %T", v)
	}
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	default:
		return fmt.Sprint(v)
	}
}

// optionalString returns nil for absent, null or empty values
func optionalString(raw etl.RawRecord, key string) *string {
	v, ok := value(raw, key)
	if !ok {
		return nil
	}
	s := toString(v)
	if s == "" {
		return nil
	}
	return &s
}
