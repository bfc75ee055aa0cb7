package codec

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cast"

	"github.com/simon020286/go-transforms/models"
)

const (
	millisPerDay  = int64(24 * time.Hour / time.Millisecond)
	secondsPerDay = int64(24 * time.Hour / time.Second)
)

// EpochDay returns the number of days between 1970-01-01 and the calendar date of t
func EpochDay(t time.Time) int64 {
	y, m, d := t.Date()
	return floorDiv(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix(), secondsPerDay)
}

func DateFromEpochDay(days int64) time.Time {
	return time.Unix(days*secondsPerDay, 0).UTC()
}

func millisOfDay(t time.Time) int64 {
	h, m, s := t.Clock()
	return int64(h)*3600000 + int64(m)*60000 + int64(s)*1000 + int64(t.Nanosecond()/int(time.Millisecond))
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Coerce converts a plain Go value (as exported by the expression engine or a
// datasource driver) to a value of type t.
func Coerce(native any, t models.SchemaType) (models.Value, error) {
	if native == nil {
		return models.Null{}, nil
	}
	if v, ok := native.(models.Value); ok {
		switch v.(type) {
		case *models.Tree, models.List:
			if t == models.SchemaTypeJSON {
				return v, nil
			}
		}
		native = models.Native(v)
		if native == nil {
			return models.Null{}, nil
		}
	}

	switch t {
	case models.SchemaTypeInt8:
		return coerceInteger(native, math.MinInt8, math.MaxInt8, t)
	case models.SchemaTypeInt16:
		return coerceInteger(native, math.MinInt16, math.MaxInt16, t)
	case models.SchemaTypeInt32:
		return coerceInteger(native, math.MinInt32, math.MaxInt32, t)
	case models.SchemaTypeInt64:
		return coerceInteger(native, math.MinInt64, math.MaxInt64, t)

	case models.SchemaTypeFloat, models.SchemaTypeDouble:
		f, err := cast.ToFloat64E(native)
		if err != nil {
			return nil, models.ErrConvert(err, "cannot coerce %T to %s", native, t)
		}
		if t == models.SchemaTypeFloat {
			return models.Float(float32(f)), nil
		}
		return models.Float(f), nil

	case models.SchemaTypeBoolean:
		b, err := cast.ToBoolE(native)
		if err != nil {
			return nil, models.ErrConvert(err, "cannot coerce %T to %s", native, t)
		}
		return models.Bool(b), nil

	case models.SchemaTypeString:
		s, err := nativeText(native)
		if err != nil {
			return nil, err
		}
		return models.String(s), nil

	case models.SchemaTypeBytes:
		switch x := native.(type) {
		case []byte:
			return models.Bytes(x), nil
		case string:
			return models.Bytes(x), nil
		}
		s, err := nativeText(native)
		if err != nil {
			return nil, err
		}
		return models.Bytes(s), nil

	case models.SchemaTypeDate, models.SchemaTypeLocalDate:
		tm, err := toTime(native)
		if err != nil {
			return nil, models.ErrConvert(err, "cannot coerce %T to %s", native, t)
		}
		return models.Int(EpochDay(tm)), nil

	case models.SchemaTypeTime, models.SchemaTypeLocalTime:
		ms, err := toMillisOfDay(native)
		if err != nil {
			return nil, models.ErrConvert(err, "cannot coerce %T to %s", native, t)
		}
		return models.Int(ms), nil

	case models.SchemaTypeTimestamp, models.SchemaTypeInstant, models.SchemaTypeLocalDateTime:
		tm, err := toTime(native)
		if err != nil {
			return nil, models.ErrConvert(err, "cannot coerce %T to %s", native, t)
		}
		return models.Int(tm.UnixMilli()), nil

	case models.SchemaTypeJSON:
		switch x := native.(type) {
		case string:
			return ParseJSON([]byte(x))
		case []byte:
			return ParseJSON(x)
		}
		return jsonFromNative(native, nil)
	}
	return nil, models.ErrUnsupportedSchemaReason(string(t), "not a computable type")
}

func coerceInteger(native any, lo, hi int64, t models.SchemaType) (models.Value, error) {
	var n int64
	switch x := native.(type) {
	case float64:
		if x != math.Trunc(x) || x < float64(lo) || x > float64(hi) {
			return nil, models.ErrConvert(nil, "cannot coerce %v to %s without loss", x, t)
		}
		n = int64(x)
	case float32:
		return coerceInteger(float64(x), lo, hi, t)
	case time.Time:
		n = x.UnixMilli()
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return nil, models.ErrConvert(err, "cannot coerce %q to %s", x, t)
		}
		n = i
	default:
		i, err := cast.ToInt64E(native)
		if err != nil {
			return nil, models.ErrConvert(err, "cannot coerce %T to %s", native, t)
		}
		n = i
	}
	if n < lo || n > hi {
		return nil, models.ErrConvert(nil, "value %d overflows %s", n, t)
	}
	return models.Int(n), nil
}

func toTime(native any) (time.Time, error) {
	switch x := native.(type) {
	case time.Time:
		return x, nil
	case int, int8, int16, int32, int64, uint8, uint16, uint32, uint64, float32, float64:
		return time.UnixMilli(cast.ToInt64(x)).UTC(), nil
	case string:
		return cast.ToTimeInDefaultLocationE(x, time.UTC)
	}
	return time.Time{}, fmt.Errorf("unsupported temporal value %T", native)
}

var timeOfDayLayouts = []string{"15:04:05.000", "15:04:05", "15:04"}

func toMillisOfDay(native any) (int64, error) {
	switch x := native.(type) {
	case time.Duration:
		return x.Milliseconds(), nil
	case time.Time:
		return millisOfDay(x), nil
	case string:
		for _, layout := range timeOfDayLayouts {
			if tm, err := time.Parse(layout, x); err == nil {
				return millisOfDay(tm), nil
			}
		}
		return 0, fmt.Errorf("invalid time of day %q", x)
	}
	ms, err := cast.ToInt64E(native)
	if err != nil {
		return 0, err
	}
	if ms < 0 || ms >= millisPerDay {
		return 0, fmt.Errorf("time of day %d out of range", ms)
	}
	return ms, nil
}

func nativeText(native any) (string, error) {
	switch x := native.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case map[string]any, []any:
		v, err := jsonFromNative(x, nil)
		if err != nil {
			return "", err
		}
		b, err := MarshalJSON(v)
		return string(b), err
	}
	s, err := cast.ToStringE(native)
	if err != nil {
		b, jerr := json.Marshal(native)
		if jerr != nil {
			return "", models.ErrConvert(err, "cannot coerce %T to STRING", native)
		}
		return string(b), nil
	}
	return s, nil
}

// Text renders a value as text: scalars plainly, structures as JSON, null as empty
func Text(v models.Value) (string, error) {
	switch x := v.(type) {
	case nil, models.Null:
		return "", nil
	case models.Bool:
		return strconv.FormatBool(bool(x)), nil
	case models.Int:
		return strconv.FormatInt(int64(x), 10), nil
	case models.Float:
		return strconv.FormatFloat(float64(x), 'f', -1, 64), nil
	case models.String:
		return string(x), nil
	case models.Bytes:
		return string(x), nil
	}
	b, err := MarshalJSON(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// temporalText formats a temporal encoding as ISO-8601
func temporalText(i int64, t models.SchemaType) string {
	switch t {
	case models.SchemaTypeDate, models.SchemaTypeLocalDate:
		return DateFromEpochDay(i).Format("2006-01-02")
	case models.SchemaTypeTime, models.SchemaTypeLocalTime:
		return time.UnixMilli(i).UTC().Format("15:04:05.000")
	case models.SchemaTypeLocalDateTime:
		return time.UnixMilli(i).UTC().Format("2006-01-02T15:04:05.000")
	}
	return time.UnixMilli(i).UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
