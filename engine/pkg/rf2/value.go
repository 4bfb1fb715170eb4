package rf2

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SplitLine splits a line on the column separator keeping trailing empty
// fields, so "a\tb\t" has three fields. A trailing CR is dropped.
func SplitLine(line string) []string {
	return strings.Split(strings.TrimSuffix(line, "\r"), ColumnSeparator)
}

// JoinLine joins columns with the column separator.
func JoinLine(cols []string) string {
	return strings.Join(cols, ColumnSeparator)
}

// NormalizeValue validates a raw column value against its type and returns
// the canonical text every backend emits for it. Empty values stay empty.
func NormalizeValue(t DataType, v string) (string, error) {
	if v == "" {
		return "", nil
	}
	switch t {
	case SCTID, Integer:
		bits := 64
		if t == Integer {
			bits = 32
		}
		n, err := strconv.ParseInt(v, 10, bits)
		if err != nil {
			return "", fmt.Errorf("invalid %s value %q", t, v)
		}
		return strconv.FormatInt(n, 10), nil
	case UUID:
		u, err := uuid.Parse(v)
		if err != nil {
			return "", fmt.Errorf("invalid %s value %q", t, v)
		}
		return u.String(), nil
	case Boolean:
		b, err := ParseBool(v)
		if err != nil {
			return "", err
		}
		return FormatBool(b), nil
	case Time:
		if _, err := ParseDate(v); err != nil {
			return "", err
		}
		return v, nil
	default:
		return v, nil
	}
}

// NormalizeRow normalizes every column in place.
func NormalizeRow(schema *TableSchema, cols []string) error {
	if len(cols) != len(schema.Fields) {
		return fmt.Errorf("expected %d columns, got %d", len(schema.Fields), len(cols))
	}
	for i, f := range schema.Fields {
		v, err := NormalizeValue(f.Type, cols[i])
		if err != nil {
			return fmt.Errorf("column %s: %w", f.Name, err)
		}
		cols[i] = v
	}
	for i := 0; i <= schema.EffectiveTimeIndex(); i++ {
		if cols[i] == "" {
			return fmt.Errorf("column %s is empty", schema.Fields[i].Name)
		}
	}
	return nil
}

func ParseBool(v string) (bool, error) {
	switch v {
	case BooleanTrue, "true":
		return true, nil
	case BooleanFalse, "false":
		return false, nil
	default:
		return false, fmt.Errorf("invalid %s value %q", Boolean, v)
	}
}

func FormatBool(b bool) string {
	if b {
		return BooleanTrue
	}
	return BooleanFalse
}

func ParseDate(v string) (time.Time, error) {
	t, err := time.Parse(DateLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s value %q", Time, v)
	}
	return t, nil
}

func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}
