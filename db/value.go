package db

import (
	"fmt"
	"time"

	"github.com/hayride-dev/hayride-go/domain/entities"
)

// args converts guest parameters into driver arguments.
func args(params []entities.DBValue) ([]any, error) {
	out := make([]any, len(params))
	for i, p := range params {
		switch p.Type {
		case entities.DBInt32, entities.DBInt64:
			out[i] = p.Int
		case entities.DBUint32, entities.DBUint64:
			out[i] = p.Uint
		case entities.DBFloat, entities.DBDouble:
			out[i] = p.Float
		case entities.DBStr, entities.DBDate, entities.DBTime, entities.DBTimestamp:
			out[i] = p.Str
		case entities.DBBoolean:
			out[i] = p.Bool
		case entities.DBBinary:
			out[i] = p.Binary
		case entities.DBNull, "":
			out[i] = nil
		default:
			return nil, fmt.Errorf("parameter %d: unknown value type %q", i+1, p.Type)
		}
	}
	return out, nil
}

// value converts a scanned cell into a guest value.
func value(v any) entities.DBValue {
	switch x := v.(type) {
	case nil:
		return entities.DBValue{Type: entities.DBNull}
	case int64:
		return entities.DBValue{Type: entities.DBInt64, Int: x}
	case int32:
		return entities.DBValue{Type: entities.DBInt32, Int: int64(x)}
	case int:
		return entities.DBValue{Type: entities.DBInt64, Int: int64(x)}
	case uint64:
		return entities.DBValue{Type: entities.DBUint64, Uint: x}
	case uint32:
		return entities.DBValue{Type: entities.DBUint32, Uint: uint64(x)}
	case float32:
		return entities.DBValue{Type: entities.DBFloat, Float: float64(x)}
	case float64:
		return entities.DBValue{Type: entities.DBDouble, Float: x}
	case bool:
		return entities.DBValue{Type: entities.DBBoolean, Bool: x}
	case string:
		return entities.DBValue{Type: entities.DBStr, Str: x}
	case []byte:
		return entities.DBValue{Type: entities.DBBinary, Binary: append([]byte(nil), x...)}
	case time.Time:
		return entities.DBValue{Type: entities.DBTimestamp, Str: x.Format(time.RFC3339Nano)}
	default:
		return entities.DBValue{Type: entities.DBStr, Str: fmt.Sprint(x)}
	}
}
