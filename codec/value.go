package codec

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// ValueKind tags the runtime type carried by a Value, mirroring BSON's own
// type tags, used by sort indexes over dynamic document values.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindBool
	KindInt64
	KindFloat64
	KindString
	KindBytes
	KindDateTime
	KindArray
	KindObject
)

// Value is a tagged sum type for a document field's runtime value.
// Sort-index comparators dispatch on the index's *declared* type
// (string/number/date), never on Kind — a numeral stored as a string
// still compares numerically under type=number.
type Value struct {
	Kind  ValueKind
	Bool  bool
	Int64 int64
	Float float64
	Str   string
	Bytes []byte
	Time  time.Time
	Raw   bson.RawValue // set when Kind is Array/Object; preserved verbatim
}

// ValueFromRaw converts a bson.RawValue (as produced by a document field
// lookup) into a Value.
func ValueFromRaw(rv bson.RawValue) Value {
	switch rv.Type {
	case bson.TypeNull, bson.TypeUndefined:
		return Value{Kind: KindNull}
	case bson.TypeBoolean:
		return Value{Kind: KindBool, Bool: rv.Boolean()}
	case bson.TypeInt32:
		return Value{Kind: KindInt64, Int64: int64(rv.Int32())}
	case bson.TypeInt64:
		return Value{Kind: KindInt64, Int64: rv.Int64()}
	case bson.TypeDouble:
		return Value{Kind: KindFloat64, Float: rv.Double()}
	case bson.TypeString:
		return Value{Kind: KindString, Str: rv.StringValue()}
	case bson.TypeBinary:
		_, data := rv.Binary()
		return Value{Kind: KindBytes, Bytes: data}
	case bson.TypeDateTime:
		return Value{Kind: KindDateTime, Time: rv.Time()}
	case bson.TypeArray:
		return Value{Kind: KindArray, Raw: rv}
	case bson.TypeEmbeddedDocument:
		return Value{Kind: KindObject, Raw: rv}
	default:
		return Value{Kind: KindNull}
	}
}

// AsFloat64 coerces v to a float64 for numeric comparison. A string
// holding a valid numeral is parsed; anything else that cannot be
// coerced yields (0, false) so callers can apply NaN-sorts-first
// semantics uniformly by treating ok=false as NaN.
func (v Value) AsFloat64() (float64, bool) {
	switch v.Kind {
	case KindFloat64:
		return v.Float, true
	case KindInt64:
		return float64(v.Int64), true
	case KindString:
		f, ok := parseFloat(v.Str)
		return f, ok
	case KindBool:
		if v.Bool {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// AsString renders v for locale-aware string comparison.
func (v Value) AsString() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindInt64:
		return formatInt(v.Int64)
	case KindFloat64:
		return formatFloat(v.Float)
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

// AsUnixMillis coerces v to a Unix-ms timestamp for date comparison.
func (v Value) AsUnixMillis() (int64, bool) {
	switch v.Kind {
	case KindDateTime:
		return v.Time.UnixMilli(), true
	case KindInt64:
		return v.Int64, true
	case KindFloat64:
		return int64(v.Float), true
	case KindString:
		if t, err := time.Parse(time.RFC3339, v.Str); err == nil {
			return t.UnixMilli(), true
		}
		if f, ok := parseFloat(v.Str); ok {
			return int64(f), true
		}
		return 0, false
	default:
		return 0, false
	}
}
