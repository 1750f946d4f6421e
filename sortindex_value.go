// Value coercion and comparator logic for sort indexes,
// §4.4: string uses locale-aware collation (case-variants sort
// adjacently but never fold together), number coerces to float64 with
// NaN sorting first, date parses to Unix-ms.
package strata

import (
	"math"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/strata-db/strata/codec"
)

// stringCollator orders string values the way a human reader expects:
// culture-sensitive lexicographic order that groups case-variants of
// the same letter next to each other. A Collator keeps scratch iterator
// state between calls, so every use goes through stringCollatorMu.
var (
	stringCollator   = collate.New(language.Und)
	stringCollatorMu sync.Mutex
)

// indexType names the declared comparator for a sort index.
type indexType string

const (
	TypeString indexType = "string"
	TypeNumber indexType = "number"
	TypeDate   indexType = "date"
)

func (t indexType) valid() bool {
	return t == TypeString || t == TypeNumber || t == TypeDate
}

// valueFromField converts a decoded record field (as produced by
// bson.Unmarshal into map[string]any) into a codec.Value.
func valueFromField(v any) codec.Value {
	switch x := v.(type) {
	case nil:
		return codec.Value{Kind: codec.KindNull}
	case bool:
		return codec.Value{Kind: codec.KindBool, Bool: x}
	case int32:
		return codec.Value{Kind: codec.KindInt64, Int64: int64(x)}
	case int64:
		return codec.Value{Kind: codec.KindInt64, Int64: x}
	case int:
		return codec.Value{Kind: codec.KindInt64, Int64: int64(x)}
	case float64:
		return codec.Value{Kind: codec.KindFloat64, Float: x}
	case float32:
		return codec.Value{Kind: codec.KindFloat64, Float: float64(x)}
	case string:
		return codec.Value{Kind: codec.KindString, Str: x}
	case []byte:
		return codec.Value{Kind: codec.KindBytes, Bytes: x}
	case time.Time:
		return codec.Value{Kind: codec.KindDateTime, Time: x}
	default:
		return codec.Value{Kind: codec.KindNull}
	}
}

// compareValues orders a, b per the index's declared type, ignoring
// direction; direction inversion is applied by the caller.
func compareValues(typ indexType, a, b codec.Value) int {
	switch typ {
	case TypeNumber:
		af, aok := a.AsFloat64()
		bf, bok := b.AsFloat64()
		aNaN := !aok || math.IsNaN(af)
		bNaN := !bok || math.IsNaN(bf)
		switch {
		case aNaN && bNaN:
			return 0
		case aNaN:
			return -1
		case bNaN:
			return 1
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	case TypeDate:
		am, _ := a.AsUnixMillis()
		bm, _ := b.AsUnixMillis()
		switch {
		case am < bm:
			return -1
		case am > bm:
			return 1
		default:
			return 0
		}
	default: // TypeString, locale-aware collation
		stringCollatorMu.Lock()
		defer stringCollatorMu.Unlock()
		return stringCollator.CompareString(a.AsString(), b.AsString())
	}
}

// entryKey is the (value, record_id) ordering key a sort index entry is
// stored and compared by.
type entryKey struct {
	value codec.Value
	id    string
}

// compareKeys compares two entry keys by value then record id, with
// direction applied (desc inverts value comparison; id tie-break stays
// ascending, so ties break by record id, lexicographically.
func compareKeys(typ indexType, desc bool, a, b entryKey) int {
	c := compareValues(typ, a.value, b.value)
	if desc {
		c = -c
	}
	if c != 0 {
		return c
	}
	return strings.Compare(a.id, b.id)
}
