package domain

import (
	"sort"
	"strconv"
	"strings"
)

// Variant is a free-form selection such as size or colour.
type Variant map[string]string

// Key returns a canonical form of the variant: keys sorted, pairs quoted.
// Two variants with the same pairs always produce the same key regardless of
// insertion order. Nil and empty variants share the empty key.
func (v Variant) Key() string {
	if len(v) == 0 {
		return ""
	}
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(strconv.Quote(k))
		b.WriteByte('=')
		b.WriteString(strconv.Quote(v[k]))
	}
	return b.String()
}

func (v Variant) Clone() Variant {
	if v == nil {
		return nil
	}
	out := make(Variant, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}
