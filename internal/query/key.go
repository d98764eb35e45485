package query

import (
	"strconv"
	"strings"
)

// Key identifies one cached query result, e.g. Key{"airtable", "records"}.
type Key []string

// HasPrefix reports whether every segment of prefix matches the leading
// segments of k
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i, seg := range prefix {
		if k[i] != seg {
			return false
		}
	}
	return true
}

// String renders the key for logs
func (k Key) String() string {
	return "[" + strings.Join(k, ",") + "]"
}

// hash is the map key. Each segment is length-prefixed so segment
// boundaries survive any segment content.
func (k Key) hash() string {
	var b strings.Builder
	for _, seg := range k {
		b.WriteString(strconv.Itoa(len(seg)))
		b.WriteByte(':')
		b.WriteString(seg)
	}
	return b.String()
}

func (k Key) clone() Key {
	return append(Key(nil), k...)
}
