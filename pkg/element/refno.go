// Package element defines the identity and attribute model for plant-design
// elements: reference numbers, typed attribute values and attribute maps.
package element

import "fmt"

// RefNo identifies one plant element as a (database number, sequence number)
// pair. It is comparable, totally ordered and used as the cache/index key
// everywhere. Immutable once created.
type RefNo struct {
	DB  int32 `msgpack:"db"`
	Seq int32 `msgpack:"seq"`
}

// NilRef is the zero reference; no real element carries it.
var NilRef = RefNo{}

// String renders the PDMS-style form "=DB/Seq".
func (r RefNo) String() string {
	return fmt.Sprintf("=%d/%d", r.DB, r.Seq)
}

// IsNil reports whether r is the zero reference.
func (r RefNo) IsNil() bool {
	return r == NilRef
}

// Less provides the total order used by sorted scans and deterministic output.
func (r RefNo) Less(o RefNo) bool {
	if r.DB != o.DB {
		return r.DB < o.DB
	}
	return r.Seq < o.Seq
}
