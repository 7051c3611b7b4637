package domain

import (
	"strconv"
	"strings"
	"time"
)

// SequencePrefix prefixes the reserved records that map a sequence number
// back to a key.
const SequencePrefix = "seq_no::"

// Handle identifies an open wallet session. Zero is never issued.
type Handle int32

// Record is the unit of storage inside a wallet.
type Record struct {
	Key       string    `json:"key"`
	Value     []byte    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

// Value is a record value returned by a backend read.
//
// Values produced by a backend are owned by that backend until handed back
// through Session.ReleaseValue.
type Value struct {
	Data      []byte
	CreatedAt time.Time
}

// Clone returns a copy of the value detached from backend-owned memory.
func (v *Value) Clone() *Value {
	if v == nil {
		return nil
	}
	data := make([]byte, len(v.Data))
	copy(data, v.Data)
	return &Value{Data: data, CreatedAt: v.CreatedAt}
}

// IsStale reports whether a record created at createdAt has aged past the
// freshness window at now. A zero window never goes stale.
func IsStale(createdAt, now time.Time, window time.Duration) bool {
	if window <= 0 {
		return false
	}
	return now.Sub(createdAt) > window
}

// SequenceKey returns the reserved record key for a sequence number.
func SequenceKey(seqNo int64) string {
	return SequencePrefix + strconv.FormatInt(seqNo, 10)
}

// IsSequenceKey reports whether key is a reserved sequence number record.
func IsSequenceKey(key string) bool {
	return strings.HasPrefix(key, SequencePrefix)
}
