// Package xid encodes and decodes the external identifier used throughout
// the database: a 64-bit value combining a user id (uid) and a per-user
// point id (pid).
package xid

// pidBits is the width of the pid field in an encoded xid. The remaining
// 30 high bits hold the uid, so the top bit of a 30-bit uid is the sign
// bit of the encoded int64.
const pidBits = 34

// PidMask isolates the low pidBits bits of an xid.
const PidMask = (uint64(1) << pidBits) - 1

// Deleted is the sentinel xid written over a removed record. Encode returns
// a non-negative int64, and so never Deleted, for every uid below 1<<29;
// Encode(1<<30-1, PidMask) sets all 64 bits and equals Deleted.
const Deleted int64 = -1

// Encode packs uid (must fit in 30 bits) and pid (must fit in 34 bits) into
// a single external id. Callers are responsible for keeping uid/pid within
// range; Encode does not itself validate them.
func Encode(uid uint32, pid uint64) int64 {
	return int64((uint64(uid) << pidBits) | (pid & PidMask))
}

// Decode splits an external id back into its uid and pid components.
// The behavior for x == Deleted is unspecified; callers must check for
// Deleted before calling Decode.
func Decode(x int64) (uid uint32, pid uint64) {
	u := uint64(x)
	return uint32(u >> pidBits), u & PidMask
}

// UID returns just the uid component of an external id.
func UID(x int64) uint32 {
	return uint32(uint64(x) >> pidBits)
}

// PID returns just the pid component of an external id.
func PID(x int64) uint64 {
	return uint64(x) & PidMask
}

// IsDeleted reports whether x is the tombstone sentinel.
func IsDeleted(x int64) bool {
	return x == Deleted
}
