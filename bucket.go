package dark

import (
	"crypto/sha1" // nolint:gosec // required for wire-compatible bucket hashing, not for security
	"encoding/hex"
	"io"
	"strconv"
)

// longScale is the largest value representable by 15 hex digits (60 bits),
// used to normalize the truncated SHA-1 digest into [0.0, 1.0).
const longScale = float64(0xFFFFFFFFFFFFFFF)

// bucketUser computes the deterministic consistent-hashing bucket for a
// user, per spec.md §4.1. If the bucket-by attribute is absent on the
// user, the bucket is 0.0 (so the first rollout variation, in declaration
// order, with a nonzero weight always wins for such users -- matching the
// teacher's bucketUser, which returns a zero float in this case).
func bucketUser(user User, hashKey, bucketBy, salt string) float64 {
	attrValue := user.GetAttribute(bucketBy)
	if attrValue.IsNull() {
		return 0
	}
	idHash, ok := bucketableStringValue(attrValue)
	if !ok {
		return 0
	}
	if user.Secondary != nil {
		idHash = idHash + "." + *user.Secondary
	}

	h := sha1.New() // nolint:gosec
	_, _ = io.WriteString(h, hashKey+"."+salt+"."+idHash)
	digest := hex.EncodeToString(h.Sum(nil))[:15]

	intVal, _ := strconv.ParseInt(digest, 16, 64)
	return float64(intVal) / longScale
}

// bucketableStringValue mirrors the control plane's rule that only string
// (and, for convenience, integer) attribute values participate in
// bucketing; anything else is treated as absent.
func bucketableStringValue(v Value) (string, bool) {
	switch v.Kind() {
	case KindString:
		return v.StringValue(), true
	case KindInt:
		return strconv.FormatInt(v.IntValue(), 10), true
	default:
		return "", false
	}
}
