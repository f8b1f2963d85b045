package dark

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// These reference vectors are the same ones spec.md documents for its
// bucketing algorithm, and match the teacher's own bucketing reference
// test values (same hashKey/salt/attribute combination).
func TestBucketUserReferenceVectors(t *testing.T) {
	cases := []struct {
		key      string
		expected float64
	}{
		{"userKeyA", 0.42157587433924940},
		{"userKeyB", 0.67084849657034350},
		{"userKeyC", 0.10343106172769690},
	}
	for _, c := range cases {
		u := NewUser(c.key)
		bucket := bucketUser(u, "hashKey", "key", "saltyA")
		assert.InDelta(t, c.expected, bucket, 0.0000000000001, "bucket for %s", c.key)
	}
}

func TestBucketUserMissingAttributeIsZero(t *testing.T) {
	u := NewUser("user-1")
	bucket := bucketUser(u, "hashKey", "missingAttr", "salt")
	assert.Equal(t, float64(0), bucket)
}

func TestBucketUserSecondaryKeyChangesBucket(t *testing.T) {
	u1 := NewUser("userKeyA")
	u2 := NewUserBuilder("userKeyA").Secondary("s2").Build()
	b1 := bucketUser(u1, "hashKey", "key", "saltyA")
	b2 := bucketUser(u2, "hashKey", "key", "saltyA")
	assert.NotEqual(t, b1, b2)
}

func TestBucketUserNonBucketableKindIsZero(t *testing.T) {
	u := userWithAttr("flag", Bool(true))
	bucket := bucketUser(u, "hashKey", "flag", "salt")
	assert.Equal(t, float64(0), bucket)
}
