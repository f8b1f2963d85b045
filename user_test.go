package dark

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserGetAttributeWellKnown(t *testing.T) {
	u := NewUserBuilder("user-1").
		Email("a@example.com").
		Country("US").
		Anonymous(true).
		Build()

	assert.Equal(t, String("user-1"), u.GetAttribute("key"))
	assert.Equal(t, String("a@example.com"), u.GetAttribute("email"))
	assert.Equal(t, String("US"), u.GetAttribute("country"))
	assert.Equal(t, Bool(true), u.GetAttribute("anonymous"))
	assert.True(t, u.GetAttribute("ip").IsNull())
}

func TestUserGetAttributeCustom(t *testing.T) {
	u := NewUserBuilder("user-1").Custom("plan", String("enterprise")).Build()
	assert.Equal(t, String("enterprise"), u.GetAttribute("plan"))
	assert.True(t, u.GetAttribute("nonexistent").IsNull())
}

func TestNewAnonymousUser(t *testing.T) {
	u := NewAnonymousUser("anon-1")
	assert.Equal(t, Bool(true), u.GetAttribute("anonymous"))
}

func TestNewUserEmptyKeyAllowed(t *testing.T) {
	u := NewUser("")
	assert.Equal(t, "", u.Key)
}
