package dark

// User is a user context evaluated against flag rules. It is immutable
// once constructed; build one with NewUser or NewUserBuilder.
//
// Key uniquely identifies the user for targeting and bucketing purposes.
// An empty key is allowed (evaluation proceeds) but is unusual enough
// that Evaluator.Evaluate logs a warning about it.
//
// Besides Key, User has a fixed set of "well-known" attributes
// (Secondary, IP, Country, Email, FirstName, LastName, Avatar, Name,
// Anonymous) that the control plane understands natively, plus an
// open-ended Custom map for anything else.
type User struct {
	Key       string
	Secondary *string
	IP        *string
	Country   *string
	Email     *string
	FirstName *string
	LastName  *string
	Avatar    *string
	Name      *string
	Anonymous *bool
	Custom    map[string]Value
}

// NewUser creates a User with only a key set. An empty key is accepted
// here without complaint; Evaluator.Evaluate is the one that logs a
// warning, since that is where a Loggers value is available.
func NewUser(key string) User {
	return User{Key: key}
}

// NewAnonymousUser creates an anonymous User with only a key set.
func NewAnonymousUser(key string) User {
	u := NewUser(key)
	anon := true
	u.Anonymous = &anon
	return u
}

func strPtr(s string) *string { return &s }

// GetAttribute resolves an attribute by name for clause matching: the
// well-known slot if the name matches one, else the Custom map, else an
// absent (null) value.
func (u User) GetAttribute(name string) Value {
	switch name {
	case "key":
		return String(u.Key)
	case "secondary":
		return optStringValue(u.Secondary)
	case "ip":
		return optStringValue(u.IP)
	case "country":
		return optStringValue(u.Country)
	case "email":
		return optStringValue(u.Email)
	case "firstName":
		return optStringValue(u.FirstName)
	case "lastName":
		return optStringValue(u.LastName)
	case "avatar":
		return optStringValue(u.Avatar)
	case "name":
		return optStringValue(u.Name)
	case "anonymous":
		if u.Anonymous == nil {
			return Null()
		}
		return Bool(*u.Anonymous)
	default:
		if u.Custom == nil {
			return Null()
		}
		if v, ok := u.Custom[name]; ok {
			return v
		}
		return Null()
	}
}

func optStringValue(s *string) Value {
	if s == nil {
		return Null()
	}
	return String(*s)
}

// UserBuilder builds a User with a fluent API, the way the teacher's
// lduser.NewUserBuilder does, so construction reads declaratively instead
// of via field assignment on a zero value.
type UserBuilder struct {
	u User
}

// NewUserBuilder starts building a User with the given key.
func NewUserBuilder(key string) *UserBuilder {
	return &UserBuilder{u: User{Key: key}}
}

// Secondary sets the secondary bucketing key.
func (b *UserBuilder) Secondary(s string) *UserBuilder { b.u.Secondary = strPtr(s); return b }

// IP sets the IP attribute.
func (b *UserBuilder) IP(s string) *UserBuilder { b.u.IP = strPtr(s); return b }

// Country sets the country attribute.
func (b *UserBuilder) Country(s string) *UserBuilder { b.u.Country = strPtr(s); return b }

// Email sets the email attribute.
func (b *UserBuilder) Email(s string) *UserBuilder { b.u.Email = strPtr(s); return b }

// FirstName sets the first name attribute.
func (b *UserBuilder) FirstName(s string) *UserBuilder { b.u.FirstName = strPtr(s); return b }

// LastName sets the last name attribute.
func (b *UserBuilder) LastName(s string) *UserBuilder { b.u.LastName = strPtr(s); return b }

// Avatar sets the avatar attribute.
func (b *UserBuilder) Avatar(s string) *UserBuilder { b.u.Avatar = strPtr(s); return b }

// Name sets the name attribute.
func (b *UserBuilder) Name(s string) *UserBuilder { b.u.Name = strPtr(s); return b }

// Anonymous marks the user as anonymous.
func (b *UserBuilder) Anonymous(a bool) *UserBuilder { b.u.Anonymous = &a; return b }

// Custom sets a custom attribute.
func (b *UserBuilder) Custom(name string, v Value) *UserBuilder {
	if b.u.Custom == nil {
		b.u.Custom = make(map[string]Value)
	}
	b.u.Custom[name] = v
	return b
}

// Build returns the constructed, immutable User.
func (b *UserBuilder) Build() User {
	return b.u
}
