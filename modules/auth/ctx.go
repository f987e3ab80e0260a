package auth

import "context"

type memberMetaKey struct{}

type UserMetadata struct {
	ID             int64    `json:"id"`
	Email          string   `json:"email"`
	Name           string   `json:"name"`
	Role           string   `json:"role"`
	Certifications []string `json:"certifications"`
}

func (u *UserMetadata) Certified(cert string) bool {
	for _, c := range u.Certifications {
		if c == cert {
			return true
		}
	}
	return false
}

// WithUserMeta attaches member metadata to the context. Outside of WithAuth
// it is mostly useful for handler tests.
func WithUserMeta(ctx context.Context, meta *UserMetadata) context.Context {
	return context.WithValue(ctx, memberMetaKey{}, meta)
}

// GetUserMeta returns the member metadata set by WithAuth from the request context.
func GetUserMeta(ctx context.Context) *UserMetadata {
	val := ctx.Value(memberMetaKey{})
	if val == nil {
		return nil
	}
	um, _ := val.(*UserMetadata)
	return um
}
