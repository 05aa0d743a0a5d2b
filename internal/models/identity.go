package models

// Identity is the caller as reported by the authentication collaborator
type Identity struct {
	// UID is the caller's user ID
	UID string

	// DisplayName is the caller's display name
	DisplayName string

	// AvatarRef points at the caller's avatar
	AvatarRef string

	// IsGuest is true for callers that have not signed in
	IsGuest bool
}

// Authenticated reports whether the identity can perform lifecycle operations
func (i *Identity) Authenticated() bool {
	return i != nil && i.UID != "" && !i.IsGuest
}
