package blobstore

// Optional store capability interfaces.
//
// These interfaces are used for feature detection (type assertions). The core
// Store interface remains intentionally small.

// TokenBinder is implemented by stores whose requests carry a per-session
// bearer credential in addition to any static API key.
//
// BindToken returns a store bound to the given token without modifying the
// receiver; callers bind once per operation after resolving the session.
// Stores with static credentials (S3, filesystem) do not implement this.
type TokenBinder interface {
	BindToken(token string) Store
}

// Bind returns s bound to token when s supports per-session credentials,
// otherwise s unchanged.
func Bind(s Store, token string) Store {
	if binder, ok := s.(TokenBinder); ok {
		return binder.BindToken(token)
	}
	return s
}
