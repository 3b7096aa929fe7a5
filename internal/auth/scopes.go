package auth

// Scopes understood by the productivity API.
const (
	ScopeProductivityRead  = "productivity:read"
	ScopeProductivityWrite = "productivity:write"
)

// Allows reports whether claims grant scope. The write scope implies read.
func (c *Claims) Allows(scope string) bool {
	if c.HasScope(scope) {
		return true
	}
	return scope == ScopeProductivityRead && c.HasScope(ScopeProductivityWrite)
}

// LocalClaims grants full access to tenantID. It backs the single-user mode where
// authentication is disabled.
func LocalClaims(tenantID string) *Claims {
	return &Claims{
		Subject:  "local",
		TenantID: tenantID,
		Scopes: map[string]struct{}{
			ScopeProductivityRead:  {},
			ScopeProductivityWrite: {},
		},
	}
}
