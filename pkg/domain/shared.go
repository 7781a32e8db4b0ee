package domain

// Well-known shared state keys.
const (
	// KeySharedState wraps the parent flow's shared state while an inner flow runs.
	KeySharedState = "sharedState"
	KeyUsername    = "username"
	KeyRealm       = "realm"
	KeyAuthLevel   = "authLevel"
)

// UnwrapSharedState walks the nested KeySharedState wrappers and returns the innermost
// defined username and realm. A value defined at a deeper level wins over an outer one.
func UnwrapSharedState(shared map[string]any) (username, realm string) {
	for level := shared; level != nil; {
		if v, ok := level[KeyUsername].(string); ok && v != "" {
			username = v
		}
		if v, ok := level[KeyRealm].(string); ok && v != "" {
			realm = v
		}
		next, ok := level[KeySharedState].(map[string]any)
		if !ok {
			break
		}
		level = next
	}
	return username, realm
}

// AuthLevel reads the auth level from shared state. Numbers decoded from JSON are float64.
func AuthLevel(shared map[string]any) (int, bool) {
	switch v := shared[KeyAuthLevel].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
