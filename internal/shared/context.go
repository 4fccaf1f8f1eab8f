package shared

import "context"

// ClientInfo describes the caller of the current request.
type ClientInfo struct {
	IP        string
	UserAgent string
}

type clientInfoContextKey struct{}

// ContextWithClientInfo stores client details in context.
func ContextWithClientInfo(ctx context.Context, info ClientInfo) context.Context {
	return context.WithValue(ctx, clientInfoContextKey{}, info)
}

// ClientInfoFromContext extracts client details from context. The zero value
// is returned when none were stored.
func ClientInfoFromContext(ctx context.Context) ClientInfo {
	info, _ := ctx.Value(clientInfoContextKey{}).(ClientInfo)
	return info
}
