package auth

import (
	"context"
	"strings"
)

// callerKey 是上下文中存储调用方地址的键类型。
type callerKey struct{}

// WithCaller 将经过验证的调用方地址存储到上下文中。
func WithCaller(ctx context.Context, caller string) context.Context {
	caller = normalise(caller)
	if caller == "" {
		return ctx
	}
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext 从上下文中提取经过验证的调用方地址。
func CallerFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if caller, ok := ctx.Value(callerKey{}).(string); ok {
		return caller
	}
	return ""
}

// normalise 统一地址的书写形式，避免大小写差异导致授权误判。
func normalise(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
