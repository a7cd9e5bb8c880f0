package auth

import (
	"context"

	xerrors "EscrowVault-Chain/internal/errors"
)

// ErrUnauthorized 表示调用方与声明的 owner 不一致。
var ErrUnauthorized = xerrors.New(CodeUnauthorized, "caller is not the claimed owner")

// CodeUnauthorized 是授权失败的统一错误码。
const CodeUnauthorized xerrors.Code = "VAULT_UNAUTHORIZED"

func init() {
	xerrors.Register(CodeUnauthorized, xerrors.Attributes{
		Message:   "caller is not the claimed owner",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
}

// Authorizer 校验调用方是否有权以 owner 的身份执行操作。
type Authorizer interface {
	RequireAuth(ctx context.Context, owner string) error
}

// CallerAuthorizer 将宿主运行时的 require_auth 建模为
// “上下文中的调用方地址必须与声明的 owner 一致”。
type CallerAuthorizer struct{}

// NewCallerAuthorizer 构造默认的授权校验器。
func NewCallerAuthorizer() *CallerAuthorizer {
	return &CallerAuthorizer{}
}

// RequireAuth 实现 Authorizer 接口。
func (a *CallerAuthorizer) RequireAuth(ctx context.Context, owner string) error {
	caller := CallerFromContext(ctx)
	if caller == "" {
		return ErrUnauthorized
	}
	if caller != normalise(owner) {
		return ErrUnauthorized
	}
	return nil
}

// AllowAll 跳过授权检查，仅用于测试。
type AllowAll struct{}

// RequireAuth 实现 Authorizer 接口。
func (AllowAll) RequireAuth(context.Context, string) error { return nil }

var (
	_ Authorizer = (*CallerAuthorizer)(nil)
	_ Authorizer = AllowAll{}
)
