// Package api 暴露金库的 REST 接口。路由建立在标准库 mux 之上，
// 调用方身份通过 X-Vault-Caller 请求头注入。
package api
