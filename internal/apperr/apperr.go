package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrConfiguration 配置错误：尺寸上限、显示模式、缺失凭据等
	ErrConfiguration = errors.New("invalid configuration")
	// ErrUnsupportedLanguage 引擎不支持目标语言，不调用服务直接失败
	ErrUnsupportedLanguage = errors.New("unsupported target language")
	// ErrPersistence 存储层失败
	ErrPersistence = errors.New("persistence failure")
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("not found")
)

// ProviderError 服务端调用失败（网络、鉴权、配额、HTTP状态码）
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable 400/401/403/404 重试无意义，其余都可重试
func (e *ProviderError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return false
	}
	return true
}

// Configuration 包装配置错误
func Configuration(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// UnsupportedLanguage 包装语言不支持错误
func UnsupportedLanguage(provider, lang string) error {
	return fmt.Errorf("%w: %s does not support %q", ErrUnsupportedLanguage, provider, lang)
}

// Provider 构造 ProviderError
func Provider(provider string, status int, err error) error {
	return &ProviderError{Provider: provider, StatusCode: status, Err: err}
}

// IsRetryable 判断错误是否值得重试
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConfiguration) || errors.Is(err, ErrUnsupportedLanguage) {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return true
}
