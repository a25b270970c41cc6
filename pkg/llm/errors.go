package llm

import (
	"fmt"

	"costsense-go/internal/model"
)

// ProviderError 是供应商调用失败时返回的类型化错误。
// Message 原样保留上游返回的信息，由网关负责脱敏。
type ProviderError struct {
	Provider   string
	Kind       model.ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s error (status %d): %s", e.Provider, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s error: %s", e.Provider, e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func configurationError(provider, msg string) *ProviderError {
	return &ProviderError{Provider: provider, Kind: model.ErrorKindConfiguration, Message: msg}
}
