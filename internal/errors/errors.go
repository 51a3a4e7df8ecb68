// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType 定义错误类型
type ErrorType string

const (
	// 通用错误类型
	ErrorTypeValidation ErrorType = "validation_error"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeError      ErrorType = "processing_error"
	ErrorTypeConflict   ErrorType = "conflict"
	ErrorTypeTimeout    ErrorType = "timeout"

	// 文档与执行会话相关错误类型
	ErrorTypeGrammarAnomaly     ErrorType = "grammar_anomaly"
	ErrorTypeHighlightFailure   ErrorType = "highlight_failure"
	ErrorTypeChannelLoss        ErrorType = "channel_loss"
	ErrorTypeProtocolAnomaly    ErrorType = "protocol_anomaly"
	ErrorTypeSidecarUnavailable ErrorType = "sidecar_unavailable"
)

// AppError 应用程序错误结构
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	Code    string // 用户友好的错误代码
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap 实现错误链接
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError 创建新的 AppError
func NewAppError(errType ErrorType, message string, originalError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     originalError,
		Code:    generateErrorCode(errType),
	}
}

// NewValidationError 创建验证错误
func NewValidationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeValidation, message, originalError)
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeNotFound, message, originalError)
}

// NewProcessingError 创建处理错误
func NewProcessingError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeError, message, originalError)
}

// NewConflictError 创建冲突错误
func NewConflictError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeConflict, message, originalError)
}

// NewHighlightFailure 某个块的高亮调用失败
func NewHighlightFailure(languageID string, originalError error) *AppError {
	return NewAppError(ErrorTypeHighlightFailure, fmt.Sprintf("高亮 %s 块失败", languageID), originalError)
}

// NewChannelLoss 执行通道关闭或出错
func NewChannelLoss(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeChannelLoss, message, originalError)
}

// NewProtocolAnomaly 运行中通道关闭且未收到终止标记
func NewProtocolAnomaly(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeProtocolAnomaly, message, originalError)
}

// NewSidecarUnavailable 辅助端点（状态/切换/版本）不可用
func NewSidecarUnavailable(endpoint string, originalError error) *AppError {
	return NewAppError(ErrorTypeSidecarUnavailable, fmt.Sprintf("辅助端点 %s 不可用", endpoint), originalError)
}

// IsType 检查错误链中是否有指定类型的 AppError
func IsType(err error, errType ErrorType) bool {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type == errType
	}
	return false
}

// IsValidationError 检查是否为验证错误
func IsValidationError(err error) bool {
	return IsType(err, ErrorTypeValidation)
}

// IsNotFoundError 检查是否为未找到错误
func IsNotFoundError(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// IsConflictError 检查是否为冲突错误
func IsConflictError(err error) bool {
	return IsType(err, ErrorTypeConflict)
}

// IsChannelLoss 检查是否为通道丢失
func IsChannelLoss(err error) bool {
	return IsType(err, ErrorTypeChannelLoss)
}

// IsProtocolAnomaly 检查是否为协议异常
func IsProtocolAnomaly(err error) bool {
	return IsType(err, ErrorTypeProtocolAnomaly)
}

// IsSidecarUnavailable 检查是否为辅助端点不可用
func IsSidecarUnavailable(err error) bool {
	return IsType(err, ErrorTypeSidecarUnavailable)
}

// IsHighlightFailure 检查是否为高亮失败
func IsHighlightFailure(err error) bool {
	return IsType(err, ErrorTypeHighlightFailure)
}

// generateErrorCode 根据错误类型生成错误代码
func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeError:
		return "PROCESSING_ERROR"
	case ErrorTypeConflict:
		return "CONFLICT"
	case ErrorTypeTimeout:
		return "TIMEOUT"
	case ErrorTypeGrammarAnomaly:
		return "GRAMMAR_ANOMALY"
	case ErrorTypeHighlightFailure:
		return "HIGHLIGHT_FAILURE"
	case ErrorTypeChannelLoss:
		return "CHANNEL_LOSS"
	case ErrorTypeProtocolAnomaly:
		return "PROTOCOL_ANOMALY"
	case ErrorTypeSidecarUnavailable:
		return "SIDECAR_UNAVAILABLE"
	default:
		return "UNKNOWN_ERROR"
	}
}

// WrapError 包装现有错误
func WrapError(err error, message string, errType ErrorType) error {
	if err == nil {
		return nil
	}

	var appError *AppError
	if errors.As(err, &appError) {
		// 如果已经是 AppError，只更新消息
		return &AppError{
			Type:    appError.Type,
			Message: fmt.Sprintf("%s: %s", message, appError.Message),
			Err:     appError,
			Code:    appError.Code,
		}
	}

	// 否则创建新的 AppError
	return NewAppError(errType, message, err)
}
