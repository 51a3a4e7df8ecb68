// internal/errors/errors_test.go
package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorClassification(t *testing.T) {
	cause := errors.New("connection refused")

	err := NewSidecarUnavailable("/debug/status", cause)
	assert.True(t, IsSidecarUnavailable(err))
	assert.False(t, IsChannelLoss(err))
	assert.Equal(t, "SIDECAR_UNAVAILABLE", err.Code)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")

	wrapped := fmt.Errorf("探测失败: %w", err)
	assert.True(t, IsSidecarUnavailable(wrapped), "包装后仍可识别")
}

func TestWrapErrorKeepsType(t *testing.T) {
	base := NewChannelLoss("通道已关闭", nil)
	wrapped := WrapError(base, "运行中断", ErrorTypeError)

	assert.True(t, IsChannelLoss(wrapped))
	assert.Contains(t, wrapped.Error(), "运行中断")
	assert.Nil(t, WrapError(nil, "ignored", ErrorTypeError))

	plain := WrapError(errors.New("boom"), "处理失败", ErrorTypeProtocolAnomaly)
	assert.True(t, IsProtocolAnomaly(plain))
}

func TestGenerateErrorCode(t *testing.T) {
	cases := map[ErrorType]string{
		ErrorTypeValidation:       "VALIDATION_ERROR",
		ErrorTypeHighlightFailure: "HIGHLIGHT_FAILURE",
		ErrorTypeProtocolAnomaly:  "PROTOCOL_ANOMALY",
		ErrorType("other"):        "UNKNOWN_ERROR",
	}
	for errType, code := range cases {
		assert.Equal(t, code, generateErrorCode(errType))
	}
}
