package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorError(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name:     "without cause",
			err:      New(ErrCodeValidationFailed, "missing receiver"),
			expected: "VALIDATION_FAILED: missing receiver",
		},
		{
			name:     "with cause",
			err:      Wrap(errors.New("broken pipe"), ErrCodeTransport, "broker connection lost"),
			expected: "TRANSPORT: broker connection lost: broken pipe",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, ErrCodeTransport, "dial failed")
	assert.Equal(t, cause, errors.Unwrap(err))
	assert.True(t, errors.Is(err, cause))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(WrapRetryable(errors.New("timeout"), ErrCodeBrokerSend, "send failed")))
	assert.False(t, IsRetryable(New(ErrCodeValidationFailed, "missing content")))
	assert.False(t, IsRetryable(errors.New("plain error")))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, ErrCodeParseFailed, GetCode(New(ErrCodeParseFailed, "bad payload")))
	assert.Equal(t, ErrCodeInternalError, GetCode(errors.New("plain error")))
}

func TestWithContext(t *testing.T) {
	err := New(ErrCodeBrokerSend, "send failed").WithContext("destination", "/app/chat.sendMessage")
	assert.Equal(t, "/app/chat.sendMessage", err.Context["destination"])
}
