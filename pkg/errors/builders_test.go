// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewOversizedFrameError(t *testing.T) {
	err := NewOversizedFrameError(5000, 4096)

	assert.Equal(t, ErrorCodeOversizedFrame, err.Code)
	assert.Equal(t, CategoryFraming, err.Category)
	assert.Contains(t, err.Error(), "5000")
	assert.Contains(t, err.Error(), "4096")
	assert.True(t, err.IsRetryable())
}

func TestNewMalformedFrameError(t *testing.T) {
	err := NewMalformedFrameError("header truncated")

	assert.Equal(t, ErrorCodeMalformedFrame, err.Code)
	assert.Contains(t, err.Error(), "header truncated")
}

func TestNewMissingFragmentError(t *testing.T) {
	err := NewMissingFragmentError("abc123", 3)

	assert.Equal(t, ErrorCodeMissingFragment, err.Code)
	assert.Contains(t, err.Error(), "abc123")
	assert.Contains(t, err.Details, "index=3")
}

func TestNewNonTerminalLastFragmentError(t *testing.T) {
	err := NewNonTerminalLastFragmentError("abc123", 2, 5)

	assert.Equal(t, ErrorCodeNonTerminalLastFragment, err.Code)
	assert.Contains(t, err.Error(), "abc123")
}

func TestNewUnknownMessageTypeError(t *testing.T) {
	err := NewUnknownMessageTypeError(9)

	assert.Equal(t, ErrorCodeUnknownMessageType, err.Code)
	assert.Equal(t, CategoryProtocol, err.Category)
	assert.False(t, err.IsRetryable())
}

func TestNewUnknownStatusError(t *testing.T) {
	err := NewUnknownStatusError(42)

	assert.Equal(t, ErrorCodeUnknownStatus, err.Code)
	assert.Equal(t, CategoryProtocol, err.Category)
}

func TestNewNoWorkersError(t *testing.T) {
	err := NewNoWorkersError("job-1")

	assert.Equal(t, ErrorCodeNoWorkers, err.Code)
	assert.Equal(t, CategoryScheduling, err.Category)
	assert.True(t, err.IsRetryable())
	assert.True(t, err.IsTemporary())
	assert.Contains(t, err.Details, "job-1")
}

func TestNewMissingConfigFileError(t *testing.T) {
	cause := stderrors.New("no such file or directory")
	err := NewMissingConfigFileError("/etc/node1-slave-config.json", cause)

	assert.Equal(t, ErrorCodeMissingConfigFile, err.Code)
	assert.Equal(t, CategoryConfiguration, err.Category)
	assert.Equal(t, "/etc/node1-slave-config.json", err.Path)
	assert.False(t, err.IsRetryable())
}

func TestNewInvalidConfigFileError(t *testing.T) {
	cause := stderrors.New("invalid character")
	err := NewInvalidConfigFileError("/etc/node1-slave-config.json", cause)

	assert.Equal(t, ErrorCodeInvalidConfigFile, err.Code)
}

func TestNewUnresolvableMasterError(t *testing.T) {
	cause := stderrors.New("no such host")
	err := NewUnresolvableMasterError("master1.example.com", cause)

	assert.Equal(t, ErrorCodeUnresolvableMaster, err.Code)
	assert.Equal(t, "master1.example.com", err.Path)
}

func TestNewInvalidBindAddressError(t *testing.T) {
	cause := stderrors.New("address already in use")
	err := NewInvalidBindAddressError(":33310", cause)

	assert.Equal(t, ErrorCodeInvalidBindAddress, err.Code)
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, IsRetryableError(NewClusterError(ErrorCodeMissingFragment, "x")))
	assert.False(t, IsRetryableError(NewClusterError(ErrorCodeProcessorFailed, "x")))
	assert.False(t, IsRetryableError(stderrors.New("plain error")))
}

func TestIsTemporaryError(t *testing.T) {
	assert.True(t, IsTemporaryError(NewClusterError(ErrorCodeOversizedFrame, "x")))
	assert.False(t, IsTemporaryError(NewClusterError(ErrorCodeUnknownStatus, "x")))
}

func TestGetErrorCode(t *testing.T) {
	assert.Equal(t, ErrorCodeNoWorkers, GetErrorCode(NewClusterError(ErrorCodeNoWorkers, "x")))
	assert.Equal(t, ErrorCodeUnknown, GetErrorCode(stderrors.New("plain")))
}

func TestGetErrorCategoryHelper(t *testing.T) {
	assert.Equal(t, CategoryFraming, GetErrorCategory(NewClusterError(ErrorCodeMalformedFrame, "x")))
	assert.Equal(t, CategoryUnknown, GetErrorCategory(stderrors.New("plain")))
}

func TestIsExecutionError(t *testing.T) {
	execErr := NewExecutionError("unit-1", stderrors.New("boom"))
	assert.True(t, IsExecutionError(execErr))
	assert.False(t, IsExecutionError(stderrors.New("plain")))
}

func TestIsConfigurationError(t *testing.T) {
	configErr := NewConfigurationError(ErrorCodeMissingConfigFile, "/etc/x.json", stderrors.New("boom"))
	assert.True(t, IsConfigurationError(configErr))
	assert.False(t, IsConfigurationError(stderrors.New("plain")))
}
