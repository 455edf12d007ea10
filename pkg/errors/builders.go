// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	stderrors "errors"
	"fmt"
)

// NewOversizedFrameError reports a datagram whose declared payload
// length exceeds PAYLOAD_MAX.
func NewOversizedFrameError(got, max int) *ClusterError {
	err := NewClusterError(ErrorCodeOversizedFrame, fmt.Sprintf("frame payload %d bytes exceeds max %d", got, max))
	err.Details = fmt.Sprintf("got=%d max=%d", got, max)
	return err
}

// NewMalformedFrameError reports a datagram that is too short to
// contain the fixed-layout header, or whose declared length disagrees
// with the bytes actually received.
func NewMalformedFrameError(reason string) *ClusterError {
	return NewClusterError(ErrorCodeMalformedFrame, "malformed frame: "+reason)
}

// NewMissingFragmentError reports a message being reassembled for
// which a fragment has not yet arrived.
func NewMissingFragmentError(msgID string, index int) *ClusterError {
	err := NewClusterError(ErrorCodeMissingFragment, fmt.Sprintf("missing fragment %d for message %s", index, msgID))
	err.Details = fmt.Sprintf("msg_id=%s index=%d", msgID, index)
	return err
}

// NewNonTerminalLastFragmentError reports a fragment marked as the
// final one whose index does not match the message's declared
// fragment count.
func NewNonTerminalLastFragmentError(msgID string, index, total int) *ClusterError {
	err := NewClusterError(ErrorCodeNonTerminalLastFragment,
		fmt.Sprintf("fragment %d marked final but message %s declares %d fragments", index, msgID, total))
	err.Details = fmt.Sprintf("msg_id=%s index=%d total=%d", msgID, index, total)
	return err
}

// NewUnknownMessageTypeError reports a datagram whose message type
// byte is outside the defined set.
func NewUnknownMessageTypeError(msgType byte) *ClusterError {
	err := NewClusterError(ErrorCodeUnknownMessageType, fmt.Sprintf("unknown message type %d", msgType))
	err.Details = fmt.Sprintf("type=%d", msgType)
	return err
}

// NewUnknownStatusError reports a STATUS message whose value is
// outside the defined set.
func NewUnknownStatusError(status byte) *ClusterError {
	err := NewClusterError(ErrorCodeUnknownStatus, fmt.Sprintf("unknown status value %d", status))
	err.Details = fmt.Sprintf("status=%d", status)
	return err
}

// ErrNoWorkers is returned when job assignment is attempted with no
// workers registered.
var ErrNoWorkers = NewClusterError(ErrorCodeNoWorkers, "no workers registered")

// NewNoWorkersError returns a fresh ErrNoWorkers instance stamped with
// the current time, for a given job.
func NewNoWorkersError(jobID string) *ClusterError {
	err := NewClusterError(ErrorCodeNoWorkers, "no workers registered")
	err.Details = "job_id=" + jobID
	return err
}

// NewMissingConfigFileError wraps a failure to read a worker's
// configuration file.
func NewMissingConfigFileError(path string, cause error) *ConfigurationError {
	return NewConfigurationError(ErrorCodeMissingConfigFile, path, cause)
}

// NewInvalidConfigFileError wraps a failure to parse a worker's
// configuration file.
func NewInvalidConfigFileError(path string, cause error) *ConfigurationError {
	return NewConfigurationError(ErrorCodeInvalidConfigFile, path, cause)
}

// NewUnresolvableMasterError wraps a failure to resolve a master
// hostname to an IP address.
func NewUnresolvableMasterError(hostname string, cause error) *ConfigurationError {
	return NewConfigurationError(ErrorCodeUnresolvableMaster, hostname, cause)
}

// NewInvalidBindAddressError wraps a failure to bind the local
// messenger's UDP socket.
func NewInvalidBindAddressError(addr string, cause error) *ConfigurationError {
	return NewConfigurationError(ErrorCodeInvalidBindAddress, addr, cause)
}

// IsRetryableError checks if an error is retryable.
func IsRetryableError(err error) bool {
	var clusterErr *ClusterError
	if stderrors.As(err, &clusterErr) {
		return clusterErr.IsRetryable()
	}
	return false
}

// IsTemporaryError checks if an error is temporary.
func IsTemporaryError(err error) bool {
	var clusterErr *ClusterError
	if stderrors.As(err, &clusterErr) {
		return clusterErr.IsTemporary()
	}
	return false
}

// GetErrorCode extracts the error code from any error.
func GetErrorCode(err error) ErrorCode {
	var clusterErr *ClusterError
	if stderrors.As(err, &clusterErr) {
		return clusterErr.Code
	}
	return ErrorCodeUnknown
}

// GetErrorCategory extracts the error category from any error.
func GetErrorCategory(err error) ErrorCategory {
	var clusterErr *ClusterError
	if stderrors.As(err, &clusterErr) {
		return clusterErr.Category
	}
	return CategoryUnknown
}

// IsExecutionError checks if an error is a wrapped processor failure.
func IsExecutionError(err error) bool {
	var execErr *ExecutionError
	if stderrors.As(err, &execErr) {
		return true
	}
	var clusterErr *ClusterError
	if stderrors.As(err, &clusterErr) {
		return clusterErr.Category == CategoryExecution
	}
	return false
}

// IsConfigurationError checks if an error is a configuration error.
func IsConfigurationError(err error) bool {
	var configErr *ConfigurationError
	if stderrors.As(err, &configErr) {
		return true
	}
	var clusterErr *ClusterError
	if stderrors.As(err, &clusterErr) {
		return clusterErr.Category == CategoryConfiguration
	}
	return false
}
