package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanErrorFormatting(t *testing.T) {
	err := ErrInvalidTarget("not-an-ip")
	assert.Contains(t, err.Error(), "TARGET_INVALID")
	assert.Contains(t, err.Error(), "not-an-ip")

	plain := NewScanError(CodeScanFailed, "nmap exited with code 1")
	assert.Equal(t, "[SCAN_FAILED] nmap exited with code 1", plain.Error())
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, CodeTargetInvalid, GetCode(ErrInvalidTarget("x")))
	assert.Equal(t, CodeNotFound, GetCode(ErrScheduleNotFound("abc")))
	assert.Equal(t, CodeConfiguration, GetCode(NewConfigError(CodeConfiguration, "bad")))
	assert.Equal(t, CodeUnknown, GetCode(stderrors.New("plain")))
	assert.Equal(t, CodeUnknown, GetCode(nil))
}

func TestGetCodeUnwrapsWrappedErrors(t *testing.T) {
	inner := ErrInvalidPorts("80,")
	wrapped := fmt.Errorf("request rejected: %w", inner)
	assert.Equal(t, CodePortsInvalid, GetCode(wrapped))
	assert.True(t, IsValidation(wrapped))
}

func TestUnwrapKeepsCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := ErrDatabaseQuery("list schedules", cause)
	require.ErrorIs(t, err, cause)
	assert.Equal(t, CodeDatabaseQuery, GetCode(err))
}

func TestClassifiers(t *testing.T) {
	assert.True(t, IsNotFound(ErrSessionNotFound("id")))
	assert.False(t, IsNotFound(ErrInvalidTarget("x")))
	assert.True(t, IsConflict(NewScheduleError(CodeConflict, "edit collision")))
	assert.True(t, IsValidation(ErrInvalidTarget("x")))
	assert.True(t, IsValidation(ErrInvalidPorts("0-10")))
	assert.False(t, IsValidation(NewScanError(CodeScanFailed, "boom")))
}
