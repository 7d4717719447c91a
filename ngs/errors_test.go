package ngs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/cwbudde/algo-ngs/ngs/module"
	"github.com/cwbudde/algo-ngs/ngs/param"
)

func TestErrorCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want Code
	}{
		{nil, CodeOK},
		{ErrInvalidHandle, CodeInvalidHandle},
		{fmt.Errorf("voice 3: %w", ErrVoiceNotAllocated), CodeVoiceNotAllocated},
		{ErrResourceExhausted, CodeResourceExhausted},
		{ErrCycleDetected, CodeCycleDetected},
		{ErrInvalidPort, CodeInvalidPort},
		{ErrInvalidState, CodeInvalidState},
		{fmt.Errorf("slot 0: %w", param.ErrParamTooLarge), CodeParamTooLarge},
		{param.ErrBadStructID, CodeBadStructID},
		{param.ErrParamTruncated, CodeParamTruncated},
		{ErrClosed, CodeClosed},
		{ErrInvalidArgument, CodeInvalidArgument},
		{module.ErrUnknownKind, CodeInvalidArgument},
		{module.ErrFault, CodeModuleFault},
		{errors.New("something else"), CodeInternal},
	}

	for _, tt := range tests {
		if got := ErrorCode(tt.err); got != tt.want {
			t.Errorf("ErrorCode(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestCodesAreStable(t *testing.T) {
	t.Parallel()

	if got := CodeInvalidHandle.String(); got != "0x804A0001" {
		t.Fatalf("CodeInvalidHandle = %s", got)
	}

	if uint32(CodeParamTooLarge) != 0x804A0007 || uint32(CodeCycleDetected) != 0x804A0004 {
		t.Fatalf("codes moved: %v %v", CodeParamTooLarge, CodeCycleDetected)
	}
}
