package ngs

import (
	"errors"
	"fmt"

	"github.com/cwbudde/algo-ngs/ngs/module"
	"github.com/cwbudde/algo-ngs/ngs/param"
)

var (
	// ErrInvalidHandle is returned for unknown, stale or out-of-range rack,
	// voice, slot or patch references.
	ErrInvalidHandle = errors.New("ngs: invalid handle")
	// ErrVoiceNotAllocated is an ErrInvalidHandle for voices that are not
	// currently claimed from their rack.
	ErrVoiceNotAllocated = fmt.Errorf("%w: voice not allocated", ErrInvalidHandle)
	// ErrResourceExhausted is returned when a fixed pool has no free entry.
	ErrResourceExhausted = errors.New("ngs: resource exhausted")
	// ErrCycleDetected is returned by Connect when the patch would close a cycle.
	ErrCycleDetected = errors.New("ngs: patch would create a cycle")
	// ErrInvalidPort is returned for port indexes a voice does not expose.
	ErrInvalidPort = errors.New("ngs: invalid port")
	// ErrInvalidState is returned for illegal voice state transitions.
	ErrInvalidState = errors.New("ngs: invalid voice state transition")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("ngs: system closed")
	// ErrInvalidArgument is returned for malformed descriptors and values.
	ErrInvalidArgument = errors.New("ngs: invalid argument")
)

// Parameter codec errors, re-exported for callers of SetParameter.
var (
	ErrParamTooLarge  = param.ErrParamTooLarge
	ErrBadStructID    = param.ErrBadStructID
	ErrParamTruncated = param.ErrParamTruncated
)

// Code is a stable 32-bit guest return code.
type Code uint32

const (
	CodeOK                Code = 0
	CodeInvalidHandle     Code = 0x804A0001
	CodeVoiceNotAllocated Code = 0x804A0002
	CodeResourceExhausted Code = 0x804A0003
	CodeCycleDetected     Code = 0x804A0004
	CodeInvalidPort       Code = 0x804A0005
	CodeInvalidState      Code = 0x804A0006
	CodeParamTooLarge     Code = 0x804A0007
	CodeBadStructID       Code = 0x804A0008
	CodeParamTruncated    Code = 0x804A0009
	CodeClosed            Code = 0x804A000A
	CodeInvalidArgument   Code = 0x804A000B
	CodeModuleFault       Code = 0x804A000C
	CodeInternal          Code = 0x804A00FF
)

func (c Code) String() string {
	return fmt.Sprintf("0x%08X", uint32(c))
}

var codeTable = []struct {
	err  error
	code Code
}{
	// More specific errors first: ErrVoiceNotAllocated wraps ErrInvalidHandle.
	{ErrVoiceNotAllocated, CodeVoiceNotAllocated},
	{ErrInvalidHandle, CodeInvalidHandle},
	{ErrResourceExhausted, CodeResourceExhausted},
	{ErrCycleDetected, CodeCycleDetected},
	{ErrInvalidPort, CodeInvalidPort},
	{ErrInvalidState, CodeInvalidState},
	{param.ErrParamTooLarge, CodeParamTooLarge},
	{param.ErrBadStructID, CodeBadStructID},
	{param.ErrParamTruncated, CodeParamTruncated},
	{ErrClosed, CodeClosed},
	{ErrInvalidArgument, CodeInvalidArgument},
	{module.ErrUnknownKind, CodeInvalidArgument},
	{module.ErrFault, CodeModuleFault},
}

// ErrorCode maps err to its guest return code. Unknown errors map to
// CodeInternal.
func ErrorCode(err error) Code {
	if err == nil {
		return CodeOK
	}

	for _, e := range codeTable {
		if errors.Is(err, e.err) {
			return e.code
		}
	}

	return CodeInternal
}
