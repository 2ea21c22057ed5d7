// Package errors provides the error taxonomy of the plugin ABI.
// All error types support error unwrapping via errors.As() and errors.Is().
package errors

import (
	stdErrors "errors"
	"fmt"
	"strings"

	"github.com/wasmplug/wasmplug/domain/entities"
)

// Sentinel errors for plugin state.
var (
	// ErrPluginInvalidated is returned by calls on a plugin that trapped earlier.
	// The plugin must be unloaded and loaded again.
	ErrPluginInvalidated = stdErrors.New("plugin invalidated by an earlier trap")

	// ErrPluginClosed is returned by calls on an unloaded plugin.
	ErrPluginClosed = stdErrors.New("plugin is closed")

	// ErrPublished is returned when a registry is modified after publishing.
	ErrPublished = stdErrors.New("registry already published")

	// ErrUnknownPlugin is returned when a universe has no plugin with the requested ID.
	ErrUnknownPlugin = stdErrors.New("unknown plugin")

	// ErrPluginBusy is returned by nested calls into a plugin that is already
	// executing a call.
	ErrPluginBusy = stdErrors.New("plugin is busy")

	// ErrCyclicCall is returned when a plugin call would re-enter a plugin
	// already on the call chain.
	ErrCyclicCall = stdErrors.New("cyclic plugin call")
)

// Coded is implemented by every error type of this package.
// The code is a stable machine-readable identifier.
type Coded interface {
	error
	Code() string
}

// Code returns the code of the first Coded error in err's chain, or "" if none.
func Code(err error) string {
	var c Coded
	if stdErrors.As(err, &c) {
		return c.Code()
	}
	return ""
}

// LoadError reports a module that could not be turned into a plugin.
type LoadError struct {
	Err    error
	Reason string
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("load plugin: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("load plugin: %s", e.Reason)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Code implements Coded.
func (e *LoadError) Code() string { return "load" }

// DuplicateExportError reports a function name registered more than once.
type DuplicateExportError struct {
	Name string
}

func (e *DuplicateExportError) Error() string {
	return fmt.Sprintf("function %q is exported more than once", e.Name)
}

// Code implements Coded.
func (e *DuplicateExportError) Code() string { return "duplicate_export" }

// NotFoundError reports a call to a function absent from the descriptor table.
type NotFoundError struct {
	Function string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("function %q not found", e.Function)
}

// Code implements Coded.
func (e *NotFoundError) Code() string { return "not_found" }

// TypeMismatchError reports call arguments that disagree with the descriptor.
// Position is the index of the first mismatched argument. For arity
// mismatches it is the first index present on one side only.
type TypeMismatchError struct {
	Function  string
	Want      entities.TypeTag
	Got       entities.TypeTag
	Position  int
	WantCount int
	GotCount  int
}

func (e *TypeMismatchError) Error() string {
	if e.WantCount != e.GotCount {
		return fmt.Sprintf("call %q: argument %d: expected %d arguments, got %d",
			e.Function, e.Position, e.WantCount, e.GotCount)
	}
	return fmt.Sprintf("call %q: argument %d: expected %s, got %s",
		e.Function, e.Position, e.Want, e.Got)
}

// IsArity reports whether the mismatch is in the number of arguments.
func (e *TypeMismatchError) IsArity() bool { return e.WantCount != e.GotCount }

// Code implements Coded.
func (e *TypeMismatchError) Code() string { return "type_mismatch" }

// EncodingError reports a value that cannot be encoded or a malformed byte stream.
type EncodingError struct {
	Err    error
	Op     string // "encode" or "decode"
	Detail string
	Path   []string
}

func (e *EncodingError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}
	b.WriteString(": ")
	b.WriteString(e.Detail)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *EncodingError) Unwrap() error { return e.Err }

// Code implements Coded.
func (e *EncodingError) Code() string { return "encoding" }

// ProtocolError reports well-formed data that is inconsistent with the descriptor
// on the other side of the boundary, usually a host/guest version skew.
type ProtocolError struct {
	Function string
	Detail   string
}

func (e *ProtocolError) Error() string {
	if e.Function != "" {
		return fmt.Sprintf("protocol violation in %q: %s", e.Function, e.Detail)
	}
	return fmt.Sprintf("protocol violation: %s", e.Detail)
}

// Code implements Coded.
func (e *ProtocolError) Code() string { return "protocol" }

// TrapError reports a guest execution fault or an exceeded resource limit.
// The plugin that trapped is invalidated.
type TrapError struct {
	Err      error
	Function string
	Reason   string
}

func (e *TrapError) Error() string {
	msg := fmt.Sprintf("plugin trapped in %q", e.Function)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TrapError) Unwrap() error { return e.Err }

// Timeout reports whether the trap was caused by a deadline.
func (e *TrapError) Timeout() bool { return e.Reason == TrapReasonDeadline }

// Code implements Coded.
func (e *TrapError) Code() string { return "trap" }

// Trap reasons.
const (
	TrapReasonFault    = "fault"
	TrapReasonDeadline = "deadline exceeded"
	TrapReasonCanceled = "canceled"
	TrapReasonExit     = "exit"
)

// PluginError reports an error returned by the plugin function itself.
type PluginError struct {
	Function string
	Message  string
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("plugin function %q failed: %s", e.Function, e.Message)
}

// Code implements Coded.
func (e *PluginError) Code() string { return "plugin" }

// HostCallError reports a failed guest-to-host call, as seen by the guest.
type HostCallError struct {
	Function string
	Message  string
}

func (e *HostCallError) Error() string {
	return fmt.Sprintf("host call %q failed: %s", e.Function, e.Message)
}

// Code implements Coded.
func (e *HostCallError) Code() string { return "host_call" }

// PluginExistsError reports a plugin ID already present in a universe.
type PluginExistsError struct {
	ID string
}

func (e *PluginExistsError) Error() string {
	return fmt.Sprintf("plugin id %q already exists", e.ID)
}

// Code implements Coded.
func (e *PluginExistsError) Code() string { return "plugin_exists" }
