package job

import (
	"errors"
	"fmt"
)

// Dispatch failures. They abort the job and are never retried.
var (
	ErrUploadFailed = errors.New("upload failed")
	ErrChmodFailed  = errors.New("chmod failed")
	ErrLaunchFailed = errors.New("launch failed")
	ErrMalformedPID = errors.New("malformed pid")
)

// DispatchError carries one of the Err* kinds plus the underlying cause.
// errors.Is matches both the kind and the cause.
type DispatchError struct {
	Kind error
	Path string
	Err  error
}

func (e *DispatchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %s", e.Kind, e.Path)
	}
	return fmt.Sprintf("%v: %s: %v", e.Kind, e.Path, e.Err)
}

func (e *DispatchError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func dispatchError(kind error, path string, err error) error {
	return &DispatchError{Kind: kind, Path: path, Err: err}
}
