package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInterrupted is returned by the supervisor when the wait was cut
	// short by an external cancellation and the worker group was killed.
	ErrInterrupted = errors.New("interrupted")

	// ErrHandoff signals that the self-update helper has taken over and the
	// launcher must exit immediately.
	ErrHandoff = errors.New("self-update handed off to helper")

	// ErrNoFreePort is returned when every port in the configured range is taken.
	ErrNoFreePort = errors.New("no free port available")
)

type ErrMissingFile struct {
	What string
	Path string
}

func (e ErrMissingFile) Error() string {
	return fmt.Sprintf("%s not found: %s", e.What, e.Path)
}

type ErrSpawn struct {
	Op   string
	Path string
	Err  error
}

func (e ErrSpawn) Error() string {
	return fmt.Sprintf("spawn %s [%s]: %v", e.Op, e.Path, e.Err)
}

func (e ErrSpawn) Unwrap() error {
	return e.Err
}

// ErrCall is a failed worker control API call.
type ErrCall struct {
	Func string
	Err  error
}

func (e ErrCall) Error() string {
	return fmt.Sprintf("call %s: %v", e.Func, e.Err)
}

func (e ErrCall) Unwrap() error {
	return e.Err
}

// ErrStream is a failure of the worker push-event stream. Op is "connect"
// when no stream was established and "read" when an open stream broke.
type ErrStream struct {
	Op  string
	Err error
}

func (e ErrStream) Error() string {
	return fmt.Sprintf("event stream %s: %v", e.Op, e.Err)
}

func (e ErrStream) Unwrap() error {
	return e.Err
}

type ErrResolution struct {
	Package string
	Err     error
}

func (e ErrResolution) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.Package, e.Err)
}

func (e ErrResolution) Unwrap() error {
	return e.Err
}

// ErrInstall is a failed download, verification or extraction of one component.
type ErrInstall struct {
	Op  string
	Err error
}

func (e ErrInstall) Error() string {
	return fmt.Sprintf("install %s: %v", e.Op, e.Err)
}

func (e ErrInstall) Unwrap() error {
	return e.Err
}
