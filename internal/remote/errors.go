/*
Copyright 2020 Google LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package remote

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a remote failure.
type Kind int

const (
	// KindTransient covers timeouts, network errors and temporary
	// service outages. Retried.
	KindTransient Kind = iota
	// KindRateLimited means the service asked us to slow down. Retried.
	KindRateLimited
	// KindNotFound means the remote has no data for the request.
	KindNotFound
	// KindFatal covers bad credentials, unknown users and anything else
	// that retrying cannot fix. Aborts the run.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimited:
		return "rate limited"
	case KindNotFound:
		return "not found"
	case KindFatal:
		return "fatal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Sentinels for errors.Is.
var (
	ErrTransient   = &Error{Kind: KindTransient}
	ErrRateLimited = &Error{Kind: KindRateLimited}
	ErrNotFound    = &Error{Kind: KindNotFound}
	ErrFatal       = &Error{Kind: KindFatal}
)

// Error is a classified failure from a remote call.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" && e.Err == nil {
		return "remote: " + e.Kind.String()
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind, so errors.Is(err, ErrFatal)
// works for every fatal error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Temporary reports whether retrying may succeed.
func (e *Error) Temporary() bool {
	return e.Kind == KindTransient || e.Kind == KindRateLimited
}

// Wrap wraps err with a kind and operation name.
func Wrap(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf classifies err. Errors that were never classified by a source
// (network errors, deadlines, decode failures) count as transient, so
// they are retried up to the attempt ceiling rather than aborting a run.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindTransient
}

// IsTransient reports whether err is worth retrying. Cancellation of the
// caller's context is never retried.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	k := KindOf(err)
	return k == KindTransient || k == KindRateLimited
}
