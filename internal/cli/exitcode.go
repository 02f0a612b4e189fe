// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/datawizz/local-logger/internal/ca"
	"github.com/datawizz/local-logger/internal/proxy"
)

// Exit codes fixed by the CLI surface contract.
const (
	ExitSuccess        = 0
	ExitConfigError    = 1
	ExitCAInconsistent = 2
	ExitBindFailure    = 3
	ExitInterrupted    = 130
)

// ExitError is an error that carries the exit code the process should use.
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Cause }

// NewConfigError wraps a configuration failure for exit code 1.
func NewConfigError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitConfigError, Message: msg, Cause: cause}
}

// NewBindError wraps a listener bind failure for exit code 3.
func NewBindError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitBindFailure, Message: msg, Cause: cause}
}

// classifyError maps a plain error into the exit code the CLI contract
// assigns it: CA inconsistency gets its own code regardless of where in the
// call chain it surfaced.
func classifyError(err error) int {
	if err == nil {
		return ExitSuccess
	}
	if errors.Is(err, ca.ErrCAInconsistent) {
		return ExitCAInconsistent
	}
	if errors.Is(err, proxy.ErrBindFailed) {
		return ExitBindFailure
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitConfigError
}

// HandleExitError prints err (if any) to standard error and exits the
// process with the code the CLI surface contract assigns it.
func HandleExitError(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, "Error:", err.Error())
	os.Exit(classifyError(err))
}
