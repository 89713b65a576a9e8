// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package engine

import (
	"errors"
	"fmt"

	"github.com/tenex-chat/tenex/pkg/coordinator"
)

// Code classifies an EngineError, the way task.State classifies a task's
// lifecycle stage: a small closed enum callers can switch on or compare
// with errors.Is, rather than string-matching an error message.
type Code string

const (
	CodeConversationNotFound Code = "conversation_not_found"
	CodeInvalidEvent         Code = "invalid_event"
	CodePhaseDenied          Code = "phase_denied"
	CodePersistenceError     Code = "persistence_error"
	CodeDelegationOrphan     Code = "delegation_orphan"
	CodeInternal             Code = "internal"
)

// EngineError is the single error type every engine-facing operation
// returns, carrying a Code callers can match with errors.Is against a
// sentinel of the same Code (see Is), plus the wrapped cause for %w
// formatting and errors.As/Unwrap chains.
type EngineError struct {
	Code    Code
	Message string
	Err     error
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("engine: %s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("engine: %s: %s", e.Code, e.Message)
}

func (e *EngineError) Unwrap() error { return e.Err }

// Is reports two *EngineError values equal when their Codes match,
// letting callers write errors.Is(err, &EngineError{Code: CodePhaseDenied})
// without caring about Message or Err.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func newEngineError(code Code, message string, err error) *EngineError {
	return &EngineError{Code: code, Message: message, Err: err}
}

// translateCoordinatorErr maps pkg/coordinator's typed errors onto the
// engine's Code taxonomy, so every caller of pkg/engine deals with one
// error shape regardless of which internal package produced it.
func translateCoordinatorErr(err error) error {
	if err == nil {
		return nil
	}

	var notFound *coordinator.ConversationNotFoundError
	if errors.As(err, &notFound) {
		return newEngineError(CodeConversationNotFound, notFound.Error(), err)
	}

	var invalid *coordinator.InvalidEventError
	if errors.As(err, &invalid) {
		return newEngineError(CodeInvalidEvent, invalid.Error(), err)
	}

	var denied *coordinator.PhaseDeniedError
	if errors.As(err, &denied) {
		return newEngineError(CodePhaseDenied, denied.Error(), err)
	}

	var persist *coordinator.PersistenceError
	if errors.As(err, &persist) {
		return newEngineError(CodePersistenceError, persist.Error(), err)
	}

	var orphan *coordinator.DelegationOrphanError
	if errors.As(err, &orphan) {
		return newEngineError(CodeDelegationOrphan, orphan.Error(), err)
	}

	var internal *coordinator.InternalError
	if errors.As(err, &internal) {
		return newEngineError(CodeInternal, internal.Error(), err)
	}

	return newEngineError(CodeInternal, "unclassified error", err)
}
