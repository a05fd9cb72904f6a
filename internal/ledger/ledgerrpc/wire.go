/*
 * Copyright © 2024 Kaleido, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with
 * the License. You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on
 * an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the License for the
 * specific language governing permissions and limitations under the License.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

package ledgerrpc

import (
	"errors"

	"github.com/yosrahelal/tally/pkg/types"
)

// WireError is the JSON error body, carrying the taxonomy tags so the client
// side can rebuild a tagged error without parsing message text.
type WireError struct {
	Kind   types.FailureKind  `json:"kind"`
	Reason types.RejectReason `json:"reason,omitempty"`
	Error  string             `json:"error"`
}

func wireError(err error) *WireError {
	we := &WireError{Error: err.Error()}
	if ce := types.AsCounterError(err); ce != nil {
		we.Kind = ce.Kind
		we.Reason = ce.Reason
	}
	return we
}

func (we *WireError) toError() error {
	cause := errors.New(we.Error)
	if we.Kind == "" {
		return cause
	}
	return types.WrapTagged(we.Kind, we.Reason, cause)
}
