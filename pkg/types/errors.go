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

package types

import (
	"context"
	"errors"

	"github.com/hyperledger/firefly-common/pkg/i18n"
)

// FailureKind is the top level of the error taxonomy. Callers switch on the
// kind (and reason) rather than inspecting message text.
type FailureKind string

const (
	// FailureValidation is a client-side precondition failure, detected before any network interaction
	FailureValidation FailureKind = "validation"
	// FailureLedgerRejection is an on-ledger precondition failure
	FailureLedgerRejection FailureKind = "ledgerRejection"
	// FailureWallet is a wallet backend failure during connect or submission
	FailureWallet FailureKind = "wallet"
	// FailureTransientNetwork is a timeout or connectivity loss that may succeed on re-initiation
	FailureTransientNetwork FailureKind = "transientNetwork"
)

// RejectReason refines a failure kind to one well-known cause.
type RejectReason string

const (
	RejectMaxCountExceeded RejectReason = "MaxCountExceeded"
	RejectMinCountExceeded RejectReason = "MinCountExceeded"
	RejectPaused           RejectReason = "Paused"
	RejectNotOwner         RejectReason = "NotOwner"
	RejectInvalidIdentity  RejectReason = "InvalidIdentity"

	WalletUnavailable      RejectReason = "Unavailable"
	WalletUserRejected     RejectReason = "UserRejected"
	WalletHandshakeTimeout RejectReason = "HandshakeTimeout"
	WalletNetworkMismatch  RejectReason = "NetworkMismatch"

	ReasonNone RejectReason = ""
)

// CounterError carries the taxonomy tags alongside an i18n coded error, so
// the human-readable text and the programmatic classification travel together.
type CounterError struct {
	Kind   FailureKind
	Reason RejectReason
	cause  error
}

func (e *CounterError) Error() string {
	return e.cause.Error()
}

func (e *CounterError) Unwrap() error {
	return e.cause
}

func NewValidationError(ctx context.Context, key i18n.ErrorMessageKey, inserts ...interface{}) error {
	return &CounterError{Kind: FailureValidation, cause: i18n.NewError(ctx, key, inserts...)}
}

func NewLedgerRejection(ctx context.Context, reason RejectReason, key i18n.ErrorMessageKey, inserts ...interface{}) error {
	return &CounterError{Kind: FailureLedgerRejection, Reason: reason, cause: i18n.NewError(ctx, key, inserts...)}
}

func NewWalletError(ctx context.Context, reason RejectReason, key i18n.ErrorMessageKey, inserts ...interface{}) error {
	return &CounterError{Kind: FailureWallet, Reason: reason, cause: i18n.NewError(ctx, key, inserts...)}
}

func NewTransientError(ctx context.Context, err error, key i18n.ErrorMessageKey, inserts ...interface{}) error {
	return &CounterError{Kind: FailureTransientNetwork, cause: i18n.WrapError(ctx, err, key, inserts...)}
}

// WrapTagged re-homes existing taxonomy tags onto a new cause, used when an
// error crosses the wire and is rebuilt from its code.
func WrapTagged(kind FailureKind, reason RejectReason, cause error) error {
	return &CounterError{Kind: kind, Reason: reason, cause: cause}
}

// AsCounterError extracts the taxonomy tags from an error chain, or returns
// nil if the error carries none (an unclassified internal failure).
func AsCounterError(err error) *CounterError {
	var ce *CounterError
	if errors.As(err, &ce) {
		return ce
	}
	return nil
}

// ReasonOf is a convenience for tests and switch statements.
func ReasonOf(err error) RejectReason {
	if ce := AsCounterError(err); ce != nil {
		return ce.Reason
	}
	return ReasonNone
}
