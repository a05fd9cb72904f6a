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
	"github.com/google/uuid"
	"github.com/hyperledger/firefly-common/pkg/fftypes"
	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
)

// Bound constants of the counter contract. These are fixed by the ledger
// and mirrored here so clients can validate before submission.
const (
	MinCount uint64 = 0
	MaxCount uint64 = 1_000_000
)

// OperationKind identifies one of the mutating operations of the counter ledger.
type OperationKind string

const (
	OpIncrement         OperationKind = "increment"
	OpDecrement         OperationKind = "decrement"
	OpIncrementBy       OperationKind = "incrementBy"
	OpDecrementBy       OperationKind = "decrementBy"
	OpReset             OperationKind = "reset"
	OpPause             OperationKind = "pause"
	OpUnpause           OperationKind = "unpause"
	OpTransferOwnership OperationKind = "transferOwnership"
)

// TxStatus is the lifecycle status of a submitted operation.
type TxStatus string

const (
	TxStatusPending TxStatus = "pending"
	TxStatusSuccess TxStatus = "success"
	TxStatusError   TxStatus = "error"
)

// BackendKind enumerates the wallet capability variants.
type BackendKind string

const (
	BackendInjected  BackendKind = "injected"
	BackendRelay     BackendKind = "relay"
	BackendSimulated BackendKind = "simulated"
)

// ConnectionStatus is the session connection state.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
)

// ContractInfo is the full read surface of the counter contract.
type ContractInfo struct {
	Count    uint64                `json:"count"`
	Owner    ethtypes.Address0xHex `json:"owner"`
	Paused   bool                  `json:"paused"`
	MaxCount uint64                `json:"maxCount"`
	MinCount uint64                `json:"minCount"`
}

// WalletSession is the client's binding to one connected wallet backend.
// Created on a successful handshake, and owned exclusively by the session
// manager thereafter.
type WalletSession struct {
	Account ethtypes.Address0xHex `json:"account"`
	Network string                `json:"network"`
	Status  ConnectionStatus      `json:"status"`
	Backend BackendKind           `json:"backend"`
	Balance *uint64               `json:"balance,omitempty"`
}

// OperationRequest is the signable envelope for one mutating operation.
// The signature is produced by the wallet backend over the JSON encoding of
// the request with the signature field empty.
type OperationRequest struct {
	Kind      OperationKind             `json:"kind"`
	Amount    *uint64                   `json:"amount,omitempty"`
	NewOwner  *ethtypes.Address0xHex    `json:"newOwner,omitempty"`
	Caller    ethtypes.Address0xHex     `json:"caller"`
	Network   string                    `json:"network"`
	Signature ethtypes.HexBytes0xPrefix `json:"signature,omitempty"`
}

// SubmissionResult is the acknowledgment returned by a wallet backend once
// the ledger has accepted an operation. It is not final confirmation; the
// cache reconciles against authoritative reads afterwards.
type SubmissionResult struct {
	NewCount *uint64       `json:"newCount,omitempty"`
	Record   *ChangeRecord `json:"record,omitempty"`
}

// TransactionRecord tracks one user-initiated operation through its lifecycle.
// Records are created pending, resolved exactly once, and retained in a
// bounded time-ordered history.
type TransactionRecord struct {
	ID          uuid.UUID       `json:"id"`
	Kind        OperationKind   `json:"kind"`
	Status      TxStatus        `json:"status"`
	Amount      *uint64         `json:"amount,omitempty"`
	SubmittedAt *fftypes.FFTime `json:"submittedAt"`
	ResolvedAt  *fftypes.FFTime `json:"resolvedAt,omitempty"`
	ErrorDetail string          `json:"errorDetail,omitempty"`
}

// SessionDescriptor is the minimal durable form of a session, persisted so a
// session can be rehydrated across restarts.
type SessionDescriptor struct {
	Account ethtypes.Address0xHex `json:"account"`
	Network string                `json:"network"`
	Backend BackendKind           `json:"backend"`
	Balance *uint64               `json:"balance,omitempty"`
}

// ZeroAddress is the null identity, invalid as an ownership target.
var ZeroAddress = ethtypes.Address0xHex{}
