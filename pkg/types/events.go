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
	"github.com/hyperledger/firefly-common/pkg/fftypes"
	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
)

// ChangeType identifies the structured records the ledger emits on each
// successful mutation.
type ChangeType string

const (
	CountIncremented     ChangeType = "CountIncremented"
	CountDecremented     ChangeType = "CountDecremented"
	CountReset           ChangeType = "CountReset"
	OwnershipTransferred ChangeType = "OwnershipTransferred"
	ContractPaused       ChangeType = "ContractPaused"
	ContractUnpaused     ChangeType = "ContractUnpaused"
)

// ChangeRecord is one structured change emitted by the ledger. Fields beyond
// Type and Caller are populated per record type.
type ChangeRecord struct {
	Type          ChangeType             `json:"type"`
	Caller        ethtypes.Address0xHex  `json:"caller"`
	NewCount      *uint64                `json:"newCount,omitempty"`
	PreviousOwner *ethtypes.Address0xHex `json:"previousOwner,omitempty"`
	NewOwner      *ethtypes.Address0xHex `json:"newOwner,omitempty"`
	Timestamp     *fftypes.FFTime        `json:"timestamp"`
}

// WalletEventType enumerates backend-originated session events.
type WalletEventType string

const (
	WalletAccountsChanged WalletEventType = "accountsChanged"
	WalletNetworkChanged  WalletEventType = "networkChanged"
	WalletDisconnected    WalletEventType = "disconnected"
)

// WalletEvent is pushed by a wallet backend when the session it established
// changes underneath the client.
type WalletEvent struct {
	Type    WalletEventType        `json:"type"`
	Account *ethtypes.Address0xHex `json:"account,omitempty"`
	Network *string                `json:"network,omitempty"`
}
