// Copyright © 2024 Kaleido, Inc.
//
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package msgs

import (
	"fmt"
	"strings"

	"github.com/hyperledger/firefly-common/pkg/i18n"
	"golang.org/x/text/language"
)

const tallyPrefix = "TY01"

var registered = false
var ffe = func(key, translation string, statusHint ...int) i18n.ErrorMessageKey {
	if !registered {
		i18n.RegisterPrefix(tallyPrefix, "Tally Counter Client")
		registered = true
	}
	if !strings.HasPrefix(key, tallyPrefix) {
		panic(fmt.Errorf("must have prefix '%s': %s", tallyPrefix, key))
	}
	return i18n.FFE(language.AmericanEnglish, key, translation, statusHint...)
}

var (
	// Ledger rejections TY0100XX
	MsgLedgerMaxCountExceeded = ffe("TY010000", "Counter is at its maximum of %d and cannot go higher", 409)
	MsgLedgerMinCountExceeded = ffe("TY010001", "Counter is at its minimum of %d and cannot go lower", 409)
	MsgLedgerPaused           = ffe("TY010002", "The counter contract is paused", 409)
	MsgLedgerNotOwner         = ffe("TY010003", "Only the contract owner may perform this operation (owner=%s caller=%s)", 403)
	MsgLedgerInvalidNewOwner  = ffe("TY010004", "New owner must not be the zero identity", 400)
	MsgLedgerUnknownOperation = ffe("TY010005", "Unknown ledger operation '%s'", 400)
	MsgLedgerMissingCaller    = ffe("TY010006", "Operation is missing the caller identity", 400)
	MsgLedgerAmountRequired   = ffe("TY010007", "Operation '%s' requires a non-zero amount", 400)

	// Wallet capability TY0101XX
	MsgWalletUnavailable        = ffe("TY010100", "The '%s' wallet backend is not available in this environment")
	MsgWalletUserRejected       = ffe("TY010101", "The connection request was declined")
	MsgWalletHandshakeTimeout   = ffe("TY010102", "Timed out after %s waiting for the wallet handshake to complete")
	MsgWalletNetworkMismatch    = ffe("TY010103", "Wallet is connected to network '%s' but this client requires '%s'")
	MsgWalletNotConnected       = ffe("TY010104", "No wallet session is connected")
	MsgWalletUnknownBackend     = ffe("TY010105", "Unknown wallet backend type '%s'")
	MsgWalletAlreadyConnected   = ffe("TY010106", "A wallet session is already active for backend '%s'")
	MsgWalletSubmitFailed       = ffe("TY010107", "The wallet backend failed to submit the operation")
	MsgWalletRelayURLMissing    = ffe("TY010108", "Relay backend requires a relay URL")
	MsgWalletKeyMaterialInvalid = ffe("TY010109", "Invalid key material for injected wallet")
	MsgWalletPairingIncomplete  = ffe("TY010110", "Relay pairing approval did not include an account identity")
	MsgWalletHandshakeAbandoned = ffe("TY010111", "Wallet handshake abandoned before completion")

	// Orchestrator / validation TY0102XX
	MsgTxAmountOutOfRange  = ffe("TY010200", "Amount %d is outside the allowed range 1-%d", 400)
	MsgTxSubmissionTimeout = ffe("TY010201", "Timed out after %s waiting for submission acknowledgment")
	MsgTxPreflightPaused   = ffe("TY010202", "Rejected before submission: the contract is paused")
	MsgTxPreflightBound    = ffe("TY010203", "Rejected before submission: the requested change would breach the counter bounds")
	MsgTxPreflightNotOwner = ffe("TY010204", "Rejected before submission: the connected account is not the contract owner")
	MsgTxRecordNotFound    = ffe("TY010205", "No transaction record with id '%s'", 404)

	// State cache TY0103XX
	MsgCacheRefreshFailed = ffe("TY010300", "Failed to refresh contract state from the ledger")
	MsgCacheNotPopulated  = ffe("TY010301", "Contract state has not yet been read from the ledger")

	// Session manager TY0104XX
	MsgSessionDescriptorInvalid = ffe("TY010400", "Persisted session descriptor is invalid and has been discarded")
	MsgSessionStoreIO           = ffe("TY010401", "Failed to access the session store at '%s'")

	// Ledger node RPC TY0105XX
	MsgRPCServerMissingPort = ffe("TY010500", "Port must be configured for the %s server")
	MsgRPCServerStartFailed = ffe("TY010501", "Failed to start listener on %s")
	MsgRPCInvalidRequest    = ffe("TY010502", "Invalid request payload", 400)
	MsgRPCNodeURLMissing    = ffe("TY010503", "Ledger node URL is not configured")
	MsgRPCRequestFailed     = ffe("TY010504", "Request to ledger node failed")
	MsgRPCUnexpectedStatus  = ffe("TY010505", "Ledger node returned unexpected status %d")

	// Config TY0106XX
	MsgConfigFileReadFailed  = ffe("TY010600", "Failed to read configuration file %s")
	MsgConfigFileParseFailed = ffe("TY010601", "Failed to parse configuration file %s")
)
