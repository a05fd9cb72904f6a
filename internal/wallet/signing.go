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

package wallet

import (
	"context"
	"encoding/json"

	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
	"github.com/hyperledger/firefly-signer/pkg/secp256k1"
	"github.com/yosrahelal/tally/internal/msgs"
	"github.com/yosrahelal/tally/pkg/types"
)

// signEnvelope produces a signed copy of the operation request. The payload
// signed is the canonical JSON encoding of the request with an empty
// signature field, so the recipient can re-derive it byte for byte.
func signEnvelope(ctx context.Context, kp *secp256k1.KeyPair, req *types.OperationRequest) (*types.OperationRequest, error) {
	signed := *req
	signed.Signature = nil
	payload, err := json.Marshal(&signed)
	if err != nil {
		return nil, i18n.WrapError(ctx, err, msgs.MsgWalletSubmitFailed)
	}
	sig, err := kp.SignDirect(payload)
	if err != nil {
		return nil, i18n.WrapError(ctx, err, msgs.MsgWalletSubmitFailed)
	}
	signed.Signature = compactRSV(sig)
	return &signed, nil
}

// compactRSV packs a signature into the 65 byte R(32) | S(32) | V(1) layout.
func compactRSV(sig *secp256k1.SignatureData) ethtypes.HexBytes0xPrefix {
	signatureBytes := make([]byte, 65)
	sig.R.FillBytes(signatureBytes[0:32])
	sig.S.FillBytes(signatureBytes[32:64])
	signatureBytes[64] = byte(sig.V.Int64())
	return signatureBytes
}
