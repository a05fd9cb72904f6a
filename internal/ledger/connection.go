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

package ledger

import (
	"context"

	"github.com/yosrahelal/tally/pkg/types"
)

// Connection is the submission/read contract against a counter ledger,
// satisfied both by the in-process state machine and by the HTTP client of a
// remote ledger node. Everything above this interface is unaware of which it
// is talking to.
type Connection interface {
	Submit(ctx context.Context, req *types.OperationRequest) (*types.SubmissionResult, error)
	ContractInfo(ctx context.Context) (*types.ContractInfo, error)
}

type directConnection struct {
	ledger Ledger
}

// NewDirectConnection binds a Connection straight onto an in-process ledger.
func NewDirectConnection(l Ledger) Connection {
	return &directConnection{ledger: l}
}

func (dc *directConnection) Submit(ctx context.Context, req *types.OperationRequest) (*types.SubmissionResult, error) {
	return dc.ledger.Apply(ctx, req)
}

func (dc *directConnection) ContractInfo(ctx context.Context) (*types.ContractInfo, error) {
	return dc.ledger.GetContractInfo(ctx), nil
}
