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
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yosrahelal/tally/internal/confutil"
	"github.com/yosrahelal/tally/internal/ledger"
	"github.com/yosrahelal/tally/pkg/types"
)

var owner = *ethtypes.MustNewAddress("0x497eedc4299dea2f2a364be10025d0ad0f702de3")

func newTestServer(t *testing.T, conf *ledger.Config) (ledger.Ledger, string) {
	ctx := context.Background()
	l := ledger.NewLedger(ctx, conf, owner)
	server, err := NewServer(ctx, l, &ServerConfig{Port: confutil.P(0)})
	require.NoError(t, err)
	require.NoError(t, server.Start())
	t.Cleanup(server.Stop)
	return l, fmt.Sprintf("http://%s", server.Addr())
}

func newTestClient(t *testing.T, url string) ledger.Connection {
	client, err := NewClient(context.Background(), &ClientConfig{URL: &url})
	require.NoError(t, err)
	return client
}

func TestSubmitAndReadOverHTTP(t *testing.T) {
	ctx := context.Background()
	l, url := newTestServer(t, &ledger.Config{})
	client := newTestClient(t, url)

	result, err := client.Submit(ctx, &types.OperationRequest{
		Kind:   types.OpIncrementBy,
		Amount: confutil.P(uint64(7)),
		Caller: owner,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(7), *result.NewCount)
	assert.Equal(t, types.CountIncremented, result.Record.Type)
	assert.Equal(t, uint64(7), l.GetCount(ctx))

	info, err := client.ContractInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), info.Count)
	assert.Equal(t, owner, info.Owner)
	assert.Equal(t, types.MaxCount, info.MaxCount)
}

func TestTaxonomyTagsSurviveTheWire(t *testing.T) {
	ctx := context.Background()
	_, url := newTestServer(t, &ledger.Config{})
	client := newTestClient(t, url)

	// Ledger rejection: decrement at the minimum
	_, err := client.Submit(ctx, &types.OperationRequest{Kind: types.OpDecrement, Caller: owner})
	require.Error(t, err)
	ce := types.AsCounterError(err)
	require.NotNil(t, ce)
	assert.Equal(t, types.FailureLedgerRejection, ce.Kind)
	assert.Equal(t, types.RejectMinCountExceeded, ce.Reason)
	assert.Regexp(t, "TY010001", err)

	// Validation: missing caller
	_, err = client.Submit(ctx, &types.OperationRequest{Kind: types.OpIncrement})
	require.Error(t, err)
	assert.Equal(t, types.FailureValidation, types.AsCounterError(err).Kind)

	// Ownership rejection
	stranger := *ethtypes.MustNewAddress("0x8a5da4ec148597acfd2c36b358d7de42f5b2fd2a")
	_, err = client.Submit(ctx, &types.OperationRequest{Kind: types.OpPause, Caller: stranger})
	require.Error(t, err)
	assert.Equal(t, types.RejectNotOwner, types.ReasonOf(err))
}

func TestHTTPStatusCodes(t *testing.T) {
	_, url := newTestServer(t, &ledger.Config{})

	// Malformed body is a 400
	res, err := http.Post(url+"/api/v1/submit", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	// Ownership failures are 403
	body := fmt.Sprintf(`{"kind":"pause","caller":"%s"}`, "0x8a5da4ec148597acfd2c36b358d7de42f5b2fd2a")
	res, err = http.Post(url+"/api/v1/submit", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	// Other ledger rejections are 409
	body = fmt.Sprintf(`{"kind":"decrement","caller":"%s"}`, "0x497eedc4299dea2f2a364be10025d0ad0f702de3")
	res, err = http.Post(url+"/api/v1/submit", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusConflict, res.StatusCode)
}

func TestServerRequiresPort(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewLedger(ctx, &ledger.Config{}, owner)
	_, err := NewServer(ctx, l, &ServerConfig{})
	require.Error(t, err)
	assert.Regexp(t, "TY010500", err)
}

func TestClientRequiresURL(t *testing.T) {
	_, err := NewClient(context.Background(), &ClientConfig{})
	require.Error(t, err)
	assert.Regexp(t, "TY010503", err)
}

func TestUnreachableNodeIsTransient(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, "http://127.0.0.1:1")
	_, err := client.ContractInfo(ctx)
	require.Error(t, err)
	assert.Equal(t, types.FailureTransientNetwork, types.AsCounterError(err).Kind)
	assert.Regexp(t, "TY010504", err)
}
