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

	"github.com/go-resty/resty/v2"
	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/yosrahelal/tally/internal/confutil"
	"github.com/yosrahelal/tally/internal/ledger"
	"github.com/yosrahelal/tally/internal/msgs"
	"github.com/yosrahelal/tally/pkg/types"
)

type ClientConfig struct {
	URL            *string `yaml:"url"`
	RequestTimeout *string `yaml:"requestTimeout"`
}

var ClientDefaults = &ClientConfig{
	RequestTimeout: confutil.P("30s"),
}

type client struct {
	resty *resty.Client
}

// NewClient builds a ledger.Connection talking to a remote ledger node over
// HTTP. Wire errors are rebuilt into the tagged taxonomy; transport failures
// surface as transient network errors.
func NewClient(ctx context.Context, conf *ClientConfig) (ledger.Connection, error) {
	if conf.URL == nil || *conf.URL == "" {
		return nil, i18n.NewError(ctx, msgs.MsgRPCNodeURLMissing)
	}
	rc := resty.New().
		SetBaseURL(*conf.URL).
		SetTimeout(confutil.DurationMin(conf.RequestTimeout, 0, *ClientDefaults.RequestTimeout))
	return &client{resty: rc}, nil
}

func (c *client) Submit(ctx context.Context, req *types.OperationRequest) (*types.SubmissionResult, error) {
	var result types.SubmissionResult
	var wireErr WireError
	res, err := c.resty.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		SetError(&wireErr).
		Post("/api/v1/submit")
	if err != nil {
		return nil, types.NewTransientError(ctx, err, msgs.MsgRPCRequestFailed)
	}
	if res.IsError() {
		if wireErr.Kind != "" {
			return nil, wireErr.toError()
		}
		return nil, types.WrapTagged(types.FailureTransientNetwork, types.ReasonNone, i18n.NewError(ctx, msgs.MsgRPCUnexpectedStatus, res.StatusCode()))
	}
	return &result, nil
}

func (c *client) ContractInfo(ctx context.Context) (*types.ContractInfo, error) {
	var info types.ContractInfo
	var wireErr WireError
	res, err := c.resty.R().
		SetContext(ctx).
		SetResult(&info).
		SetError(&wireErr).
		Get("/api/v1/contract")
	if err != nil {
		return nil, types.NewTransientError(ctx, err, msgs.MsgRPCRequestFailed)
	}
	if res.IsError() {
		if wireErr.Kind != "" {
			return nil, wireErr.toError()
		}
		return nil, types.WrapTagged(types.FailureTransientNetwork, types.ReasonNone, i18n.NewError(ctx, msgs.MsgRPCUnexpectedStatus, res.StatusCode()))
	}
	return &info, nil
}
