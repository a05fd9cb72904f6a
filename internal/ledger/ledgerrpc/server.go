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

// Package ledgerrpc carries counter operations over HTTP JSON, between the
// client-side Connection implementation and a ledger node.
package ledgerrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/yosrahelal/tally/internal/confutil"
	"github.com/yosrahelal/tally/internal/ledger"
	"github.com/yosrahelal/tally/internal/msgs"
	"github.com/yosrahelal/tally/pkg/types"
)

type ServerConfig struct {
	Address         *string `yaml:"address"`
	Port            *int    `yaml:"port"`
	ReadTimeout     *string `yaml:"readTimeout"`
	WriteTimeout    *string `yaml:"writeTimeout"`
	ShutdownTimeout *string `yaml:"shutdownTimeout"`
}

var ServerDefaults = &ServerConfig{
	Address:         confutil.P("127.0.0.1"),
	ReadTimeout:     confutil.P("15s"),
	WriteTimeout:    confutil.P("15s"),
	ShutdownTimeout: confutil.P("10s"),
}

type Server interface {
	Start() error
	Stop()
	Addr() net.Addr
}

type rpcServer struct {
	ctx             context.Context
	cancelCtx       func()
	ledger          ledger.Ledger
	listener        net.Listener
	httpServer      *http.Server
	httpServerDone  chan error
	shutdownTimeout time.Duration
	started         bool
}

func NewServer(ctx context.Context, l ledger.Ledger, conf *ServerConfig) (_ Server, err error) {
	s := &rpcServer{
		ledger:          l,
		httpServerDone:  make(chan error),
		shutdownTimeout: confutil.DurationMin(conf.ShutdownTimeout, 0, *ServerDefaults.ShutdownTimeout),
	}
	s.ctx, s.cancelCtx = context.WithCancel(ctx)

	if conf.Port == nil {
		return nil, i18n.NewError(ctx, msgs.MsgRPCServerMissingPort, "ledger")
	}
	listenAddr := fmt.Sprintf("%s:%d", confutil.StringNotEmpty(conf.Address, *ServerDefaults.Address), *conf.Port)
	if s.listener, err = net.Listen("tcp", listenAddr); err != nil {
		return nil, i18n.WrapError(ctx, err, msgs.MsgRPCServerStartFailed, listenAddr)
	}
	log.L(ctx).Infof("Ledger server listening on %s", s.listener.Addr())

	r := mux.NewRouter()
	r.HandleFunc("/api/v1/submit", s.handleSubmit).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/contract", s.handleContract).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Handler:      r,
		ReadTimeout:  confutil.DurationMin(conf.ReadTimeout, 1*time.Second, *ServerDefaults.ReadTimeout),
		WriteTimeout: confutil.DurationMin(conf.WriteTimeout, 1*time.Second, *ServerDefaults.WriteTimeout),
		BaseContext:  func(net.Listener) context.Context { return s.ctx },
	}
	return s, nil
}

func (s *rpcServer) handleSubmit(res http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	var opReq types.OperationRequest
	if err := json.NewDecoder(req.Body).Decode(&opReq); err != nil {
		writeError(ctx, res, types.NewValidationError(ctx, msgs.MsgRPCInvalidRequest))
		return
	}
	result, err := s.ledger.Apply(ctx, &opReq)
	if err != nil {
		writeError(ctx, res, err)
		return
	}
	writeJSON(ctx, res, http.StatusOK, result)
}

func (s *rpcServer) handleContract(res http.ResponseWriter, req *http.Request) {
	writeJSON(req.Context(), res, http.StatusOK, s.ledger.GetContractInfo(req.Context()))
}

func writeJSON(ctx context.Context, res http.ResponseWriter, status int, body interface{}) {
	res.Header().Set("Content-Type", "application/json; charset=utf-8")
	res.WriteHeader(status)
	if err := json.NewEncoder(res).Encode(body); err != nil {
		log.L(ctx).Errorf("Failed to write response: %s", err)
	}
}

func writeError(ctx context.Context, res http.ResponseWriter, err error) {
	wireErr := wireError(err)
	status := http.StatusInternalServerError
	switch wireErr.Kind {
	case types.FailureValidation:
		status = http.StatusBadRequest
	case types.FailureLedgerRejection:
		status = http.StatusConflict
		if wireErr.Reason == types.RejectNotOwner {
			status = http.StatusForbidden
		}
	}
	log.L(ctx).Infof("Request rejected status=%d kind=%s reason=%s: %s", status, wireErr.Kind, wireErr.Reason, wireErr.Error)
	writeJSON(ctx, res, status, wireErr)
}

func (s *rpcServer) runServer() {
	s.httpServerDone <- s.httpServer.Serve(s.listener)
}

func (s *rpcServer) Start() error {
	if s.started {
		return nil
	}
	s.started = true
	go s.runServer()
	return nil
}

func (s *rpcServer) Stop() {
	if !s.started {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.L(s.ctx).Warnf("Ledger server shutdown: %s", err)
	}
	<-s.httpServerDone
	s.cancelCtx()
	s.started = false
}

func (s *rpcServer) Addr() net.Addr {
	return s.listener.Addr()
}
