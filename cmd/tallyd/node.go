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

package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
	"github.com/spf13/cobra"
	"github.com/yosrahelal/tally/internal/confutil"
	"github.com/yosrahelal/tally/internal/ledger"
	"github.com/yosrahelal/tally/internal/ledger/ledgerrpc"
	"github.com/yosrahelal/tally/pkg/types"
)

type nodeLedgerConfig struct {
	ledger.Config `yaml:",inline"`
	Owner         *string `yaml:"owner"`
}

type nodeConfig struct {
	Ledger nodeLedgerConfig       `yaml:"ledger"`
	Server ledgerrpc.ServerConfig `yaml:"server"`
}

func newNodeCmd() *cobra.Command {
	var configFile string
	nodeCmd := &cobra.Command{
		Use:   "node",
		Short: "Serve an authoritative counter ledger node over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(cmd.Context(), configFile)
		},
	}
	nodeCmd.Flags().StringVarP(&configFile, "config", "f", "tallyd.yaml", "Node configuration file")
	return nodeCmd
}

func runNode(parentCtx context.Context, configFile string) error {
	ctx, stop := signal.NotifyContext(parentCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var conf nodeConfig
	if err := confutil.ReadAndParseYAMLFile(ctx, configFile, &conf); err != nil {
		return err
	}

	owner := types.ZeroAddress
	if conf.Ledger.Owner != nil && *conf.Ledger.Owner != "" {
		parsed, err := ethtypes.NewAddress(*conf.Ledger.Owner)
		if err != nil {
			return err
		}
		owner = *parsed
	}

	l := ledger.NewLedger(ctx, &conf.Ledger.Config, owner)
	server, err := ledgerrpc.NewServer(ctx, l, &conf.Server)
	if err != nil {
		return err
	}
	if err := server.Start(); err != nil {
		return err
	}
	log.L(ctx).Infof("Node up on %s", server.Addr())

	<-ctx.Done()
	log.L(ctx).Infof("Shutting down")
	server.Stop()
	return nil
}
