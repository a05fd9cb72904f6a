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
	"encoding/json"

	"github.com/spf13/cobra"
	"github.com/yosrahelal/tally/internal/ledger/ledgerrpc"
)

func newGetCmd() *cobra.Command {
	var nodeURL string
	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Read the contract state from a ledger node",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := ledgerrpc.NewClient(ctx, &ledgerrpc.ClientConfig{URL: &nodeURL})
			if err != nil {
				return err
			}
			info, err := client.ContractInfo(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		},
	}
	getCmd.Flags().StringVarP(&nodeURL, "node", "n", "http://127.0.0.1:8547", "Ledger node URL")
	return getCmd
}
