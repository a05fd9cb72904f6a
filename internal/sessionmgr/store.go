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

package sessionmgr

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/yosrahelal/tally/internal/msgs"
	"github.com/yosrahelal/tally/pkg/types"
)

const descriptorFilename = "session.json"

// descriptorStore persists the single session descriptor as a flat JSON file
// under the data directory, mode 0600 as it identifies the active account.
type descriptorStore struct {
	path string
}

func newDescriptorStore(ctx context.Context, dataDir string) (*descriptorStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, i18n.WrapError(ctx, err, msgs.MsgSessionStoreIO, dataDir)
	}
	return &descriptorStore{path: filepath.Join(dataDir, descriptorFilename)}, nil
}

func (s *descriptorStore) save(ctx context.Context, descriptor *types.SessionDescriptor) error {
	data, _ := json.Marshal(descriptor)
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return i18n.WrapError(ctx, err, msgs.MsgSessionStoreIO, s.path)
	}
	return nil
}

// load returns nil with no error when there is no descriptor, and nil after
// discarding one that fails to parse or validate. A corrupt descriptor never
// fails startup.
func (s *descriptorStore) load(ctx context.Context) *types.SessionDescriptor {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.L(ctx).Warnf("Failed to read session descriptor %s: %s", s.path, err)
		}
		return nil
	}
	var descriptor types.SessionDescriptor
	if err := json.Unmarshal(data, &descriptor); err != nil || !validDescriptor(&descriptor) {
		log.L(ctx).Warnf("%s", i18n.NewError(ctx, msgs.MsgSessionDescriptorInvalid))
		s.clear(ctx)
		return nil
	}
	return &descriptor
}

func (s *descriptorStore) clear(ctx context.Context) {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		log.L(ctx).Warnf("Failed to remove session descriptor %s: %s", s.path, err)
	}
}

func validDescriptor(descriptor *types.SessionDescriptor) bool {
	if descriptor.Account == types.ZeroAddress || descriptor.Network == "" {
		return false
	}
	switch descriptor.Backend {
	case types.BackendInjected, types.BackendRelay, types.BackendSimulated:
		return true
	}
	return false
}
