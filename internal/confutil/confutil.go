// Copyright © 2024 Kaleido, Inc.
//
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package confutil

import (
	"context"
	"os"
	"time"

	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/yosrahelal/tally/internal/msgs"
	"gopkg.in/yaml.v3"
)

func Int(iVal *int, def int) int {
	if iVal == nil {
		return def
	}
	return *iVal
}

func IntMin(iVal *int, min int, def int) int {
	if iVal == nil || *iVal < min {
		return def
	}
	return *iVal
}

func Int64(iVal *int64, def int64) int64 {
	if iVal == nil {
		return def
	}
	return *iVal
}

func Int64Min(iVal *int64, min int64, def int64) int64 {
	if iVal == nil || *iVal < min {
		return def
	}
	return *iVal
}

func UInt64(iVal *uint64, def uint64) uint64 {
	if iVal == nil {
		return def
	}
	return *iVal
}

func Float64Min(fVal *float64, min float64, def float64) float64 {
	if fVal == nil || *fVal < min {
		return def
	}
	return *fVal
}

func Bool(bVal *bool, def bool) bool {
	if bVal == nil {
		return def
	}
	return *bVal
}

func StringNotEmpty(sVal *string, def string) string {
	if sVal == nil || *sVal == "" {
		return def
	}
	return *sVal
}

func Duration(sVal *string, def string) time.Duration {
	defDuration, _ := time.ParseDuration(def)
	if sVal != nil {
		if d, err := time.ParseDuration(*sVal); err == nil {
			return d
		}
	}
	return defDuration
}

func DurationMin(sVal *string, min time.Duration, def string) time.Duration {
	d := Duration(sVal, def)
	if d < min {
		d, _ = time.ParseDuration(def)
	}
	return d
}

func P[T any](v T) *T {
	return &v
}

// ReadAndParseYAMLFile reads the whole file then parses, so a partially
// written file never yields a partially populated config.
func ReadAndParseYAMLFile(ctx context.Context, filePath string, config interface{}) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return i18n.WrapError(ctx, err, msgs.MsgConfigFileReadFailed, filePath)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return i18n.WrapError(ctx, err, msgs.MsgConfigFileParseFailed, filePath)
	}
	return nil
}
