/*
Copyright 2024 PayBridge Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package model

import (
	"fmt"

	"github.com/google/uuid"
)

// GenerateUUIDWithSuffix generates a UUID with a given module name as a prefix.
// This is useful for creating unique identifiers with context-specific prefixes,
// e.g. "msg_<uuid>" for queued messages or "rcfg_<uuid>" for resiliency configurations.
func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	uuidStr := id.String()
	idWithSuffix := fmt.Sprintf("%s_%s", module, uuidStr)
	return idWithSuffix
}
