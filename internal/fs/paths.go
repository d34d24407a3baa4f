// Copyright 2024 The scanfuse Authors. All Rights Reserved.
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

package fs

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ToOrigin translates a path under the proxy root onto the origin tree.
// Callers must only hand in paths rooted at proxyRoot; anything else is a
// programming error and panics.
func ToOrigin(proxyRoot, originRoot, proxyPath string) string {
	return rebase(proxyRoot, originRoot, proxyPath)
}

// ToProxy translates a path under the origin root onto the proxy tree,
// panicking on a foreign prefix like ToOrigin.
func ToProxy(proxyRoot, originRoot, originPath string) string {
	return rebase(originRoot, proxyRoot, originPath)
}

func rebase(fromRoot, toRoot, path string) string {
	rel, err := filepath.Rel(fromRoot, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
		panic(fmt.Sprintf("path %q is not rooted at %q", path, fromRoot))
	}

	return filepath.Join(toRoot, rel)
}
