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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPathTranslation(t *testing.T) {
	const proxy = "/mnt/proxy"
	const origin = "/tmp/origin"

	assert.Equal(t, "/tmp/origin/a/b", ToOrigin(proxy, origin, "/mnt/proxy/a/b"))
	assert.Equal(t, "/mnt/proxy/a/b", ToProxy(proxy, origin, "/tmp/origin/a/b"))

	// The roots map onto each other.
	assert.Equal(t, origin, ToOrigin(proxy, origin, proxy))
	assert.Equal(t, proxy, ToProxy(proxy, origin, origin))
}

func TestPathTranslationRoundTrip(t *testing.T) {
	const proxy = "/mnt/proxy"
	const origin = "/tmp/origin"

	for _, p := range []string{
		"/mnt/proxy",
		"/mnt/proxy/f",
		"/mnt/proxy/deep/ly/nested/leaf",
	} {
		assert.Equal(t, p, ToProxy(proxy, origin, ToOrigin(proxy, origin, p)))
	}
}

func TestPathTranslationForeignPrefixPanics(t *testing.T) {
	assert.Panics(t, func() {
		ToOrigin("/mnt/proxy", "/tmp/origin", "/somewhere/else")
	})

	assert.Panics(t, func() {
		ToProxy("/mnt/proxy", "/tmp/origin", "/mnt/proxy/f")
	})
}
