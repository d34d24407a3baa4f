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

package handle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPackAccessBits(t *testing.T) {
	fh := Pack(1, true, false)
	assert.True(t, CanRead(fh))
	assert.False(t, CanWrite(fh))

	fh = Pack(1, false, true)
	assert.False(t, CanRead(fh))
	assert.True(t, CanWrite(fh))

	fh = Pack(1, true, true)
	assert.True(t, CanRead(fh))
	assert.True(t, CanWrite(fh))
}

func TestPackKeepsSequencesDistinct(t *testing.T) {
	a := Pack(1, true, true)
	b := Pack(2, true, true)
	assert.NotEqual(t, a, b)

	// The same sequence with different bits is distinct too.
	assert.NotEqual(t, Pack(3, true, false), Pack(3, false, true))
}

func TestPackLayout(t *testing.T) {
	// The sequence lives above the two access bits.
	fh := Pack(5, true, false)
	assert.EqualValues(t, 5<<2|1, fh)
}
