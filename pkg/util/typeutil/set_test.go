// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package typeutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	set := NewSet(3, 1)
	set.Insert(2, 3)
	assert.Equal(t, 3, set.Len())
	assert.True(t, set.Contain(1, 2, 3))
	assert.False(t, set.Contain(1, 4))

	clone := set.Clone()
	set.Remove(1)
	assert.False(t, set.Contain(1))
	assert.True(t, clone.Contain(1))

	union := set.Union(NewSet(9))
	assert.Equal(t, []int{2, 3, 9}, Sorted(union))
	assert.ElementsMatch(t, []int{2, 3}, set.Collect())

	var empty Set[string]
	assert.Equal(t, 0, empty.Len())
	assert.False(t, empty.Contain("x"))
	empty.Remove("x")
}
