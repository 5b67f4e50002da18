/*
Copyright 2022 The Matrix.org Foundation C.I.C.

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

package signalling

import (
	"testing"

	"github.com/pionsfu/forwarder/internal/sfu"
	"github.com/stretchr/testify/assert"
)

func TestHubReusesRouterForSameRoom(t *testing.T) {
	h := NewHub(sfu.MediaConfig{}, nil)

	first := h.join("room-1")
	second := h.join("room-1")

	assert.Same(t, first, second)

	h.leave("room-1")
	h.leave("room-1")
}

func TestHubCreatesSeparateRoutersPerRoom(t *testing.T) {
	h := NewHub(sfu.MediaConfig{}, nil)

	a := h.join("room-a")
	b := h.join("room-b")

	assert.NotSame(t, a, b)

	h.leave("room-a")
	h.leave("room-b")
}

func TestHubClosesRouterOnceLastParticipantLeaves(t *testing.T) {
	h := NewHub(sfu.MediaConfig{}, nil)

	h.join("room-1")
	h.join("room-1")
	h.leave("room-1")

	h.mu.Lock()
	_, stillPresent := h.rooms["room-1"]
	h.mu.Unlock()
	assert.True(t, stillPresent, "room should survive while a participant remains")

	h.leave("room-1")

	h.mu.Lock()
	_, stillPresent = h.rooms["room-1"]
	h.mu.Unlock()
	assert.False(t, stillPresent, "room should be torn down once empty")
}
