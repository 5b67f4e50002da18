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
	"sync"

	"github.com/pionsfu/forwarder/internal/sfu"
	"github.com/sirupsen/logrus"
)

// Hub owns one Router per room ID, creating rooms lazily on first join and
// tearing a room down once its last participant leaves (spec §4.1's Router
// lifetime, generalized to a multi-room process).
type Hub struct {
	media   sfu.MediaConfig
	metrics *sfu.Metrics
	logger  *logrus.Entry

	mu    sync.Mutex
	rooms map[string]*room
}

// NewHub creates an empty Hub. metrics may be nil.
func NewHub(media sfu.MediaConfig, metrics *sfu.Metrics) *Hub {
	return &Hub{
		media:   media,
		metrics: metrics,
		logger:  logrus.WithField("component", "hub"),
		rooms:   make(map[string]*room),
	}
}

type room struct {
	id           string
	router       *sfu.Router
	participants int
}

// join returns the Router for roomID, creating it if this is the first
// participant to join.
func (h *Hub) join(roomID string) *sfu.Router {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[roomID]
	if !ok {
		r = &room{id: roomID, router: sfu.NewRouter(roomID, h.media, h.metrics)}
		h.rooms[roomID] = r
		h.logger.WithField("room_id", roomID).Info("room created")
	}
	r.participants++

	return r.router
}

// leave drops a participant from roomID, closing and removing the room's
// Router once nobody is left in it.
func (h *Hub) leave(roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[roomID]
	if !ok {
		return
	}

	r.participants--
	if r.participants <= 0 {
		delete(h.rooms, roomID)
		r.router.Close()
		h.logger.WithField("room_id", roomID).Info("room closed")
	}
}
