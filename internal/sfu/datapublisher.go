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

package sfu

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"
)

// DataPublisher fans out messages received on one published data channel to
// every DataSubscriber currently attached to it (spec §4.7). Unlike a media
// Publisher there is no ingress goroutine: delivery happens directly from
// pion's on_message callback.
type DataPublisher struct {
	ID    string
	Label string

	channel *webrtc.DataChannel
	router  *Router
	logger  *logrus.Entry

	mu          sync.Mutex
	subscribers map[string]chan []byte
}

// newDataPublisher wraps a freshly opened data channel, wiring its on_message/
// on_close callbacks (spec §4.7). Mirrors the original's DataPublisher::new.
func newDataPublisher(router *Router, channel *webrtc.DataChannel) *DataPublisher {
	dp := &DataPublisher{
		ID:          uuid.NewString(),
		Label:       channel.Label(),
		channel: channel,
		router:  router,
		logger: logrus.WithFields(logrus.Fields{
			"data_id": channel.Label(),
		}),
		subscribers: make(map[string]chan []byte),
	}

	channel.OnMessage(func(msg webrtc.DataChannelMessage) {
		dp.broadcast(msg.Data)
	})

	channel.OnClose(func() {
		dp.logger.Debug("data channel closed")
		router.notifyDataRemoved(dp.ID)
	})

	channel.OnError(func(err error) {
		dp.logger.WithError(err).Debug("error on data channel")
	})

	dp.logger.WithField("id", dp.ID).Debug("data publisher created")

	return dp
}

// broadcast delivers a message to every currently attached subscriber,
// dropping it for any subscriber whose channel is full rather than blocking
// the publishing peer's delivery of the next message.
func (dp *DataPublisher) broadcast(data []byte) {
	dp.mu.Lock()
	defer dp.mu.Unlock()

	for id, sink := range dp.subscribers {
		select {
		case sink <- data:
		default:
			dp.logger.WithField("subscriber_id", id).Warn("dropping message, subscriber sink is full")
		}
	}
}

// attach registers a new subscriber sink and returns a detach function.
func (dp *DataPublisher) attach(id string, sink chan []byte) func() {
	dp.mu.Lock()
	dp.subscribers[id] = sink
	dp.mu.Unlock()

	return func() {
		dp.mu.Lock()
		delete(dp.subscribers, id)
		dp.mu.Unlock()
	}
}

// Close closes the underlying data channel.
func (dp *DataPublisher) Close() error {
	return dp.channel.Close()
}
