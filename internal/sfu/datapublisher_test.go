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
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func newTestDataPublisher() *DataPublisher {
	return &DataPublisher{
		ID:          "data-1",
		logger:      logrus.WithField("test", true),
		subscribers: make(map[string]chan []byte),
	}
}

func TestDataPublisherBroadcastsToAllAttachedSinks(t *testing.T) {
	dp := newTestDataPublisher()
	a := make(chan []byte, 1)
	b := make(chan []byte, 1)
	dp.attach("a", a)
	dp.attach("b", b)

	dp.broadcast([]byte("hello"))

	assert.Equal(t, []byte("hello"), <-a)
	assert.Equal(t, []byte("hello"), <-b)
}

func TestDataPublisherDetachStopsDelivery(t *testing.T) {
	dp := newTestDataPublisher()
	sink := make(chan []byte, 1)
	detach := dp.attach("a", sink)

	detach()
	dp.broadcast([]byte("hello"))

	select {
	case <-sink:
		t.Fatal("detached sink should not receive further messages")
	default:
	}
}

func TestDataPublisherBroadcastDropsOnFullSink(t *testing.T) {
	dp := newTestDataPublisher()
	sink := make(chan []byte, 1)
	dp.attach("a", sink)

	dp.broadcast([]byte("first"))
	dp.broadcast([]byte("second")) // sink still holds "first", this one should be dropped, not block

	assert.Equal(t, []byte("first"), <-sink)
}
