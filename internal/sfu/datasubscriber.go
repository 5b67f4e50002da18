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
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/pionsfu/forwarder/pkg/common"
	"github.com/sirupsen/logrus"
)

// DataSubscriber relays messages published on one DataPublisher to one
// subscribing peer's data channel (spec §4.7). It detaches from the
// publisher's fan-out when Close is called; closing the published data
// channel does not end it on its own.
//
// Delivery runs through a common.Worker rather than a bare goroutine+channel
// pair, mirroring peer/datachannel.go's newDataChannelWorker: a bounded queue
// absorbs bursts from the publisher's fan-out without blocking it, and the
// worker's own OnTimeout is disabled (a data subscriber has no deadline of
// its own - only Close ends it).
type DataSubscriber struct {
	ID            string
	DataPublisher string

	channel *webrtc.DataChannel
	logger  *logrus.Entry

	worker *common.Worker[[]byte]
	detach func()

	closeOnce sync.Once
	closed    chan struct{}
}

// newDataSubscriber attaches a sink to publisher's fan-out and starts the
// forwarding worker. Mirrors the original's DataSubscriber::new.
func newDataSubscriber(publisher *DataPublisher, channel *webrtc.DataChannel) *DataSubscriber {
	id := uuid.NewString()
	sink := make(chan []byte, 128)

	ds := &DataSubscriber{
		ID:            id,
		DataPublisher: publisher.ID,
		channel:       channel,
		logger: logrus.WithFields(logrus.Fields{
			"data_publisher_id": publisher.ID,
		}),
		closed: make(chan struct{}),
	}

	ds.worker = common.StartWorker(common.WorkerConfig[[]byte]{
		ChannelSize: 128,
		Timeout:     time.Hour,
		OnTimeout:   func() {},
		OnTask:      ds.forward,
	})

	ds.detach = publisher.attach(id, sink)
	go ds.pump(sink)

	return ds
}

// pump relays messages from the publisher's fan-out into the worker queue
// until Close is called.
func (ds *DataSubscriber) pump(sink chan []byte) {
	defer ds.detach()

	for {
		select {
		case <-ds.closed:
			return
		case data := <-sink:
			if err := ds.worker.Send(data); err != nil {
				ds.logger.WithError(err).Debug("dropping message, worker unavailable")
			}
		}
	}
}

// forward writes one message to the subscribing peer's data channel,
// skipping the write while the channel isn't open rather than erroring the
// whole pipeline (spec §4.7).
func (ds *DataSubscriber) forward(data []byte) {
	if ds.channel.ReadyState() != webrtc.DataChannelStateOpen {
		ds.logger.Warn("data channel is not open, dropping message")
		return
	}
	if err := ds.channel.Send(data); err != nil {
		ds.logger.WithError(err).Error("failed to send data to subscriber")
	}
}

// Close stops the forwarding worker and detaches from the publisher's
// fan-out. Safe to call multiple times.
func (ds *DataSubscriber) Close() {
	ds.closeOnce.Do(func() {
		close(ds.closed)
		ds.worker.Stop()
	})
}
