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
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"
)

// rtcpWriter serializes every RTCP packet addressed to one peer connection
// through a single WriteRTCP call, since pion's peer connection is not safe
// for concurrent writes from multiple Subscriber goroutines (spec §4.shared,
// §5). Every PublishTransport owns exactly one.
type rtcpWriter struct {
	pc     *webrtc.PeerConnection
	sender chan rtcp.Packet
	done   chan struct{}
	logger *logrus.Entry
}

func newRTCPWriter(pc *webrtc.PeerConnection, logger *logrus.Entry) *rtcpWriter {
	w := &rtcpWriter{
		pc:     pc,
		sender: make(chan rtcp.Packet, 256),
		done:   make(chan struct{}),
		logger: logger,
	}

	go w.loop()

	return w
}

func (w *rtcpWriter) loop() {
	w.logger.Debug("rtcp writer loop started")
	defer w.logger.Debug("rtcp writer loop finished")

	for {
		select {
		case <-w.done:
			return
		case packet := <-w.sender:
			if err := w.pc.WriteRTCP([]rtcp.Packet{packet}); err != nil {
				w.logger.WithError(err).Error("failed to write rtcp")
			}
		}
	}
}

// Sender exposes the send-only side handed to each Publisher created on this
// transport, so Subscribers elsewhere can route feedback back to it.
func (w *rtcpWriter) Sender() chan<- rtcp.Packet { return w.sender }

func (w *rtcpWriter) Close() {
	select {
	case <-w.done:
	default:
		close(w.done)
	}
}
