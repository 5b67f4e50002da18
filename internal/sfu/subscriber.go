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
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"
)

// Subscriber attaches one publisher's local track to one subscribing peer's
// RTPSender and translates the RTCP the receiving peer sends back (PLI,
// REMB, receiver reports) into RTCP addressed to the publisher (spec §4.3).
// RTP itself needs no per-subscriber loop: the local track is shared by
// reference and pion fans each packet out to every peer connection it is
// attached to (spec §3 invariant ii).
type Subscriber struct {
	ID          string
	PublisherID string

	rtpSender         *webrtc.RTPSender
	publisherRTCPSink chan<- rtcp.Packet
	mediaSSRC         webrtc.SSRC
	mediaType         mediaType
	clamp             RembClampConfig
	metrics           *Metrics

	logger *logrus.Entry

	closeOnce sync.Once
	closed    chan struct{}
}

// newSubscriber wires a Subscriber for the track just added to rtpSender and
// starts its RTCP translation loop. Mirrors the original's Subscriber::new.
func newSubscriber(
	publisher *Publisher,
	rtpSender *webrtc.RTPSender,
	clamp RembClampConfig,
) *Subscriber {
	s := &Subscriber{
		ID:                uuid.NewString(),
		PublisherID:       publisher.ID,
		rtpSender:         rtpSender,
		publisherRTCPSink: publisher.rtcpSender,
		mediaSSRC:         publisher.SSRC,
		mediaType:         detectMediaType(publisher.MimeType),
		clamp:             clamp,
		metrics:           publisher.router.metrics,
		logger: logrus.WithFields(logrus.Fields{
			"publisher_id": publisher.ID,
		}),
		closed: make(chan struct{}),
	}

	go s.rtcpEventLoop()

	return s
}

// rtcpEventLoop reads RTCP feedback the subscribing peer sends for this
// track and forwards a translated copy to the owning publisher's RTCP
// writer loop, applying the REMB floor while the subscriber is young
// (spec §4.3, §9).
func (s *Subscriber) rtcpEventLoop() {
	s.logger.Debug("subscriber rtcp event loop started")
	startedAt := time.Now()

	defer s.logger.Debug("subscriber rtcp event loop finished")

	for {
		packets, _, err := s.rtpSender.ReadRTCP()
		select {
		case <-s.closed:
			return
		default:
		}
		if err != nil {
			s.logger.WithError(err).Debug("failed to read rtcp, closing")
			return
		}

		for _, packet := range packets {
			switch p := packet.(type) {
			case *rtcp.ReceiverReport:
				s.forward(p)
			case *rtcp.PictureLossIndication:
				s.forward(&rtcp.PictureLossIndication{
					SenderSSRC: 0,
					MediaSSRC:  uint32(s.mediaSSRC),
				})
			case *rtcp.ReceiverEstimatedMaximumBitrate:
				remb := clampREMB(*p, s.mediaType, s.clamp, time.Since(startedAt))
				s.forward(&remb)
			}
		}
	}
}

// clampREMB enforces the REMB floor for the first clamp.Window of a
// Subscriber's life (spec §4.3, §9): browsers often probe extremely low
// during the first seconds, and the floor keeps a publisher from throttling
// itself to an unusable bitrate before probing completes. Once age passes
// clamp.Window, or the reported bitrate is already at or above the floor,
// remb is returned unchanged.
func clampREMB(remb rtcp.ReceiverEstimatedMaximumBitrate, mt mediaType, clamp RembClampConfig, age time.Duration) rtcp.ReceiverEstimatedMaximumBitrate {
	if age >= clamp.Window {
		return remb
	}

	switch mt {
	case mediaTypeVideo:
		if remb.Bitrate < clamp.VideoFloor {
			remb.Bitrate = clamp.VideoFloor
		}
	case mediaTypeAudio:
		if remb.Bitrate < clamp.AudioFloor {
			remb.Bitrate = clamp.AudioFloor
		}
	}
	return remb
}

func (s *Subscriber) forward(packet rtcp.Packet) {
	select {
	case s.publisherRTCPSink <- packet:
	case <-s.closed:
	default:
		s.metrics.rtcpDropped()
		s.logger.Warn("dropping rtcp packet, publisher rtcp sink is full")
	}
}

// Close stops the RTCP translation loop. Safe to call multiple times.
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
}
