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
	"io"
	"strings"
	"sync"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/pionsfu/forwarder/pkg/common"
	"github.com/sirupsen/logrus"
)

// Publisher owns one ingress RTP track for one published track-id, and exposes
// a local forwardable track that every Subscriber attaches to by reference
// (spec §3, §4.2). There is exactly one ingress loop per Publisher for its
// entire life.
type Publisher struct {
	// ID is the upstream track-id supplied by the publishing peer.
	ID          string
	SSRC        webrtc.SSRC
	MimeType    string
	PayloadType webrtc.PayloadType

	router *Router
	logger *logrus.Entry

	remoteTrack *webrtc.TrackRemote
	localTrack  *webrtc.TrackLocalStaticRTP

	// rtcpSender is shared with the owning PublishTransport's RTCP writer loop;
	// Subscribers forward translated RTCP here (spec §4.3).
	rtcpSender chan<- rtcp.Packet

	extmap []ExtmapEntry

	// watchdog is notified on every successful RTP read; if it goes quiet for
	// longer than the configured timeout the publisher is considered dead and
	// closed (spec §4.2, grounded on peer/subscription/watchdog.go).
	watchdog *common.WatchdogChannel

	closeOnce sync.Once
	closed    chan struct{}
}

// newPublisher constructs a Publisher for a freshly negotiated remote track,
// creates its local forwardable track, and starts the ingress loop. Mirrors
// peer/webrtc.go's onRtpTrackReceived and the original's Publisher::new.
func newPublisher(
	router *Router,
	remoteTrack *webrtc.TrackRemote,
	rtcpSender chan<- rtcp.Packet,
	extmap []ExtmapEntry,
) (*Publisher, error) {
	localTrack, err := webrtc.NewTrackLocalStaticRTP(
		remoteTrack.Codec().RTPCodecCapability,
		remoteTrack.ID(),
		remoteTrack.StreamID(),
	)
	if err != nil {
		return nil, err
	}

	p := &Publisher{
		ID:          remoteTrack.ID(),
		SSRC:        remoteTrack.SSRC(),
		MimeType:    remoteTrack.Codec().MimeType,
		PayloadType: remoteTrack.PayloadType(),
		router:      router,
		logger: logrus.WithFields(logrus.Fields{
			"track_id": remoteTrack.ID(),
			"ssrc":     remoteTrack.SSRC(),
		}),
		remoteTrack: remoteTrack,
		localTrack:  localTrack,
		rtcpSender:  rtcpSender,
		extmap:      extmap,
		closed:      make(chan struct{}),
	}

	watchdogCfg := common.WatchdogConfig{
		Timeout: router.media.PublisherStaleTimeout,
		OnTimeout: func() {
			p.logger.Warn("no RTP received within timeout, closing publisher")
			p.Close()
		},
	}
	p.watchdog = watchdogCfg.Start()

	go p.ingressLoop()

	return p, nil
}

// LocalTrack is the fan-out destination: every Subscriber attaches this same
// object to its own peer connection, so pion rewrites per-peer RTP headers
// without the core ever copying the payload (spec §3 invariant ii, §4.2).
func (p *Publisher) LocalTrack() *webrtc.TrackLocalStaticRTP { return p.localTrack }

// Extmap returns the header extensions configured for this publisher's kind,
// each mapped to the configuration's fixed extension ID, ordered by that
// configuration's extension list (spec §4.1, §4.6). It is not read from the
// publisher's negotiated SDP.
func (p *Publisher) Extmap() []ExtmapEntry { return p.extmap }

// ingressLoop reads RTP packets in order as delivered and writes each,
// unchanged, to the local forwardable track. It terminates on a remote-track
// read error/close or on Publisher.Close, and always notifies the Router of
// the removal on its way out (spec §4.2).
func (p *Publisher) ingressLoop() {
	p.logger.Debug("publisher ingress loop started")

	buf := make([]byte, rtpReadBufferSize)

	defer func() {
		p.router.notifyTrackRemoved(p.ID)
		p.logger.Debug("publisher ingress loop finished")
	}()

	for {
		select {
		case <-p.closed:
			return
		default:
		}

		n, _, err := p.remoteTrack.Read(buf)
		if err != nil {
			if err == io.EOF {
				p.logger.Info("remote track closed")
			} else {
				p.logger.WithError(err).Error("failed to read from remote track")
			}
			return
		}
		p.watchdog.Notify()

		var packet rtp.Packet
		if err := packet.Unmarshal(buf[:n]); err != nil {
			p.logger.WithError(err).Warn("dropping malformed rtp packet")
			continue
		}

		if err := p.localTrack.WriteRTP(&packet); err != nil && !strings.Contains(err.Error(), io.ErrClosedPipe.Error()) {
			p.logger.WithError(err).Error("failed to write to local track")
		}
	}
}

// Close signals the ingress loop to stop and stops the staleness watchdog.
// Safe to call multiple times.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		close(p.closed)
		p.watchdog.Close()
	})
}

// detectMediaType classifies a MIME type for REMB-clamp purposes (spec §4.3).
func detectMediaType(mimeType string) mediaType {
	if strings.Contains(strings.ToLower(mimeType), "video") {
		return mediaTypeVideo
	}
	return mediaTypeAudio
}

type mediaType int

const (
	mediaTypeAudio mediaType = iota
	mediaTypeVideo
)
