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
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"
)

// PublishTransport wraps the peer connection a single publishing peer uses to
// send its media and data channels into a room (spec §4.4). It owns the
// Publisher/DataPublisher objects it negotiates and the single RTCP writer
// loop shared by every Publisher created on it.
type PublishTransport struct {
	ID string

	router     *Router
	pc         *webrtc.PeerConnection
	media      MediaConfig
	rtcpWriter *rtcpWriter
	logger     *logrus.Entry

	mu                sync.Mutex
	remoteSet         bool
	pendingCandidates []webrtc.ICECandidateInit
	publishers        map[string]*Publisher
	dataPublishers    map[string]*DataPublisher
	publishedCh       chan struct{}
	dataPublishedCh   chan struct{}

	onICECandidate func(*webrtc.ICECandidate)
}

func newPublishTransport(router *Router, media MediaConfig, cfg WebRTCTransportConfig) (*PublishTransport, error) {
	factory, err := newPeerConnectionFactory(media, cfg)
	if err != nil {
		return nil, err
	}

	pc, err := factory.createPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCantCreatePeerConnection, err)
	}

	id := uuid.NewString()
	t := &PublishTransport{
		ID:              id,
		router:          router,
		pc:              pc,
		media:           media,
		logger:          logrus.WithField("publish_transport_id", id),
		publishers:      make(map[string]*Publisher),
		dataPublishers:  make(map[string]*DataPublisher),
		publishedCh:     make(chan struct{}),
		dataPublishedCh: make(chan struct{}),
	}

	t.rtcpWriter = newRTCPWriter(pc, t.logger)
	t.registerHandlers()

	t.logger.Debug("publish transport created")

	return t, nil
}

func (t *PublishTransport) registerHandlers() {
	t.pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		t.mu.Lock()
		cb := t.onICECandidate
		t.mu.Unlock()
		if cb != nil {
			cb(candidate)
		}
	})

	t.pc.OnTrack(t.onTrack)
	t.pc.OnDataChannel(t.onDataChannel)
}

// onTrack builds a Publisher for the just-negotiated remote track and makes
// it visible to the Router and to any Publish call already waiting on it
// (spec §4.2, §4.4).
func (t *PublishTransport) onTrack(remoteTrack *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	t.logger.WithFields(logrus.Fields{
		"track_id": remoteTrack.ID(),
		"ssrc":     remoteTrack.SSRC(),
	}).Info("track published")

	extmap := t.extmapFor(remoteTrack.Kind())

	publisher, err := newPublisher(t.router, remoteTrack, t.rtcpWriter.Sender(), extmap)
	if err != nil {
		t.logger.WithError(err).Error("failed to create publisher")
		return
	}

	t.mu.Lock()
	t.publishers[publisher.ID] = publisher
	close(t.publishedCh)
	t.publishedCh = make(chan struct{})
	t.mu.Unlock()

	t.router.notifyTrackPublished(publisher)
}

// onDataChannel waits for the data channel to open before constructing a
// DataPublisher, mirroring the original implementation's on_open hook.
func (t *PublishTransport) onDataChannel(dc *webrtc.DataChannel) {
	dc.OnOpen(func() {
		t.logger.WithField("label", dc.Label()).Info("data channel published")

		dataPublisher := newDataPublisher(t.router, dc)

		t.mu.Lock()
		t.dataPublishers[dataPublisher.Label] = dataPublisher
		close(t.dataPublishedCh)
		t.dataPublishedCh = make(chan struct{})
		t.mu.Unlock()

		t.router.notifyDataPublished(dataPublisher)
	})
}

// extmapFor returns the header extensions configured for a media kind,
// mapped to their fixed IDs (spec §4.1, §4.6).
func (t *PublishTransport) extmapFor(kind webrtc.RTPCodecType) []ExtmapEntry {
	uris := t.media.AudioExtensions
	if kind == webrtc.RTPCodecTypeVideo {
		uris = t.media.VideoExtensions
	}

	entries := make([]ExtmapEntry, 0, len(uris))
	for _, uri := range uris {
		if id, ok := t.media.ExtensionIDs[uri]; ok {
			entries = append(entries, ExtmapEntry{URI: uri, ID: id})
		}
	}
	return entries
}

// Publish blocks until the track with the given ID has been negotiated, or
// ctx is done (spec §4.4's publish operation).
func (t *PublishTransport) Publish(ctx context.Context, trackID string) (*Publisher, error) {
	ctx, sp := span(ctx, "PublishTransport.Publish")
	defer sp.End()

	for {
		t.mu.Lock()
		if publisher, ok := t.publishers[trackID]; ok {
			t.mu.Unlock()
			return publisher, nil
		}
		wait := t.publishedCh
		t.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrTrackNotPublished, ctx.Err())
		}
	}
}

// DataPublish blocks until a data channel with the given label has been
// negotiated, or ctx is done (spec §4.4/§4.7).
func (t *PublishTransport) DataPublish(ctx context.Context, label string) (*DataPublisher, error) {
	ctx, sp := span(ctx, "PublishTransport.DataPublish")
	defer sp.End()

	for {
		t.mu.Lock()
		if dataPublisher, ok := t.dataPublishers[label]; ok {
			t.mu.Unlock()
			return dataPublisher, nil
		}
		wait := t.dataPublishedCh
		t.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrDataChannelNotPublished, ctx.Err())
		}
	}
}

// GetAnswer applies the publishing peer's offer, flushes any ICE candidates
// that arrived before the remote description was set, and returns the
// generated answer (spec §4.4).
func (t *PublishTransport) GetAnswer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := t.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: %s", ErrCantSetRemoteDescription, err)
	}

	t.mu.Lock()
	pending := t.pendingCandidates
	t.pendingCandidates = nil
	t.remoteSet = true
	t.mu.Unlock()

	for _, candidate := range pending {
		if err := t.pc.AddICECandidate(candidate); err != nil {
			t.logger.WithError(err).Error("failed to add pending ice candidate")
		}
	}

	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: %s", ErrCantCreateAnswer, err)
	}

	if err := t.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: %s", ErrCantSetLocalDescription, err)
	}

	local := t.pc.LocalDescription()
	if local == nil {
		return webrtc.SessionDescription{}, ErrCantCreateLocalDescription
	}

	return *local, nil
}

// AddICECandidate adds the candidate immediately if the remote description
// is already set, otherwise buffers it for GetAnswer to flush.
func (t *PublishTransport) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	t.mu.Lock()
	if !t.remoteSet {
		t.pendingCandidates = append(t.pendingCandidates, candidate)
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	if err := t.pc.AddICECandidate(candidate); err != nil {
		return fmt.Errorf("%w: %s", ErrCantAddICECandidate, err)
	}
	return nil
}

// OnICECandidate registers the callback invoked for every locally gathered
// ICE candidate.
func (t *PublishTransport) OnICECandidate(f func(*webrtc.ICECandidate)) {
	t.mu.Lock()
	t.onICECandidate = f
	t.mu.Unlock()
}

// Close tears down the RTCP writer loop and the underlying peer connection.
func (t *PublishTransport) Close() error {
	t.rtcpWriter.Close()

	t.mu.Lock()
	publishers := make([]*Publisher, 0, len(t.publishers))
	for _, p := range t.publishers {
		publishers = append(publishers, p)
	}
	dataPublishers := make([]*DataPublisher, 0, len(t.dataPublishers))
	for _, dp := range t.dataPublishers {
		dataPublishers = append(dataPublishers, dp)
	}
	t.mu.Unlock()

	for _, p := range publishers {
		p.Close()
	}
	for _, dp := range dataPublishers {
		_ = dp.Close()
	}

	t.logger.Debug("publish transport closed")

	return t.pc.Close()
}
