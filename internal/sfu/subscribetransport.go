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

// SubscribeTransport wraps the peer connection one subscribing peer uses to
// receive media and data channels from a room (spec §4.5). Every full
// offer/answer cycle it runs is serialized through negotiationPending: pion
// tolerates only one offer/answer exchange in flight at a time, and both
// explicit Subscribe/DataSubscribe calls and pion's own OnNegotiationNeeded
// callback can each try to start one. Unlike a plain mutex scoped to offer
// creation, the pending state stays claimed across the whole cycle - from
// the moment an offer is requested until SetAnswer reports the matching
// answer applied - so a second negotiation can never produce an offer2 while
// offer1 is still awaiting its answer (spec §4.5 "The flag is cleared when
// set_answer completes"; spec §8's "only one offer/answer cycle in flight"
// property).
type SubscribeTransport struct {
	ID string

	router *Router
	pc     *webrtc.PeerConnection
	media  MediaConfig
	logger *logrus.Entry

	// negotiationPending is a 1-buffered token channel: it holds a token
	// when no negotiation is in flight. Claiming pending negotiation means
	// receiving the token; SetAnswer is the only place that returns it.
	negotiationPending chan struct{}

	mu                sync.Mutex
	remoteSet         bool
	pendingCandidates []webrtc.ICECandidateInit
	subscribers       map[string]*Subscriber
	dataSubscribers   map[string]*DataSubscriber

	onICECandidate      func(*webrtc.ICECandidate)
	onNegotiationNeeded func(webrtc.SessionDescription)
}

func newSubscribeTransport(router *Router, media MediaConfig, cfg WebRTCTransportConfig) (*SubscribeTransport, error) {
	factory, err := newPeerConnectionFactory(media, cfg)
	if err != nil {
		return nil, err
	}

	pc, err := factory.createPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCantCreatePeerConnection, err)
	}

	id := uuid.NewString()
	t := &SubscribeTransport{
		ID:                 id,
		router:             router,
		pc:                 pc,
		media:              media,
		logger:             logrus.WithField("subscribe_transport_id", id),
		subscribers:        make(map[string]*Subscriber),
		dataSubscribers:    make(map[string]*DataSubscriber),
		negotiationPending: make(chan struct{}, 1),
	}
	t.negotiationPending <- struct{}{}

	t.registerHandlers()

	t.logger.Debug("subscribe transport created")

	return t, nil
}

func (t *SubscribeTransport) registerHandlers() {
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

	t.pc.OnNegotiationNeeded(func() {
		t.logger.Debug("negotiation needed")
		if t.pc.ConnectionState() == webrtc.PeerConnectionStateClosed {
			return
		}

		// Wait for any in-flight offer/answer cycle to finish, then claim
		// pending negotiation ourselves; SetAnswer releases it once this
		// offer's answer arrives (spec §4.5's negotiation-needed callback
		// "obeys the same flag").
		t.claimNegotiationPending()

		offer, err := t.createOfferLocked(context.Background())
		if err != nil {
			t.logger.WithError(err).Error("failed to renegotiate")
			t.releaseNegotiationPending()
			return
		}

		t.mu.Lock()
		cb := t.onNegotiationNeeded
		t.mu.Unlock()
		if cb != nil {
			cb(offer)
		}
	})
}

// claimNegotiationPending blocks until no offer/answer cycle is in flight,
// then claims it for the caller. Only SetAnswer (or an error path that never
// reaches SetAnswer) releases it.
func (t *SubscribeTransport) claimNegotiationPending() {
	<-t.negotiationPending
}

// tryClaimNegotiationPending is claimNegotiationPending but bails out early
// if ctx is done before the pending negotiation clears.
func (t *SubscribeTransport) tryClaimNegotiationPending(ctx context.Context) error {
	select {
	case <-t.negotiationPending:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// releaseNegotiationPending clears signalling-pending so the next negotiation
// (explicit or OnNegotiationNeeded-driven) can proceed.
func (t *SubscribeTransport) releaseNegotiationPending() {
	select {
	case t.negotiationPending <- struct{}{}:
	default:
	}
}

// Subscribe adds one Subscriber per requested publisher ID and returns the
// resulting offer. Adding tracks before creating the offer is required by
// the WebRTC offer/answer model (spec §4.5).
func (t *SubscribeTransport) Subscribe(ctx context.Context, publisherIDs []string) ([]*Subscriber, webrtc.SessionDescription, error) {
	ctx, sp := span(ctx, "SubscribeTransport.Subscribe")
	defer sp.End()

	if err := t.tryClaimNegotiationPending(ctx); err != nil {
		return nil, webrtc.SessionDescription{}, err
	}
	// Held past this function's return on success: SetAnswer is the release
	// point for the cycle this offer starts (spec §4.5).
	release := true
	defer func() {
		if release {
			t.releaseNegotiationPending()
		}
	}()

	subscribers := make([]*Subscriber, 0, len(publisherIDs))
	for _, publisherID := range publisherIDs {
		publisher, err := t.router.getPublisher(publisherID)
		if err != nil {
			return nil, webrtc.SessionDescription{}, err
		}

		subscriber, err := t.subscribeTrack(publisher)
		if err != nil {
			return nil, webrtc.SessionDescription{}, err
		}
		subscribers = append(subscribers, subscriber)
	}

	offer, err := t.createOfferLocked(ctx)
	if err != nil {
		return nil, webrtc.SessionDescription{}, err
	}

	release = false
	return subscribers, offer, nil
}

// DataSubscribe subscribes to one published data channel and returns the
// resulting offer (spec §4.5, §4.7).
func (t *SubscribeTransport) DataSubscribe(ctx context.Context, dataPublisherID string) (*DataSubscriber, webrtc.SessionDescription, error) {
	ctx, sp := span(ctx, "SubscribeTransport.DataSubscribe")
	defer sp.End()

	if err := t.tryClaimNegotiationPending(ctx); err != nil {
		return nil, webrtc.SessionDescription{}, err
	}
	release := true
	defer func() {
		if release {
			t.releaseNegotiationPending()
		}
	}()

	dataPublisher, err := t.router.getDataPublisher(dataPublisherID)
	if err != nil {
		return nil, webrtc.SessionDescription{}, err
	}

	dataSubscriber, err := t.subscribeData(dataPublisher)
	if err != nil {
		return nil, webrtc.SessionDescription{}, err
	}

	offer, err := t.createOfferLocked(ctx)
	if err != nil {
		return nil, webrtc.SessionDescription{}, err
	}

	release = false
	return dataSubscriber, offer, nil
}

func (t *SubscribeTransport) subscribeTrack(publisher *Publisher) (*Subscriber, error) {
	rtpSender, err := t.pc.AddTrack(publisher.LocalTrack())
	if err != nil {
		return nil, fmt.Errorf("failed to add track: %w", err)
	}

	subscriber := newSubscriber(publisher, rtpSender, t.media.RembClamp)

	t.mu.Lock()
	t.subscribers[subscriber.ID] = subscriber
	t.mu.Unlock()

	t.router.metrics.subscriberAdded()

	return subscriber, nil
}

func (t *SubscribeTransport) subscribeData(dataPublisher *DataPublisher) (*DataSubscriber, error) {
	dc, err := t.pc.CreateDataChannel(dataPublisher.ID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create data channel: %w", err)
	}

	dataSubscriber := newDataSubscriber(dataPublisher, dc)

	t.mu.Lock()
	t.dataSubscribers[dataSubscriber.ID] = dataSubscriber
	t.mu.Unlock()

	return dataSubscriber, nil
}

// createOfferLocked creates an offer and waits for ICE gathering to
// complete, honoring ctx for callers that want a gathering timeout. Callers
// must have already claimed negotiationPending.
func (t *SubscribeTransport) createOfferLocked(ctx context.Context) (webrtc.SessionDescription, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: %s", ErrCantCreateOffer, err)
	}

	gatheringComplete := webrtc.GatheringCompletePromise(t.pc)

	if err := t.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: %s", ErrCantSetLocalDescription, err)
	}

	select {
	case <-gatheringComplete:
	case <-ctx.Done():
		return webrtc.SessionDescription{}, ctx.Err()
	}

	local := t.pc.LocalDescription()
	if local == nil {
		return webrtc.SessionDescription{}, ErrCantCreateLocalDescription
	}

	extmap, err := t.router.getPublishersExtmap()
	if err != nil {
		return webrtc.SessionDescription{}, err
	}

	return rewriteExtmapIDs(*local, mergeExtmapIDs(t.media.ExtensionIDs, extmap))
}

// mergeExtmapIDs collects every extension URI actually used by any
// publisher in the room, mapped to the Router's fixed ID, falling back to
// the base configuration for URIs no publisher happens to have reported yet.
func mergeExtmapIDs(base map[string]int, perPublisher map[string][]ExtmapEntry) map[string]int {
	ids := make(map[string]int, len(base))
	for uri, id := range base {
		ids[uri] = id
	}
	for _, entries := range perPublisher {
		for _, entry := range entries {
			ids[entry.URI] = entry.ID
		}
	}
	return ids
}

// SetAnswer applies the subscribing peer's answer and flushes any ICE
// candidates buffered before the remote description was set (spec §4.5).
func (t *SubscribeTransport) SetAnswer(answer webrtc.SessionDescription) error {
	err := t.pc.SetRemoteDescription(answer)
	t.releaseNegotiationPending()
	if err != nil {
		return fmt.Errorf("%w: %s", ErrCantSetRemoteDescription, err)
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

	return nil
}

// AddICECandidate adds the candidate immediately if the remote description
// is already set, otherwise buffers it for SetAnswer to flush.
func (t *SubscribeTransport) AddICECandidate(candidate webrtc.ICECandidateInit) error {
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
func (t *SubscribeTransport) OnICECandidate(f func(*webrtc.ICECandidate)) {
	t.mu.Lock()
	t.onICECandidate = f
	t.mu.Unlock()
}

// OnNegotiationNeeded registers the callback invoked with a freshly created
// offer whenever pion decides renegotiation is required on its own, outside
// of an explicit Subscribe/DataSubscribe call.
func (t *SubscribeTransport) OnNegotiationNeeded(f func(webrtc.SessionDescription)) {
	t.mu.Lock()
	t.onNegotiationNeeded = f
	t.mu.Unlock()
}

// Close closes every Subscriber/DataSubscriber this transport created and
// the underlying peer connection.
func (t *SubscribeTransport) Close() error {
	t.mu.Lock()
	subscribers := make([]*Subscriber, 0, len(t.subscribers))
	for _, s := range t.subscribers {
		subscribers = append(subscribers, s)
	}
	dataSubscribers := make([]*DataSubscriber, 0, len(t.dataSubscribers))
	for _, ds := range t.dataSubscribers {
		dataSubscribers = append(dataSubscribers, ds)
	}
	t.mu.Unlock()

	for _, s := range subscribers {
		s.Close()
		t.router.metrics.subscriberRemoved()
	}
	for _, ds := range dataSubscribers {
		ds.Close()
	}

	t.logger.Debug("subscribe transport closed")

	return t.pc.Close()
}
