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
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// ExtmapEntry is one (uri, id) pair of a publisher's configured header extensions,
// consumed by SubscribeTransport when rewriting a subscriber-side offer (spec §4.1, §4.6).
type ExtmapEntry struct {
	URI string
	ID  int
}

// Router is the per-room registry of publishers and data-publishers. All state
// mutation goes through a single event loop (spec §4.1, §5) so map access never
// needs its own lock: the loop is the only goroutine that ever touches the maps.
type Router struct {
	// ID identifies the room this Router belongs to.
	ID string

	logger  *logrus.Entry
	media   MediaConfig
	metrics *Metrics

	events chan any
	sealed chan struct{}
}

// NewRouter creates a Router and starts its event loop. The caller owns the
// Router's lifetime; Close must be called once the room has no more
// transports. metrics may be nil if the caller doesn't want to expose one.
func NewRouter(id string, media MediaConfig, metrics *Metrics) *Router {
	if id == "" {
		id = uuid.NewString()
	}

	r := &Router{
		ID:      id,
		logger:  logrus.WithField("router_id", id),
		media:   NewMediaConfig(media),
		metrics: metrics,
		events:  make(chan any, 128),
		sealed:  make(chan struct{}),
	}

	go r.eventLoop()

	return r
}

type trackPublishedEvent struct{ publisher *Publisher }
type trackRemovedEvent struct{ id string }
type dataPublishedEvent struct{ dataPublisher *DataPublisher }
type dataRemovedEvent struct{ id string }
type getPublisherEvent struct {
	id    string
	reply chan *Publisher
}
type getDataPublisherEvent struct {
	id    string
	reply chan *DataPublisher
}
type getPublishersExtmapEvent struct {
	reply chan map[string][]ExtmapEntry
}
type closedEvent struct{}

// send enqueues an event, failing fast once the Router is sealed rather than
// blocking forever on a dead event loop.
func (r *Router) send(event any) error {
	select {
	case <-r.sealed:
		return ErrRouterClosed
	case r.events <- event:
		return nil
	}
}

func (r *Router) eventLoop() {
	publishers := make(map[string]*Publisher)
	dataPublishers := make(map[string]*DataPublisher)

	r.logger.Debug("router event loop started")

	for event := range r.events {
		switch e := event.(type) {
		case trackPublishedEvent:
			publishers[e.publisher.ID] = e.publisher
			r.metrics.trackPublished()
			r.logger.WithField("track_id", e.publisher.ID).Info("track published")
		case trackRemovedEvent:
			delete(publishers, e.id)
			r.metrics.trackRemoved()
			r.logger.WithField("track_id", e.id).Info("track removed")
		case dataPublishedEvent:
			dataPublishers[e.dataPublisher.ID] = e.dataPublisher
			r.metrics.dataPublished()
			r.logger.WithField("data_id", e.dataPublisher.ID).Info("data channel published")
		case dataRemovedEvent:
			delete(dataPublishers, e.id)
			r.metrics.dataRemoved()
			r.logger.WithField("data_id", e.id).Info("data channel removed")
		case getPublisherEvent:
			e.reply <- publishers[e.id]
		case getDataPublisherEvent:
			e.reply <- dataPublishers[e.id]
		case getPublishersExtmapEvent:
			result := make(map[string][]ExtmapEntry, len(publishers))
			for id, publisher := range publishers {
				result[id] = publisher.Extmap()
			}
			e.reply <- result
		case listDataPublishersEvent:
			ids := maps.Keys(dataPublishers)
			slices.Sort(ids)
			e.reply <- ids
		case closedEvent:
			close(r.sealed)
			r.logger.Debug("router event loop finished")
			return
		}
	}
}

// CreatePublishTransport creates a new PublishTransport bound to this Router.
func (r *Router) CreatePublishTransport(cfg WebRTCTransportConfig) (*PublishTransport, error) {
	return newPublishTransport(r, r.media, cfg)
}

// CreateSubscribeTransport creates a new SubscribeTransport bound to this Router.
func (r *Router) CreateSubscribeTransport(cfg WebRTCTransportConfig) (*SubscribeTransport, error) {
	return newSubscribeTransport(r, r.media, cfg)
}

// PublisherIDs returns the currently published track IDs, deterministically ordered.
func (r *Router) PublisherIDs() []string {
	reply := make(chan map[string][]ExtmapEntry, 1)
	if err := r.send(getPublishersExtmapEvent{reply: reply}); err != nil {
		return nil
	}
	select {
	case extmaps := <-reply:
		ids := maps.Keys(extmaps)
		slices.Sort(ids)
		return ids
	case <-r.sealed:
		return nil
	}
}

// DataPublisherIDs returns the currently published data-channel IDs, deterministically ordered.
func (r *Router) DataPublisherIDs() []string {
	reply := make(chan []string, 1)
	if err := r.send(listDataPublishersEvent{reply: reply}); err != nil {
		return nil
	}
	select {
	case ids := <-reply:
		return ids
	case <-r.sealed:
		return nil
	}
}

type listDataPublishersEvent struct{ reply chan []string }

// getPublisher resolves a publisher by ID, used internally by SubscribeTransport.
func (r *Router) getPublisher(id string) (*Publisher, error) {
	reply := make(chan *Publisher, 1)
	if err := r.send(getPublisherEvent{id: id, reply: reply}); err != nil {
		return nil, err
	}
	select {
	case publisher := <-reply:
		if publisher == nil {
			return nil, ErrTrackNotFound
		}
		return publisher, nil
	case <-r.sealed:
		return nil, ErrRouterClosed
	}
}

// getDataPublisher resolves a data-publisher by ID, used internally by SubscribeTransport.
func (r *Router) getDataPublisher(id string) (*DataPublisher, error) {
	reply := make(chan *DataPublisher, 1)
	if err := r.send(getDataPublisherEvent{id: id, reply: reply}); err != nil {
		return nil, err
	}
	select {
	case dataPublisher := <-reply:
		if dataPublisher == nil {
			return nil, ErrDataChannelNotFound
		}
		return dataPublisher, nil
	case <-r.sealed:
		return nil, ErrRouterClosed
	}
}

// getPublishersExtmap is used by SubscribeTransport to rewrite offer extmaps (spec §4.6).
func (r *Router) getPublishersExtmap() (map[string][]ExtmapEntry, error) {
	reply := make(chan map[string][]ExtmapEntry, 1)
	if err := r.send(getPublishersExtmapEvent{reply: reply}); err != nil {
		return nil, err
	}
	select {
	case extmaps := <-reply:
		return extmaps, nil
	case <-r.sealed:
		return nil, ErrRouterClosed
	}
}

func (r *Router) notifyTrackPublished(p *Publisher)     { _ = r.send(trackPublishedEvent{p}) }
func (r *Router) notifyTrackRemoved(id string)          { _ = r.send(trackRemovedEvent{id}) }
func (r *Router) notifyDataPublished(dp *DataPublisher) { _ = r.send(dataPublishedEvent{dp}) }
func (r *Router) notifyDataRemoved(id string)           { _ = r.send(dataRemovedEvent{id}) }

// Close terminates the Router's event loop. Any caller currently blocked on a
// reply channel observes the loop's sealed signal instead of hanging forever.
func (r *Router) Close() {
	_ = r.send(closedEvent{})
}
