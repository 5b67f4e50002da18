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

// Package signalling implements the JSON-over-WebSocket boundary a browser
// client uses to join a room, publish tracks/data channels, and subscribe to
// other participants' (spec §6 External Interfaces).
package signalling

import (
	"encoding/json"

	"github.com/pion/webrtc/v3"
)

// Envelope is the tagged message shape every client<->server frame uses: Type
// selects how Payload is interpreted, mirroring the tagged-message idiom used
// throughout the retrieval pack's WebSocket signalling servers.
type Envelope struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const (
	// TypeJoin is sent by the client to select which room its transports belong to.
	TypeJoin = "join"
	// TypePublishOffer carries the publishing peer's SDP offer.
	TypePublishOffer = "publish_offer"
	// TypePublishAnswer carries the SFU's SDP answer to a publish_offer.
	TypePublishAnswer = "publish_answer"
	// TypePublish requests that a specific track be confirmed published.
	TypePublish = "publish"
	// TypePublished confirms a track or data channel was published.
	TypePublished = "published"
	// TypeDataPublish requests that a specific data channel be confirmed published.
	TypeDataPublish = "data_publish"
	// TypeSubscribe requests an offer subscribing to one or more published tracks.
	TypeSubscribe = "subscribe"
	// TypeSubscribeOffer carries the SFU's SDP offer for a subscription.
	TypeSubscribeOffer = "subscribe_offer"
	// TypeSubscribeAnswer carries the subscribing peer's SDP answer.
	TypeSubscribeAnswer = "subscribe_answer"
	// TypeDataSubscribe requests a subscription to a published data channel.
	TypeDataSubscribe = "data_subscribe"
	// TypeICECandidate carries one ICE candidate for either a publish or subscribe transport.
	TypeICECandidate = "ice_candidate"
	// TypePing is sent by the client as an application-level liveness check (spec §6).
	TypePing = "ping"
	// TypePong answers a ping (spec §6).
	TypePong = "pong"
	// TypeError reports a failure processing the previous message.
	TypeError = "error"
)

// Target distinguishes which of a participant's two transports a message
// concerns, since every participant has exactly one PublishTransport and one
// SubscribeTransport (spec §4.4, §4.5).
type Target string

const (
	TargetPublish   Target = "publish"
	TargetSubscribe Target = "subscribe"
)

type JoinPayload struct {
	RoomID string `json:"room_id"`
}

type SDPPayload struct {
	SDP webrtc.SessionDescription `json:"sdp"`
}

type PublishPayload struct {
	TrackID string `json:"track_id"`
}

type DataPublishPayload struct {
	Label string `json:"label"`
}

type PublishedPayload struct {
	TrackID string `json:"track_id,omitempty"`
	Label   string `json:"label,omitempty"`
	// PublisherIDs is set only on the "published" notification a participant
	// receives right after joining a room that already has publishers (spec
	// §8 scenario 2: a late subscriber must learn about existing publishers
	// without waiting for a fresh TrackPublished event).
	PublisherIDs []string `json:"publisher_ids,omitempty"`
}

type SubscribePayload struct {
	PublisherIDs []string `json:"publisher_ids"`
}

type DataSubscribePayload struct {
	DataPublisherID string `json:"data_publisher_id"`
}

type ICECandidatePayload struct {
	Target    Target                  `json:"target"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func marshalEnvelope(envType string, v any) (Envelope, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: envType, Payload: raw}, nil
}
