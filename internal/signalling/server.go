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

package signalling

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	"github.com/pionsfu/forwarder/internal/sfu"
	"github.com/pionsfu/forwarder/pkg/common"
	"github.com/sirupsen/logrus"
)

// wsPingInterval/wsPingTimeout drive the transport-level liveness check each
// participant connection runs underneath the spec's application-level
// ping/pong messages (see participant.startLivenessCheck).
const (
	wsPingInterval = 15 * time.Second
	wsPingTimeout  = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server is the HTTP entry point for the WebSocket signalling boundary
// (spec §6). Each accepted connection gets its own participant loop.
type Server struct {
	hub            *Hub
	transportCfg   sfu.WebRTCTransportConfig
	negotiateTimeout time.Duration
	logger         *logrus.Entry
}

// NewServer builds a Server backed by hub, using transportCfg for every
// PublishTransport/SubscribeTransport it creates.
func NewServer(hub *Hub, transportCfg sfu.WebRTCTransportConfig) *Server {
	return &Server{
		hub:              hub,
		transportCfg:     transportCfg,
		negotiateTimeout: 10 * time.Second,
		logger:           logrus.WithField("component", "signalling"),
	}
}

// ServeHTTP upgrades the request to a WebSocket and runs the participant
// loop until the connection closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Error("websocket upgrade failed")
		return
	}

	p := &participant{
		conn:   conn,
		server: s,
		logger: s.logger,
	}

	p.startLivenessCheck()
	p.run()
}

// participant is one WebSocket connection's worth of signalling state: a
// publish transport, a subscribe transport, and the room they belong to.
type participant struct {
	conn   *websocket.Conn
	server *Server
	logger *logrus.Entry

	writeMu sync.Mutex

	roomID string

	publishTransport   *sfu.PublishTransport
	subscribeTransport *sfu.SubscribeTransport

	livenessPong chan<- common.Pong
}

// startLivenessCheck runs a transport-level liveness check underneath the
// spec's application-level ping/pong messages: a native WebSocket ping
// control frame is sent every wsPingInterval, and the connection is dropped
// as dead if no pong answers within wsPingTimeout. Adapted from
// peer/heartbeat.go's startHeartbeat, which runs the same send-ping/
// await-pong/timeout loop over Matrix to-device messages instead of a raw
// WebSocket control frame.
func (p *participant) startLivenessCheck() {
	hb := common.Heartbeat{
		Interval: wsPingInterval,
		Timeout:  wsPingTimeout,
		SendPing: p.sendWSPing,
		OnTimeout: func() {
			p.logger.Warn("no pong received within timeout, closing stale connection")
			_ = p.conn.Close()
		},
	}

	p.livenessPong = hb.Start()

	p.conn.SetPongHandler(func(string) error {
		select {
		case p.livenessPong <- common.Pong{}:
		default:
		}
		return nil
	})
}

func (p *participant) sendWSPing() bool {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	return p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsPingTimeout)) == nil
}

func (p *participant) run() {
	defer p.close()

	for {
		var env Envelope
		if err := p.conn.ReadJSON(&env); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				p.logger.WithError(err).Debug("read failed, closing connection")
			}
			return
		}

		if err := p.handle(env); err != nil {
			p.logger.WithError(err).WithField("type", env.Type).Warn("failed to handle message")
			p.sendError(err.Error())
		}
	}
}

func (p *participant) handle(env Envelope) error {
	switch env.Type {
	case TypeJoin:
		return p.handleJoin(env)
	case TypePublishOffer:
		return p.handlePublishOffer(env)
	case TypePublish:
		return p.handlePublish(env)
	case TypeDataPublish:
		return p.handleDataPublish(env)
	case TypeSubscribe:
		return p.handleSubscribe(env)
	case TypeDataSubscribe:
		return p.handleDataSubscribe(env)
	case TypeSubscribeAnswer:
		return p.handleSubscribeAnswer(env)
	case TypeICECandidate:
		return p.handleICECandidate(env)
	case TypePing:
		return p.send(TypePong, struct{}{})
	default:
		return errUnknownMessageType(env.Type)
	}
}

func (p *participant) handleJoin(env Envelope) error {
	var payload JoinPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return err
	}

	if p.roomID != "" {
		return errAlreadyJoined
	}

	router := p.server.hub.join(payload.RoomID)
	p.roomID = payload.RoomID

	publishTransport, err := router.CreatePublishTransport(p.server.transportCfg)
	if err != nil {
		return err
	}
	subscribeTransport, err := router.CreateSubscribeTransport(p.server.transportCfg)
	if err != nil {
		return err
	}

	p.publishTransport = publishTransport
	p.subscribeTransport = subscribeTransport

	publishTransport.OnICECandidate(func(c *webrtc.ICECandidate) {
		p.sendCandidate(TargetPublish, c)
	})
	subscribeTransport.OnICECandidate(func(c *webrtc.ICECandidate) {
		p.sendCandidate(TargetSubscribe, c)
	})
	subscribeTransport.OnNegotiationNeeded(func(offer webrtc.SessionDescription) {
		p.send(TypeSubscribeOffer, SDPPayload{SDP: offer})
	})

	// A participant joining a room that already has publishers must learn
	// about them immediately rather than wait for the next TrackPublished
	// event, which only fires for publishers that negotiate after this point
	// (spec §8 scenario 2).
	if ids := router.PublisherIDs(); len(ids) > 0 {
		if err := p.send(TypePublished, PublishedPayload{PublisherIDs: ids}); err != nil {
			p.logger.WithError(err).Warn("failed to send existing publisher list")
		}
	}

	return nil
}

func (p *participant) handlePublishOffer(env Envelope) error {
	if err := p.requireJoined(); err != nil {
		return err
	}

	var payload SDPPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return err
	}

	answer, err := p.publishTransport.GetAnswer(payload.SDP)
	if err != nil {
		return err
	}

	return p.send(TypePublishAnswer, SDPPayload{SDP: answer})
}

func (p *participant) handlePublish(env Envelope) error {
	if err := p.requireJoined(); err != nil {
		return err
	}

	var payload PublishPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.server.negotiateTimeout)
	defer cancel()

	publisher, err := p.publishTransport.Publish(ctx, payload.TrackID)
	if err != nil {
		return err
	}

	return p.send(TypePublished, PublishedPayload{TrackID: publisher.ID})
}

func (p *participant) handleDataPublish(env Envelope) error {
	if err := p.requireJoined(); err != nil {
		return err
	}

	var payload DataPublishPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.server.negotiateTimeout)
	defer cancel()

	dataPublisher, err := p.publishTransport.DataPublish(ctx, payload.Label)
	if err != nil {
		return err
	}

	return p.send(TypePublished, PublishedPayload{Label: dataPublisher.Label})
}

func (p *participant) handleSubscribe(env Envelope) error {
	if err := p.requireJoined(); err != nil {
		return err
	}

	var payload SubscribePayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.server.negotiateTimeout)
	defer cancel()

	_, offer, err := p.subscribeTransport.Subscribe(ctx, payload.PublisherIDs)
	if err != nil {
		return err
	}

	return p.send(TypeSubscribeOffer, SDPPayload{SDP: offer})
}

func (p *participant) handleDataSubscribe(env Envelope) error {
	if err := p.requireJoined(); err != nil {
		return err
	}

	var payload DataSubscribePayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.server.negotiateTimeout)
	defer cancel()

	_, offer, err := p.subscribeTransport.DataSubscribe(ctx, payload.DataPublisherID)
	if err != nil {
		return err
	}

	return p.send(TypeSubscribeOffer, SDPPayload{SDP: offer})
}

func (p *participant) handleSubscribeAnswer(env Envelope) error {
	if err := p.requireJoined(); err != nil {
		return err
	}

	var payload SDPPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return err
	}

	return p.subscribeTransport.SetAnswer(payload.SDP)
}

func (p *participant) handleICECandidate(env Envelope) error {
	if err := p.requireJoined(); err != nil {
		return err
	}

	var payload ICECandidatePayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return err
	}

	switch payload.Target {
	case TargetPublish:
		return p.publishTransport.AddICECandidate(payload.Candidate)
	case TargetSubscribe:
		return p.subscribeTransport.AddICECandidate(payload.Candidate)
	default:
		return errUnknownTarget(payload.Target)
	}
}

func (p *participant) requireJoined() error {
	if p.roomID == "" {
		return errNotJoined
	}
	return nil
}

func (p *participant) send(envType string, v any) error {
	env, err := marshalEnvelope(envType, v)
	if err != nil {
		return err
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	return p.conn.WriteJSON(env)
}

func (p *participant) sendCandidate(target Target, c *webrtc.ICECandidate) {
	if c == nil {
		return
	}
	if err := p.send(TypeICECandidate, ICECandidatePayload{Target: target, Candidate: c.ToJSON()}); err != nil {
		p.logger.WithError(err).Warn("failed to send ice candidate")
	}
}

func (p *participant) sendError(message string) {
	if err := p.send(TypeError, ErrorPayload{Message: message}); err != nil {
		p.logger.WithError(err).Warn("failed to send error message")
	}
}

func (p *participant) close() {
	if p.livenessPong != nil {
		close(p.livenessPong)
	}
	if p.publishTransport != nil {
		_ = p.publishTransport.Close()
	}
	if p.subscribeTransport != nil {
		_ = p.subscribeTransport.Close()
	}
	if p.roomID != "" {
		p.server.hub.leave(p.roomID)
	}
	_ = p.conn.Close()
}
