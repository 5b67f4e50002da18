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
	"fmt"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
)

// peerConnectionFactory constructs pre-configured peer connections: the codec
// table and header extensions from MediaConfig are registered on the
// factory's API. Each PublishTransport/SubscribeTransport builds its own
// factory, so the registration runs once per transport.
type peerConnectionFactory struct {
	api *webrtc.API
}

func newPeerConnectionFactory(media MediaConfig, transport WebRTCTransportConfig) (*peerConnectionFactory, error) {
	api, err := createWebRTCAPI(media, transport)
	if err != nil {
		return nil, fmt.Errorf("failed to create WebRTC API: %w", err)
	}

	return &peerConnectionFactory{api: api}, nil
}

func (f *peerConnectionFactory) createPeerConnection(transport WebRTCTransportConfig) (*webrtc.PeerConnection, error) {
	cfg := transport.Configuration
	cfg.ICETransportPolicy = transport.ICETransportPolicy
	return f.api.NewPeerConnection(cfg)
}

// createWebRTCAPI builds pion's WebRTC API with the codec table and header
// extensions from MediaConfig registered, plus the default interceptor chain
// (NACK generation/responding, receiver reports, TWCC) enabled.
func createWebRTCAPI(media MediaConfig, transport WebRTCTransportConfig) (*webrtc.API, error) {
	mediaEngine := &webrtc.MediaEngine{}

	for _, codec := range media.AudioCodecs {
		if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:     codec.MimeType,
				ClockRate:    codec.ClockRate,
				Channels:     codec.Channels,
				SDPFmtpLine:  codec.SDPFmtpLine,
				RTCPFeedback: codec.RTCPFeedback,
			},
			PayloadType: codec.PayloadType,
		}, webrtc.RTPCodecTypeAudio); err != nil {
			return nil, fmt.Errorf("failed to register audio codec %s: %w", codec.MimeType, err)
		}
	}

	for _, codec := range media.VideoCodecs {
		if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:     codec.MimeType,
				ClockRate:    codec.ClockRate,
				Channels:     codec.Channels,
				SDPFmtpLine:  codec.SDPFmtpLine,
				RTCPFeedback: codec.RTCPFeedback,
			},
			PayloadType: codec.PayloadType,
		}, webrtc.RTPCodecTypeVideo); err != nil {
			return nil, fmt.Errorf("failed to register video codec %s: %w", codec.MimeType, err)
		}
	}

	for _, uri := range media.AudioExtensions {
		if err := mediaEngine.RegisterHeaderExtension(webrtc.RTPHeaderExtensionCapability{URI: uri}, webrtc.RTPCodecTypeAudio); err != nil {
			return nil, fmt.Errorf("failed to register audio extension %s: %w", uri, err)
		}
	}

	for _, uri := range media.VideoExtensions {
		if err := mediaEngine.RegisterHeaderExtension(webrtc.RTPHeaderExtensionCapability{URI: uri}, webrtc.RTPCodecTypeVideo); err != nil {
			return nil, fmt.Errorf("failed to register video extension %s: %w", uri, err)
		}
	}

	settingEngine := webrtc.SettingEngine{}
	if len(transport.AnnouncedIPs) > 0 {
		settingEngine.SetNAT1To1IPs(transport.AnnouncedIPs, webrtc.ICECandidateTypeHost)
	}
	if transport.ICEUsernameFragment != "" || transport.ICEPassword != "" {
		if err := settingEngine.SetICECredentials(transport.ICEUsernameFragment, transport.ICEPassword); err != nil {
			return nil, fmt.Errorf("failed to set ICE credentials: %w", err)
		}
	}
	if transport.ICEDisconnectedTimeout > 0 || transport.ICEFailedTimeout > 0 || transport.ICEKeepAliveInterval > 0 {
		settingEngine.SetICETimeouts(transport.ICEDisconnectedTimeout, transport.ICEFailedTimeout, transport.ICEKeepAliveInterval)
	}
	if len(transport.PermittedNetworkTypes) > 0 {
		settingEngine.SetNetworkTypes(transport.PermittedNetworkTypes)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("failed to set default interceptors: %w", err)
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithSettingEngine(settingEngine),
		webrtc.WithInterceptorRegistry(registry),
	), nil
}
