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
	"time"

	"github.com/pion/webrtc/v3"
)

// CodecInfo describes one entry of the codec table (spec §6 MediaConfig).
type CodecInfo struct {
	MimeType     string
	ClockRate    uint32
	Channels     uint16
	SDPFmtpLine  string
	RTCPFeedback []webrtc.RTCPFeedback
	PayloadType  webrtc.PayloadType
}

// RembClampConfig holds the heuristic thresholds called out as an Open Question
// in the design notes: they are deliberately not hard-coded so an operator can retune them.
type RembClampConfig struct {
	// VideoFloor is the minimum bitrate (bps) enforced on a REMB for a video track.
	VideoFloor float32
	// AudioFloor is the minimum bitrate (bps) enforced on a REMB for an audio track.
	AudioFloor float32
	// Window is how long after a Subscriber is created the floor is enforced.
	Window time.Duration
}

// DefaultRembClamp matches spec.md §4.3/§9: 128kbps video, 64kbps audio, 30s window.
// Note the audio floor is 64000, not the 640000 that a stray revision of the
// upstream implementation produced - the spec calls that out as a typo.
func DefaultRembClamp() RembClampConfig {
	return RembClampConfig{
		VideoFloor: 128000,
		AudioFloor: 64000,
		Window:     30 * time.Second,
	}
}

// MediaConfig bundles the codec table, header-extension lists, and the fixed
// extmap ID mapping used to rewrite subscriber-side offers (spec §6).
type MediaConfig struct {
	AudioCodecs      []CodecInfo
	VideoCodecs      []CodecInfo
	AudioExtensions  []string
	VideoExtensions  []string
	ExtensionIDs     map[string]int
	RembClamp        RembClampConfig
	// PublisherStaleTimeout is how long a Publisher's ingress loop tolerates
	// silence from its remote track before giving up on it (spec §4.2).
	PublisherStaleTimeout time.Duration
}

// NewMediaConfig fills in any empty field with the spec's default tables. Each
// of the four independent fields (audio codecs, video codecs, audio
// extensions, video extensions) is defaulted on its own - supplying video
// codecs does not clobber the audio defaults, following the original
// implementation's per-kind merge (see SPEC_FULL.md §D.5).
func NewMediaConfig(cfg MediaConfig) MediaConfig {
	if len(cfg.AudioCodecs) == 0 {
		cfg.AudioCodecs = defaultAudioCodecs()
	}
	if len(cfg.VideoCodecs) == 0 {
		cfg.VideoCodecs = defaultVideoCodecs()
	}
	if len(cfg.AudioExtensions) == 0 {
		cfg.AudioExtensions = defaultAudioExtensions()
	}
	if len(cfg.VideoExtensions) == 0 {
		cfg.VideoExtensions = defaultVideoExtensions()
	}
	if cfg.ExtensionIDs == nil {
		cfg.ExtensionIDs = defaultExtensionIDs()
	}
	if cfg.RembClamp == (RembClampConfig{}) {
		cfg.RembClamp = DefaultRembClamp()
	}
	if cfg.PublisherStaleTimeout == 0 {
		cfg.PublisherStaleTimeout = 10 * time.Second
	}
	return cfg
}

func defaultAudioCodecs() []CodecInfo {
	return []CodecInfo{
		{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2, SDPFmtpLine: "minptime=10;useinbandfec=1", PayloadType: 111},
		{MimeType: webrtc.MimeTypeG722, ClockRate: 8000, PayloadType: 9},
		{MimeType: webrtc.MimeTypePCMU, ClockRate: 8000, PayloadType: 0},
		{MimeType: webrtc.MimeTypePCMA, ClockRate: 8000, PayloadType: 8},
	}
}

func defaultVideoCodecs() []CodecInfo {
	fb := []webrtc.RTCPFeedback{
		{Type: "goog-remb"},
		{Type: "ccm", Parameter: "fir"},
		{Type: "nack"},
		{Type: "nack", Parameter: "pli"},
	}

	return []CodecInfo{
		{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000, RTCPFeedback: fb, PayloadType: 96},
		{MimeType: webrtc.MimeTypeVP9, ClockRate: 90000, SDPFmtpLine: "profile-id=0", RTCPFeedback: fb, PayloadType: 98},
		{MimeType: webrtc.MimeTypeH264, ClockRate: 90000, SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42001f", RTCPFeedback: fb, PayloadType: 102},
	}
}

func defaultAudioExtensions() []string {
	return []string{
		"urn:ietf:params:rtp-hdrext:ssrc-audio-level",
		"http://www.webrtc.org/experiments/rtp-hdrext/abs-send-time",
		"http://www.ietf.org/id/draft-holmer-rmcat-transport-wide-cc-extensions-01",
		"urn:ietf:params:rtp-hdrext:sdes:mid",
	}
}

func defaultVideoExtensions() []string {
	return []string{
		"urn:ietf:params:rtp-hdrext:toffset",
		"urn:ietf:params:rtp-hdrext:sdes:mid",
		"urn:ietf:params:rtp-hdrext:sdes:rtp-stream-id",
		"urn:ietf:params:rtp-hdrext:sdes:repaired-rtp-stream-id",
		"http://www.webrtc.org/experiments/rtp-hdrext/abs-send-time",
	}
}

// defaultExtensionIDs is the fixed ID mapping consumed by the extmap
// reconciliation algorithm (spec §4.6, §6) to rewrite subscriber-side offers.
func defaultExtensionIDs() map[string]int {
	return map[string]int{
		"urn:ietf:params:rtp-hdrext:ssrc-audio-level":                                1,
		"http://www.webrtc.org/experiments/rtp-hdrext/abs-send-time":                2,
		"http://www.ietf.org/id/draft-holmer-rmcat-transport-wide-cc-extensions-01": 3,
		"urn:ietf:params:rtp-hdrext:sdes:mid":                                       4,
		"urn:ietf:params:rtp-hdrext:sdes:rtp-stream-id":                             10,
		"urn:ietf:params:rtp-hdrext:sdes:repaired-rtp-stream-id":                    11,
		"urn:ietf:params:rtp-hdrext:video-orientation":                              13,
		"urn:ietf:params:rtp-hdrext:toffset":                                        14,
	}
}

// WebRTCTransportConfig configures the underlying peer connection (spec §6).
type WebRTCTransportConfig struct {
	Configuration webrtc.Configuration
	// AnnouncedIPs are used for SDP candidate filtering (NAT1To1IPs).
	AnnouncedIPs []string
	// ICETransportPolicy passed straight through to the peer connection, mirroring the
	// original Rust implementation's WebRTCTransportConfig (see SPEC_FULL.md §D.1).
	ICETransportPolicy     webrtc.ICETransportPolicy
	ICEDisconnectedTimeout time.Duration
	ICEFailedTimeout       time.Duration
	ICEKeepAliveInterval   time.Duration
	PermittedNetworkTypes  []webrtc.NetworkType
	ICEUsernameFragment    string
	ICEPassword            string
}

// DefaultWebRTCTransportConfig returns a single public STUN server and ICE
// timeouts of 5s (disconnected), 25s (failed) and 2s (keep-alive); every
// other setting is left at its zero value.
func DefaultWebRTCTransportConfig() WebRTCTransportConfig {
	return WebRTCTransportConfig{
		Configuration: webrtc.Configuration{
			ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
		},
		ICEDisconnectedTimeout: 5 * time.Second,
		ICEFailedTimeout:       25 * time.Second,
		ICEKeepAliveInterval:   2 * time.Second,
	}
}

const rtpReadBufferSize = 1500
