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
	"strings"
	"testing"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRewriteExtmapValuePreservesDirectionSuffix(t *testing.T) {
	rewritten, ok := rewriteExtmapValue("3/recvonly urn:ietf:params:rtp-hdrext:sdes:mid", map[string]int{
		"urn:ietf:params:rtp-hdrext:sdes:mid": 4,
	})
	require.True(t, ok)
	assert.Equal(t, "4/recvonly urn:ietf:params:rtp-hdrext:sdes:mid", rewritten)
}

func TestRewriteExtmapValueLeavesUnknownURIUntouched(t *testing.T) {
	const value = "7 urn:ietf:params:rtp-hdrext:unknown"
	rewritten, ok := rewriteExtmapValue(value, map[string]int{
		"urn:ietf:params:rtp-hdrext:sdes:mid": 4,
	})
	assert.False(t, ok)
	assert.Equal(t, value, rewritten)
}

func TestRewriteExtmapIDsRewritesEveryMediaSection(t *testing.T) {
	const sdpStr = "v=0\r\n" +
		"o=- 0 0 IN IP4 127.0.0.1\r\n" +
		"s=-\r\n" +
		"t=0 0\r\n" +
		"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
		"c=IN IP4 0.0.0.0\r\n" +
		"a=extmap:1 urn:ietf:params:rtp-hdrext:ssrc-audio-level\r\n" +
		"m=video 9 UDP/TLS/RTP/SAVPF 96\r\n" +
		"c=IN IP4 0.0.0.0\r\n" +
		"a=extmap:9/sendonly urn:ietf:params:rtp-hdrext:sdes:mid\r\n"

	rewritten, err := rewriteExtmapIDs(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdpStr}, map[string]int{
		"urn:ietf:params:rtp-hdrext:ssrc-audio-level": 1,
		"urn:ietf:params:rtp-hdrext:sdes:mid":         4,
	})
	require.NoError(t, err)
	assert.True(t, strings.Contains(rewritten.SDP, "a=extmap:1 urn:ietf:params:rtp-hdrext:ssrc-audio-level"))
	assert.True(t, strings.Contains(rewritten.SDP, "a=extmap:4/sendonly urn:ietf:params:rtp-hdrext:sdes:mid"))
}

func TestRewriteExtmapIDsDropsUnmatchedExtensions(t *testing.T) {
	const sdpStr = "v=0\r\n" +
		"o=- 0 0 IN IP4 127.0.0.1\r\n" +
		"s=-\r\n" +
		"t=0 0\r\n" +
		"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
		"c=IN IP4 0.0.0.0\r\n" +
		"a=extmap:1 urn:ietf:params:rtp-hdrext:ssrc-audio-level\r\n" +
		"a=extmap:7 urn:ietf:params:rtp-hdrext:unknown\r\n" +
		"a=sendrecv\r\n"

	rewritten, err := rewriteExtmapIDs(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdpStr}, map[string]int{
		"urn:ietf:params:rtp-hdrext:ssrc-audio-level": 1,
	})
	require.NoError(t, err)
	assert.True(t, strings.Contains(rewritten.SDP, "a=extmap:1 urn:ietf:params:rtp-hdrext:ssrc-audio-level"))
	assert.False(t, strings.Contains(rewritten.SDP, "urn:ietf:params:rtp-hdrext:unknown"))
	assert.True(t, strings.Contains(rewritten.SDP, "a=sendrecv"))
}

func TestRewriteExtmapIDsRejectsInvalidSDP(t *testing.T) {
	_, err := rewriteExtmapIDs(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "not an sdp"}, nil)
	assert.Error(t, err)
}
