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
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v3"
)

// rewriteExtmapIDs parses an SDP and replaces every extmap attribute's
// negotiated ID with the ID that ids holds for that extension URI, so that a
// header extension carries the same numeric ID on every SubscribeTransport
// regardless of the order pion happened to negotiate it in on each peer
// connection. An extmap attribute whose URI has no entry in ids is dropped
// rather than left with pion's own negotiated ID. The same ids map is applied
// to every media section: a section's msid is not consulted, so the rewrite
// does not distinguish which publisher a section carries, and the IDs come
// from the configured table rather than from the publisher's own SDP.
func rewriteExtmapIDs(desc webrtc.SessionDescription, ids map[string]int) (webrtc.SessionDescription, error) {
	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal([]byte(desc.SDP)); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("failed to parse sdp: %w", err)
	}

	for _, media := range parsed.MediaDescriptions {
		kept := media.Attributes[:0]
		for _, attr := range media.Attributes {
			if attr.Key != "extmap" {
				kept = append(kept, attr)
				continue
			}
			if rewritten, ok := rewriteExtmapValue(attr.Value, ids); ok {
				attr.Value = rewritten
				kept = append(kept, attr)
			}
		}
		media.Attributes = kept
	}

	raw, err := parsed.Marshal()
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("failed to marshal sdp: %w", err)
	}

	return webrtc.SessionDescription{Type: desc.Type, SDP: string(raw)}, nil
}

// rewriteExtmapValue rewrites a single "<id>[/direction] <uri> [...]" extmap
// attribute value, preserving the direction suffix and any trailing
// extension attributes.
func rewriteExtmapValue(value string, ids map[string]int) (string, bool) {
	fields := strings.Fields(value)
	if len(fields) < 2 {
		return value, false
	}

	uri := fields[1]
	fixedID, ok := ids[uri]
	if !ok {
		return value, false
	}

	idField := fields[0]
	direction := ""
	if slash := strings.Index(idField, "/"); slash != -1 {
		direction = idField[slash:]
	}
	fields[0] = strconv.Itoa(fixedID) + direction

	return strings.Join(fields, " "), true
}
