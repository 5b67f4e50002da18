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

import "errors"

// Transport errors: everything that can go wrong while wrapping a peer connection.
var (
	ErrCantCreatePeerConnection   = errors.New("can't create peer connection")
	ErrCantSetRemoteDescription   = errors.New("can't set remote description")
	ErrCantCreateAnswer           = errors.New("can't create answer")
	ErrCantCreateOffer            = errors.New("can't create offer")
	ErrCantSetLocalDescription    = errors.New("can't set local description")
	ErrCantCreateLocalDescription = errors.New("can't create local description")
	ErrCantAddICECandidate        = errors.New("can't add ice candidate")
)

// Subscriber-side errors: the caller asked to subscribe to something that does not exist.
var (
	ErrTrackNotFound       = errors.New("track not found")
	ErrDataChannelNotFound = errors.New("data channel not found")
)

// Publisher-side errors: a publish/data_publish call that never got its matching on_track/on_data_channel.
var (
	ErrTrackNotPublished       = errors.New("track not published")
	ErrDataChannelNotPublished = errors.New("data channel not published")
)

// ErrRouterClosed is returned to any caller still waiting on a reply channel when the
// Router's event loop is torn down, so that close() never leaves a goroutine blocked forever.
var ErrRouterClosed = errors.New("router is closed")
