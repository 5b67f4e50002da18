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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	assertEventuallyTimeout = time.Second
	assertEventuallyTick    = 10 * time.Millisecond
)

func TestRouterTracksPublishersAndDataPublishers(t *testing.T) {
	r := NewRouter("room", MediaConfig{}, nil)
	defer r.Close()

	p := &Publisher{ID: "track-1", extmap: []ExtmapEntry{{URI: "urn:x", ID: 4}}}
	r.notifyTrackPublished(p)

	dp := &DataPublisher{ID: "data-1"}
	r.notifyDataPublished(dp)

	assert.Eventually(t, func() bool {
		return len(r.PublisherIDs()) == 1 && len(r.DataPublisherIDs()) == 1
	}, assertEventuallyTimeout, assertEventuallyTick)

	assert.Equal(t, []string{"track-1"}, r.PublisherIDs())
	assert.Equal(t, []string{"data-1"}, r.DataPublisherIDs())

	found, err := r.getPublisher("track-1")
	require.NoError(t, err)
	assert.Equal(t, p, found)

	extmaps, err := r.getPublishersExtmap()
	require.NoError(t, err)
	assert.Equal(t, []ExtmapEntry{{URI: "urn:x", ID: 4}}, extmaps["track-1"])

	r.notifyTrackRemoved("track-1")
	r.notifyDataRemoved("data-1")

	assert.Eventually(t, func() bool {
		return len(r.PublisherIDs()) == 0 && len(r.DataPublisherIDs()) == 0
	}, assertEventuallyTimeout, assertEventuallyTick)
}

func TestRouterGetPublisherNotFound(t *testing.T) {
	r := NewRouter("room", MediaConfig{}, nil)
	defer r.Close()

	_, err := r.getPublisher("missing")
	assert.ErrorIs(t, err, ErrTrackNotFound)

	_, err = r.getDataPublisher("missing")
	assert.ErrorIs(t, err, ErrDataChannelNotFound)
}

func TestRouterRejectsEventsAfterClose(t *testing.T) {
	r := NewRouter("room", MediaConfig{}, nil)
	r.Close()

	assert.Eventually(t, func() bool {
		_, err := r.getPublisher("anything")
		return err != nil
	}, assertEventuallyTimeout, assertEventuallyTick)

	assert.Nil(t, r.PublisherIDs())
}

func TestNewRouterGeneratesIDWhenEmpty(t *testing.T) {
	r := NewRouter("", MediaConfig{}, nil)
	defer r.Close()

	assert.NotEmpty(t, r.ID)
}
