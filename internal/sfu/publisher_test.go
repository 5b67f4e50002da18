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

	"github.com/pionsfu/forwarder/pkg/common"
	"github.com/stretchr/testify/assert"
)

func TestDetectMediaType(t *testing.T) {
	assert.Equal(t, mediaTypeVideo, detectMediaType("video/VP8"))
	assert.Equal(t, mediaTypeAudio, detectMediaType("audio/opus"))
	assert.Equal(t, mediaTypeAudio, detectMediaType("application/unknown"))
}

func TestPublisherCloseIsIdempotentAndStopsWatchdog(t *testing.T) {
	watchdogCfg := common.WatchdogConfig{Timeout: time.Second, OnTimeout: func() {}}

	p := &Publisher{
		ID:       "track-1",
		closed:   make(chan struct{}),
		watchdog: watchdogCfg.Start(),
	}

	p.Close()
	p.Close()

	select {
	case <-p.closed:
	default:
		t.Fatal("closed channel was not closed")
	}
	assert.False(t, p.watchdog.Notify(), "watchdog should have been closed alongside the publisher")
}
