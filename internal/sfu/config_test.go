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

	"github.com/stretchr/testify/assert"
)

func TestDefaultRembClampUsesCorrectedAudioFloor(t *testing.T) {
	clamp := DefaultRembClamp()
	assert.EqualValues(t, 64000, clamp.AudioFloor)
	assert.EqualValues(t, 128000, clamp.VideoFloor)
}

func TestNewMediaConfigDefaultsEachFieldIndependently(t *testing.T) {
	cfg := NewMediaConfig(MediaConfig{
		VideoCodecs: []CodecInfo{{MimeType: "video/custom"}},
	})

	assert.Equal(t, []CodecInfo{{MimeType: "video/custom"}}, cfg.VideoCodecs)
	assert.Equal(t, defaultAudioCodecs(), cfg.AudioCodecs)
	assert.Equal(t, defaultAudioExtensions(), cfg.AudioExtensions)
	assert.Equal(t, defaultVideoExtensions(), cfg.VideoExtensions)
	assert.Equal(t, defaultExtensionIDs(), cfg.ExtensionIDs)
	assert.Equal(t, DefaultRembClamp(), cfg.RembClamp)
	assert.NotZero(t, cfg.PublisherStaleTimeout)
}

func TestNewMediaConfigIsIdempotent(t *testing.T) {
	first := NewMediaConfig(MediaConfig{})
	second := NewMediaConfig(first)
	assert.Equal(t, first, second)
}
