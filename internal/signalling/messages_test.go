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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalEnvelopeRoundTrips(t *testing.T) {
	env, err := marshalEnvelope(TypePublish, PublishPayload{TrackID: "track-1"})
	require.NoError(t, err)
	assert.Equal(t, TypePublish, env.Type)

	var payload PublishPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "track-1", payload.TrackID)
}

func TestEnvelopeOmitsEmptyIDAndPayload(t *testing.T) {
	raw, err := json.Marshal(Envelope{Type: TypeJoin})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"join"}`, string(raw))
}

func TestMarshalEnvelopePong(t *testing.T) {
	env, err := marshalEnvelope(TypePong, struct{}{})
	require.NoError(t, err)
	assert.Equal(t, TypePong, env.Type)
	assert.JSONEq(t, `{}`, string(env.Payload))
}
