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

	"github.com/pion/rtcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSubscriber(sink chan rtcp.Packet, metrics *Metrics) *Subscriber {
	return &Subscriber{
		publisherRTCPSink: sink,
		metrics:           metrics,
		logger:            logrus.WithField("test", true),
		closed:            make(chan struct{}),
	}
}

func TestSubscriberForwardDeliversToSink(t *testing.T) {
	sink := make(chan rtcp.Packet, 1)
	s := newTestSubscriber(sink, nil)

	s.forward(&rtcp.PictureLossIndication{MediaSSRC: 42})

	select {
	case p := <-sink:
		assert.Equal(t, uint32(42), p.(*rtcp.PictureLossIndication).MediaSSRC)
	default:
		t.Fatal("packet was not forwarded")
	}
}

func TestSubscriberForwardDropsAndCountsWhenSinkFull(t *testing.T) {
	sink := make(chan rtcp.Packet) // unbuffered, nobody reading
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)

	s := newTestSubscriber(sink, metrics)
	s.forward(&rtcp.PictureLossIndication{MediaSSRC: 1})

	assert.Equal(t, float64(1), counterValue(t, metrics.droppedRTCP))
}

func TestSubscriberForwardNoopAfterClose(t *testing.T) {
	sink := make(chan rtcp.Packet)
	s := newTestSubscriber(sink, nil)
	s.Close()
	s.Close() // idempotent

	s.forward(&rtcp.PictureLossIndication{MediaSSRC: 1})
}

func TestClampREMB(t *testing.T) {
	clamp := RembClampConfig{VideoFloor: 128000, AudioFloor: 64000, Window: 30 * time.Second}

	cases := []struct {
		name string
		mt   mediaType
		in   uint64
		age  time.Duration
		want uint64
	}{
		{"video below floor within window is raised", mediaTypeVideo, 50000, time.Second, 128000},
		{"audio below floor within window is raised", mediaTypeAudio, 20000, time.Second, 64000},
		{"video above floor within window is untouched", mediaTypeVideo, 500000, time.Second, 500000},
		{"audio at floor within window is untouched", mediaTypeAudio, 64000, time.Second, 64000},
		{"video below floor after window is untouched", mediaTypeVideo, 50000, 31 * time.Second, 50000},
		{"audio below floor exactly at window boundary is untouched", mediaTypeAudio, 20000, 30 * time.Second, 20000},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			remb := rtcp.ReceiverEstimatedMaximumBitrate{Bitrate: float32(c.in)}
			got := clampREMB(remb, c.mt, clamp, c.age)
			assert.Equal(t, float32(c.want), got.Bitrate)
		})
	}
}
