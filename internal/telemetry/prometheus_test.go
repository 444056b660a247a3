package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/common/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T) *PromClient {
	t.Helper()
	c, err := NewPromClient(ClientConfig{
		Address:      "http://localhost:9090",
		Timeout:      5 * time.Second,
		PodPattern:   "^(s[0-9]+)",
		ServiceLabel: "kubernetes_service",
		PowerMode:    "dynamic",
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return c
}

func TestPromClient_ServiceLabelResolution(t *testing.T) {
	c := newTestClient(t)

	tests := []struct {
		name   string
		metric model.Metric
		want   string
	}{
		{
			name:   "service label wins",
			metric: model.Metric{"kubernetes_service": "s3"},
			want:   "s3",
		},
		{
			name:   "deployment label",
			metric: model.Metric{"deployment": "s1"},
			want:   "s1",
		},
		{
			name:   "pod name parsed through the pattern",
			metric: model.Metric{"pod_name": "s2-7f9d8c-xk2lp", "mode": "dynamic"},
			want:   "s2",
		},
		{
			name:   "pod label variant",
			metric: model.Metric{"pod": "s4-0", "mode": "dynamic"},
			want:   "s4",
		},
		{
			name:   "wrong power mode dropped",
			metric: model.Metric{"pod_name": "s2-7f9d8c-xk2lp", "mode": "idle"},
			want:   "",
		},
		{
			name:   "unmatched pod dropped",
			metric: model.Metric{"pod_name": "prometheus-0", "mode": "dynamic"},
			want:   "",
		},
		{
			name:   "no usable label",
			metric: model.Metric{"instance": "10.0.0.1:8080"},
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.serviceFor(tt.metric))
		})
	}
}

func TestNewPromClient_RejectsBadPodPattern(t *testing.T) {
	_, err := NewPromClient(ClientConfig{
		Address:    "http://localhost:9090",
		PodPattern: "^(s[0-9]+", // unbalanced group
	}, zaptest.NewLogger(t))
	assert.Error(t, err)
}
