package storage

import (
	"testing"

	"ats-scanner/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestScanTopology(t *testing.T) {
	r := &RabbitMQ{cfg: &config.RabbitMQConfig{
		ScanExchange:   "ats.scan.exchange",
		ScanQueue:      "q.scan_requests",
		ScanRequestKey: "scan.request",
	}}

	var keys []string
	for _, step := range r.scanTopology() {
		keys = append(keys, step.key)
	}
	assert.Equal(t, []string{
		"exchange:ats.scan.exchange",
		"exchange:ats.scan.exchange.dlq",
		"queue:q.scan_requests.dlq",
		"binding:ats.scan.exchange.dlq>q.scan_requests.dlq",
		"queue:q.scan_requests",
		"binding:ats.scan.exchange>q.scan_requests:scan.request",
	}, keys, "死信队列先于主队列声明")
}

func TestValidateTopologyNames(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.RabbitMQConfig
		wantErr bool
	}{
		{"ok", config.RabbitMQConfig{ScanExchange: "x", ScanQueue: "q", ScanRequestKey: "k"}, false},
		{"missing queue", config.RabbitMQConfig{ScanExchange: "x", ScanRequestKey: "k"}, true},
		{"default exchange", config.RabbitMQConfig{ScanExchange: "amq.default", ScanQueue: "q", ScanRequestKey: "k"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateTopologyNames(&tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
