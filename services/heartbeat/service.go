// services/heartbeat/service.go

// Package heartbeat publishes a periodic controller liveness beacon on the
// status bus so observers can tell a silent controller from a dead one.
package heartbeat

import (
	"context"
	"time"

	"homectl-go/statusbus"
)

var topicHeartbeat = statusbus.Topic{"controller", "heartbeat"}

type Service struct {
	status   *statusbus.Bus
	interval time.Duration
}

func New(status *statusbus.Bus, interval time.Duration) *Service {
	if interval <= 0 {
		interval = time.Second
	}
	return &Service{status: status, interval: interval}
}

// Beat is one heartbeat payload.
type Beat struct {
	UptimeSeconds int64 `json:"uptime_seconds"`
}

func (s *Service) serviceLoop(ctx context.Context) {
	started := time.Now()

	tick := time.NewTicker(s.interval)
	defer tick.Stop()

	s.status.Publish(topicHeartbeat, Beat{}, true)
	for {
		select {
		case <-ctx.Done():
			s.status.Publish(topicHeartbeat, nil, true)
			return
		case <-tick.C:
			s.status.Publish(topicHeartbeat, Beat{
				UptimeSeconds: int64(time.Since(started).Seconds()),
			}, true)
		}
	}
}

// Start launches the heartbeat loop.
func (s *Service) Start(ctx context.Context) {
	go s.serviceLoop(ctx)
}
