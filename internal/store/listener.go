package store

import (
	"context"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// PGListener forwards pg_notify change topics from every server process into
// the local hub.
type PGListener struct {
	listener *pq.Listener
	hub      *Hub
	logger   *zap.Logger
}

func NewPGListener(dsn string, hub *Hub, logger *zap.Logger) (*PGListener, error) {
	reportProblem := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("Listener connection problem", zap.Int("event", int(ev)), zap.Error(err))
		}
	}

	l := pq.NewListener(dsn, 10*time.Second, time.Minute, reportProblem)
	if err := l.Listen(NotifyChannel); err != nil {
		l.Close()
		return nil, err
	}

	return &PGListener{listener: l, hub: hub, logger: logger}, nil
}

// Run blocks until ctx is cancelled or the listener is closed.
func (p *PGListener) Run(ctx context.Context) {
	p.forward(ctx, p.listener.Notify, p.listener.Ping, 90*time.Second)
}

func (p *PGListener) forward(ctx context.Context, notify <-chan *pq.Notification, ping func() error, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-notify:
			if !ok {
				p.logger.Info("Listener closed")
				return
			}
			if n == nil {
				// reconnected; anything sent meanwhile is lost
				p.logger.Info("Listener reconnected, refreshing all subscribers")
				p.hub.Broadcast()
				continue
			}
			p.hub.Publish(n.Extra)
		case <-ticker.C:
			if err := ping(); err != nil {
				p.logger.Warn("Listener ping failed", zap.Error(err))
			}
		}
	}
}

func (p *PGListener) Close() error {
	return p.listener.Close()
}
