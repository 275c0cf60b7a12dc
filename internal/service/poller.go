package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"marketdata/internal/provider"
)

// Poller refreshes the tracked instruments every poll interval, skipping
// those whose exchange is closed.
type Poller struct {
	svc *Service

	mu    sync.Mutex
	sched *gocron.Scheduler
}

// NewPoller returns a stopped poller for svc.
func NewPoller(svc *Service) *Poller {
	return &Poller{svc: svc}
}

// Start schedules the refresh job. It is a no-op when already running.
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sched != nil {
		return nil
	}

	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	if _, err := s.Every(p.svc.cfg.PollInterval).Do(p.run); err != nil {
		return fmt.Errorf("scheduling refresh: %w", err)
	}
	s.StartAsync()
	p.sched = s
	p.svc.polling.Store(true)
	p.svc.log.WithField("interval", p.svc.cfg.PollInterval).Info("poller started")
	return nil
}

// Stop cancels the schedule. A cycle in flight runs to completion.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sched == nil {
		return
	}
	p.sched.Stop()
	p.sched = nil
	p.svc.polling.Store(false)
	p.svc.log.Info("poller stopped")
}

func (p *Poller) run() {
	ctx, cancel := context.WithTimeout(context.Background(), p.svc.cfg.PollInterval)
	defer cancel()
	p.Tick(ctx)
}

// Tick runs one cycle over the tracked instruments whose exchange is open
// now. It returns false without calling any provider when none is.
func (p *Poller) Tick(ctx context.Context) (RefreshSummary, bool) {
	now := p.svc.now()
	instruments := p.svc.Instruments()
	open := make([]provider.Instrument, 0, len(instruments))
	for _, inst := range instruments {
		if p.svc.cal.IsMarketOpen(now, inst.Exchange) {
			open = append(open, inst)
		}
	}
	if len(open) == 0 {
		p.svc.recordTick(now, false)
		p.svc.log.Debug("no watched market is open; skipping refresh")
		return RefreshSummary{}, false
	}
	sum := p.svc.refresh(ctx, open)
	p.svc.recordTick(now, true)
	return sum, true
}
