package retention

import (
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/manpreetbhatti/inkwell/internal/db"
)

type Config struct {
	Interval time.Duration

	// How long closed sessions and idle rooms stay in the registry
	KeepClosed time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:   5 * time.Minute,
		KeepClosed: 24 * time.Hour,
	}
}

// Result of one sweep
type Sweep struct {
	Sessions int64
	Rooms    int64
}

type Service struct {
	database *db.Database
	config   Config
	now      func() time.Time
	stop     chan struct{}
	wg       sync.WaitGroup
}

func New(database *db.Database, config Config) *Service {
	return &Service{
		database: database,
		config:   config,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
}

func (s *Service) Start() {
	s.wg.Add(1)
	go s.run()
	glog.Infof("Retention service started (interval: %v, keep: %v)",
		s.config.Interval, s.config.KeepClosed)
}

func (s *Service) Stop() {
	close(s.stop)
	s.wg.Wait()
	glog.Info("Retention service stopped")
}

func (s *Service) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.sweep()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Service) sweep() {
	result, err := s.SweepNow()
	if err != nil {
		glog.Errorf("Retention: sweep failed: %v", err)
		return
	}
	if result.Sessions > 0 || result.Rooms > 0 {
		glog.Infof("Retention: pruned %d sessions and %d idle rooms", result.Sessions, result.Rooms)
	}
}

// SweepNow prunes everything older than KeepClosed
func (s *Service) SweepNow() (Sweep, error) {
	cutoff := s.now().Add(-s.config.KeepClosed)

	var result Sweep
	var err error
	result.Sessions, err = s.database.PruneSessions(cutoff)
	if err != nil {
		return result, err
	}
	result.Rooms, err = s.database.DeleteIdleRooms(cutoff)
	return result, err
}
