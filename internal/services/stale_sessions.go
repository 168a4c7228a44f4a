package services

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/michaelayoade/dotmac-sub-sub006/internal/logging"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/models"
)

// StaleSessionService closes radacct rows that stopped receiving
// interim updates. Without it, a NAS that crashes mid-session leaves
// ghost sessions that the enforcement engine keeps trying to tear
// down.
type StaleSessionService struct {
	db             *gorm.DB
	staleThreshold time.Duration
	checkInterval  time.Duration

	stopChan  chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

func NewStaleSessionService(db *gorm.DB, staleMinutes int) *StaleSessionService {
	if staleMinutes <= 0 {
		staleMinutes = 30
	}
	return &StaleSessionService{
		db:             db,
		staleThreshold: time.Duration(staleMinutes) * time.Minute,
		checkInterval:  5 * time.Minute,
		stopChan:       make(chan struct{}),
	}
}

// Start begins the cleanup loop.
func (s *StaleSessionService) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run()

	logging.L().Info("stale session service started",
		zap.Duration("threshold", s.staleThreshold),
		zap.Duration("interval", s.checkInterval))
}

// Stop halts the loop.
func (s *StaleSessionService) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()
	logging.L().Info("stale session service stopped")
}

func (s *StaleSessionService) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.CloseStale()
		case <-s.stopChan:
			return
		}
	}
}

// CloseStale stops every open session whose last update is older than
// the threshold and returns the number closed.
func (s *StaleSessionService) CloseStale() int {
	cutoff := time.Now().Add(-s.staleThreshold)

	result := s.db.Model(&models.RadAcct{}).
		Where("acct_stop_time IS NULL AND acct_status_type <> ?", "Stop").
		Where("COALESCE(acct_update_time, acct_start_time) < ?", cutoff).
		Updates(map[string]interface{}{
			"acct_stop_time":       time.Now(),
			"acct_status_type":     "Stop",
			"acct_terminate_cause": "Stale-Session",
		})
	if result.Error != nil {
		logging.L().Error("stale session close failed", zap.Error(result.Error))
		return 0
	}
	if result.RowsAffected > 0 {
		logging.L().Info("closed stale sessions", zap.Int64("count", result.RowsAffected))
	}
	return int(result.RowsAffected)
}
