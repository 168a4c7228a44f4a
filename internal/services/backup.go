package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/michaelayoade/dotmac-sub-sub006/internal/config"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/logging"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/mikrotik"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/models"
	"github.com/michaelayoade/dotmac-sub-sub006/internal/security"
)

// BackupService periodically exports the configuration of every
// active MikroTik NAS over SSH and uploads the exports to an FTP
// server.
type BackupService struct {
	db       *gorm.DB
	cfg      *config.Config
	shell    *mikrotik.SSHRunner
	interval time.Duration

	stopChan  chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

func NewBackupService(db *gorm.DB, cfg *config.Config) *BackupService {
	interval := time.Duration(cfg.BackupInterval) * time.Hour
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &BackupService{
		db:       db,
		cfg:      cfg,
		shell:    mikrotik.NewSSHRunner(),
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the backup loop.
func (s *BackupService) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run()

	logging.L().Info("backup service started", zap.Duration("interval", s.interval))
}

// Stop stops the backup loop and waits for a running pass to finish.
func (s *BackupService) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()
	logging.L().Info("backup service stopped")
}

func (s *BackupService) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.BackupAll(context.Background())
		case <-s.stopChan:
			return
		}
	}
}

// BackupAll exports every active MikroTik device once. Per-device
// failures are logged and do not stop the pass.
func (s *BackupService) BackupAll(ctx context.Context) {
	var devices []models.NasDevice
	if err := s.db.Where("is_active = ? AND vendor = ?", true, models.VendorMikrotik).
		Find(&devices).Error; err != nil {
		logging.L().Error("backup: device list failed", zap.Error(err))
		return
	}

	for _, nas := range devices {
		if err := s.backupDevice(ctx, &nas); err != nil {
			logging.L().Warn("backup failed",
				zap.String("nas", nas.IPAddress), zap.Error(err))
		} else {
			logging.L().Info("backup uploaded", zap.String("nas", nas.IPAddress))
		}
	}
}

func (s *BackupService) backupDevice(ctx context.Context, nas *models.NasDevice) error {
	password, err := security.DecryptSecret(nas.SSHPassword)
	if err != nil {
		return fmt.Errorf("ssh password: %w", err)
	}

	outputs, err := s.shell.Run(ctx, nas.IPAddress, nas.SSHPort, nas.SSHUsername, password,
		[]string{"/export"})
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if len(outputs) == 0 || strings.TrimSpace(outputs[0]) == "" {
		return fmt.Errorf("export returned no output")
	}

	filename := fmt.Sprintf("%s-%s.rsc", nas.Name, time.Now().UTC().Format("20060102-150405"))
	return s.upload(filename, outputs[0])
}

func (s *BackupService) upload(filename, content string) error {
	conn, err := ftp.Dial(s.cfg.BackupFTPHost, ftp.DialWithTimeout(15*time.Second))
	if err != nil {
		return fmt.Errorf("ftp dial: %w", err)
	}
	defer conn.Quit()

	if err := conn.Login(s.cfg.BackupFTPUser, s.cfg.BackupFTPPass); err != nil {
		return fmt.Errorf("ftp login: %w", err)
	}
	if dir := s.cfg.BackupFTPDir; dir != "" {
		// The directory may already exist; only the cwd result matters.
		conn.MakeDir(dir)
		if err := conn.ChangeDir(dir); err != nil {
			return fmt.Errorf("ftp chdir %s: %w", dir, err)
		}
	}
	if err := conn.Stor(filename, strings.NewReader(content)); err != nil {
		return fmt.Errorf("ftp store %s: %w", filename, err)
	}
	return nil
}
