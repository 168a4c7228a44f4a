package radiusdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sync"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/michaelayoade/dotmac-sub-sub006/internal/settings"
)

// ExternalDatabase describes one downstream FreeRADIUS database that
// mirrors our credentials. Table names default to the FreeRADIUS
// schema and may be overridden per deployment.
type ExternalDatabase struct {
	Name              string `json:"name"`
	DSN               string `json:"dsn"`
	RadCheckTable     string `json:"radcheck_table,omitempty"`
	RadReplyTable     string `json:"radreply_table,omitempty"`
	RadUserGroupTable string `json:"radusergroup_table,omitempty"`
}

// identifierPattern rejects anything that could smuggle SQL through a
// configured table name.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Syncer propagates credential deletions to the external RADIUS
// databases listed in the radius/external_databases setting.
type Syncer struct {
	settings settings.Resolver
	log      *zap.Logger

	mu    sync.Mutex
	conns map[string]*gorm.DB

	// open is swappable in tests.
	open func(dsn string) (*gorm.DB, error)
}

func NewSyncer(resolver settings.Resolver, log *zap.Logger) *Syncer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Syncer{
		settings: resolver,
		log:      log,
		conns:    make(map[string]*gorm.DB),
		open: func(dsn string) (*gorm.DB, error) {
			return gorm.Open(postgres.Open(dsn), &gorm.Config{
				Logger: gormlogger.Default.LogMode(gormlogger.Silent),
			})
		},
	}
}

// Databases parses the configured external database list. An unset
// setting means no external sync is wanted.
func (s *Syncer) Databases() ([]ExternalDatabase, error) {
	raw, ok := s.settings.Resolve(settings.DomainRadius, settings.KeyExternalDatabases)
	if !ok || raw == "" {
		return nil, nil
	}
	var dbs []ExternalDatabase
	if err := json.Unmarshal([]byte(raw), &dbs); err != nil {
		return nil, fmt.Errorf("parse %s/%s: %w", settings.DomainRadius, settings.KeyExternalDatabases, err)
	}
	for i := range dbs {
		if dbs[i].RadCheckTable == "" {
			dbs[i].RadCheckTable = "radcheck"
		}
		if dbs[i].RadReplyTable == "" {
			dbs[i].RadReplyTable = "radreply"
		}
		if dbs[i].RadUserGroupTable == "" {
			dbs[i].RadUserGroupTable = "radusergroup"
		}
	}
	return dbs, nil
}

// DeleteUser removes the username's radcheck, radreply, and
// radusergroup rows from every configured external database. Per-db
// failures are collected; one unreachable mirror does not stop the
// others.
func (s *Syncer) DeleteUser(ctx context.Context, username string) error {
	if username == "" {
		return nil
	}
	dbs, err := s.Databases()
	if err != nil {
		return err
	}

	var errs []error
	for _, ext := range dbs {
		if err := s.deleteFrom(ctx, ext, username); err != nil {
			s.log.Warn("external radius delete failed",
				zap.String("database", ext.Name),
				zap.String("username", username),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", ext.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Syncer) deleteFrom(ctx context.Context, ext ExternalDatabase, username string) error {
	for _, table := range []string{ext.RadCheckTable, ext.RadReplyTable, ext.RadUserGroupTable} {
		if !identifierPattern.MatchString(table) {
			return fmt.Errorf("invalid table name %q", table)
		}
	}

	db, err := s.connection(ext)
	if err != nil {
		return err
	}
	for _, table := range []string{ext.RadCheckTable, ext.RadReplyTable, ext.RadUserGroupTable} {
		query := fmt.Sprintf("DELETE FROM %s WHERE username = ?", table)
		if err := db.WithContext(ctx).Exec(query, username).Error; err != nil {
			return fmt.Errorf("delete from %s: %w", table, err)
		}
	}
	return nil
}

func (s *Syncer) connection(ext ExternalDatabase) (*gorm.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if db, ok := s.conns[ext.Name]; ok {
		return db, nil
	}
	db, err := s.open(ext.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", ext.Name, err)
	}
	s.conns[ext.Name] = db
	return db, nil
}

// Close releases all cached external connections.
func (s *Syncer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, db := range s.conns {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
		delete(s.conns, name)
	}
}
