package storage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	config "github.com/mwaltman/guild-archiver/internal/config"
	"github.com/mwaltman/guild-archiver/internal/model"
	storage_logger "github.com/mwaltman/guild-archiver/internal/storage/storage_logger"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

var errorNilMessage = errors.New("nil message")

type Storage struct {
	db *gorm.DB
}

func New(config *config.Config, logger *slog.Logger) (*Storage, error) {
	dialector, err := createDialector(&config.Database)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(
		dialector,
		&gorm.Config{
			NamingStrategy: schema.NamingStrategy{},
			Logger:         storage_logger.NewGormSlogLogger(logger),
			NowFunc:        func() time.Time { return time.Now().UTC() },
		})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(config.Database.MaxConnections)

	// Migrations
	const timeoutSeconds = 15 * 60
	ctx, cancel := context.WithTimeout(context.Background(), timeoutSeconds*time.Second)
	defer cancel()
	if err := db.WithContext(ctx).AutoMigrate(
		&model.Member{},
		&model.Channel{},
		&model.Message{},
		&model.Revision{},
		&model.Attachment{},
		&model.CrawlProgress{},
		&model.RepostEntry{},
		&model.MirrorMapping{},
	); err != nil {
		return nil, err
	}

	return &Storage{db: db}, nil
}

// Close - close the database connection
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Status - ping the database for the health endpoint.
func (s *Storage) Status() (string, error) {
	sqlDB, err := s.db.DB()
	if err != nil {
		return "error", err
	}
	if err := sqlDB.Ping(); err != nil {
		return "error", err
	}
	return "ok", nil
}

func nowUnixMilli() int64 {
	return time.Now().UTC().UnixMilli()
}

// unchanged reports whether two versions of an entity hash identically.
func unchanged(stored, incoming model.Entity) (bool, error) {
	oldHash, err := stored.Hash()
	if err != nil {
		return false, err
	}
	newHash, err := incoming.Hash()
	if err != nil {
		return false, err
	}
	return oldHash == newHash, nil
}
