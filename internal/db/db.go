package db

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/suPer8Hu/video-factory/internal/content"
	"github.com/suPer8Hu/video-factory/internal/queue"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open picks the driver from the DSN: "sqlite:<path>" and "file:<uri>" go to
// sqlite, everything else is treated as a MySQL DSN.
// All timestamps written by gorm are UTC.
func Open(dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch {
	case strings.HasPrefix(dsn, "sqlite:"):
		dialector = gormsqlite.Open(strings.TrimPrefix(dsn, "sqlite:"))
	case strings.HasPrefix(dsn, "file:"):
		dialector = gormsqlite.Open(dsn)
	default:
		dialector = mysql.Open(dsn)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
		Logger:  newLogger(os.Stdout),
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("db handle: %w", err)
	}
	if dialector.Name() == "sqlite" {
		// one writer at a time keeps sqlite from returning SQLITE_BUSY
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}
	return gdb, nil
}

// Not-found lookups are expected and stay out of the log.
func newLogger(w io.Writer) logger.Interface {
	return logger.New(log.New(w, "\r\n", log.LstdFlags), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

func Connect(dsn string) *gorm.DB {
	gdb, err := Open(dsn)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	return gdb
}

func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&content.Idea{},
		&content.Script{},
		&content.AudioTrack{},
		&content.Video{},
		&queue.Job{},
	)
}
