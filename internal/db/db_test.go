package db

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/suPer8Hu/video-factory/internal/queue"
	"gorm.io/gorm"
)

func TestLogger_SkipsRecordNotFound(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf)
	sql := func() (string, int64) { return "SELECT * FROM video_jobs", 0 }

	l.Trace(context.Background(), time.Now(), sql, gorm.ErrRecordNotFound)
	if buf.Len() != 0 {
		t.Fatalf("record not found should not be logged, got %q", buf.String())
	}

	l.Trace(context.Background(), time.Now(), sql, errors.New("disk I/O error"))
	if !bytes.Contains(buf.Bytes(), []byte("disk I/O error")) {
		t.Fatalf("real errors should still be logged, got %q", buf.String())
	}
}

func TestOpen_SQLiteAndMigrate(t *testing.T) {
	gdb, err := Open("file:db_open_test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sqlDB, _ := gdb.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !gdb.Migrator().HasColumn(&queue.Job{}, "claim_token") {
		t.Fatalf("video_jobs should carry claim_token")
	}
	if sqlDB.Stats().MaxOpenConnections != 1 {
		t.Fatalf("sqlite should be limited to one connection")
	}
}
