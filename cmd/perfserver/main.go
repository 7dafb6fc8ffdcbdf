// Command perfserver runs a dynquery service seeded with a configurable
// number of rows, for load testing the query pipeline:
//
//	go run . -rows 100000
//	hey -m POST -d '{"filters": {"region": "eu"}, "pagination": {"page": 3, "pageSize": 50}}' \
//	    http://localhost:8080/events/query
//
// sqlite runs fully in memory; point -driver/-dsn at postgres to measure a
// real server.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	dynquery "github.com/nlstn/go-dynquery"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Event struct {
	ID        int
	Kind      string
	Region    string
	Payload   string `dynquery:"searchable"`
	Value     float64
	CreatedAt time.Time
}

var regions = []string{"eu", "us", "apac"}
var kinds = []string{"click", "view", "purchase", "refund"}

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	driver := flag.String("driver", "sqlite", "database driver: sqlite or postgres")
	dsn := flag.String("dsn", "file::memory:?cache=shared", "database DSN")
	rows := flag.Int("rows", 100000, "number of rows to seed")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	db, err := openDB(*driver, *dsn)
	if err != nil {
		log.Error("Failed to open database", "driver", *driver, "error", err)
		os.Exit(1)
	}

	start := time.Now()
	if err := seed(db, *rows); err != nil {
		log.Error("Failed to seed database", "error", err)
		os.Exit(1)
	}
	log.Info("Seeded events", "rows", *rows, "took", time.Since(start))

	service, err := dynquery.NewServiceWithConfig(db, dynquery.ServiceConfig{
		DefaultPageSize: 50,
		MaxPageSize:     1000,
	})
	if err != nil {
		log.Error("Failed to create service", "error", err)
		os.Exit(1)
	}
	service.SetLogger(log)
	if err := service.RegisterTable(Event{}); err != nil {
		log.Error("Failed to register table", "error", err)
		os.Exit(1)
	}

	log.Info("Perf server listening", "addr", *addr, "driver", *driver)
	if err := http.ListenAndServe(*addr, service.Handler()); err != nil {
		log.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

func openDB(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	switch driver {
	case "sqlite":
		return gorm.Open(sqlite.Open(dsn), cfg)
	case "postgres":
		return gorm.Open(postgres.Open(dsn), cfg)
	}
	return nil, fmt.Errorf("unknown driver %q", driver)
}

func seed(db *gorm.DB, rows int) error {
	if err := db.AutoMigrate(&Event{}); err != nil {
		return err
	}

	base := time.Now().UTC().AddDate(0, -6, 0)
	const batchSize = 500
	batch := make([]Event, 0, batchSize)
	for i := 1; i <= rows; i++ {
		batch = append(batch, Event{
			ID:        i,
			Kind:      kinds[i%len(kinds)],
			Region:    regions[i%len(regions)],
			Payload:   fmt.Sprintf("event-%08d", i),
			Value:     float64(i%500) / 10,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		if len(batch) == batchSize {
			if err := db.Create(&batch).Error; err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := db.Create(&batch).Error; err != nil {
			return err
		}
	}
	return nil
}
