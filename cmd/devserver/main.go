// Command devserver runs a dynquery service over a throwaway database for
// local development. It seeds a small product and customer catalog and
// serves the query endpoints on the given address:
//
//	go run . -addr :8080
//	curl -s localhost:8080/products/query -d '{"filters": {"category": "tools"}}'
//
// The -driver flag switches the backing database; sqlite needs no setup,
// postgres and mysql expect a reachable server in -dsn.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	dynquery "github.com/nlstn/go-dynquery"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type Product struct {
	ID          int
	Name        string `dynquery:"searchable"`
	Description string `dynquery:"searchable"`
	Category    string
	Price       float64
	Stock       int
	CreatedAt   time.Time
}

type Customer struct {
	ID      int
	Name    string `dynquery:"searchable"`
	Email   string `dynquery:"searchable"`
	Country string
}

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	driver := flag.String("driver", "sqlite", "database driver: sqlite, postgres or mysql")
	dsn := flag.String("dsn", "file::memory:?cache=shared", "database DSN")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	db, err := openDB(*driver, *dsn)
	if err != nil {
		logger.Error("Failed to open database", "driver", *driver, "error", err)
		os.Exit(1)
	}
	if err := seed(db); err != nil {
		logger.Error("Failed to seed database", "error", err)
		os.Exit(1)
	}

	service, err := dynquery.NewServiceWithConfig(db, dynquery.ServiceConfig{
		DefaultPageSize: 25,
		MaxPageSize:     200,
	})
	if err != nil {
		logger.Error("Failed to create service", "error", err)
		os.Exit(1)
	}
	service.SetLogger(logger)
	if err := service.SetObservability(dynquery.ObservabilityConfig{
		ServiceName:        "dynquery-devserver",
		EnableServerTiming: true,
	}); err != nil {
		logger.Error("Failed to configure observability", "error", err)
		os.Exit(1)
	}

	for _, entity := range []any{Product{}, Customer{}} {
		if err := service.RegisterTable(entity); err != nil {
			logger.Error("Failed to register table", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("Development server listening", "addr", *addr, "driver", *driver, "tables", service.Tables())
	if err := http.ListenAndServe(*addr, service.Handler()); err != nil {
		logger.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

func openDB(driver, dsn string) (*gorm.DB, error) {
	switch driver {
	case "sqlite":
		return gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	case "postgres":
		return gorm.Open(postgres.Open(dsn), &gorm.Config{})
	case "mysql":
		return gorm.Open(mysql.Open(dsn), &gorm.Config{})
	}
	return nil, fmt.Errorf("unknown driver %q", driver)
}

func seed(db *gorm.DB) error {
	if err := db.AutoMigrate(&Product{}, &Customer{}); err != nil {
		return err
	}

	var count int64
	if err := db.Model(&Product{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	now := time.Now().UTC()
	products := []Product{
		{ID: 1, Name: "Claw Hammer", Description: "16oz steel claw hammer", Category: "tools", Price: 14.99, Stock: 120, CreatedAt: now.AddDate(0, -3, 0)},
		{ID: 2, Name: "Cordless Drill", Description: "18V brushless drill driver", Category: "tools", Price: 89.00, Stock: 35, CreatedAt: now.AddDate(0, -2, 0)},
		{ID: 3, Name: "Paint Roller Set", Description: "9 inch roller with tray", Category: "paint", Price: 12.50, Stock: 200, CreatedAt: now.AddDate(0, -1, -15)},
		{ID: 4, Name: "Wood Glue", Description: "Waterproof wood glue, 500ml", Category: "adhesives", Price: 6.75, Stock: 310, CreatedAt: now.AddDate(0, -1, 0)},
		{ID: 5, Name: "Circular Saw", Description: "1400W circular saw with guide", Category: "tools", Price: 129.99, Stock: 18, CreatedAt: now.AddDate(0, 0, -20)},
		{ID: 6, Name: "Masking Tape", Description: "Painter's tape, 36mm", Category: "paint", Price: 3.20, Stock: 540, CreatedAt: now.AddDate(0, 0, -5)},
	}
	for i := range products {
		if err := db.Create(&products[i]).Error; err != nil {
			return err
		}
	}

	customers := []Customer{
		{ID: 1, Name: "Ada Lovelace", Email: "ada@example.com", Country: "GB"},
		{ID: 2, Name: "Grace Hopper", Email: "grace@example.com", Country: "US"},
		{ID: 3, Name: "Linus Pauling", Email: "linus@example.com", Country: "US"},
	}
	for i := range customers {
		if err := db.Create(&customers[i]).Error; err != nil {
			return err
		}
	}
	return nil
}
