package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/PhanTTKhai/ADO-translate/pkg/accounts"
	"github.com/PhanTTKhai/ADO-translate/pkg/capture"
	"github.com/PhanTTKhai/ADO-translate/pkg/config"
)

var args struct {
	Username string `arg:"--username" help:"limit to this user; default all users"`
	Month    string `arg:"--month" help:"month to report (YYYY-MM); default current month"`
	List     bool   `arg:"--list" help:"list matching captures"`
}

var log = logrus.New()

func main() {
	arg.MustParse(&args)
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if cfg.DatabaseDSN == "" {
		fmt.Fprintln(os.Stderr, "DB_DSN not set; export DB_DSN and retry")
		os.Exit(2)
	}
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	month := args.Month
	if month == "" {
		month = time.Now().UTC().Format("2006-01")
	}
	t, err := time.Parse("2006-01", month)
	if err != nil {
		log.Fatalf("invalid month format, expected YYYY-MM: %v", err)
	}
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	var userID *uint
	who := "all users"
	if args.Username != "" {
		user, err := accounts.FindUser(db, args.Username)
		if err != nil {
			log.Fatalf("user not found: %v", err)
		}
		userID = &user.ID
		who = user.Username
	}

	ctx := context.Background()
	store := capture.NewStore(db)
	sum, err := store.Summarize(ctx, userID, start, end)
	if err != nil {
		log.Fatalf("query failed: %v", err)
	}
	fmt.Printf("Report for %s month=%s (UTC):\n", who, month)
	fmt.Printf("  captures=%d failed=%d translated=%d\n", sum.Total, sum.Failed, sum.Translated)
	fmt.Printf("  lines=%d skipped=%d deskew_capped=%d mean_|deskew|=%.2f\n", sum.Lines, sum.Skipped, sum.Capped, sum.MeanDeskew)

	if args.List {
		items, err := store.List(ctx, userID, 200)
		if err != nil {
			log.Fatalf("fetch rows failed: %v", err)
		}
		for _, c := range items {
			if c.CreatedAt.Before(start) || !c.CreatedAt.Before(end) {
				continue
			}
			fmt.Printf("%s|%s|%s|%d|%t|%s\n", c.ID, c.Source, c.Profile, c.LineCount, c.Failed, c.CreatedAt.Format(time.RFC3339))
		}
	}
}
