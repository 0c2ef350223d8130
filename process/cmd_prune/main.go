package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/alexflint/go-arg"
	_ "github.com/lib/pq"
)

var args struct {
	OlderThan  time.Duration `arg:"--older-than" default:"720h" help:"delete captures created before now minus this"`
	FailedOnly bool          `arg:"--failed-only" help:"only delete captures that could not be recognized"`
	DryRun     bool          `arg:"--dry-run"`
}

func main() {
	arg.MustParse(&args)
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("DB_DSN not set")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	cutoff := time.Now().Add(-args.OlderThan)
	where := `created_at < $1`
	if args.FailedOnly {
		where += ` AND failed`
	}

	if args.DryRun {
		var n int64
		if err := db.QueryRow(`SELECT COUNT(*) FROM captures WHERE `+where, cutoff).Scan(&n); err != nil {
			log.Fatalf("count captures: %v", err)
		}
		fmt.Printf("would delete %d captures created before %s\n", n, cutoff.Format(time.RFC3339))
		return
	}
	res, err := db.Exec(`DELETE FROM captures WHERE `+where, cutoff)
	if err != nil {
		log.Fatalf("delete captures: %v", err)
	}
	n, _ := res.RowsAffected()
	fmt.Printf("prune done: captures deleted=%d\n", n)
}
