package main

import (
	"github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/PhanTTKhai/ADO-translate/pkg/capture"
	"github.com/PhanTTKhai/ADO-translate/pkg/config"
	"github.com/PhanTTKhai/ADO-translate/process/jobs"
)

var args struct {
	Concurrency int    `arg:"-c,--concurrency" help:"parallel tasks; default WORKER_CONCURRENCY"`
	Backends    string `arg:"--backends" help:"comma separated backend names; default all"`
	NoStore     bool   `arg:"--no-store" help:"do not save captures to the database"`
}

func main() {
	arg.MustParse(&args)
	log := logrus.New()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}
	concurrency := args.Concurrency
	if concurrency < 1 {
		concurrency = cfg.WorkerConcurrency
	}

	svc, err := capture.FromConfig(cfg, args.Backends, log)
	if err != nil {
		log.Fatal(err)
	}
	h := &jobs.Handler{Service: svc, Log: log}
	if !args.NoStore {
		if cfg.DatabaseDSN == "" {
			log.Fatal("DB_DSN is not set; pass --no-store to run without a database")
		}
		db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
		if err != nil {
			log.Fatalf("failed to connect postgres database: %v", err)
		}
		h.Store = capture.NewStore(db)
	}

	srv := jobs.NewServer(cfg.RedisAddr, concurrency, log)
	log.WithFields(logrus.Fields{"redis": cfg.RedisAddr, "concurrency": concurrency, "backends": svc.BackendNames()}).Info("worker starting")
	// Run blocks until SIGTERM or SIGINT and then shuts down gracefully.
	if err := srv.Run(jobs.NewServeMux(h)); err != nil {
		log.Fatal(err)
	}
}
