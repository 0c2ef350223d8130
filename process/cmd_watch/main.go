package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/PhanTTKhai/ADO-translate/pkg/accounts"
	"github.com/PhanTTKhai/ADO-translate/pkg/capture"
	"github.com/PhanTTKhai/ADO-translate/pkg/config"
	"github.com/PhanTTKhai/ADO-translate/process/frames"
)

var args struct {
	Dir          string  `arg:"positional,required" help:"directory the capture tool writes frames to"`
	Backends     string  `arg:"--backends" help:"comma separated backend names; default all"`
	Profile      string  `arg:"--profile,env:PROFILE"`
	Workers      int     `arg:"-w,--workers" help:"parallel frames; default WORKER_CONCURRENCY"`
	MinConf      float64 `arg:"--min-conf"`
	Translate    bool    `arg:"--translate"`
	Output       string  `arg:"-o,--output" help:"overwrite this file with the latest transcript"`
	ProcessedDir string  `arg:"--processed-dir" help:"move frames here once read"`
	Store        bool    `arg:"--store" help:"save transcripts to the database as the given user"`
	User         string  `arg:"--user" default:"admin"`
	Once         bool    `arg:"--once" help:"process the frames already present and exit"`
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
	if args.Profile == "" {
		args.Profile = cfg.Profile
	}
	workers := args.Workers
	if workers < 1 {
		workers = cfg.WorkerConcurrency
	}

	svc, err := capture.FromConfig(cfg, args.Backends, log)
	if err != nil {
		log.Fatal(err)
	}

	sinks := []frames.Sink{frames.WriterSink(os.Stdout)}
	if args.Output != "" {
		sinks = append(sinks, frames.FileSink(args.Output))
	}
	if args.Store {
		if cfg.DatabaseDSN == "" {
			log.Fatal("--store needs DB_DSN")
		}
		db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
		if err != nil {
			log.Fatalf("failed to connect postgres database: %v", err)
		}
		user, err := accounts.FindUser(db, args.User)
		if err != nil {
			log.Fatalf("user %s: %v", args.User, err)
		}
		sinks = append(sinks, frames.StoreSink(capture.NewStore(db), &user.ID))
	}

	p := frames.New(svc, frames.Options{
		Dir:     args.Dir,
		Workers: workers,
		Request: capture.Request{
			Profile:       args.Profile,
			MinConfidence: args.MinConf,
			Translate:     args.Translate,
		},
		ProcessedDir: args.ProcessedDir,
		Log:          log,
	}, sinks...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if args.Once {
		names := make(chan string)
		go func() {
			defer close(names)
			for _, n := range p.Pending() {
				select {
				case names <- n:
				case <-ctx.Done():
					return
				}
			}
		}()
		err = p.Run(ctx, names)
	} else {
		err = p.Watch(ctx)
	}
	if err != nil {
		log.Fatal(err)
	}
	st := p.Stats()
	log.WithFields(logrus.Fields{"processed": st.Processed, "emitted": st.Emitted, "failed": st.Failed}).Info("done")
}
