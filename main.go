package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/PhanTTKhai/ADO-translate/pkg/accounts"
	"github.com/PhanTTKhai/ADO-translate/pkg/capture"
	"github.com/PhanTTKhai/ADO-translate/pkg/config"
)

func main() {
	log := logrus.New()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}

	// `./ado-translate migrate` runs AutoMigrate and seeding then exits.
	// `./ado-translate token <username>` prints an access token for scripts.
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "migrate":
			db := mustOpenDB(cfg, log)
			if err := migrate(db, log); err != nil {
				log.Fatal(err)
			}
			fmt.Println("migration and seeding completed")
			return
		case "token":
			if len(os.Args) < 3 {
				fmt.Println("usage: ado-translate token <username>")
				os.Exit(2)
			}
			db := mustOpenDB(cfg, log)
			user, err := accounts.FindUser(db, os.Args[2])
			if err != nil {
				log.Fatalf("user %s: %v", os.Args[2], err)
			}
			token, err := issueAccessToken([]byte(cfg.JWTSecret), user, cfg.TokenLifetime)
			if err != nil {
				log.Fatal(err)
			}
			fmt.Println(token)
			return
		}
	}

	db := mustOpenDB(cfg, log)
	if cfg.AutoMigrate {
		if err := migrate(db, log); err != nil {
			log.Fatal(err)
		}
	}
	svc, err := capture.FromConfig(cfg, "", log)
	if err != nil {
		log.Fatal(err)
	}
	queue := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer queue.Close()

	s := &server{
		cfg:       cfg,
		db:        db,
		store:     capture.NewStore(db),
		service:   svc,
		queue:     queue,
		jwtSecret: []byte(cfg.JWTSecret),
		log:       log,
	}
	r := gin.Default()
	s.setupRoutes(r)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: r}
	go func() {
		log.WithFields(logrus.Fields{"addr": cfg.ListenAddr, "backends": svc.BackendNames()}).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdown); err != nil {
		log.WithError(err).Warn("shutdown")
	}
}
