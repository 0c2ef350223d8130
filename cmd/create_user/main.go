package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/PhanTTKhai/ADO-translate/models"
	"github.com/PhanTTKhai/ADO-translate/pkg/accounts"
	"github.com/PhanTTKhai/ADO-translate/pkg/config"
)

var args struct {
	Username string `arg:"positional,required"`
	Password string `arg:"positional,required"`
	Admin    bool   `arg:"--admin" help:"grant the administrator role"`
	Reset    bool   `arg:"--reset" help:"replace the password of an existing user"`
}

var log = logrus.New()

func main() {
	arg.MustParse(&args)
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if strings.TrimSpace(cfg.DatabaseDSN) == "" {
		log.Fatal("DB_DSN not set in environment")
	}
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to open db: %v", err)
	}

	if args.Reset {
		if err := accounts.ResetPassword(db, args.Username, args.Password); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("password reset for user %s\n", args.Username)
		return
	}

	role := models.RoleUser
	if args.Admin {
		role = models.RoleAdministrator
	}
	user, err := accounts.Register(db, args.Username, args.Password, role)
	if errors.Is(err, accounts.ErrUserExists) {
		fmt.Printf("user %s already exists\n", args.Username)
		return
	}
	if err != nil {
		log.Fatalf("failed to create user: %v", err)
	}
	fmt.Printf("created user %s id=%d role=%s\n", user.Username, user.ID, role)
}
