package main

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/PhanTTKhai/ADO-translate/pkg/accounts"
	"github.com/PhanTTKhai/ADO-translate/pkg/capture"
	"github.com/PhanTTKhai/ADO-translate/pkg/config"
)

func mustOpenDB(cfg *config.Config, log logrus.FieldLogger) *gorm.DB {
	if strings.TrimSpace(cfg.DatabaseDSN) == "" {
		log.Fatal("DB_DSN is not set. This project requires a Postgres DSN in DB_DSN.")
	}
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect postgres database: %v", err)
	}
	return db
}

// migrate creates the schema and seeds the roles and the admin account.
// Captures go first so the users migration can attach its foreign key.
func migrate(db *gorm.DB, log logrus.FieldLogger) error {
	if err := capture.NewStore(db).Migrate(); err != nil {
		log.WithError(err).Warn("migration warning (captures)")
	}
	if err := accounts.Migrate(db, log); err != nil {
		return err
	}
	return seedDB(db, log)
}

func seedDB(db *gorm.DB, log logrus.FieldLogger) error {
	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		password = "admin123"
	}
	created, err := accounts.SeedAdmin(db, "admin", password)
	if err != nil {
		return err
	}
	if created {
		log.Info("seeded admin user: username=admin")
	}
	return nil
}
