// Package accounts manages API users, roles and refresh tokens.
package accounts

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/PhanTTKhai/ADO-translate/models"
)

const minPasswordLength = 6

var (
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenInvalid       = errors.New("invalid or expired refresh token")
)

// Migrate creates the account tables and seeds the roles. Each table is
// migrated on its own so one permission error does not block the rest. Run
// it after the captures table exists so the user foreign key can be added.
func Migrate(db *gorm.DB, log logrus.FieldLogger) error {
	if err := db.AutoMigrate(&models.Role{}); err != nil {
		log.WithError(err).Warn("migration warning (roles)")
	}
	if err := EnsureRoles(db); err != nil {
		return err
	}
	tables := []struct {
		name  string
		model any
	}{
		{"users", &models.User{}},
		{"refresh_tokens", &models.RefreshToken{}},
	}
	for _, t := range tables {
		if err := db.AutoMigrate(t.model); err != nil {
			log.WithError(err).WithField("table", t.name).Warn("migration warning")
		}
	}
	return nil
}

// EnsureRoles creates the default roles that are missing.
func EnsureRoles(db *gorm.DB) error {
	for _, r := range models.DefaultRoles() {
		r := r
		if err := db.Where("name = ?", r.Name).FirstOrCreate(&r).Error; err != nil {
			return fmt.Errorf("ensure role %s: %w", r.Name, err)
		}
	}
	return nil
}

// SeedAdmin creates the administrator account when it does not exist yet.
// It reports whether a user was created.
func SeedAdmin(db *gorm.DB, username, password string) (bool, error) {
	var count int64
	db.Model(&models.User{}).Where("username = ?", username).Count(&count)
	if count > 0 {
		return false, nil
	}
	if _, err := Register(db, username, password, models.RoleAdministrator); err != nil {
		return false, err
	}
	return true, nil
}

func validate(username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", fmt.Errorf("username required")
	}
	if len(password) < minPasswordLength {
		return "", fmt.Errorf("password too short (min %d)", minPasswordLength)
	}
	return username, nil
}

// Register creates a user with the given role.
func Register(db *gorm.DB, username, password, role string) (*models.User, error) {
	username, err := validate(username, password)
	if err != nil {
		return nil, err
	}
	var existing models.User
	if err := db.Where("username = ?", username).First(&existing).Error; err == nil {
		return nil, ErrUserExists
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	r := models.Role{Name: role}
	if err := db.Where("name = ?", role).FirstOrCreate(&r).Error; err != nil {
		return nil, fmt.Errorf("failed to ensure %s role: %w", role, err)
	}
	user := models.User{Username: username, HashedPassword: hashed, RoleID: &r.ID}
	if err := db.Create(&user).Error; err != nil {
		if IsUniqueConstraintError(err) {
			return nil, ErrUserExists
		}
		return nil, err
	}
	user.Role = r
	return &user, nil
}

// Authenticate checks a username and password and returns the user with its role.
func Authenticate(db *gorm.DB, username, password string) (*models.User, error) {
	var user models.User
	if err := db.Preload("Role").Where("username = ?", strings.TrimSpace(username)).First(&user).Error; err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(user.HashedPassword, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

// ResetPassword replaces the password of an existing user.
func ResetPassword(db *gorm.DB, username, password string) error {
	username, err := validate(username, password)
	if err != nil {
		return err
	}
	var user models.User
	if err := db.Where("username = ?", username).First(&user).Error; err != nil {
		return fmt.Errorf("user not found: %w", err)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return db.Model(&user).Update("hashed_password", hashed).Error
}

// FindUser loads a user and its role by username.
func FindUser(db *gorm.DB, username string) (*models.User, error) {
	var user models.User
	if err := db.Preload("Role").Where("username = ?", username).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// IssueRefreshToken stores the hash of a new random token and returns the raw value.
func IssueRefreshToken(db *gorm.DB, userID uint, ttl time.Duration) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := hex.EncodeToString(b)
	rt := models.RefreshToken{UserID: userID, TokenHash: HashToken(token), ExpiresAt: time.Now().Add(ttl)}
	if err := db.Create(&rt).Error; err != nil {
		return "", err
	}
	return token, nil
}

// RotateRefreshToken revokes raw and issues a replacement for the same user.
// Only one caller can rotate a given token; every other attempt, concurrent
// or later, gets ErrTokenInvalid.
func RotateRefreshToken(db *gorm.DB, raw string, ttl time.Duration) (*models.User, string, error) {
	var (
		user models.User
		next string
	)
	err := db.Transaction(func(tx *gorm.DB) error {
		var rt models.RefreshToken
		if err := tx.Where("token_hash = ?", HashToken(raw)).First(&rt).Error; err != nil || !rt.Usable(time.Now()) {
			return ErrTokenInvalid
		}
		if err := tx.Preload("Role").First(&user, rt.UserID).Error; err != nil {
			return ErrTokenInvalid
		}
		res := tx.Model(&models.RefreshToken{}).
			Where("id = ? AND revoked = ?", rt.ID, false).
			Update("revoked", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return ErrTokenInvalid
		}
		var err error
		next, err = IssueRefreshToken(tx, user.ID, ttl)
		return err
	})
	if err != nil {
		return nil, "", err
	}
	return &user, next, nil
}

// RevokeRefreshToken marks raw as revoked.
func RevokeRefreshToken(db *gorm.DB, raw string) error {
	res := db.Model(&models.RefreshToken{}).Where("token_hash = ?", HashToken(raw)).Update("revoked", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// HashToken is the stored form of a refresh token.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

func IsUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "duplicate key") || strings.Contains(s, "unique constraint") || strings.Contains(s, "already exists")
}
