package accounts

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/PhanTTKhai/ADO-translate/models"
)

func TestRegisterValidatesBeforeTouchingDB(t *testing.T) {
	_, err := Register(nil, "  ", "secret1", models.RoleUser)
	assert.EqualError(t, err, "username required")

	_, err = Register(nil, "alice", "123", models.RoleUser)
	assert.EqualError(t, err, "password too short (min 6)")

	assert.Error(t, ResetPassword(nil, "alice", "short"))
}

func TestHashToken(t *testing.T) {
	a := HashToken("abc")
	assert.Len(t, a, 64)
	assert.Equal(t, a, HashToken("abc"))
	assert.NotEqual(t, a, HashToken("abd"))
}

func TestIsUniqueConstraintError(t *testing.T) {
	assert.False(t, IsUniqueConstraintError(nil))
	assert.True(t, IsUniqueConstraintError(errors.New(`ERROR: duplicate key value violates unique constraint "idx_users_username"`)))
	assert.False(t, IsUniqueConstraintError(errors.New("connection reset")))
}

func TestRefreshTokenUsable(t *testing.T) {
	now := time.Now()
	rt := models.RefreshToken{ExpiresAt: now.Add(time.Hour)}
	assert.True(t, rt.Usable(now))
	rt.Revoked = true
	assert.False(t, rt.Usable(now))
	assert.False(t, (&models.RefreshToken{ExpiresAt: now.Add(-time.Second)}).Usable(now))
}

// openTestDB connects to DB_DSN when DB_DSN_TEST=1 and migrates the account tables.
func openTestDB(t *testing.T) *gorm.DB {
	if os.Getenv("DB_DSN_TEST") != "1" {
		t.Skip("database tests are disabled; set DB_DSN_TEST=1 to enable")
	}
	db, err := gorm.Open(postgres.Open(os.Getenv("DB_DSN")), &gorm.Config{})
	require.NoError(t, err)
	log := logrus.New()
	log.SetOutput(io.Discard)
	require.NoError(t, db.AutoMigrate(&models.Capture{}))
	require.NoError(t, Migrate(db, log))
	return db
}

func TestRotateRefreshTokenOnlyOnce(t *testing.T) {
	db := openTestDB(t)
	name := fmt.Sprintf("rotate-%d", time.Now().UnixNano())
	user, err := Register(db, name, "secret1", models.RoleUser)
	require.NoError(t, err)
	raw, err := IssueRefreshToken(db, user.ID, time.Hour)
	require.NoError(t, err)

	got, next, err := RotateRefreshToken(db, raw, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.NotEqual(t, raw, next)

	_, _, err = RotateRefreshToken(db, raw, time.Hour)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestRotateRefreshTokenConcurrent(t *testing.T) {
	db := openTestDB(t)
	name := fmt.Sprintf("race-%d", time.Now().UnixNano())
	user, err := Register(db, name, "secret1", models.RoleUser)
	require.NoError(t, err)
	raw, err := IssueRefreshToken(db, user.ID, time.Hour)
	require.NoError(t, err)

	const callers = 8
	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := RotateRefreshToken(db, raw, time.Hour); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, ok)
}
