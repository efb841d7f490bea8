package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicktill/ntk-tracker/pkg/clock"
	"github.com/nicktill/ntk-tracker/pkg/storage"
	"github.com/nicktill/ntk-tracker/pkg/storage/storagetest"
	"github.com/nicktill/ntk-tracker/pkg/timezone"
)

const dsnEnv = "NTK_TEST_POSTGRES_DSN"

func openTestStore(t *testing.T, clk clock.Clock, norm *timezone.Normalizer) *Storage {
	t.Helper()
	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		t.Skipf("%s not set", dsnEnv)
	}

	ctx := context.Background()
	s, err := New(ctx, Config{DSN: dsn}, clk, norm)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Clear(ctx))
	return s
}

func TestPostgresStorage_Contract(t *testing.T) {
	if os.Getenv(dsnEnv) == "" {
		t.Skipf("%s not set", dsnEnv)
	}
	storagetest.Run(t, func(t *testing.T, clk clock.Clock, norm *timezone.Normalizer) storage.Store {
		return openTestStore(t, clk, norm)
	})
}

func TestPostgresStorage_Optimize(t *testing.T) {
	s := openTestStore(t, clock.NewManual(storagetest.Start), timezone.MustNew(timezone.DefaultZone))
	defer s.Close()

	ctx := context.Background()
	_, err := s.Insert(ctx, 4)
	require.NoError(t, err)

	info, err := s.Optimize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.TotalRows)
	assert.NotEmpty(t, info.TableSize)
}

func TestPostgresStorage_MigrateIsIdempotent(t *testing.T) {
	s := openTestStore(t, clock.Real{}, timezone.MustNew(timezone.DefaultZone))
	defer s.Close()

	assert.NoError(t, s.Migrate(context.Background()))
}

func TestNew_InvalidDSN(t *testing.T) {
	_, err := New(context.Background(), Config{DSN: "://nope"}, clock.Real{}, timezone.MustNew(timezone.DefaultZone))
	assert.Error(t, err)
}

func TestQuoteLiteral(t *testing.T) {
	assert.Equal(t, "'Europe/Prague'", quoteLiteral("Europe/Prague"))
	assert.Equal(t, "'it''s'", quoteLiteral("it's"))
}
