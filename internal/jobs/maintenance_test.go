package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeUsers struct {
	calls int
	err   error
}

func (f *fakeUsers) PurgeExpiredResetTokens(context.Context) (int64, error) {
	f.calls++
	return 2, f.err
}

type fakeOutbox struct {
	before time.Time
}

func (f *fakeOutbox) DeleteSentBefore(_ context.Context, before time.Time) (int64, error) {
	f.before = before
	return 5, nil
}

func TestPurgeSentEventsUsesRetention(t *testing.T) {
	ob := &fakeOutbox{}
	m := NewMaintenance(&fakeUsers{}, ob, zap.NewNop())
	now := time.Date(2025, 3, 10, 3, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	n, err := m.PurgeSentEvents(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Equal(t, time.Date(2025, 3, 3, 3, 0, 0, 0, time.UTC), ob.before)
}

func TestRegisterSchedules(t *testing.T) {
	m := NewMaintenance(&fakeUsers{}, &fakeOutbox{}, zap.NewNop())
	require.NoError(t, m.Register(Schedule{ResetTokenPurge: "@every 10m", OutboxPurge: "0 3 * * *"}))
	assert.Len(t, m.cron.Entries(), 2)

	skipped := NewMaintenance(&fakeUsers{}, &fakeOutbox{}, zap.NewNop())
	require.NoError(t, skipped.Register(Schedule{}))
	assert.Empty(t, skipped.cron.Entries())

	bad := NewMaintenance(&fakeUsers{}, &fakeOutbox{}, zap.NewNop())
	assert.Error(t, bad.Register(Schedule{ResetTokenPurge: "every ten minutes"}))
}

func TestJobErrorIsLogged(t *testing.T) {
	users := &fakeUsers{err: errors.New("db down")}
	m := NewMaintenance(users, &fakeOutbox{}, zap.NewNop())

	m.run("purge_reset_tokens", m.PurgeResetTokens)()
	assert.Equal(t, 1, users.calls)
}
