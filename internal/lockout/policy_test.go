package lockout

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/cyberarcade/internal/models"
)

func TestDefaultPolicy_Valid(t *testing.T) {
	require.NoError(t, DefaultPolicy().Validate())
}

func TestStageFor_MonotonicAndInRange(t *testing.T) {
	p := DefaultPolicy()
	prev := StageNone
	for c := 0; c <= 100; c++ {
		s := p.StageFor(c)
		assert.GreaterOrEqual(t, s, prev, "stage decreased at %d", c)
		assert.GreaterOrEqual(t, int(s), 0)
		assert.LessOrEqual(t, int(s), 3)
		prev = s
	}
}

func TestStageFor_Thresholds(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		failures      int
		wantStage     Stage
		wantPermanent bool
	}{
		{0, StageNone, false},
		{2, StageNone, false},
		{3, StageOne, false},
		{5, StageOne, false},
		{6, StageTwo, false},
		{8, StageTwo, false},
		{9, StageThree, false},
		{11, StageThree, false},
		{12, StageThree, true},
		{40, StageThree, true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.wantStage, p.StageFor(tt.failures), "failures=%d", tt.failures)
		assert.Equal(t, tt.wantPermanent, p.PermanentAt(tt.failures), "failures=%d", tt.failures)
	}
}

func TestEscalation_OnlyOnExactThreshold(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		failures int
		want     Step
		engaged  bool
	}{
		{3, Step{Threshold: 3, Stage: StageOne, Duration: 1800 * time.Second}, true},
		{6, Step{Threshold: 6, Stage: StageTwo, Duration: 10800 * time.Second}, true},
		{9, Step{Threshold: 9, Stage: StageThree, Duration: 86400 * time.Second}, true},
		{12, Step{Threshold: 12, Stage: StageThree, Permanent: true}, true},
		{1, Step{}, false},
		{4, Step{}, false},
		{7, Step{}, false},
		{13, Step{}, false},
	}

	for _, tt := range tests {
		got, ok := p.Escalation(tt.failures)
		assert.Equal(t, tt.engaged, ok, "failures=%d", tt.failures)
		assert.Equal(t, tt.want, got, "failures=%d", tt.failures)
	}
}

func TestValidate_RejectsBadTables(t *testing.T) {
	tests := []struct {
		name  string
		steps []Step
	}{
		{"empty", nil},
		{"non increasing", []Step{
			{Threshold: 3, Stage: StageOne, Duration: time.Minute},
			{Threshold: 3, Stage: StageTwo, Duration: time.Minute},
		}},
		{"stage out of range", []Step{{Threshold: 3, Stage: 4, Duration: time.Minute}}},
		{"stage decreases", []Step{
			{Threshold: 3, Stage: StageTwo, Duration: time.Minute},
			{Threshold: 6, Stage: StageOne, Duration: time.Minute},
		}},
		{"permanent not last", []Step{
			{Threshold: 3, Stage: StageThree, Permanent: true},
			{Threshold: 6, Stage: StageThree, Duration: time.Minute},
		}},
		{"zero duration", []Step{{Threshold: 3, Stage: StageOne}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Policy{Steps: tt.steps}.Validate()
			assert.True(t, errors.Is(err, ErrInvalidPolicy))
		})
	}
}

func TestStepApply(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("temporary", func(t *testing.T) {
		acct := &models.Account{ConsecutiveFailures: 3}
		Step{Threshold: 3, Stage: StageOne, Duration: 30 * time.Minute}.Apply(acct, now)
		assert.Equal(t, 1, acct.LockoutStage)
		require.NotNil(t, acct.LockoutExpiresAt)
		assert.Equal(t, now.Add(30*time.Minute), *acct.LockoutExpiresAt)
		assert.False(t, acct.IsPermanentlyLocked)
	})

	t.Run("permanent", func(t *testing.T) {
		expires := now.Add(time.Hour)
		acct := &models.Account{LockoutExpiresAt: &expires}
		Step{Threshold: 12, Stage: StageThree, Permanent: true}.Apply(acct, now)
		assert.Equal(t, 3, acct.LockoutStage)
		assert.True(t, acct.IsPermanentlyLocked)
		assert.Nil(t, acct.LockoutExpiresAt)
	})
}

func TestRemainingSeconds_DecreasesToZero(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	expires := start.Add(1800 * time.Second)

	assert.Equal(t, int64(1800), RemainingSeconds(&expires, start))

	prev := RemainingSeconds(&expires, start)
	for now := start.Add(time.Minute); now.Before(expires); now = now.Add(time.Minute) {
		got := RemainingSeconds(&expires, now)
		assert.Less(t, got, prev)
		prev = got
	}

	assert.Equal(t, int64(1), RemainingSeconds(&expires, expires.Add(-time.Millisecond)))
	assert.Equal(t, int64(0), RemainingSeconds(&expires, expires))
	assert.Equal(t, int64(0), RemainingSeconds(&expires, expires.Add(time.Hour)))
	assert.Equal(t, int64(0), RemainingSeconds(nil, start))
}

func TestIsActive(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Minute)
	past := now.Add(-time.Minute)

	assert.False(t, IsActive(&models.Account{}, now))
	assert.True(t, IsActive(&models.Account{LockoutStage: 1, LockoutExpiresAt: &future}, now))
	assert.False(t, IsActive(&models.Account{LockoutStage: 1, LockoutExpiresAt: &past}, now))
	assert.False(t, IsActive(&models.Account{LockoutStage: 1, LockoutExpiresAt: &now}, now))
	assert.True(t, IsActive(&models.Account{LockoutStage: 3, IsPermanentlyLocked: true}, now))
}

func TestClearExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Second)

	stale := &models.Account{ConsecutiveFailures: 3, LockoutStage: 1, LockoutExpiresAt: &past}
	assert.True(t, IsStale(stale, now))
	assert.True(t, ClearExpired(stale, now))
	assert.Equal(t, 0, stale.LockoutStage)
	assert.Nil(t, stale.LockoutExpiresAt)
	assert.Equal(t, 3, stale.ConsecutiveFailures)
	assert.False(t, ClearExpired(stale, now))

	active := &models.Account{LockoutStage: 2, LockoutExpiresAt: &future}
	assert.False(t, ClearExpired(active, now))
	assert.Equal(t, 2, active.LockoutStage)

	permanent := &models.Account{LockoutStage: 3, IsPermanentlyLocked: true}
	assert.False(t, ClearExpired(permanent, now))
	assert.True(t, permanent.IsPermanentlyLocked)
}

func TestStatusOf(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	expires := now.Add(90 * time.Second)

	assert.Equal(t, Status{}, StatusOf(&models.Account{ConsecutiveFailures: 2}, now))
	assert.NoError(t, StatusOf(&models.Account{}, now).Err())

	temp := StatusOf(&models.Account{LockoutStage: 1, LockoutExpiresAt: &expires}, now)
	assert.True(t, temp.Active)
	assert.False(t, temp.Permanent)
	assert.Equal(t, int64(90), temp.RemainingSeconds)

	var lockErr *models.LockoutError
	require.ErrorAs(t, temp.Err(), &lockErr)
	assert.Equal(t, int64(90), lockErr.RemainingSeconds)
	assert.ErrorIs(t, temp.Err(), models.ErrAccountLocked)

	perm := StatusOf(&models.Account{LockoutStage: 3, IsPermanentlyLocked: true}, now)
	assert.True(t, perm.Permanent)
	assert.Nil(t, perm.ExpiresAt)
	require.ErrorAs(t, perm.Err(), &lockErr)
	assert.True(t, lockErr.Permanent)
}
