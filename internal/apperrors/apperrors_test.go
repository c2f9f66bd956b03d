package apperrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewBuildsErrorWithoutCause(t *testing.T) {
	err := New(KindLockTimeout, "lock_timeout", "could not acquire dispatch lock")
	assert.Equal(t, KindLockTimeout, err.Kind)
	assert.Nil(t, err.Unwrap())
	assert.Contains(t, err.Error(), "lock_timeout")
}

func TestWrapPreservesCauseForUnwrap(t *testing.T) {
	cause := errors.New("mongo: connection refused")
	err := Wrap(KindPersistencePrimary, "write_failed", "could not upsert order", cause)
	assert.Same(t, cause, err.Unwrap())
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestAlertFlagsOnlyTheLoudKinds(t *testing.T) {
	loud := []Kind{KindOCOPlacementPartial, KindPersistencePrimary, KindAnomaly, KindVenueNonRetryable}
	for _, k := range loud {
		assert.True(t, New(k, "r", "m").Alert(), "%s must alert", k)
	}

	quiet := []Kind{KindValidation, KindRiskRejection, KindLockTimeout, KindVenueRetryable, KindPersistenceSecondary, KindInternal}
	for _, k := range quiet {
		assert.False(t, New(k, "r", "m").Alert(), "%s must not alert", k)
	}
}

func TestIsMatchesKindNotMessage(t *testing.T) {
	err := New(KindRiskRejection, "daily_loss", "daily loss limit breached")
	assert.True(t, Is(err, KindRiskRejection))
	assert.False(t, Is(err, KindLockTimeout))
	assert.False(t, Is(errors.New("plain error"), KindRiskRejection))
}
