package errors_test

import (
	"fmt"
	"testing"

	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want apperrors.Kind
	}{
		{apperrors.ErrExpiredToken, apperrors.KindExpired},
		{fmt.Errorf("gateway: %w", apperrors.ErrExpiredToken), apperrors.KindExpired},
		{apperrors.ErrSameAsOld, apperrors.KindValidation},
		{apperrors.ErrWeakPassword, apperrors.KindValidation},
		{apperrors.ErrInvalidRequest, apperrors.KindValidation},
		{apperrors.ErrMissingToken, apperrors.KindUnauthenticated},
		{apperrors.ErrNotStarted, apperrors.KindUnauthenticated},
		{apperrors.ErrChallengeExpired, apperrors.KindUnauthenticated},
		{apperrors.ErrRefreshTokenMismatch, apperrors.KindUnauthenticated},
		{apperrors.ErrNotFound, apperrors.KindInternal},
		{fmt.Errorf("boom"), apperrors.KindInternal},
		{nil, apperrors.KindInternal},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, apperrors.KindOf(tt.err), "%v", tt.err)
	}
}

func TestCodeRoundTrip(t *testing.T) {
	wrapped := apperrors.Wrapf(apperrors.ErrChallengeInvalid, "consume %s", "id-1")
	code := apperrors.Code(wrapped)
	require.Equal(t, "challenge_invalid", code)

	back, ok := apperrors.FromCode(code)
	require.True(t, ok)
	require.ErrorIs(t, back, apperrors.ErrChallengeInvalid)

	require.Empty(t, apperrors.Code(fmt.Errorf("unrelated")))
	_, ok = apperrors.FromCode("nope")
	require.False(t, ok)
}

func TestWrapfNil(t *testing.T) {
	require.NoError(t, apperrors.Wrapf(nil, "anything"))
}
