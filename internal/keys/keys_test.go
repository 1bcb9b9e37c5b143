package keys

import (
	"testing"

	appErrors "strivesync-backend/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrimaryKeys(t *testing.T) {
	tests := []struct {
		name string
		fn   func() (Primary, error)
		want Primary
	}{
		{"profile", func() (Primary, error) { return UserProfile("u1") }, Primary{"USER#u1", "PROFILE"}},
		{"habit", func() (Primary, error) { return Habit("u1", "h1") }, Primary{"USER#u1", "HABIT#h1"}},
		{"activity", func() (Primary, error) { return Activity("a1") }, Primary{"ACTIVITY#a1", "DETAILS"}},
		{"participation", func() (Primary, error) { return Participation("u1", "a1") }, Primary{"USER#u1", "RSVP#a1"}},
		{"membership", func() (Primary, error) { return Membership("a1", "u1") }, Primary{"ACTIVITY#a1", "MEMBER#u1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrimaryKeys_RejectEmptyFields(t *testing.T) {
	calls := map[string]func() error{
		"profile":            func() error { _, err := UserProfile(""); return err },
		"habit user":         func() error { _, err := Habit("", "h1"); return err },
		"habit id":           func() error { _, err := Habit("u1", "  "); return err },
		"activity":           func() error { _, err := Activity(""); return err },
		"participation":      func() error { _, err := Participation("u1", ""); return err },
		"participant lookup": func() error { _, err := Participant("", "a1"); return err },
	}

	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			err := call()
			require.Error(t, err)
			assert.ErrorIs(t, err, appErrors.ErrInvalidKeyInput)
		})
	}
}

func TestPublicHabit(t *testing.T) {
	t.Run("public habit gets chronological sort key", func(t *testing.T) {
		sk, err := PublicHabit(true, "h1", "2025-07-20T10:00:00.000Z")
		require.NoError(t, err)
		require.NotNil(t, sk)
		assert.Equal(t, "PUBLIC_HABIT", sk.PK)
		assert.Equal(t, "CREATED_AT#2025-07-20T10:00:00.000Z#HABIT#h1", sk.SK)
	})

	t.Run("private habit has no projection", func(t *testing.T) {
		sk, err := PublicHabit(false, "h1", "2025-07-20T10:00:00.000Z")
		require.NoError(t, err)
		assert.Nil(t, sk)
	})

	t.Run("missing createdAt is rejected even when private", func(t *testing.T) {
		_, err := PublicHabit(false, "h1", "")
		assert.ErrorIs(t, err, appErrors.ErrInvalidKeyInput)
	})
}

func TestPublicActivity(t *testing.T) {
	sk, err := PublicActivity(true, "Chennai", "2025-07-20T18:30:00Z")
	require.NoError(t, err)
	require.NotNil(t, sk)
	assert.Equal(t, "PUBLIC#ACTIVITY", sk.PK)
	assert.Equal(t, "#Chennai#2025-07-20", sk.SK)

	sk, err = PublicActivity(false, "Chennai", "2025-07-20T18:30:00Z")
	require.NoError(t, err)
	assert.Nil(t, sk)
}

func TestParticipant(t *testing.T) {
	sk, err := Participant("u1", "a1")
	require.NoError(t, err)
	assert.Equal(t, Secondary{PK: "ACTIVITY#a1", SK: "PARTICIPANT#u1"}, sk)
}

func TestKeysAreDeterministic(t *testing.T) {
	a, _ := Habit("u1", "h1")
	b, _ := Habit("u1", "h1")
	assert.Equal(t, a, b)
}
