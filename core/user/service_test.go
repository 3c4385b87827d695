package user_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/events"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/user"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/internal/testutil"
)

var resetPathRegex = regexp.MustCompile(`/password-reset/([^/\s]+)/([^/\s]+)`)

func Test_service_CheckUniqueness(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, env.UserRepo, "Ana", "anamaria", "ana@test.co", "", []string{user.RoleStudent}, true)

	assert.Equal(t, map[string]string{"username": user.ErrUsernameExists.Error()},
		testutil.FieldErrors(t, env.UserSvc.CheckUniqueness(ctx, "anamaria", "")))
	assert.Equal(t, map[string]string{"email": user.ErrEmailExists.Error()},
		testutil.FieldErrors(t, env.UserSvc.CheckUniqueness(ctx, "", "ana@test.co")))
	assert.NoError(t, env.UserSvc.CheckUniqueness(ctx, "anamaria", "ana@test.co", usr))
	assert.NoError(t, env.UserSvc.CheckUniqueness(ctx, "someone", "someone@test.co"))
}

func Test_service_passwordReset(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, env.UserRepo, "Ana", "anamaria", "ana@test.co", "0ld-Pwd", []string{user.RoleStudent}, true)
	testutil.CreateUser(t, env.UserRepo, "Off", "inactive", "off@test.co", "0ld-Pwd", []string{user.RoleStudent}, false)

	err := env.UserSvc.RequestPasswordReset(ctx, "nobody@test.co")
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))

	require.NoError(t, env.UserSvc.RequestPasswordReset(ctx, "off@test.co"))
	assert.Empty(t, env.Mail.SentMessages(), "inactive users get no email")

	require.NoError(t, env.UserSvc.RequestPasswordReset(ctx, " ANA@test.co "))
	sent := env.Mail.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "ana@test.co", sent[0].To[0].Address)
	match := resetPathRegex.FindStringSubmatch(sent[0].TextContent)
	require.Len(t, match, 3)
	uid, token := match[1], match[2]

	reset := func(uid, token string) error {
		return env.UserSvc.ResetPassword(ctx, user.ResetUserPassword{UID: uid, Token: token, Password: "N3w-Pwd", PasswordConfirm: "N3w-Pwd"})
	}
	assert.Equal(t, map[string]string{"uid": "invalid value"}, testutil.FieldErrors(t, reset("lol", token)))
	assert.Equal(t, map[string]string{"token": "invalid value"}, testutil.FieldErrors(t, reset(uid, "lol-lol")))

	require.NoError(t, reset(uid, token))
	updated, err := env.UserSvc.GetByID(ctx, usr.ID)
	require.NoError(t, err)
	assert.NoError(t, updated.CheckPassword("N3w-Pwd"))

	// the token is bound to the previous password
	assert.Equal(t, map[string]string{"token": "invalid value"}, testutil.FieldErrors(t, reset(uid, token)))
}

func Test_service_AuthenticateGuardian(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	guardian := testutil.CreateGuardian(t, env.UserRepo, "Mom", "mom@test.co", "CC10203040ab")
	testutil.CreateUser(t, env.UserRepo, "Teacher", "teacher", "teacher@test.co", "", []string{user.RoleTeacher}, true)

	tests := []struct {
		name       string
		email      string
		idFragment string
		wantErr    bool
	}{
		{name: "fragment too short", email: "mom@test.co", idFragment: "0ab", wantErr: true},
		{name: "unknown email", email: "dad@test.co", idFragment: "3040AB", wantErr: true},
		{name: "not a guardian", email: "teacher@test.co", idFragment: "3040AB", wantErr: true},
		{name: "wrong fragment", email: "mom@test.co", idFragment: "9999", wantErr: true},
		{name: "prefix is not accepted", email: "mom@test.co", idFragment: "CC1020", wantErr: true},
		{name: "fragment longer than ID", email: "mom@test.co", idFragment: "XXCC10203040AB", wantErr: true},
		{name: "trailing fragment", email: "mom@test.co", idFragment: "40ab"},
		{name: "case and spaces ignored", email: " MOM@test.co", idFragment: " 3040AB "},
		{name: "whole ID", email: "mom@test.co", idFragment: "cc10203040ab"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := env.UserSvc.AuthenticateGuardian(ctx, tt.email, tt.idFragment)
			if tt.wantErr {
				assert.Equal(t, user.ErrGuardianAuthFailed, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, guardian.ID, got.ID)
		})
	}

	t.Run("inactive guardian", func(t *testing.T) {
		inactive := false
		_, err := env.UserSvc.Update(ctx, guardian.ID, user.UpdateUser{
			Name:       guardian.Name,
			Email:      guardian.Email,
			NationalID: guardian.NationalID,
			IsActive:   &inactive,
		})
		require.NoError(t, err)
		_, err = env.UserSvc.AuthenticateGuardian(ctx, "mom@test.co", "40ab")
		assert.Equal(t, user.ErrGuardianAuthFailed, err)
	})
}

func Test_service_studentChanges(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	student := testutil.CreateUser(t, env.UserRepo, "Ana", "anamaria", "ana@test.co", "", []string{user.RoleStudent}, true)
	teacher := testutil.CreateUser(t, env.UserRepo, "Teo", "teoteacher", "teo@test.co", "", []string{user.RoleTeacher}, true)
	sub := env.Broker.Subscribe(ctx)

	next := func() (events.Event, bool) {
		select {
		case ev := <-sub:
			return ev, true
		case <-time.After(100 * time.Millisecond):
			return events.Event{}, false
		}
	}

	_, err := env.UserSvc.Update(ctx, teacher.ID, user.UpdateUser{Name: "Teodoro", Email: teacher.Email})
	require.NoError(t, err)
	_, ok := next()
	assert.False(t, ok, "teacher updates are not published")

	_, err = env.UserSvc.Update(ctx, student.ID, user.UpdateUser{Name: "Ana Maria", Email: student.Email})
	require.NoError(t, err)
	ev, ok := next()
	require.True(t, ok)
	assert.Equal(t, events.UserChanged, ev.Kind)
	assert.Equal(t, student.ID, ev.StudentID)

	require.NoError(t, env.UserSvc.Delete(ctx, teacher.ID, student.ID))
	ev, ok = next()
	require.True(t, ok)
	assert.Equal(t, events.UserChanged, ev.Kind)
	assert.Equal(t, student.ID, ev.StudentID)
	_, ok = next()
	assert.False(t, ok)
}
