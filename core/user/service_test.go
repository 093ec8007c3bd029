package user_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thehouse/platform/core"
	"github.com/thehouse/platform/core/user"
	emailsvc "github.com/thehouse/platform/services/email"
	dummydb "github.com/thehouse/platform/storage/database/dummy"
)

func newTestService(t *testing.T) (*user.Service, *core.Config) {
	t.Helper()

	db, err := dummydb.Open()
	require.NoError(t, err)

	conf := &core.Config{
		TestMode:                  true,
		AppName:                   "The House",
		SecretKey:                 []byte("s3cret"),
		FrontendBaseURL:           "http://localhost:3000",
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
	}
	return user.NewService(conf, db, dummydb.NewUserRepository(db), emailsvc.NewConsoleServiceMock(conf)), conf
}

func createUser(t *testing.T, svc *user.Service, name, email string, role user.Role) user.User {
	t.Helper()

	usr, err := svc.Create(context.Background(), user.NewUser{
		Name:            name,
		Email:           email,
		Role:            role,
		Password:        "v3ryS3cret",
		PasswordConfirm: "v3ryS3cret",
	})
	require.NoError(t, err)
	return usr
}

// setActive flips the active flag the way the API layer does: the update
// carries the user's current name and email alongside the change.
func setActive(t *testing.T, svc *user.Service, usr user.User, active bool) {
	t.Helper()
	_, err := svc.Update(context.Background(), usr.ID, user.UpdateUser{
		Name: usr.Name, Email: usr.Email, IsActive: &active,
	})
	require.NoError(t, err)
}

func TestServiceCreateAndGet(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	usr := createUser(t, svc, "Jane Doe", "jane@test.com", user.RoleDirector)
	assert.NotZero(t, usr.ID)
	assert.True(t, usr.IsActive)
	assert.NoError(t, usr.CheckPassword("v3ryS3cret"))

	got, err := svc.GetByID(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, usr.Email, got.Email)

	// lookup is case-insensitive
	got, err = svc.GetByEmail(ctx, "JANE@Test.Com")
	require.NoError(t, err)
	assert.Equal(t, usr.ID, got.ID)

	_, err = svc.GetByID(ctx, 999)
	assert.ErrorIs(t, err, user.ErrNotFound)

	// duplicate email
	_, err = svc.Create(ctx, user.NewUser{
		Name: "Imposter", Email: "jane@test.com", Role: user.RoleSecretary,
		Password: "v3ryS3cret", PasswordConfirm: "v3ryS3cret",
	})
	assert.ErrorIs(t, err, user.ErrEmailExists)
}

func TestServiceCheckUniqueness(t *testing.T) {
	svc, _ := newTestService(t)

	usr := createUser(t, svc, "Jane Doe", "jane@test.com", user.RoleDirector)

	err := svc.CheckUniqueness("jane@test.com")
	var conflictErr *core.ConflictError
	require.ErrorAs(t, err, &conflictErr)
	assert.Equal(t, "email", conflictErr.Field)

	// the user itself can keep its email
	assert.NoError(t, svc.CheckUniqueness("jane@test.com", usr))
	assert.NoError(t, svc.CheckUniqueness("other@test.com"))
}

func TestServiceQuery(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	createUser(t, svc, "Jane Doe", "jane@test.com", user.RoleDirector)
	sec := createUser(t, svc, "John Smith", "john@test.com", user.RoleSecretary)
	setActive(t, svc, sec, false)

	users, err := svc.Query(ctx, nil, nil)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	users, err = svc.Query(ctx, &user.QueryFilter{Search: "smith"}, nil)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, sec.ID, users[0].ID)

	users, err = svc.Query(ctx, &user.QueryFilter{Roles: []user.Role{user.RoleDirector}}, nil)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	users, err = svc.Query(ctx, &user.QueryFilter{IsActive: boolPtr(true)}, nil)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestServiceUpdateAndDelete(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	usr := createUser(t, svc, "Jane Doe", "jane@test.com", user.RoleSecretary)

	updated, err := svc.Update(ctx, usr.ID, user.UpdateUser{
		Name:            "Jane D. Doe",
		Email:           usr.Email,
		Role:            user.RoleCoordinator,
		Password:        "an0therS3cret",
		PasswordConfirm: "an0therS3cret",
	})
	require.NoError(t, err)
	assert.Equal(t, "Jane D. Doe", updated.Name)
	assert.Equal(t, user.RoleCoordinator, updated.Role)
	assert.NoError(t, updated.CheckPassword("an0therS3cret"))

	require.NoError(t, svc.Delete(ctx, usr.ID))
	_, err = svc.GetByID(ctx, usr.ID)
	assert.ErrorIs(t, err, user.ErrNotFound)
}

func TestServicePasswordReset(t *testing.T) {
	svc, conf := newTestService(t)
	ctx := context.Background()

	usr := createUser(t, svc, "Jane Doe", "jane@test.com", user.RoleDirector)

	t.Run("request emails a reset link", func(t *testing.T) {
		emailsvc.ClearSentMessages()

		require.NoError(t, svc.RequestPasswordReset(ctx, "jane@test.com"))
		require.Len(t, emailsvc.SentMessages, 1)

		msg := emailsvc.SentMessages[0]
		require.Len(t, msg.To, 1)
		assert.Equal(t, usr.Email, msg.To[0].Address)
		assert.Contains(t, msg.TextContent, "uid="+user.EncodeUID(usr))
	})

	t.Run("unknown email", func(t *testing.T) {
		assert.ErrorIs(t, svc.RequestPasswordReset(ctx, "ghost@test.com"), user.ErrNotFound)
	})

	t.Run("deactivated account", func(t *testing.T) {
		setActive(t, svc, usr, false)
		defer setActive(t, svc, usr, true)
		assert.ErrorIs(t, svc.RequestPasswordReset(ctx, "jane@test.com"), user.ErrNotFound)
	})

	t.Run("reset with a valid token", func(t *testing.T) {
		current, err := svc.GetByID(ctx, usr.ID)
		require.NoError(t, err)
		token, err := user.MakeToken(conf, current)
		require.NoError(t, err)

		err = svc.ResetPassword(ctx, user.ResetUserPassword{
			UID:             user.EncodeUID(current),
			Token:           token,
			Password:        "freshS3cret",
			PasswordConfirm: "freshS3cret",
		})
		require.NoError(t, err)

		current, err = svc.GetByID(ctx, usr.ID)
		require.NoError(t, err)
		assert.NoError(t, current.CheckPassword("freshS3cret"))
	})

	t.Run("garbage uid", func(t *testing.T) {
		err := svc.ResetPassword(ctx, user.ResetUserPassword{
			UID: "!!!", Token: "whatever", Password: "freshS3cret", PasswordConfirm: "freshS3cret",
		})
		var vErr *core.ValidationError
		require.ErrorAs(t, err, &vErr)
	})

	t.Run("tampered token", func(t *testing.T) {
		current, err := svc.GetByID(ctx, usr.ID)
		require.NoError(t, err)
		err = svc.ResetPassword(ctx, user.ResetUserPassword{
			UID: user.EncodeUID(current), Token: "AAAA-bogus", Password: "freshS3cret", PasswordConfirm: "freshS3cret",
		})
		var vErr *core.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, err.Error(), "invalid token")
	})
}

func TestServiceMigrateRole(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.MigrateRole(ctx, user.RoleAdmin, "BOGUS")
	assert.ErrorIs(t, err, user.ErrInvalidRole)

	_, err = svc.MigrateRole(ctx, user.RoleDirector, user.RoleDirector)
	assert.ErrorIs(t, err, user.ErrInvalidRole)

	// legacy rows still holding the retired value
	for i := 0; i < 3; i++ {
		usr := createUser(t, svc, fmt.Sprintf("Admin %d", i), fmt.Sprintf("admin%d@test.com", i), user.RoleDirector)
		_, err = svc.Update(ctx, usr.ID, user.UpdateUser{Name: usr.Name, Email: usr.Email, Role: user.RoleAdmin})
		require.NoError(t, err)
	}

	remapped, err := svc.MigrateRole(ctx, user.RoleAdmin, user.RoleDirector)
	require.NoError(t, err)
	assert.EqualValues(t, 3, remapped)

	users, err := svc.Query(ctx, &user.QueryFilter{Roles: []user.Role{user.RoleDirector}}, nil)
	require.NoError(t, err)
	assert.Len(t, users, 3)

	// idempotent: nothing left to remap
	remapped, err = svc.MigrateRole(ctx, user.RoleAdmin, user.RoleDirector)
	require.NoError(t, err)
	assert.EqualValues(t, 0, remapped)
}

func boolPtr(b bool) *bool { return &b }
