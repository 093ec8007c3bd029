package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thehouse/platform/core"
	"github.com/thehouse/platform/core/user"
	emailsvc "github.com/thehouse/platform/services/email"
	dummydb "github.com/thehouse/platform/storage/database/dummy"
)

func newTestCommandLine(t *testing.T) *commandLine {
	t.Helper()

	db, err := dummydb.Open()
	require.NoError(t, err)

	conf := &core.Config{TestMode: true, SecretKey: []byte("secret")}
	usrRepo := dummydb.NewUserRepository(db)
	usrSvc := user.NewService(conf, db, usrRepo, emailsvc.NewConsoleServiceMock(conf))
	return &commandLine{conf: conf, usrRepo: usrRepo, usrSvc: usrSvc}
}

func seedUser(t *testing.T, cli *commandLine, name, email string, role user.Role) user.User {
	t.Helper()

	now := time.Now().UTC()
	usr := user.User{Name: name, Email: email, Role: role, IsActive: true, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, usr.SetPassword("initialpass"))
	usr, err := cli.usrRepo.CreateUser(context.Background(), usr)
	require.NoError(t, err)
	return usr
}

func TestCommandLine(t *testing.T) {
	origReadPassword := readPasswordFunc
	defer func() { readPasswordFunc = origReadPassword }()

	password := "s3cretPa55"
	readPasswordFunc = func(fd int) ([]byte, error) { return []byte(password), nil }

	ctx := context.Background()

	type cliTest struct {
		name       string
		args       []string
		password   string
		seed       func(t *testing.T, cli *commandLine)
		wantErr    error
		wantErrStr string
		extra      func(t *testing.T, cli *commandLine)
	}
	tests := []cliTest{
		{
			name:    "no args",
			args:    []string{"admin"},
			wantErr: errHelp,
		},
		{
			name:    "unknown command",
			args:    []string{"admin", "dropdb"},
			wantErr: errHelp,
		},
		{
			name:    "adduser: missing flags",
			args:    []string{"admin", "adduser", "-name", "Jane Doe"},
			wantErr: errHelp,
		},
		{
			name:     "adduser: empty password",
			args:     []string{"admin", "adduser", "-name", "Jane Doe", "-email", "jane@test.com"},
			password: "",
			wantErr:  errHelp,
		},
		{
			name:       "adduser: retired role rejected",
			args:       []string{"admin", "adduser", "-name", "Jane Doe", "-email", "jane@test.com", "-role", "ADMIN"},
			wantErr:    user.ErrInvalidRole,
			wantErrStr: "not an assignable role",
		},
		{
			name: "adduser: creates a director by default",
			args: []string{"admin", "adduser", "-name", " Jane Doe ", "-email", "Jane@Test.com"},
			extra: func(t *testing.T, cli *commandLine) {
				usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: "jane@test.com"})
				require.NoError(t, err)
				assert.Equal(t, "Jane Doe", usr.Name)
				assert.Equal(t, user.RoleDirector, usr.Role)
				assert.True(t, usr.IsActive)
				assert.NoError(t, usr.CheckPassword(password))
			},
		},
		{
			name: "adduser: updates an existing account in place",
			args: []string{"admin", "adduser", "-name", "Jane Doe", "-email", "jane@test.com", "-role", "SECRETARY"},
			seed: func(t *testing.T, cli *commandLine) {
				seedUser(t, cli, "Jane D.", "jane@test.com", user.RoleTeacher)
			},
			extra: func(t *testing.T, cli *commandLine) {
				usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: "jane@test.com"})
				require.NoError(t, err)
				assert.Equal(t, user.RoleSecretary, usr.Role)
				assert.NoError(t, usr.CheckPassword(password))

				users, err := cli.usrRepo.QueryUsers(ctx, nil, nil)
				require.NoError(t, err)
				assert.Len(t, users, 1)
			},
		},
		{
			name:    "resetpassword: missing email",
			args:    []string{"admin", "resetpassword"},
			wantErr: errHelp,
		},
		{
			name:    "resetpassword: unknown email",
			args:    []string{"admin", "resetpassword", "-email", "ghost@test.com"},
			wantErr: user.ErrNotFound,
		},
		{
			name: "resetpassword: ok",
			args: []string{"admin", "resetpassword", "-email", "john@test.com"},
			seed: func(t *testing.T, cli *commandLine) {
				seedUser(t, cli, "John Doe", "john@test.com", user.RoleSecretary)
			},
			extra: func(t *testing.T, cli *commandLine) {
				usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: "john@test.com"})
				require.NoError(t, err)
				assert.NoError(t, usr.CheckPassword(password))
				assert.Error(t, usr.CheckPassword("initialpass"))
			},
		},
		{
			name:    "migrateroles: missing flags",
			args:    []string{"admin", "migrateroles", "-from", "ADMIN"},
			wantErr: errHelp,
		},
		{
			name:    "migrateroles: non-canonical target",
			args:    []string{"admin", "migrateroles", "-from", "ADMIN", "-to", "BOGUS"},
			wantErr: user.ErrInvalidRole,
		},
		{
			name: "migrateroles: remaps retired roles",
			args: []string{"admin", "migrateroles", "-from", "PEDAGOGUE", "-to", "COORDINATOR"},
			seed: func(t *testing.T, cli *commandLine) {
				seedUser(t, cli, "Old Pedagogue", "ped@test.com", user.Role("PEDAGOGUE"))
				seedUser(t, cli, "A Teacher", "teach@test.com", user.RoleTeacher)
			},
			extra: func(t *testing.T, cli *commandLine) {
				usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: "ped@test.com"})
				require.NoError(t, err)
				assert.Equal(t, user.RoleCoordinator, usr.Role)

				usr, err = cli.usrRepo.GetUser(ctx, user.GetFilter{Email: "teach@test.com"})
				require.NoError(t, err)
				assert.Equal(t, user.RoleTeacher, usr.Role)

				// second run finds nothing left to remap
				remapped, err := cli.usrSvc.MigrateRole(ctx, user.Role("PEDAGOGUE"), user.RoleCoordinator)
				require.NoError(t, err)
				assert.EqualValues(t, 0, remapped)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			password = "s3cretPa55"
			if tt.name == "adduser: empty password" {
				password = tt.password
			}

			cli := newTestCommandLine(t)
			if tt.seed != nil {
				tt.seed(t, cli)
			}

			err := cli.run(tt.args)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				if tt.wantErrStr != "" {
					assert.Contains(t, err.Error(), tt.wantErrStr)
				}
			} else {
				require.NoError(t, err)
			}
			if tt.extra != nil {
				tt.extra(t, cli)
			}
		})
	}
}

func TestCommandLineMigrate(t *testing.T) {
	origMigrate := migrateFunc
	defer func() { migrateFunc = origMigrate }()

	var gotConf *core.Config
	migrateFunc = func(conf *core.Config) error {
		gotConf = conf
		return nil
	}

	cli := newTestCommandLine(t)
	require.NoError(t, cli.run([]string{"admin", "migrate"}))
	assert.Same(t, cli.conf, gotConf)
}
