package main

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/thehouse/platform/core"
	"github.com/thehouse/platform/core/user"
)

// addUser creates or updates a staff account. It is the bootstrap path for
// the first DIRECTOR on a fresh install.
func (cli *commandLine) addUser(name, email string, role user.Role, pwd string) error {
	if !role.Canonical() {
		return errors.Wrapf(user.ErrInvalidRole, "%q is not an assignable role", role)
	}

	ctx := context.Background()
	name = core.CleanString(name)
	email = core.CleanString(email, true /* lower */)

	now := time.Now().UTC()
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: email})
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
		usr = user.User{
			Name:      name,
			Email:     email,
			CreatedAt: now,
		}
	}
	usr.Name = name
	usr.Role = role
	usr.IsActive = true
	usr.UpdatedAt = now
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}

	if usr.ID == 0 {
		_, err = cli.usrRepo.CreateUser(ctx, usr)
	} else {
		_, err = cli.usrRepo.UpdateUser(ctx, usr, &usr.IsActive)
	}
	return err
}
