package main

import (
	"context"
	"fmt"

	"github.com/thehouse/platform/core/user"
)

// migrateRoles remaps every user holding `from` to `to`. Safe to re-run: a
// second pass finds nothing left to remap.
func (cli *commandLine) migrateRoles(from, to user.Role) error {
	remapped, err := cli.usrSvc.MigrateRole(context.Background(), from, to)
	if err != nil {
		return err
	}
	fmt.Printf("%d user(s) migrated from %s to %s\n", remapped, from, to)
	return nil
}
