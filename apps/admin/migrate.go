package main

import (
	"github.com/thehouse/platform/storage/database"
)

var migrateFunc = database.Migrate // mockable

func (cli *commandLine) migrate() error {
	return migrateFunc(cli.conf)
}
