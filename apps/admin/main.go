package main

import (
	"log"
	"os"

	"github.com/thehouse/platform/core"
	"github.com/thehouse/platform/core/user"
	emailsvc "github.com/thehouse/platform/services/email"
	"github.com/thehouse/platform/storage/database"
	sqlxrepos "github.com/thehouse/platform/storage/database/sqlx"
)

func main() {
	logger := log.New(os.Stderr, "ADMIN : ", log.LstdFlags|log.Lshortfile)

	conf, err := core.NewConfig(".")
	if err != nil {
		errAndDie(logger, err)
	}

	pool, err := database.Open(conf)
	if err != nil {
		errAndDie(logger, err)
	}
	defer pool.Close()

	usrRepo := sqlxrepos.NewUserRepository(pool)
	usrSvc := user.NewService(conf, database.NewCoreDB(pool), usrRepo, emailsvc.NewConsoleService(conf))

	cli := &commandLine{conf: conf, usrRepo: usrRepo, usrSvc: usrSvc}
	if err := cli.run(os.Args); err != nil {
		if err == errHelp {
			os.Exit(2)
		}
		errAndDie(logger, err)
	}
}

func errAndDie(logger *log.Logger, err error) {
	logger.Println(err)
	os.Exit(1)
}
