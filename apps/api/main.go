package main

import (
	"context"
	"fmt"
	"log"
	"os"

	echoapi "github.com/thehouse/platform/apps/api/echo"
	"github.com/thehouse/platform/core"
	"github.com/thehouse/platform/core/academic"
	"github.com/thehouse/platform/core/auth"
	"github.com/thehouse/platform/core/calendar"
	"github.com/thehouse/platform/core/school"
	"github.com/thehouse/platform/core/user"
	emailsvc "github.com/thehouse/platform/services/email"
	logsvc "github.com/thehouse/platform/services/logger"
	"github.com/thehouse/platform/storage/database"
	sqlxrepos "github.com/thehouse/platform/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf, err := core.NewConfig(".")
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB
	if err = database.Migrate(conf); err != nil {
		logger.Fatal(fmt.Sprintf("migrating database: %v", err), err)
	}
	pool, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	defer func() {
		if err = pool.Close(); err != nil {
			logger.Error("failed to close DB", err)
		}
	}()
	db := database.NewCoreDB(pool)

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	usrRepo := sqlxrepos.NewUserRepository(pool)
	authz := auth.NewAuthorizer()

	usrSvc := user.NewService(conf, db, usrRepo, mailSvc)
	schoolSvc := school.NewService(db, sqlxrepos.NewSchoolRepository(pool), usrRepo, authz)
	academicSvc := academic.NewService(db, sqlxrepos.NewAcademicRepository(pool), authz)
	calendarSvc := calendar.NewService(db, sqlxrepos.NewCalendarRepository(pool), authz)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate, translator := core.NewValidator()
	user.RegisterValidators(validate, translator)
	school.RegisterValidators(validate, translator)

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:        conf,
			Logger:      logger,
			UserSvc:     usrSvc,
			SchoolSvc:   schoolSvc,
			AcademicSvc: academicSvc,
			CalendarSvc: calendarSvc,
			Validate:    validate,
			Translator:  translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}
