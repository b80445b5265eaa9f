//go:build wireinject
// +build wireinject

package main

import (
	"neighborvendors_backend/internal/app"
	"neighborvendors_backend/internal/community"
	"neighborvendors_backend/internal/config"
	"neighborvendors_backend/internal/firebase"
	"neighborvendors_backend/internal/jobs"
	"neighborvendors_backend/internal/notification"
	"neighborvendors_backend/internal/onboarding"
	"neighborvendors_backend/internal/platform/database"
	"neighborvendors_backend/internal/platform/logger"
	platformredis "neighborvendors_backend/internal/platform/redis"
	"neighborvendors_backend/internal/shared"
	"neighborvendors_backend/internal/user"

	"github.com/google/wire"
)

// initializeServer is the main Wire injector.
func initializeServer(cfg *config.Config) (*app.Server, func(), error) {
	wire.Build(
		// Platform Layer
		logger.New,
		database.NewGORM,
		platformredis.New,

		// Authentication provider
		firebase.NewService,
		wire.Bind(new(shared.AuthProvider), new(*firebase.Service)),

		// Profile store
		user.NewGORMRepository,
		user.NewService,
		wire.Bind(new(shared.Service), new(*user.ServiceImplementation)),

		// Community resolution
		community.NewGORMRepository,
		community.NewResolver,

		// Notification side-channel
		notification.NewRabbit,
		notification.NewService,

		// Onboarding core
		onboarding.NewSingleUseStore,
		onboarding.NewReturnPathRouter,
		onboarding.NewOrphanRepairer,
		onboarding.NewInviteConsumer,
		onboarding.NewConsentGate,
		onboarding.NewFinalizer,
		onboarding.NewSessionObserver,
		onboarding.NewHandler,

		// Jobs
		jobs.NewOrphanSweepJob,

		// Application Layer
		app.NewServer,
	)
	return nil, nil, nil
}
