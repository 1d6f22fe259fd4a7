package main

import (
	"github.com/rs/zerolog/log"
	"github.com/tkarren/castbucket/internal/common"
	"github.com/tkarren/castbucket/pkg/config"
)

func main() {
	cfg := config.LoadFromEnv()

	db, err := common.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	log.Info().Msg("migrations completed successfully")
}
