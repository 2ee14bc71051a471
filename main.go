package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"package-registry/api"
	"package-registry/config"
	"package-registry/index"
	"package-registry/orm"
	"package-registry/proxy"
	"package-registry/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	db, err := orm.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close database")
		}
	}()

	store, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open blob storage")
	}

	idx := index.New(store)
	fed := proxy.New(cfg.Mirrors(), cfg.MirrorTimeout())
	server := api.NewServer(cfg, db, idx, fed)

	log.Info().
		Str("listen", cfg.API.Listen).
		Str("backend", cfg.Storage.Backend).
		Bool("auth", cfg.Features.Auth).
		Bool("proxy", fed.Enabled()).
		Msg("starting registry")

	if err := server.Router().Run(cfg.API.Listen); err != nil {
		log.Fatal().Err(err).Msg("server terminated")
	}
}

func openStore(cfg *config.AppConfig) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case "", "filesystem":
		return storage.NewFilesystem(cfg.Storage.Root)
	case "s3":
		return storage.NewS3(cfg.Storage.S3)
	case "memory":
		return storage.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
