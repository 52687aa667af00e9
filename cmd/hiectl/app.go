package main

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/Abstractive-Health/abstractivehealth-hie/internal/config"
	"github.com/Abstractive-Health/abstractivehealth-hie/internal/directory"
	"github.com/Abstractive-Health/abstractivehealth-hie/internal/httpapi"
	"github.com/Abstractive-Health/abstractivehealth-hie/internal/obslog"
	"github.com/Abstractive-Health/abstractivehealth-hie/internal/orchestrator"
	"github.com/Abstractive-Health/abstractivehealth-hie/internal/pipeline"
	"github.com/Abstractive-Health/abstractivehealth-hie/internal/responder"
	"github.com/Abstractive-Health/abstractivehealth-hie/internal/samlassert"
	"github.com/Abstractive-Health/abstractivehealth-hie/internal/store"
	"github.com/Abstractive-Health/abstractivehealth-hie/internal/transport"
)

// app is the fully-wired set of collaborators every subcommand needs,
// assembled once from the resolved configuration.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	db       *sql.DB
	resolver *directory.Resolver
	driver   *pipeline.Driver
	handler  *httpapi.Handler
}

func newApp() (*app, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := obslog.New(viper.GetBool("pretty-log"))

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	var cache *redis.Client
	if cfg.RedisAddr != "" {
		cache = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}
	resolver := directory.NewResolver(db, cache)

	creds, err := transport.LoadCredentials(cfg.ClientCertPath, cfg.ClientKeyPath, cfg.TrustedCAsPath)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	client := transport.NewClient(creds, 60*time.Second)

	driver := &pipeline.Driver{
		Client:      client,
		Credentials: creds,
		SAMLAttrs: samlassert.Attributes{
			PurposeOfUseCode: "TREAT",
			RoleCode:         "TREATING_PROVIDER",
		},
		SenderHCID: cfg.SenderHCID,
	}

	st := store.New(db)
	search := &orchestrator.Search{Driver: driver, Resolver: resolver, Store: st}

	handler := &httpapi.Handler{
		Search:   search,
		Resolver: resolver,
		ITI55Responder: &responder.ITI55{
			LocalURLs:   []string{cfg.SenderHCID},
			OurHCID:     cfg.SenderHCID,
			Store:       st,
			Credentials: creds,
		},
		ITI38Responder: &responder.ITI38{
			LocalURLs:   []string{cfg.SenderHCID},
			OurHCID:     cfg.SenderHCID,
			Store:       st,
			Credentials: creds,
		},
		ITI39Responder: &responder.ITI39{
			LocalURLs:   []string{cfg.SenderHCID},
			OurHCID:     cfg.SenderHCID,
			Store:       st,
			Credentials: creds,
		},
	}

	return &app{cfg: cfg, log: log, db: db, resolver: resolver, driver: driver, handler: handler}, nil
}
