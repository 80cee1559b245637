package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	httpapi "github.com/dillydallydog/dogart/internal/http"
	"github.com/dillydallydog/dogart/internal/http/handlers"
	"github.com/dillydallydog/dogart/internal/infra"
	"github.com/dillydallydog/dogart/internal/lineart"
	"github.com/dillydallydog/dogart/internal/providers/openai"
	"github.com/dillydallydog/dogart/internal/providers/replicate"
	"github.com/dillydallydog/dogart/internal/providers/stability"
	"github.com/dillydallydog/dogart/internal/race"
	"github.com/dillydallydog/dogart/internal/shopify"
	"github.com/dillydallydog/dogart/internal/storage"
	"github.com/dillydallydog/dogart/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()

	// The local filter always runs; provider adapters join the race only
	// when their credentials are present.
	local := lineart.Producer{Variant: lineart.ParseVariant(cfg.LineArtVariant)}
	producers := []race.Producer{local}

	if oa := openai.NewClient(openai.Options{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
		Logger:  logger,
	}); oa.HasCredentials() {
		producers = append(producers, oa)
	}
	if rep := replicate.NewClient(replicate.Options{
		Token:   cfg.ReplicateToken,
		BaseURL: cfg.ReplicateBaseURL,
		Models:  replicate.DefaultModels(),
		Logger:  logger,
	}); rep.HasCredentials() {
		producers = append(producers, rep)
	}
	if st := stability.NewClient(stability.Options{
		APIKey:  cfg.StabilityAPIKey,
		BaseURL: cfg.StabilityBaseURL,
		Logger:  logger,
	}); st.HasCredentials() {
		producers = append(producers, st)
	}
	logger.Info().Int("candidates", len(producers)).Msg("line art race configured")

	var previews *store.PreviewStore
	if cfg.DatabaseURL != "" {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer pool.Close()
		previews, err = store.NewPreviewStore(ctx, pool, cfg.PreviewCacheTTL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to prepare preview cache")
		}
		go previews.RunSweeper(ctx, 0)
	}

	files, err := storage.NewFileStore(cfg.StorageDir, cfg.StorageBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare artwork storage")
	}

	uploader := shopify.NewClient(shopify.Options{
		ShopDomain:  cfg.ShopifyShopDomain,
		AccessToken: cfg.ShopifyAdminToken,
		APIVersion:  cfg.ShopifyAPIVersion,
		Logger:      logger,
	})

	app := &handlers.App{
		Logger: logger,
		Cfg:    cfg,
		Race: race.Race{
			Producers: producers,
			Fallback:  local.Name(),
			Deadline:  cfg.PreviewDeadline,
			Logger:    logger,
		},
		Uploader: uploader,
		Files:    files,
	}
	if previews != nil {
		app.Previews = previews
	}

	router := httpapi.NewRouter(app)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
