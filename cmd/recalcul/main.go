// cmd/recalcul recomputes catalog prices from their compositions and,
// with -devis, copies them onto a brouillon devis.
// Usage: go run ./cmd/recalcul [-devis <uuid>]
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"devisbtp/internal/config"
	"devisbtp/internal/infra"
	"devisbtp/internal/repository"
	"devisbtp/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	devisFlag := flag.String("devis", "", "UUID d'un devis brouillon dont les prix unitaires sont rafraîchis")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	db, err := infra.NewDatabase(cfg.DatabaseURL, false)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	svc := service.NewRecalculService(repository.NewCatalogueRepository(db), repository.NewDevisRepository(db))

	res, err := svc.RecalculerCatalogue(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("catalogue recalcul failed")
	}
	log.Info().Int("examinees", res.Examinees).Int("modifiees", res.Modifiees).Msg("catalogue recalculé")

	if *devisFlag == "" {
		return
	}
	devisID, err := uuid.Parse(*devisFlag)
	if err != nil {
		log.Fatal().Err(err).Str("devis", *devisFlag).Msg("invalid devis id")
	}
	res, err = svc.RecalculerPrixDevis(ctx, devisID)
	if err != nil {
		log.Fatal().Err(err).Str("devis_id", devisID.String()).Msg("devis recalcul failed")
	}
	log.Info().Str("devis_id", devisID.String()).Int("modifiees", res.Modifiees).Msg("prix du devis rafraîchis")
}
