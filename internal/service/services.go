package service

import (
	"log/slog"
	"time"

	"github.com/brandscope/brandscope-api/internal/config"
	"github.com/brandscope/brandscope-api/internal/repository"
)

// Services holds all service instances.
type Services struct {
	Pipeline *Pipeline
}

// NewServices creates all service instances.
func NewServices(cfg *config.Config, repos *repository.Repositories, scraper PageScraper,
	gateway LLMCaller, evidence EvidenceChecker, logger *slog.Logger) *Services {
	runTTL := cfg.RunExpiration
	if runTTL == 0 {
		runTTL = 7 * 24 * time.Hour
	}
	return &Services{
		Pipeline: NewPipeline(repos.Run, scraper, gateway, evidence, runTTL, logger),
	}
}
