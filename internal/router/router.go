package router

import (
	"time"

	"devisbtp/internal/billing"
	"devisbtp/internal/config"
	"devisbtp/internal/handler"
	"devisbtp/internal/middleware"
	"devisbtp/internal/repository"
	"devisbtp/internal/service"
	"devisbtp/internal/worker"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// New wires all dependencies and returns a configured Gin engine.
// Dependency graph: Handler ← Service ← Repository ← DB/Redis
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client, dispatcher *worker.Dispatcher) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// ── Global middleware ────────────────────────────────────────────────────
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.RateLimiter(1000, time.Minute)) // 1000 req/min per IP

	// ── Repositories ─────────────────────────────────────────────────────────
	devisRepo := repository.NewDevisRepository(db)
	catalogueRepo := repository.NewCatalogueRepository(db)
	situationRepo := repository.NewSituationRepository(db)
	avenantRepo := repository.NewAvenantRepository(db)
	chantierRepo := repository.NewChantierRepository(db)

	// ── Services ─────────────────────────────────────────────────────────────
	taux, err := cfg.Defaults()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid default rates")
	}
	defauts := billing.Retenues{TauxRetenueGarantie: taux.RetenueGarantie, TauxProrata: taux.Prorata}

	cacheTTL := time.Duration(cfg.TotauxCacheTTLMinutes) * time.Minute
	devisSvc := service.NewDevisService(devisRepo, rdb, cacheTTL)
	situationSvc := service.NewSituationService(situationRepo, devisRepo, chantierRepo, avenantRepo, dispatcher, cfg.PDFStoragePath, defauts)
	avenantSvc := service.NewAvenantService(avenantRepo, chantierRepo)
	recalculSvc := service.NewRecalculService(catalogueRepo, devisRepo)
	catalogueSvc := service.NewCatalogueService(catalogueRepo)

	// ── Handlers ─────────────────────────────────────────────────────────────
	devisH := handler.NewDevisHandler(devisSvc, recalculSvc)
	situationsH := handler.NewSituationsHandler(situationSvc)
	avenantsH := handler.NewAvenantsHandler(avenantSvc)
	catalogueH := handler.NewCatalogueHandler(catalogueSvc, recalculSvc)

	// ── Routes ───────────────────────────────────────────────────────────────
	r.GET("/health", handler.Health(db, rdb))

	lecture := middleware.RequireRole(middleware.RoleLecture, middleware.RoleConducteur, middleware.RoleAdministrateur)
	ecriture := middleware.RequireRole(middleware.RoleConducteur, middleware.RoleAdministrateur)
	admin := middleware.RequireRole(middleware.RoleAdministrateur)

	v1 := r.Group("/v1", middleware.JWTAuth(cfg.JWTSecret))
	{
		devis := v1.Group("/devis")
		{
			devis.GET("/:id/totaux", lecture, devisH.Totaux)
			devis.GET("/:id/export", lecture, devisH.Exporter)
			devis.POST("/:id/recalcul", ecriture, devisH.Recalculer)
			devis.POST("/:id/recalcul-prix", ecriture, devisH.RecalculerPrix)
			devis.POST("/:id/lignes-speciales", ecriture, devisH.AjouterLigneSpeciale)
			devis.DELETE("/:id/lignes-speciales/:ligne_id", ecriture, devisH.SupprimerLigneSpeciale)
		}

		catalogue := v1.Group("/catalogue")
		{
			catalogue.GET("/parties", lecture, catalogueH.ListerParties)
			catalogue.POST("/recalcul-prix", admin, catalogueH.RecalculerPrix)
		}

		situations := v1.Group("/situations")
		{
			situations.POST("", ecriture, situationsH.Creer)
			situations.GET("/:id", lecture, situationsH.Obtenir)
			situations.GET("/:id/pdf", lecture, situationsH.PDF)
			situations.PUT("/:id", ecriture, situationsH.MettreAJour)
			situations.DELETE("/:id", ecriture, situationsH.Supprimer)
			situations.POST("/:id/valider", ecriture, situationsH.Valider)
			situations.POST("/:id/facturer", ecriture, situationsH.Facturer)
			situations.POST("/:id/correction", ecriture, situationsH.Corriger)
		}

		chantiers := v1.Group("/chantiers")
		{
			chantiers.GET("/:id/situations", lecture, situationsH.ListerParChantier)
			chantiers.GET("/:id/avenants", lecture, avenantsH.Lister)
			chantiers.POST("/:id/avenants", ecriture, avenantsH.Creer)
		}
	}

	// Swagger UI (development only)
	if cfg.Env != "production" {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	return r
}
