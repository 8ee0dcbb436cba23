package router

import (
	"database/sql"
	"time"

	"pharmacy_backend/internal/handlers"
	"pharmacy_backend/internal/middleware"
	"pharmacy_backend/internal/repositories"
	"pharmacy_backend/internal/services"
	"pharmacy_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// Setup initializes the routing for the application.
func Setup(engine *gin.Engine, db *sql.DB) {
	// Initialize Repositories
	authRepo := repositories.NewAuthRepository(db)
	drugRepo := repositories.NewDrugRepository(db)
	batchRepo := repositories.NewBatchRepository(db)
	transactionRepo := repositories.NewTransactionRepository(db)
	prescriptionRepo := repositories.NewPrescriptionRepository(db)
	opLogRepo := repositories.NewOperationLogRepository(db)
	historyRepo := repositories.NewStockHistoryRepository(db)
	txRunner := repositories.NewTxRunner(db)

	// Initialize Services
	jwtSecret := utils.Getenv("JWT_SECRET_KEY", "dev-only-pharmacy-backend-secret")
	jwtExpiration := time.Hour * 72

	authService := services.NewAuthService(authRepo, db, jwtSecret, jwtExpiration)
	drugService := services.NewDrugService(drugRepo, batchRepo, opLogRepo, txRunner)
	inventoryService := services.NewInventoryService(drugRepo, batchRepo, transactionRepo, txRunner)
	prescriptionService := services.NewPrescriptionService(prescriptionRepo, drugRepo, batchRepo, transactionRepo, txRunner)
	reportService := services.NewReportService(drugRepo, transactionRepo, historyRepo)
	opLogService := services.NewOperationLogService(opLogRepo)

	// Initialize Handlers
	authHandler := handlers.NewAuthHandler(authService)
	drugHandler := handlers.NewDrugHandler(drugService)
	inventoryHandler := handlers.NewInventoryHandler(inventoryService)
	prescriptionHandler := handlers.NewPrescriptionHandler(prescriptionService)
	reportHandler := handlers.NewReportHandler(reportService)
	opLogHandler := handlers.NewOperationLogHandler(opLogService)

	apiV1 := engine.Group("/api/v1")

	// Public routes
	apiV1.POST("/auth/login", authHandler.Login)

	// Authenticated routes
	authenticated := apiV1.Group("")
	authenticated.Use(middleware.AuthMiddleware())
	{
		authenticated.GET("/auth/me", authHandler.Profile)
		authenticated.POST("/auth/register", authHandler.Register)

		SetupDrugRoutes(authenticated, drugHandler, inventoryHandler)
		SetupBatchRoutes(authenticated, inventoryHandler)
		SetupPrescriptionRoutes(authenticated, prescriptionHandler)
		SetupReportRoutes(authenticated, reportHandler)
		SetupOperationLogRoutes(authenticated, opLogHandler)
	}
}
