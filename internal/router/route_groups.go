package router

import (
	"pharmacy_backend/internal/handlers"
	"pharmacy_backend/internal/middleware"
	"pharmacy_backend/internal/models"

	"github.com/gin-gonic/gin"
)

// SetupDrugRoutes sets up the drug catalog and per-drug inventory routes.
func SetupDrugRoutes(authenticatedGroup *gin.RouterGroup, drugHandler *handlers.DrugHandler, inventoryHandler *handlers.InventoryHandler) {
	drugRoutes := authenticatedGroup.Group("/drugs")
	{
		drugRoutes.GET("", drugHandler.GetDrugs)
		drugRoutes.GET("/:id", drugHandler.GetDrugByID)
		drugRoutes.GET("/:id/stock", inventoryHandler.GetTotalStock)
		drugRoutes.GET("/:id/batches", inventoryHandler.ListBatches)
		drugRoutes.GET("/:id/transactions", inventoryHandler.GetDrugTransactions)
		drugRoutes.GET("/:id/outbound-total", inventoryHandler.GetOutboundTotal)

		adminOnly := drugRoutes.Group("")
		adminOnly.Use(middleware.RoleAuthMiddleware(models.RoleAdmin))
		{
			adminOnly.POST("", drugHandler.CreateDrug)
			adminOnly.PUT("/:id", drugHandler.UpdateDrug)
			adminOnly.DELETE("/:id", drugHandler.DeleteDrug)
		}

		stockWriters := drugRoutes.Group("")
		stockWriters.Use(middleware.RoleAuthMiddleware(models.RoleAdmin, models.RolePharmacist))
		{
			stockWriters.POST("/:id/batches", inventoryHandler.AddBatch)
			stockWriters.POST("/:id/consume", inventoryHandler.Consume)
		}
	}

	authenticatedGroup.GET("/suppliers", drugHandler.GetSuppliers)
}

// SetupBatchRoutes sets up batch-level routes that are not scoped to a drug.
func SetupBatchRoutes(authenticatedGroup *gin.RouterGroup, inventoryHandler *handlers.InventoryHandler) {
	batchRoutes := authenticatedGroup.Group("/batches")
	{
		batchRoutes.GET("/expiring", inventoryHandler.GetExpiringBatches)

		stockWriters := batchRoutes.Group("")
		stockWriters.Use(middleware.RoleAuthMiddleware(models.RoleAdmin, models.RolePharmacist))
		{
			stockWriters.PATCH("/:id/adjust", inventoryHandler.AdjustBatch)
		}
	}
}

// SetupPrescriptionRoutes sets up the prescription workflow routes.
func SetupPrescriptionRoutes(authenticatedGroup *gin.RouterGroup, prescriptionHandler *handlers.PrescriptionHandler) {
	prescriptionRoutes := authenticatedGroup.Group("/prescriptions")
	{
		prescriptionRoutes.GET("", prescriptionHandler.GetPrescriptions)
		prescriptionRoutes.GET("/:id", prescriptionHandler.GetPrescriptionByID)

		writers := prescriptionRoutes.Group("")
		writers.Use(middleware.RoleAuthMiddleware(models.RoleAdmin, models.RoleDoctor))
		{
			writers.POST("", prescriptionHandler.CreatePrescription)
		}

		// Status transitions carry their own per-transition role checks in
		// the service, so the route admits all three roles.
		transitions := prescriptionRoutes.Group("")
		transitions.Use(middleware.RoleAuthMiddleware(models.RoleAdmin, models.RolePharmacist, models.RoleDoctor))
		{
			transitions.PATCH("/:id/status", prescriptionHandler.UpdatePrescriptionStatus)
		}
	}
}

// SetupReportRoutes sets up the reporting routes.
func SetupReportRoutes(authenticatedGroup *gin.RouterGroup, reportHandler *handlers.ReportHandler) {
	reportRoutes := authenticatedGroup.Group("/reports")
	reportRoutes.Use(middleware.RoleAuthMiddleware(models.RoleAdmin, models.RolePharmacist))
	{
		reportRoutes.GET("/inventory", reportHandler.GetInventoryReport)
		reportRoutes.GET("/consumption", reportHandler.GetConsumptionReport)
		reportRoutes.GET("/stock-history", reportHandler.GetStockHistory)
	}
}

// SetupOperationLogRoutes sets up the catalog audit log routes.
func SetupOperationLogRoutes(authenticatedGroup *gin.RouterGroup, opLogHandler *handlers.OperationLogHandler) {
	opLogRoutes := authenticatedGroup.Group("/operation-logs")
	opLogRoutes.Use(middleware.RoleAuthMiddleware(models.RoleAdmin))
	{
		opLogRoutes.GET("", opLogHandler.GetLogs)
	}
}
