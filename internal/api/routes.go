package api

import (
	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, handler *Handler) {
	api := router.Group("/api")
	{
		api.POST("/affordability", handler.CalculateAffordability)
		api.GET("/listings", handler.GetListings)
		api.GET("/listings/:id/affordability", handler.GetListingAffordability)
		api.GET("/listings/:id/investment", handler.GetListingInvestment)

		api.POST("/offers", handler.SubmitOffer)
		api.GET("/offers/:id", handler.GetOffer)
		api.POST("/offers/:id/revise", handler.ReviseOffer)
		api.POST("/offers/:id/accept", handler.AcceptOffer)
		api.POST("/offers/:id/reject", handler.RejectOffer)
		api.POST("/offers/:id/withdraw", handler.WithdrawOffer)

		api.GET("/workflows/:id", handler.GetWorkflow)
		api.POST("/workflows/:id/advance", handler.AdvanceWorkflow)
		api.PUT("/workflows/:id/application", handler.SubmitApplication)
		api.POST("/workflows/:id/documents/:slot", handler.UploadDocument)
		api.POST("/workflows/:id/payment", handler.SubmitPayment)
		api.POST("/workflows/:id/acknowledge", handler.AcknowledgeWorkflow)

		api.GET("/telegram/config", handler.GetTelegramConfig)
		api.POST("/telegram/config", handler.UpdateTelegramConfig)
		api.POST("/telegram/filters", handler.UpdateTelegramFilters)
	}
}
