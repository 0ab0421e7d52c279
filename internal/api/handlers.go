package api

import (
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"homematch/server/internal/calculator"
	"homematch/server/internal/database"
	"homematch/server/internal/models"
	"homematch/server/internal/offers"
	"homematch/server/internal/telegram"
	"homematch/server/internal/workflow"
)

type Handler struct {
	db              *database.Database
	calculator      *calculator.Calculator
	offers          *offers.Service
	workflows       *workflow.Manager
	telegramService *telegram.Service
	logger          *logrus.Logger
}

type OfferRequest struct {
	ListingID       int64  `json:"listing_id" binding:"required"`
	ApplicantID     string `json:"applicant_id" binding:"required"`
	CounterpartyID  string `json:"counterparty_id" binding:"required"`
	ProposedAmount  int    `json:"proposed_amount" binding:"required"`
	Currency        string `json:"currency"`
	MoveInDate      string `json:"move_in_date"`
	LeaseTermMonths int    `json:"lease_term_months"`
}

type ReviseRequest struct {
	ProposedAmount int `json:"proposed_amount" binding:"required"`
}

type PaymentRequest struct {
	Method string `json:"method"`
}

func NewHandler(db *database.Database, calc *calculator.Calculator, offerService *offers.Service, workflows *workflow.Manager, telegramService *telegram.Service, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	return &Handler{
		db:              db,
		calculator:      calc,
		offers:          offerService,
		workflows:       workflows,
		telegramService: telegramService,
		logger:          logger,
	}
}

// ---- Calculator ----

func (h *Handler) CalculateAffordability(c *gin.Context) {
	var profile models.FinancialProfile
	if err := c.ShouldBindJSON(&profile); err != nil {
		h.logger.WithError(err).Error("Failed to parse financial profile")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid financial profile"})
		return
	}

	c.JSON(http.StatusOK, h.calculator.RentalAffordability(profile))
}

func (h *Handler) GetListings(c *gin.Context) {
	city := c.Query("city")
	listings, err := h.db.GetAllListings(city)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get listings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get listings"})
		return
	}

	c.JSON(http.StatusOK, listings)
}

func (h *Handler) GetListingAffordability(c *gin.Context) {
	listing, ok := h.loadListing(c)
	if !ok {
		return
	}

	income, err := strconv.ParseFloat(c.Query("income"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid income parameter"})
		return
	}

	c.JSON(http.StatusOK, h.calculator.ListingAffordability(*listing, income))
}

func (h *Handler) GetListingInvestment(c *gin.Context) {
	listing, ok := h.loadListing(c)
	if !ok {
		return
	}

	years := 10
	if yearsStr := c.Query("years"); yearsStr != "" {
		parsed, err := strconv.Atoi(yearsStr)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid years parameter"})
			return
		}
		years = parsed
	}

	var rate float64
	if rateStr := c.Query("rate"); rateStr != "" {
		parsed, err := strconv.ParseFloat(rateStr, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid rate parameter"})
			return
		}
		rate = parsed
	} else {
		// Default to the appreciation observed in the listing history.
		estimated, err := h.db.GetAnnualAppreciationRate(listing.City)
		if err != nil {
			h.logger.WithError(err).Error("Failed to estimate appreciation rate")
		} else {
			rate = estimated
		}
	}

	c.JSON(http.StatusOK, h.calculator.InvestmentMetrics(*listing, rate, years))
}

func (h *Handler) loadListing(c *gin.Context) (*models.Listing, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing ID"})
		return nil, false
	}

	listing, err := h.db.GetListing(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Listing not found"})
		return nil, false
	}
	return listing, true
}

// ---- Offers ----

func (h *Handler) SubmitOffer(c *gin.Context) {
	var req OfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Error("Failed to parse offer request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid offer request"})
		return
	}

	if _, err := h.db.GetListing(req.ListingID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Listing not found"})
		return
	}

	// Check the pair before saving anything so a duplicate submission never
	// leaves an offer behind without a workflow tracking it.
	if h.workflows.HasActive(req.ApplicantID, req.ListingID) {
		c.JSON(http.StatusConflict, gin.H{"error": workflow.ErrInstanceExists.Error()})
		return
	}

	terms := offers.SubmitTerms{
		ListingID:       req.ListingID,
		ApplicantID:     req.ApplicantID,
		CounterpartyID:  req.CounterpartyID,
		ProposedAmount:  req.ProposedAmount,
		Currency:        req.Currency,
		LeaseTermMonths: req.LeaseTermMonths,
	}
	if req.MoveInDate != "" {
		moveIn, err := parseDate(req.MoveInDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid move-in date"})
			return
		}
		terms.MoveInDate = moveIn
	}

	offer, err := h.offers.Submit(terms)
	if err != nil {
		if errors.Is(err, offers.ErrInvalidAmount) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.WithError(err).Error("Failed to submit offer")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to submit offer"})
		return
	}

	inst, err := h.workflows.Create(offer)
	if err != nil {
		if errors.Is(err, workflow.ErrInstanceExists) {
			// Lost a race with a concurrent submission for the same pair;
			// withdraw the offer just saved so it does not dangle.
			if werr := h.offers.Withdraw(offer.ID); werr != nil {
				h.logger.WithError(werr).WithField("offer_id", offer.ID).Error("Failed to withdraw orphaned offer")
			}
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		h.logger.WithError(err).Error("Failed to create workflow")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create workflow"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"offer":       offer,
		"workflow_id": inst.ID(),
	})
}

func (h *Handler) GetOffer(c *gin.Context) {
	id, ok := parseUUID(c)
	if !ok {
		return
	}

	offer, err := h.offers.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Offer not found"})
		return
	}

	c.JSON(http.StatusOK, offer)
}

func (h *Handler) ReviseOffer(c *gin.Context) {
	id, ok := parseUUID(c)
	if !ok {
		return
	}

	var req ReviseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid revision request"})
		return
	}

	offer, err := h.offers.Revise(id, req.ProposedAmount)
	if err != nil {
		h.offerError(c, err)
		return
	}

	// Keep the workflow's view of the offer current.
	if inst, err := h.workflows.GetByOffer(id); err == nil {
		if err := inst.SyncOffer(offer); err == nil {
			h.workflows.Persist(inst)
		}
	}

	c.JSON(http.StatusOK, offer)
}

func (h *Handler) AcceptOffer(c *gin.Context) {
	h.decideOffer(c, h.offers.Accept)
}

func (h *Handler) RejectOffer(c *gin.Context) {
	h.decideOffer(c, h.offers.Reject)
}

func (h *Handler) decideOffer(c *gin.Context, decide func(uuid.UUID) error) {
	id, ok := parseUUID(c)
	if !ok {
		return
	}

	if err := decide(id); err != nil {
		h.offerError(c, err)
		return
	}

	status, err := h.offers.Status(id)
	if err != nil {
		h.offerError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": status})
}

func (h *Handler) WithdrawOffer(c *gin.Context) {
	id, ok := parseUUID(c)
	if !ok {
		return
	}

	// Withdrawal is an applicant right only up to the application stage; once
	// documents or payment are in flight the transaction must be unwound
	// through support, not abandoned.
	if inst, err := h.workflows.GetByOffer(id); err == nil && !inst.CanWithdraw() {
		c.JSON(http.StatusConflict, gin.H{"error": "workflow has progressed past the withdrawal window"})
		return
	}

	if err := h.offers.Withdraw(id); err != nil {
		h.offerError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": models.OfferStatusWithdrawn})
}

func (h *Handler) offerError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, offers.ErrOfferNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Offer not found"})
	case errors.Is(err, offers.ErrOfferTerminal), errors.Is(err, offers.ErrNotPending):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, offers.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.WithError(err).Error("Offer operation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Offer operation failed"})
	}
}

// ---- Workflows ----

type workflowView struct {
	ID               uuid.UUID             `json:"id"`
	OfferID          uuid.UUID             `json:"offer_id"`
	Stage            models.Stage          `json:"stage"`
	Pending          string                `json:"pending,omitempty"`
	Terminated       bool                  `json:"terminated"`
	TerminalStatus   models.OfferStatus    `json:"terminal_status,omitempty"`
	MissingDocuments []models.DocumentSlot `json:"missing_documents,omitempty"`
	AmountDue        string                `json:"amount_due,omitempty"`
	CanWithdraw      bool                  `json:"can_withdraw"`
}

func viewOf(inst *workflow.Instance) workflowView {
	terminated, terminalStatus := inst.Terminated()
	view := workflowView{
		ID:             inst.ID(),
		OfferID:        inst.Offer().ID,
		Stage:          inst.Stage(),
		Pending:        inst.Pending(),
		Terminated:     terminated,
		TerminalStatus: terminalStatus,
		AmountDue:      workflow.DisplayAmount(inst.Payment()),
		CanWithdraw:    inst.CanWithdraw(),
	}
	if docs := inst.Documents(); docs != nil && inst.Stage() == models.StageDocuments {
		view.MissingDocuments = docs.Missing()
	}
	return view
}

func (h *Handler) GetWorkflow(c *gin.Context) {
	inst, ok := h.loadWorkflow(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, viewOf(inst))
}

func (h *Handler) AdvanceWorkflow(c *gin.Context) {
	inst, ok := h.loadWorkflow(c)
	if !ok {
		return
	}

	err := inst.Advance(c.Request.Context())
	h.workflows.Persist(inst)
	if err != nil {
		h.workflowError(c, err)
		return
	}

	if inst.Stage() == models.StageComplete {
		h.notifyComplete(inst)
	}

	c.JSON(http.StatusOK, viewOf(inst))
}

func (h *Handler) SubmitApplication(c *gin.Context) {
	inst, ok := h.loadWorkflow(c)
	if !ok {
		return
	}

	var record models.ApplicationRecord
	if err := c.ShouldBindJSON(&record); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid application"})
		return
	}

	err := inst.SubmitApplication(c.Request.Context(), record)
	h.workflows.Persist(inst)
	if err != nil {
		h.workflowError(c, err)
		return
	}

	c.JSON(http.StatusOK, viewOf(inst))
}

func (h *Handler) UploadDocument(c *gin.Context) {
	inst, ok := h.loadWorkflow(c)
	if !ok {
		return
	}

	slot := models.DocumentSlot(c.Param("slot"))
	err := inst.MarkDocumentUploaded(c.Request.Context(), slot)
	h.workflows.Persist(inst)
	if err != nil {
		h.workflowError(c, err)
		return
	}

	c.JSON(http.StatusOK, viewOf(inst))
}

func (h *Handler) SubmitPayment(c *gin.Context) {
	inst, ok := h.loadWorkflow(c)
	if !ok {
		return
	}

	var req PaymentRequest
	// An empty body means the default payment method.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payment request"})
		return
	}

	record, err := inst.SubmitPayment(c.Request.Context(), req.Method)
	h.workflows.Persist(inst)
	if err != nil {
		h.workflowError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"payment":    record,
		"amount_due": workflow.DisplayAmount(record),
		"workflow":   viewOf(inst),
	})
}

func (h *Handler) AcknowledgeWorkflow(c *gin.Context) {
	inst, ok := h.loadWorkflow(c)
	if !ok {
		return
	}

	observed, err := inst.Acknowledge()
	h.workflows.Persist(inst)
	if err != nil {
		h.workflowError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"observed_status": observed,
		"workflow":        viewOf(inst),
	})
}

func (h *Handler) loadWorkflow(c *gin.Context) (*workflow.Instance, bool) {
	id, ok := parseUUID(c)
	if !ok {
		return nil, false
	}

	inst, err := h.workflows.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Workflow not found"})
		return nil, false
	}
	return inst, true
}

func (h *Handler) workflowError(c *gin.Context, err error) {
	switch {
	case workflow.IsGuardNotSatisfied(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "kind": "guard_not_satisfied"})
	case workflow.IsConcurrentStatusChange(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "kind": "concurrent_status_change"})
	case workflow.IsExternalFailure(err):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "kind": "external_failure"})
	case errors.Is(err, workflow.ErrUnknownSlot):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, workflow.ErrWrongStage),
		errors.Is(err, workflow.ErrWorkflowComplete),
		errors.Is(err, workflow.ErrWorkflowTerminated),
		errors.Is(err, workflow.ErrNothingToRead):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.WithError(err).Error("Workflow operation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Workflow operation failed"})
	}
}

func (h *Handler) notifyComplete(inst *workflow.Instance) {
	if h.telegramService == nil {
		return
	}
	err := h.telegramService.NotifyWorkflowComplete(inst.Offer(), workflow.DisplayAmount(inst.Payment()))
	if err != nil {
		h.logger.WithError(err).Error("Failed to send completion notification")
	}
}

// ---- Telegram configuration ----

func (h *Handler) GetTelegramConfig(c *gin.Context) {
	config, err := h.db.GetTelegramConfig()
	if err != nil {
		h.logger.WithError(err).Error("Failed to load telegram config")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load telegram config"})
		return
	}
	if config == nil {
		c.JSON(http.StatusOK, gin.H{"is_enabled": false})
		return
	}

	// Never echo the token back.
	c.JSON(http.StatusOK, gin.H{
		"is_enabled": config.IsEnabled,
		"chat_id":    config.ChatID,
	})
}

func (h *Handler) UpdateTelegramConfig(c *gin.Context) {
	var req models.TelegramConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid telegram config"})
		return
	}

	if err := h.db.SaveTelegramConfig(&req); err != nil {
		h.logger.WithError(err).Error("Failed to save telegram config")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save telegram config"})
		return
	}

	if h.telegramService != nil {
		if config, err := h.db.GetTelegramConfig(); err == nil && config != nil {
			h.telegramService.UpdateConfig(config)
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *Handler) UpdateTelegramFilters(c *gin.Context) {
	var filters models.TelegramFilters
	if err := c.ShouldBindJSON(&filters); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid telegram filters"})
		return
	}

	for _, status := range filters.Statuses {
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown offer status in filters"})
			return
		}
	}

	if h.telegramService != nil {
		h.telegramService.UpdateFilters(&filters)
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func parseDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}

func parseUUID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return uuid.Nil, false
	}
	return id, true
}
