package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"homematch/server/internal/calculator"
	"homematch/server/internal/database"
	"homematch/server/internal/offers"
	"homematch/server/internal/workflow"
)

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	router, _ := setupRouterWithDB(t)
	return router
}

func setupRouterWithDB(t *testing.T) (*gin.Engine, *database.Database) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logrus.New()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	raw, err := database.NewDatabase(dbPath)
	require.NoError(t, err)
	require.NoError(t, raw.RunMigrations())
	t.Cleanup(func() { raw.Close() })

	_, err = raw.GetDB().Exec(`
		INSERT INTO listings (id, url, street, city, postal_code, price, monthly_rent, currency, status, listing_date)
		VALUES (42, 'https://example.test/listing/42', 'Keizersgracht 1', 'Amsterdam', '1015CC', 450000, 1500, 'EUR', 'active', '2026-01-15')
	`)
	require.NoError(t, err)

	gdb, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	require.NoError(t, err)
	store := database.NewStore(gdb, logger)

	calc := calculator.New(calculator.DefaultPolicy())
	offerService := offers.NewService(store, nil, logger)
	manager := workflow.NewManager(store, workflow.Collaborators{
		Offers:       store,
		Applications: store,
		Documents:    store,
		Payments:     store,
	}, logger)

	handler := NewHandler(raw, calc, offerService, manager, nil, logger)
	router := gin.New()
	SetupRoutes(router, handler)
	return router, raw
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var decoded map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	}
	return w, decoded
}

func submitOffer(t *testing.T, router *gin.Engine, applicantID string) (offerID, workflowID string) {
	t.Helper()
	w, body := doJSON(t, router, http.MethodPost, "/api/offers", map[string]interface{}{
		"listing_id":        42,
		"applicant_id":      applicantID,
		"counterparty_id":   "landlord-1",
		"proposed_amount":   1450,
		"move_in_date":      "2026-10-01",
		"lease_term_months": 12,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	offer := body["offer"].(map[string]interface{})
	return offer["id"].(string), body["workflow_id"].(string)
}

func TestCalculateAffordability(t *testing.T) {
	router := setupRouter(t)

	w, body := doJSON(t, router, http.MethodPost, "/api/affordability", map[string]interface{}{
		"monthly_income":   5000,
		"monthly_expenses": 2000,
		"savings":          30000,
		"credit_score":     700,
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1500.0, body["max_monthly_rent"])
	assert.Equal(t, 199131.0, body["max_purchase_price"])
	assert.Equal(t, "both", body["recommendation"])
	assert.Equal(t, true, body["can_afford"])
}

func TestGetListingAffordability(t *testing.T) {
	router := setupRouter(t)

	w, body := doJSON(t, router, http.MethodGet, "/api/listings/42/affordability?income=6000", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "comfortable", body["verdict"])

	w, body = doJSON(t, router, http.MethodGet, "/api/listings/42/affordability?income=5000", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "stretch", body["verdict"])

	w, body = doJSON(t, router, http.MethodGet, "/api/listings/42/affordability?income=4000", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "unaffordable", body["verdict"])

	w, _ = doJSON(t, router, http.MethodGet, "/api/listings/99/affordability?income=5000", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetListingInvestment(t *testing.T) {
	router := setupRouter(t)

	w, body := doJSON(t, router, http.MethodGet, "/api/listings/42/investment?rate=0.03&years=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.InDelta(t, 0.04, body["rental_yield"].(float64), 0.0001)
	assert.Len(t, body["projections"], 2)
}

func TestSubmitOffer_UnknownListing(t *testing.T) {
	router := setupRouter(t)

	w, _ := doJSON(t, router, http.MethodPost, "/api/offers", map[string]interface{}{
		"listing_id":      99,
		"applicant_id":    "applicant-1",
		"counterparty_id": "landlord-1",
		"proposed_amount": 1450,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubmitOffer_OnePerApplicantAndListing(t *testing.T) {
	router, raw := setupRouterWithDB(t)

	submitOffer(t, router, "applicant-1")
	w, _ := doJSON(t, router, http.MethodPost, "/api/offers", map[string]interface{}{
		"listing_id":      42,
		"applicant_id":    "applicant-1",
		"counterparty_id": "landlord-1",
		"proposed_amount": 1500,
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	// The rejected duplicate must not leave a second pending offer behind.
	var pending int
	err := raw.GetDB().QueryRow(
		`SELECT COUNT(*) FROM offers WHERE applicant_id = ? AND listing_id = ? AND status = ?`,
		"applicant-1", 42, "pending",
	).Scan(&pending)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestWorkflowHappyPath(t *testing.T) {
	router := setupRouter(t)
	offerID, workflowID := submitOffer(t, router, "applicant-1")

	// Advancing before the landlord decides trips the acceptance guard.
	w, body := doJSON(t, router, http.MethodPost, "/api/workflows/"+workflowID+"/advance", nil)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "guard_not_satisfied", body["kind"])

	w, _ = doJSON(t, router, http.MethodPost, "/api/offers/"+offerID+"/accept", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, body = doJSON(t, router, http.MethodPost, "/api/workflows/"+workflowID+"/advance", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application", body["stage"])

	w, _ = doJSON(t, router, http.MethodPut, "/api/workflows/"+workflowID+"/application", map[string]interface{}{
		"full_name":       "Jane Doe",
		"email":           "jane@example.test",
		"monthly_income":  5000,
		"agree_to_credit": true,
		"agree_to_terms":  true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, body = doJSON(t, router, http.MethodPost, "/api/workflows/"+workflowID+"/advance", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "documents", body["stage"])

	for _, slot := range []string{"identity", "income_proof", "reference"} {
		w, _ = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/workflows/%s/documents/%s", workflowID, slot), nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w, body = doJSON(t, router, http.MethodPost, "/api/workflows/"+workflowID+"/advance", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "payment", body["stage"])

	w, body = doJSON(t, router, http.MethodPost, "/api/workflows/"+workflowID+"/payment", map[string]interface{}{
		"method": "ideal",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "€2,900.00", body["amount_due"])

	w, body = doJSON(t, router, http.MethodPost, "/api/workflows/"+workflowID+"/advance", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "complete", body["stage"])

	// Completed workflows are archived.
	w, _ = doJSON(t, router, http.MethodGet, "/api/workflows/"+workflowID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWorkflowGuardReportsMissingDocuments(t *testing.T) {
	router := setupRouter(t)
	offerID, workflowID := submitOffer(t, router, "applicant-1")

	doJSON(t, router, http.MethodPost, "/api/offers/"+offerID+"/accept", nil)
	doJSON(t, router, http.MethodPost, "/api/workflows/"+workflowID+"/advance", nil)
	doJSON(t, router, http.MethodPut, "/api/workflows/"+workflowID+"/application", map[string]interface{}{
		"full_name":       "Jane Doe",
		"agree_to_credit": true,
		"agree_to_terms":  true,
	})
	doJSON(t, router, http.MethodPost, "/api/workflows/"+workflowID+"/advance", nil)
	doJSON(t, router, http.MethodPost, "/api/workflows/"+workflowID+"/documents/identity", nil)

	w, body := doJSON(t, router, http.MethodPost, "/api/workflows/"+workflowID+"/advance", nil)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "guard_not_satisfied", body["kind"])
	assert.Contains(t, body["error"], "income_proof")

	w, _ = doJSON(t, router, http.MethodPost, "/api/workflows/"+workflowID+"/documents/passport", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRejectionRequiresAcknowledgement(t *testing.T) {
	router := setupRouter(t)
	offerID, workflowID := submitOffer(t, router, "applicant-1")

	w, _ := doJSON(t, router, http.MethodPost, "/api/offers/"+offerID+"/reject", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, body := doJSON(t, router, http.MethodPost, "/api/workflows/"+workflowID+"/advance", nil)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "concurrent_status_change", body["kind"])

	w, body = doJSON(t, router, http.MethodPost, "/api/workflows/"+workflowID+"/acknowledge", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "rejected", body["observed_status"])

	// Acknowledgement terminates and archives the workflow.
	w, _ = doJSON(t, router, http.MethodGet, "/api/workflows/"+workflowID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWithdrawWindowClosesAfterApplication(t *testing.T) {
	router := setupRouter(t)
	offerID, workflowID := submitOffer(t, router, "applicant-1")

	doJSON(t, router, http.MethodPost, "/api/offers/"+offerID+"/accept", nil)
	doJSON(t, router, http.MethodPost, "/api/workflows/"+workflowID+"/advance", nil)
	doJSON(t, router, http.MethodPut, "/api/workflows/"+workflowID+"/application", map[string]interface{}{
		"full_name":       "Jane Doe",
		"agree_to_credit": true,
		"agree_to_terms":  true,
	})

	// Still inside the window at the application stage.
	w, body := doJSON(t, router, http.MethodGet, "/api/workflows/"+workflowID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["can_withdraw"])

	doJSON(t, router, http.MethodPost, "/api/workflows/"+workflowID+"/advance", nil)

	w, _ = doJSON(t, router, http.MethodPost, "/api/offers/"+offerID+"/withdraw", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestReviseOffer(t *testing.T) {
	router := setupRouter(t)
	offerID, _ := submitOffer(t, router, "applicant-1")

	w, body := doJSON(t, router, http.MethodPost, "/api/offers/"+offerID+"/revise", map[string]interface{}{
		"proposed_amount": 1400,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1400.0, body["proposed_amount"])
	assert.Equal(t, 1.0, body["revision_count"])

	doJSON(t, router, http.MethodPost, "/api/offers/"+offerID+"/accept", nil)
	w, _ = doJSON(t, router, http.MethodPost, "/api/offers/"+offerID+"/revise", map[string]interface{}{
		"proposed_amount": 1500,
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}
