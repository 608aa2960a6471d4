package handler_test

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/handler"
	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/repository"
	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/service"
	"github.com/pharmaflow/pharmaflow-backend/pkg/config"
	"github.com/pharmaflow/pharmaflow-backend/pkg/httputil"
	"github.com/pharmaflow/pharmaflow-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var suite *testutil.IntegrationSuite

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()

	var err error
	suite, err = testutil.NewIntegrationSuite(ctx)
	if err != nil {
		log.Fatalf("failed to create integration suite: %v", err)
	}

	code := m.Run()
	testutil.TerminateContainer(ctx)
	os.Exit(code)
}

func newTestService() *service.InventoryService {
	return service.NewInventoryService(
		suite.DB,
		repository.NewProductRepository(suite.DB),
		repository.NewBatchRepository(suite.DB),
		repository.NewMovementRepository(suite.DB),
		repository.NewUserCacheRepository(suite.DB),
		nil, // no event publisher needed for handler tests
		suite.Logger,
		config.InventoryConfig{LowStockThreshold: 10, NearExpiryDays: 30},
	)
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) httputil.Response {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func TestProductHandler_Create(t *testing.T) {
	testutil.SkipIfShort(t)
	suite.Reset(t)

	svc := newTestService()
	h := handler.NewProductHandler(svc, suite.Logger)
	r := chi.NewRouter()
	r.Post("/api/v1/inventory/products", h.Create)

	body := `{"name": "Paracetamol 500mg", "price": 3.49, "min_stock": 20}`
	req := httptest.NewRequest("POST", "/api/v1/inventory/products", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code, "unexpected status code. Body: %s", rr.Body.String())
	resp := decodeResponse(t, rr)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Error)
	assert.NotNil(t, resp.Data)
}

func TestProductHandler_CreateValidationError(t *testing.T) {
	testutil.SkipIfShort(t)
	suite.Reset(t)

	svc := newTestService()
	h := handler.NewProductHandler(svc, suite.Logger)
	r := chi.NewRouter()
	r.Post("/api/v1/inventory/products", h.Create)

	// Name is required; a bare price does not pass validation.
	req := httptest.NewRequest("POST", "/api/v1/inventory/products", strings.NewReader(`{"price": 3.49}`))
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	resp := decodeResponse(t, rr)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
}

func TestProductHandler_GetNotFound(t *testing.T) {
	testutil.SkipIfShort(t)
	suite.Reset(t)

	svc := newTestService()
	h := handler.NewProductHandler(svc, suite.Logger)
	r := chi.NewRouter()
	r.Get("/api/v1/inventory/products/{productID}", h.Get)

	req := httptest.NewRequest("GET", "/api/v1/inventory/products/"+uuid.New().String(), nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestBatchHandler_BlockRequiresReason(t *testing.T) {
	testutil.SkipIfShort(t)
	suite.Reset(t)

	svc := newTestService()
	ctx := context.Background()
	actorID := uuid.New().String()

	product, err := svc.CreateProduct(ctx, service.CreateProductInput{Name: "Blockable", Price: 1.99})
	require.NoError(t, err)
	batch, err := svc.CreateBatch(ctx, product.ID, actorID, service.CreateBatchInput{
		BatchNumber:     "B1",
		ExpirationDate:  time.Now().AddDate(1, 0, 0),
		InitialQuantity: 10,
	})
	require.NoError(t, err)

	h := handler.NewBatchHandler(svc, suite.Logger)
	r := chi.NewRouter()
	r.Post("/api/v1/inventory/batches/{batchID}/block", h.Block)

	req := httptest.NewRequest("POST", "/api/v1/inventory/batches/"+batch.ID+"/block", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code, "blocking without a reason must be rejected")

	// Batch stays untouched.
	got, err := svc.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.BatchStatusActive, got.Status)
}

func TestAllocationHandler_PreviewQuantityParam(t *testing.T) {
	testutil.SkipIfShort(t)
	suite.Reset(t)

	svc := newTestService()
	ctx := context.Background()
	actorID := uuid.New().String()

	product, err := svc.CreateProduct(ctx, service.CreateProductInput{Name: "Allocatable", Price: 1.99})
	require.NoError(t, err)
	_, err = svc.CreateBatch(ctx, product.ID, actorID, service.CreateBatchInput{
		BatchNumber:     "B1",
		ExpirationDate:  time.Now().AddDate(1, 0, 0),
		InitialQuantity: 40,
	})
	require.NoError(t, err)

	h := handler.NewAllocationHandler(svc, suite.Logger)
	r := chi.NewRouter()
	r.Get("/api/v1/inventory/products/{productID}/allocations/fifo", h.Preview)

	req := httptest.NewRequest("GET", "/api/v1/inventory/products/"+product.ID+"/allocations/fifo?quantity=abc", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req = httptest.NewRequest("GET", "/api/v1/inventory/products/"+product.ID+"/allocations/fifo?quantity=15", nil)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code, "unexpected status code. Body: %s", rr.Body.String())
	resp := decodeResponse(t, rr)
	assert.True(t, resp.Success)
}

func TestAlertHandler_Summary(t *testing.T) {
	testutil.SkipIfShort(t)
	suite.Reset(t)

	svc := newTestService()
	ctx := context.Background()
	actorID := uuid.New().String()

	product, err := svc.CreateProduct(ctx, service.CreateProductInput{Name: "Alerting", Price: 1.99, MinStock: 50})
	require.NoError(t, err)
	_, err = svc.CreateBatch(ctx, product.ID, actorID, service.CreateBatchInput{
		BatchNumber:     "B1",
		ExpirationDate:  time.Now().AddDate(0, 0, 5),
		InitialQuantity: 10,
	})
	require.NoError(t, err)

	h := handler.NewAlertHandler(svc, suite.Logger)
	r := chi.NewRouter()
	r.Get("/api/v1/inventory/alerts/summary", h.Summary)

	req := httptest.NewRequest("GET", "/api/v1/inventory/alerts/summary", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code, "unexpected status code. Body: %s", rr.Body.String())
	resp := decodeResponse(t, rr)
	assert.True(t, resp.Success)

	// The product is low on stock and its batch is inside the expiry window.
	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var bundle service.AlertBundle
	require.NoError(t, json.Unmarshal(data, &bundle))
	assert.False(t, bundle.Partial)
	assert.Len(t, bundle.LowStock, 1)
	assert.Len(t, bundle.Expiring, 1)
	assert.GreaterOrEqual(t, bundle.Summary.Total, 2)
}
