package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	apperrors "ledgerly/internal/errors"
	"ledgerly/internal/models"
	"ledgerly/internal/pagination"
	"ledgerly/internal/services"
)

// --- mock anomaly service ---

type mockAnomalyService struct {
	spendingPatternsFn func(ctx context.Context, userID string) (*services.SpendingPatterns, error)
	detectSingleFn     func(txn *models.Transaction) (int, error)
	bulkDetectFn       func(ctx context.Context, userID string, transactionIDs []string) (int64, error)
	listAnomaliesFn    func(userID string, resolved *bool, page pagination.PageRequest) (*pagination.PageResponse[models.Anomaly], error)
	resolveAnomaliesFn func(ctx context.Context, userID string, anomalyIDs []string) (int64, error)
	anomalySummaryFn   func(ctx context.Context, userID string) (*services.AnomalySummary, error)
}

func (m *mockAnomalyService) SpendingPatterns(ctx context.Context, userID string) (*services.SpendingPatterns, error) {
	if m.spendingPatternsFn != nil {
		return m.spendingPatternsFn(ctx, userID)
	}
	return &services.SpendingPatterns{}, nil
}

func (m *mockAnomalyService) DetectSingle(txn *models.Transaction) (int, error) {
	if m.detectSingleFn != nil {
		return m.detectSingleFn(txn)
	}
	return 0, nil
}

func (m *mockAnomalyService) BulkDetect(ctx context.Context, userID string, transactionIDs []string) (int64, error) {
	if m.bulkDetectFn != nil {
		return m.bulkDetectFn(ctx, userID, transactionIDs)
	}
	return 0, nil
}

func (m *mockAnomalyService) ListAnomalies(userID string, resolved *bool, page pagination.PageRequest) (*pagination.PageResponse[models.Anomaly], error) {
	if m.listAnomaliesFn != nil {
		return m.listAnomaliesFn(userID, resolved, page)
	}
	resp := pagination.NewPageResponse([]models.Anomaly{}, 1, 50, 0)
	return &resp, nil
}

func (m *mockAnomalyService) ResolveAnomalies(ctx context.Context, userID string, anomalyIDs []string) (int64, error) {
	if m.resolveAnomaliesFn != nil {
		return m.resolveAnomaliesFn(ctx, userID, anomalyIDs)
	}
	return 0, nil
}

func (m *mockAnomalyService) AnomalySummary(ctx context.Context, userID string) (*services.AnomalySummary, error) {
	if m.anomalySummaryFn != nil {
		return m.anomalySummaryFn(ctx, userID)
	}
	return &services.AnomalySummary{}, nil
}

var _ services.AnomalyServicer = (*mockAnomalyService)(nil)

func setupAnomalyRouter(handler *AnomalyHandler) *gin.Engine {
	r := gin.New()
	auth := r.Group("", injectUserID(testUserID))
	auth.GET("/anomalies", handler.ListAnomalies)
	auth.GET("/anomalies/summary", handler.Summary)
	auth.GET("/anomalies/patterns", handler.SpendingPatterns)
	auth.POST("/anomalies/resolve", handler.Resolve)
	return r
}

// --- tests ---

func TestAnomalyHandler_ListAnomalies(t *testing.T) {
	t.Run("passes the resolved filter through", func(t *testing.T) {
		var captured *bool
		svc := &mockAnomalyService{
			listAnomaliesFn: func(_ string, resolved *bool, _ pagination.PageRequest) (*pagination.PageResponse[models.Anomaly], error) {
				captured = resolved
				resp := pagination.NewPageResponse([]models.Anomaly{}, 1, 50, 0)
				return &resp, nil
			},
		}
		r := setupAnomalyRouter(NewAnomalyHandler(svc))

		rec := doRequest(r, "GET", "/anomalies?resolved=false", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if captured == nil || *captured != false {
			t.Error("expected resolved=false to reach the service")
		}
	})

	t.Run("no filter means both states", func(t *testing.T) {
		var captured *bool
		called := false
		svc := &mockAnomalyService{
			listAnomaliesFn: func(_ string, resolved *bool, _ pagination.PageRequest) (*pagination.PageResponse[models.Anomaly], error) {
				captured = resolved
				called = true
				resp := pagination.NewPageResponse([]models.Anomaly{}, 1, 50, 0)
				return &resp, nil
			},
		}
		r := setupAnomalyRouter(NewAnomalyHandler(svc))

		doRequest(r, "GET", "/anomalies", "")

		if !called {
			t.Fatal("expected the service to be called")
		}
		if captured != nil {
			t.Error("expected a nil filter")
		}
	})
}

func TestAnomalyHandler_Summary(t *testing.T) {
	svc := &mockAnomalyService{
		anomalySummaryFn: func(_ context.Context, _ string) (*services.AnomalySummary, error) {
			return &services.AnomalySummary{
				Total: 3,
				BySeverity: map[models.Severity]int64{
					models.SeverityHigh: 2,
					models.SeverityLow:  1,
				},
				ByType: map[models.AnomalyType]int64{
					models.AnomalyDuplicate:          2,
					models.AnomalyMissingDescription: 1,
				},
			}, nil
		},
	}
	r := setupAnomalyRouter(NewAnomalyHandler(svc))

	rec := doRequest(r, "GET", "/anomalies/summary", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	summary := parseJSON(t, rec)["summary"].(map[string]interface{})
	if summary["total"] != float64(3) {
		t.Errorf("expected total 3, got %v", summary["total"])
	}
}

func TestAnomalyHandler_SpendingPatterns(t *testing.T) {
	svc := &mockAnomalyService{
		spendingPatternsFn: func(_ context.Context, _ string) (*services.SpendingPatterns, error) {
			return &services.SpendingPatterns{Count: 42, Mean: -55.5}, nil
		},
	}
	r := setupAnomalyRouter(NewAnomalyHandler(svc))

	rec := doRequest(r, "GET", "/anomalies/patterns", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	patterns := parseJSON(t, rec)["patterns"].(map[string]interface{})
	if patterns["count"] != float64(42) {
		t.Errorf("expected count 42, got %v", patterns["count"])
	}
}

func TestAnomalyHandler_Resolve(t *testing.T) {
	t.Run("returns 200 with count", func(t *testing.T) {
		svc := &mockAnomalyService{
			resolveAnomaliesFn: func(_ context.Context, _ string, ids []string) (int64, error) {
				return int64(len(ids)), nil
			},
		}
		r := setupAnomalyRouter(NewAnomalyHandler(svc))

		rec := doRequest(r, "POST", "/anomalies/resolve", `{"anomaly_ids":["`+testRuleID+`"]}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if parseJSON(t, rec)["resolved"] != float64(1) {
			t.Error("expected 1 resolved")
		}
	})

	t.Run("returns 400 on empty ids", func(t *testing.T) {
		r := setupAnomalyRouter(NewAnomalyHandler(&mockAnomalyService{}))

		rec := doRequest(r, "POST", "/anomalies/resolve", `{"anomaly_ids":[]}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("returns 403 on foreign ids", func(t *testing.T) {
		svc := &mockAnomalyService{
			resolveAnomaliesFn: func(_ context.Context, _ string, _ []string) (int64, error) {
				return 0, apperrors.ErrOwnershipMismatch
			},
		}
		r := setupAnomalyRouter(NewAnomalyHandler(svc))

		rec := doRequest(r, "POST", "/anomalies/resolve", `{"anomaly_ids":["`+testRuleID+`"]}`)

		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "OWNERSHIP_MISMATCH")
	})
}
