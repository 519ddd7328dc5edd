package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	aliasapp "github.com/erp/reconciliation/internal/application/alias"
	apmatchapp "github.com/erp/reconciliation/internal/application/apmatch"
	matchingapp "github.com/erp/reconciliation/internal/application/matching"
	"github.com/erp/reconciliation/internal/domain/apmatch"
	"github.com/erp/reconciliation/internal/domain/matching"
	"github.com/erp/reconciliation/internal/infrastructure/cache"
	"github.com/erp/reconciliation/internal/infrastructure/persistence"
	"github.com/erp/reconciliation/internal/infrastructure/persistence/models"
	"github.com/erp/reconciliation/internal/infrastructure/storage"
	"github.com/erp/reconciliation/internal/interfaces/http/dto"
	"github.com/erp/reconciliation/internal/interfaces/http/middleware"
	"github.com/erp/reconciliation/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

const testTenant = "11111111-2222-3333-4444-555555555555"

var fixedNow = time.Date(2024, time.March, 20, 12, 0, 0, 0, time.UTC)

// apiServer wires the real services over an in-memory sqlite database
type apiServer struct {
	engine  *gin.Engine
	db      *gorm.DB
	archive *storage.MemoryObjectStorage
}

func newAPIServer(t *testing.T) *apiServer {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.AllModels()...))

	documents := persistence.NewGormDocumentRepository(db)
	links := persistence.NewGormLinkRepository(db)
	locker := cache.NewKeyedLocker()
	resolver := matching.NewToleranceResolver(matching.DefaultToleranceConfig())
	clock := func() time.Time { return fixedNow }
	log := zap.NewNop()

	engine := matching.NewEngine(
		matching.NewCandidateGenerator(documents),
		matching.NewScorer(matching.DefaultScoreWeights()),
		matching.NewCombinationSearch(matching.DefaultCombinationConfig(), nil),
		links,
		matching.DefaultEngineConfig(),
	)
	reco := matchingapp.NewReconciliationService(engine, resolver, documents, links, locker, nil, log,
		matchingapp.WithClock(clock),
	)
	archive := storage.NewMemoryObjectStorage()
	feedback := matchingapp.NewFeedbackService(persistence.NewGormFeedbackRepository(db), archive, nil, clock, log)
	ap := apmatchapp.NewAPMatchService(
		documents,
		persistence.NewGormPOLineRepository(db),
		persistence.NewGormApLinkRepository(db),
		resolver,
		apmatch.NewSuggester(5),
		locker,
		nil,
		log,
		apmatchapp.WithClock(clock),
	)
	aliases := aliasapp.NewAliasService(persistence.NewGormAliasRepository(db), nil, nil, 3, clock, log)

	r := gin.New()
	r.Use(middleware.RequestID())
	r.NoRoute(NotFound)
	system := NewSystemHandler("test", nil)
	r.GET("/health", system.Health)

	api := router.NewRouter(r, router.WithMiddleware(middleware.TenantMiddleware()))
	api.Register(NewReconciliationHandler(reco, feedback).Routes()).
		Register(NewAPMatchHandler(ap, feedback).Routes()).
		Register(NewAliasHandler(aliases).Routes()).
		Register(system.Routes())
	api.Setup()

	return &apiServer{engine: r, db: db, archive: archive}
}

// do sends a request for the test tenant; body is JSON encoded unless it is a string
func (s *apiServer) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf *bytes.Buffer
	switch b := body.(type) {
	case nil:
		buf = &bytes.Buffer{}
	case string:
		buf = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		buf = bytes.NewBuffer(raw)
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.TenantHeaderKey, testTenant)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

// decode parses the envelope and returns data as a generic map
func decode(t *testing.T, w *httptest.ResponseRecorder) (dto.Response, map[string]any) {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	data, _ := resp.Data.(map[string]any)
	return resp, data
}

// decodeList parses an envelope whose data is an array
func decodeList(t *testing.T, w *httptest.ResponseRecorder) (dto.Response, []any) {
	t.Helper()
	resp, _ := decode(t, w)
	list, _ := resp.Data.([]any)
	return resp, list
}

func document(kind, id string, amount int64, date, ref, counterpart string) map[string]any {
	return map[string]any{
		"kind":           kind,
		"id":             id,
		"amount":         fmt.Sprint(amount),
		"date":           date,
		"currency":       "CLP",
		"reference":      ref,
		"counterpart_id": counterpart,
	}
}

func (s *apiServer) seedDocuments(t *testing.T, docs ...map[string]any) {
	t.Helper()
	w := s.do(t, http.MethodPut, "/api/v1/reconciliation/documents", map[string]any{"documents": docs})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}
