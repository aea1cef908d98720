package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/calculator-studio/internal/auth"
	"github.com/bizmatters/calculator-studio/internal/evaluator"
	"github.com/bizmatters/calculator-studio/internal/models"
	"github.com/bizmatters/calculator-studio/internal/session"
	"github.com/bizmatters/calculator-studio/internal/specgen"
	"github.com/bizmatters/calculator-studio/internal/store"
)

// mockStore is an in-memory CalculatorStore
type mockStore struct {
	mu      sync.Mutex
	pingErr error
	users   map[string]*models.User
	calcs   map[string]*models.Calculator
	likes   map[string]bool
}

func newMockStore() *mockStore {
	return &mockStore{
		users: map[string]*models.User{},
		calcs: map[string]*models.Calculator{},
		likes: map[string]bool{},
	}
}

func (m *mockStore) Ping(ctx context.Context) error { return m.pingErr }

func (m *mockStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u, nil
}

func (m *mockStore) CreateCalculator(ctx context.Context, userID string, in models.CreateCalculatorInput) (*models.Calculator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	calc := &models.Calculator{
		ID:       uuid.NewString(),
		UserID:   userID,
		Title:    in.Title,
		Prompt:   in.Prompt,
		Spec:     in.Spec.Normalized(),
		IsPublic: in.IsPublic,
	}
	m.calcs[calc.ID] = calc
	return calc, nil
}

func (m *mockStore) visible(calculatorID, viewerID string) (*models.Calculator, error) {
	calc, ok := m.calcs[calculatorID]
	if !ok || (!calc.IsPublic && calc.UserID != viewerID) {
		return nil, store.ErrNotFound
	}
	return calc, nil
}

func (m *mockStore) GetCalculator(ctx context.Context, calculatorID, viewerID string) (*models.Calculator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	calc, err := m.visible(calculatorID, viewerID)
	if err != nil {
		return nil, err
	}
	calc.ViewsCount++
	return calc, nil
}

func (m *mockStore) LoadCalculator(ctx context.Context, calculatorID, viewerID string) (*models.Calculator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.visible(calculatorID, viewerID)
}

func (m *mockStore) UpdateCalculator(ctx context.Context, userID, calculatorID string, in models.UpdateCalculatorInput) (*models.Calculator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	calc, ok := m.calcs[calculatorID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if calc.UserID != userID {
		return nil, store.ErrForbidden
	}
	if in.Title != nil {
		calc.Title = *in.Title
	}
	if in.IsPublic != nil {
		calc.IsPublic = *in.IsPublic
	}
	return calc, nil
}

func (m *mockStore) DeleteCalculator(ctx context.Context, userID, calculatorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	calc, ok := m.calcs[calculatorID]
	if !ok {
		return store.ErrNotFound
	}
	if calc.UserID != userID {
		return store.ErrForbidden
	}
	delete(m.calcs, calculatorID)
	return nil
}

func (m *mockStore) ListCalculators(ctx context.Context, f models.ListFilter, viewerID string) ([]*models.Calculator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.Calculator{}
	for _, c := range m.calcs {
		if f.UserID != "" && c.UserID != f.UserID {
			continue
		}
		if f.IsPublic != nil && c.IsPublic != *f.IsPublic {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (m *mockStore) LikeCalculator(ctx context.Context, userID, calculatorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	calc, err := m.visible(calculatorID, userID)
	if err != nil {
		return err
	}
	key := userID + "/" + calculatorID
	if m.likes[key] {
		return store.ErrAlreadyExists
	}
	m.likes[key] = true
	calc.LikesCount++
	return nil
}

func (m *mockStore) UnlikeCalculator(ctx context.Context, userID, calculatorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := userID + "/" + calculatorID
	if !m.likes[key] {
		return store.ErrNotFound
	}
	delete(m.likes, key)
	m.calcs[calculatorID].LikesCount--
	return nil
}

func (m *mockStore) ForkCalculator(ctx context.Context, userID, calculatorID string) (*models.Calculator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, err := m.visible(calculatorID, userID)
	if err != nil {
		return nil, err
	}
	src.ForksCount++
	fork := &models.Calculator{
		ID:     uuid.NewString(),
		UserID: userID,
		Title:  src.Title + store.ForkSuffix,
		Spec:   src.Spec.Clone(),
	}
	m.calcs[fork.ID] = fork
	return fork, nil
}

type testServer struct {
	router   *gin.Engine
	store    *mockStore
	handler  *Handler
	jwt      *auth.JWTManager
	sessions *session.Manager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	jm, err := auth.NewJWTManager("gateway-test-secret", time.Hour)
	require.NoError(t, err)

	st := newMockStore()
	sessions := session.NewManager()
	h := NewHandler(st, specgen.NewGenerator(nil), sessions, jm, nil, nil)

	router := gin.New()
	RegisterRoutes(router, h, auth.NewMiddleware(jm, nil))
	return &testServer{router: router, store: st, handler: h, jwt: jm, sessions: sessions}
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	token, _, err := s.jwt.GenerateToken(context.Background(), userID, userID+"@example.com", []string{"user"})
	require.NoError(t, err)
	return token
}

func (s *testServer) do(method, path string, body any, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health", nil, "").Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/ready", nil, "").Code)

	s.store.pingErr = errors.New("connection refused")
	w := s.do(http.MethodGet, "/ready", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "not ready")
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)
	hashed, err := auth.HashPassword("s3cret")
	require.NoError(t, err)
	s.store.users["ada@example.com"] = &models.User{ID: "user-1", Name: "Ada", Email: "ada@example.com", HashedPassword: hashed}

	t.Run("success", func(t *testing.T) {
		w := s.do(http.MethodPost, "/api/auth/login", models.LoginRequest{Email: "ada@example.com", Password: "s3cret"}, "")
		require.Equal(t, http.StatusOK, w.Code)

		resp := decode[models.LoginResponse](t, w)
		assert.Equal(t, "user-1", resp.User.ID)
		assert.NotContains(t, w.Body.String(), "hashed_password")

		claims, err := s.jwt.ValidateToken(context.Background(), resp.Token)
		require.NoError(t, err)
		assert.Equal(t, "user-1", claims.UserID)
	})

	t.Run("wrong password", func(t *testing.T) {
		w := s.do(http.MethodPost, "/api/auth/login", models.LoginRequest{Email: "ada@example.com", Password: "nope"}, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		w := s.do(http.MethodPost, "/api/auth/login", models.LoginRequest{Email: "bob@example.com", Password: "s3cret"}, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("malformed", func(t *testing.T) {
		w := s.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "not-an-email"}, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRefreshToken(t *testing.T) {
	s := newTestServer(t)

	t.Run("valid token", func(t *testing.T) {
		w := s.do(http.MethodPost, "/api/auth/refresh", nil, s.token(t, "user-1"))
		require.Equal(t, http.StatusOK, w.Code)

		resp := decode[models.TokenResponse](t, w)
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, int64(time.Hour.Seconds()), resp.ExpiresIn)
		assert.WithinDuration(t, time.Now().Add(time.Hour), resp.ExpiresAt, time.Minute)

		claims, err := s.jwt.ValidateToken(context.Background(), resp.Token)
		require.NoError(t, err)
		assert.Equal(t, "user-1", claims.UserID)
	})

	t.Run("missing token", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/api/auth/refresh", nil, "").Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/api/auth/refresh", nil, "not-a-jwt").Code)
	})
}

func TestGenerateCalculator(t *testing.T) {
	s := newTestServer(t)

	t.Run("anonymous gets fallback", func(t *testing.T) {
		w := s.do(http.MethodPost, "/api/calculators/generate", GenerateRequest{Prompt: "tip calculator"}, "")
		require.Equal(t, http.StatusOK, w.Code)

		res := decode[models.GenerationResult](t, w)
		assert.Equal(t, models.SourceFallback, res.Source)
		assert.Equal(t, specgen.ReasonNoCredential, res.Reason)
		assert.Equal(t, models.KindTip, res.Spec.Kind)
		assert.Equal(t, "Tip Calculator", res.Spec.Title)
	})

	t.Run("empty prompt", func(t *testing.T) {
		w := s.do(http.MethodPost, "/api/calculators/generate", GenerateRequest{Prompt: "   "}, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("authenticated updates session", func(t *testing.T) {
		token := s.token(t, "user-1")
		w := s.do(http.MethodPost, "/api/calculators/generate", GenerateRequest{Prompt: "bmi calculator"}, token)
		require.Equal(t, http.StatusOK, w.Code)

		snap := s.sessions.Get("user-1").Snapshot()
		assert.Equal(t, session.StateIdle, snap.State)
		assert.Equal(t, "bmi calculator", snap.Prompt)
		require.NotNil(t, snap.Current)
		assert.Equal(t, models.KindBMI, snap.Current.Spec.Kind)

		w = s.do(http.MethodGet, "/api/session", nil, token)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "bmi calculator")

		w = s.do(http.MethodDelete, "/api/session", nil, token)
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("already generating", func(t *testing.T) {
		require.NoError(t, s.sessions.Get("user-2").Begin("loan calculator"))
		defer s.sessions.Get("user-2").Fail()

		w := s.do(http.MethodPost, "/api/calculators/generate", GenerateRequest{Prompt: "tip"}, s.token(t, "user-2"))
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, models.ErrCodeAlreadyGenerating, decode[models.ErrorResponse](t, w).Code)
	})

	t.Run("reset refused while generating", func(t *testing.T) {
		busy := s.sessions.Get("user-3")
		require.NoError(t, busy.Begin("loan calculator"))
		token := s.token(t, "user-3")

		w := s.do(http.MethodDelete, "/api/session", nil, token)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, models.ErrCodeAlreadyGenerating, decode[models.ErrorResponse](t, w).Code)

		w = s.do(http.MethodPost, "/api/calculators/generate", GenerateRequest{Prompt: "tip"}, token)
		assert.Equal(t, http.StatusConflict, w.Code)

		busy.Fail()
		w = s.do(http.MethodDelete, "/api/session", nil, token)
		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}

func TestEvaluateCalculator(t *testing.T) {
	s := newTestServer(t)
	spec := models.CalculatorSpec{
		Title: "Tip Calculator",
		Kind:  models.KindTip,
		Fields: []models.CalculatorField{
			{ID: "bill_amount", Label: "Bill Amount", Type: models.FieldTypeNumber},
			{ID: "tip_percentage", Label: "Tip Percentage", Type: models.FieldTypeNumber},
		},
	}

	t.Run("numbers and strings", func(t *testing.T) {
		w := s.do(http.MethodPost, "/api/calculators/evaluate", EvaluateRequest{
			Spec:   spec,
			Values: map[string]any{"bill_amount": 50, "tip_percentage": "18"},
		}, "")
		require.Equal(t, http.StatusOK, w.Code)

		res := decode[evaluator.Result](t, w)
		assert.Equal(t, "Tip: $9.00, Total: $59.00", res.Text)
		assert.Equal(t, evaluator.StatusOK, res.Status)
	})

	t.Run("missing values", func(t *testing.T) {
		w := s.do(http.MethodPost, "/api/calculators/evaluate", EvaluateRequest{
			Spec:   spec,
			Values: map[string]any{"bill_amount": 50},
		}, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, evaluator.StatusMissingFields, decode[evaluator.Result](t, w).Status)
	})

	t.Run("legacy spec without kind", func(t *testing.T) {
		legacy := spec
		legacy.Kind = ""
		w := s.do(http.MethodPost, "/api/calculators/evaluate", EvaluateRequest{
			Spec:   legacy,
			Values: map[string]any{"bill_amount": "50", "tip_percentage": "18"},
		}, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Tip: $9.00, Total: $59.00", decode[evaluator.Result](t, w).Text)
	})

	t.Run("no fields", func(t *testing.T) {
		w := s.do(http.MethodPost, "/api/calculators/evaluate", EvaluateRequest{Spec: models.CalculatorSpec{Title: "x"}}, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("deeply nested formula", func(t *testing.T) {
		nested := models.CalculatorSpec{
			Title:   "Nested",
			Kind:    models.KindGeneric,
			Fields:  []models.CalculatorField{{ID: "x", Label: "X", Type: models.FieldTypeNumber}},
			Formula: strings.Repeat("(", 200000) + "x" + strings.Repeat(")", 200000),
		}
		w := s.do(http.MethodPost, "/api/calculators/evaluate", EvaluateRequest{
			Spec:   nested,
			Values: map[string]any{"x": 1},
		}, "")
		require.Equal(t, http.StatusOK, w.Code)
		res := decode[evaluator.Result](t, w)
		assert.Equal(t, evaluator.MsgFormulaError, res.Text)
		assert.Equal(t, evaluator.StatusError, res.Status)
	})

	t.Run("oversized body", func(t *testing.T) {
		big := spec
		big.Description = strings.Repeat("a", MaxBodyBytes)
		w := s.do(http.MethodPost, "/api/calculators/evaluate", EvaluateRequest{Spec: big}, "")
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Equal(t, models.ErrCodeRequestTooLarge, decode[models.ErrorResponse](t, w).Code)
	})
}

func TestGeneratorStatus(t *testing.T) {
	s := newTestServer(t)
	w := s.do(http.MethodGet, "/api/generator/status", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	status := decode[GeneratorStatusResponse](t, w)
	assert.Equal(t, "none", status.Provider)
	assert.False(t, status.Configured)
	assert.False(t, status.Connected)
	assert.Equal(t, "closed", status.BreakerState)
}

func TestCalculatorLifecycle(t *testing.T) {
	s := newTestServer(t)
	owner := s.token(t, "owner")
	other := s.token(t, "other")

	input := models.CreateCalculatorInput{
		Title:    "Tip Calculator",
		Prompt:   "tip calculator",
		IsPublic: false,
		Spec: models.CalculatorSpec{
			Title:  "Tip Calculator",
			Fields: []models.CalculatorField{{ID: "bill_amount", Label: "Bill", Type: models.FieldTypeNumber}},
		},
	}

	w := s.do(http.MethodPost, "/api/calculators", input, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/api/calculators", models.CreateCalculatorInput{Title: " "}, owner)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/calculators", input, owner)
	require.Equal(t, http.StatusCreated, w.Code)
	calc := decode[models.Calculator](t, w)
	assert.Equal(t, models.KindTip, calc.Spec.Kind)
	path := "/api/calculators/" + calc.ID

	// private: invisible to others
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, path, nil, owner).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, path, nil, other).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, path, nil, "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, path+"/like", nil, other).Code)

	public := true
	w = s.do(http.MethodPut, path, models.UpdateCalculatorInput{IsPublic: &public}, other)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = s.do(http.MethodPut, path, models.UpdateCalculatorInput{IsPublic: &public}, owner)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[models.Calculator](t, w).IsPublic)

	w = s.do(http.MethodGet, "/api/calculators", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Calculator](t, w), 1)

	assert.Equal(t, http.StatusNoContent, s.do(http.MethodPost, path+"/like", nil, other).Code)
	assert.Equal(t, http.StatusConflict, s.do(http.MethodPost, path+"/like", nil, other).Code)
	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, path+"/like", nil, other).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, path+"/like", nil, other).Code)

	w = s.do(http.MethodPost, path+"/fork", nil, other)
	require.Equal(t, http.StatusCreated, w.Code)
	fork := decode[models.Calculator](t, w)
	assert.Equal(t, "Tip Calculator (Fork)", fork.Title)
	assert.Equal(t, "other", fork.UserID)

	w = s.do(http.MethodGet, "/api/me/calculators", nil, other)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Calculator](t, w), 1)
	assert.Len(t, s.sessions.Get("other").Snapshot().Saved, 1)

	views := s.store.calcs[calc.ID].ViewsCount
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, path, nil, other).Code)
	assert.Equal(t, views+1, s.store.calcs[calc.ID].ViewsCount)
	views++

	w = s.do(http.MethodPost, path+"/evaluate", EvaluateValuesRequest{Values: map[string]any{}}, other)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, evaluator.StatusMissingFields, decode[evaluator.Result](t, w).Status)
	assert.Equal(t, views, s.store.calcs[calc.ID].ViewsCount, "evaluating is not a view")

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodDelete, path, nil, other).Code)
	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, path, nil, owner).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, path, nil, owner).Code)
}

func TestListCalculators_InvalidPaging(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/calculators?limit=abc", nil, "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/calculators?offset=-1", nil, "").Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/calculators?limit=5&offset=10", nil, "").Code)
}

func TestStringValues(t *testing.T) {
	got := stringValues(map[string]any{
		"a": 1.5,
		"b": "2",
		"c": nil,
		"d": true,
		"e": float64(100000000),
	})
	assert.Equal(t, map[string]string{"a": "1.5", "b": "2", "c": "", "d": "true", "e": "100000000"}, got)
}
