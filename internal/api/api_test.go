package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pageza/cookbook/backend/config"
	"github.com/pageza/cookbook/backend/internal/api"
	"github.com/pageza/cookbook/backend/internal/models"
	"github.com/pageza/cookbook/backend/internal/service"
	"github.com/pageza/cookbook/backend/internal/testhelpers"
	"github.com/pageza/cookbook/backend/internal/types"
)

type testEnv struct {
	router *gin.Engine
	db     *gorm.DB
	auth   *service.AuthService
}

func setupAPI(t *testing.T) *testEnv {
	gin.SetMode(gin.TestMode)
	db := testhelpers.NewSQLiteDB(t)
	log := zap.NewNop()
	cfg := &config.Config{
		CookieName:        "session",
		TokenTTL:          time.Hour,
		RateLimitWindow:   time.Hour,
		RecipeCreateLimit: 3,
		RecipeUpdateLimit: 5,
		ContactLimit:      2,
	}

	auth := service.NewAuthService(db, "test-secret", time.Hour, log)
	images := service.NewImageService(service.NewLocalStore(t.TempDir(), "/uploads"), log)
	contact := service.NewContactService(db, service.NewEmailService(cfg, log), log)
	t.Cleanup(contact.Wait)

	router := gin.New()
	api.RegisterRoutes(router, api.Deps{
		Config:      cfg,
		DB:          db,
		Auth:        auth,
		Ingredients: service.NewIngredientService(db, nil, log),
		Recipes:     service.NewRecipeService(db, images, log),
		Contact:     contact,
		Log:         log,
	})
	return &testEnv{router: router, db: db, auth: auth}
}

// token returns a session token for a freshly created user.
func (e *testEnv) token(t *testing.T, username string) (string, *models.User) {
	t.Helper()
	user := testhelpers.CreateUser(t, e.db, username)
	token, err := e.auth.GenerateToken(user)
	require.NoError(t, err)
	return token, user
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestHealth(t *testing.T) {
	env := setupAPI(t)
	for _, path := range []string{"/health", "/api/v1/health"} {
		w := env.do(t, http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"healthy"`)
	}
}

func TestAuthFlow(t *testing.T) {
	env := setupAPI(t)

	w := env.do(t, http.MethodPost, "/api/v1/auth/register", types.RegisterRequest{
		Name: "Ada", Username: "ada", Email: "ada@example.com", Password: "secret1",
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp types.AuthResponse
	decode(t, w, &resp)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "ada", resp.User.Username)
	assert.NotContains(t, w.Body.String(), "password")

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "session", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/user", nil)
	req.AddCookie(cookies[0])
	me := httptest.NewRecorder()
	env.router.ServeHTTP(me, req)
	require.Equal(t, http.StatusOK, me.Code)
	assert.Contains(t, me.Body.String(), "ada@example.com")

	w = env.do(t, http.MethodPost, "/api/v1/auth/register", types.RegisterRequest{
		Name: "Ada", Username: "ada2", Email: "ADA@example.com", Password: "secret1",
	}, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/auth/register", map[string]string{"email": "x@example.com"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/auth/login", types.LoginRequest{Email: "ada@example.com", Password: "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/auth/login", types.LoginRequest{Email: "ada@example.com", Password: "secret1"}, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/auth/logout", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	cookies = w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Empty(t, cookies[0].Value)
	assert.Negative(t, cookies[0].MaxAge)

	w = env.do(t, http.MethodGet, "/api/v1/auth/user", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestIngredientEndpoints(t *testing.T) {
	env := setupAPI(t)
	token, _ := env.token(t, "chef")

	body := types.CreateIngredientRequest{Name: "Chickpeas", Unit: "g", CaloriesPerUnit: 1.64, ProteinPerUnit: 0.089}
	w := env.do(t, http.MethodPost, "/api/v1/ingredients", body, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/ingredients", body, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created models.Ingredient
	decode(t, w, &created)

	w = env.do(t, http.MethodPost, "/api/v1/ingredients", body, token)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/ingredients", types.CreateIngredientRequest{Name: "Rice", Unit: "bowl"}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unit must be one of")

	w = env.do(t, http.MethodGet, "/api/v1/ingredients/search?query=chick&page=1&limit=5", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var page types.IngredientPage
	decode(t, w, &page)
	require.Len(t, page.Ingredients, 1)
	assert.Equal(t, created.ID, page.Ingredients[0].ID)
	assert.Equal(t, 5, page.Limit)

	w = env.do(t, http.MethodGet, "/api/v1/ingredients/"+created.ID.String(), nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/ingredients/not-a-uuid", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNutritionPreview(t *testing.T) {
	env := setupAPI(t)
	rice := testhelpers.CreateIngredient(t, env.db, "Rice", "g", 1.3, 0.027)

	w := env.do(t, http.MethodPost, "/api/v1/nutrition/preview", types.NutritionPreviewRequest{
		Servings:    2,
		Ingredients: []types.RecipeIngredientInput{{IngredientID: rice.ID, QuantityPerServing: 100}},
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var preview types.NutritionPreview
	decode(t, w, &preview)
	assert.InDelta(t, 130, preview.Total.Calories, 1e-9)
	assert.InDelta(t, 65, preview.PerServing.Calories, 1e-9)

	w = env.do(t, http.MethodPost, "/api/v1/nutrition/preview", types.NutritionPreviewRequest{Servings: 0}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestContactEndpoint(t *testing.T) {
	env := setupAPI(t)
	msg := types.ContactRequest{Name: "Visitor", Email: "visitor@example.com", Subject: "hello", Message: "Nice site"}

	for i := 0; i < 2; i++ {
		w := env.do(t, http.MethodPost, "/api/v1/contact", msg, "")
		assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}
	w := env.do(t, http.MethodPost, "/api/v1/contact", msg, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	var count int64
	require.NoError(t, env.db.Model(&models.ContactMessage{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestCreateRecipeBadJSON(t *testing.T) {
	env := setupAPI(t)
	token, _ := env.token(t, "someone")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/recipes", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
