package api

import (
	"Recall_1.0/backend/go/internal/config"
	"Recall_1.0/backend/go/internal/relation_service/service"
	"Recall_1.0/backend/go/internal/relation_service/store"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

// helper to build a router backed by the in-memory store
func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := service.NewService(store.NewMemoryUserStore())
	h := NewHandler(svc, map[string]HealthCheck{
		"mongodb": func(ctx context.Context) error { return nil },
	})
	return SetupRouter(h, &config.AppConfig{})
}

// helper to issue a request with a JSON body
func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// helper to decode a JSON response body
func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return out
}

// helper to create a user and a relation through the API
func seedUserWithRelation(t *testing.T, router *gin.Engine, email, relationID string) {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/create-user", gin.H{"name": "Alice", "email": email})
	if w.Code != http.StatusOK {
		t.Fatalf("create-user status = %d, body = %s", w.Code, w.Body.String())
	}
	w = doJSON(t, router, http.MethodPost, "/add-relation", gin.H{
		"email":    email,
		"relation": gin.H{"id": relationID, "name": "Ana"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("add-relation status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := service.NewService(store.NewMemoryUserStore())
	h := NewHandler(svc, nil)
	router := SetupRouter(h, &config.AppConfig{
		Server: config.ServerConfig{RateLimit: config.RateLimitConfig{RPS: 0.001, Burst: 2}},
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := doJSON(t, router, http.MethodGet, "/", nil)
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Fatalf("requests within burst got %v, want 200", codes[:2])
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("request over burst got %d, want 429", codes[2])
	}
}

func TestRootEndpoint(t *testing.T) {
	router := newTestRouter(t)
	w := doJSON(t, router, http.MethodGet, "/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET / status = %d", w.Code)
	}
	if got := decode(t, w)["message"]; got != "API is running" {
		t.Errorf("message = %v, want API is running", got)
	}
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)
	w := doJSON(t, router, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health status = %d", w.Code)
	}
	if got := decode(t, w)["mongodb"]; got != "ok" {
		t.Errorf("mongodb health = %v, want ok", got)
	}
}

func TestCreateUserEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/create-user", gin.H{"name": "Alice", "email": "alice@example.com"})
	if w.Code != http.StatusOK {
		t.Fatalf("create-user status = %d, body = %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["message"] != "User created successfully" || body["user_id"] == "" {
		t.Errorf("create-user body = %v", body)
	}

	// 重复创建：软成功
	w = doJSON(t, router, http.MethodPost, "/create-user", gin.H{"name": "Mallory", "email": "alice@example.com"})
	if w.Code != http.StatusOK {
		t.Fatalf("duplicate create-user status = %d", w.Code)
	}
	if got := decode(t, w)["message"]; got != "User already exists" {
		t.Errorf("duplicate create message = %v", got)
	}

	// email 缺失或非法
	w = doJSON(t, router, http.MethodPost, "/create-user", gin.H{"name": "NoMail"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing email status = %d, want 400", w.Code)
	}
	w = doJSON(t, router, http.MethodPost, "/create-user", gin.H{"name": "Bad", "email": "not-an-email"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed email status = %d, want 400", w.Code)
	}
}

func TestGetUserEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/get-user", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("no email status = %d, want 400", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/get-user?email=nobody@example.com", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown email status = %d, want 404", w.Code)
	}

	seedUserWithRelation(t, router, "alice@example.com", "a")
	w = doJSON(t, router, http.MethodGet, "/get-user?email=alice@example.com", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get-user status = %d", w.Code)
	}
	body := decode(t, w)
	if body["email"] != "alice@example.com" {
		t.Errorf("email = %v", body["email"])
	}
	if id, ok := body["_id"].(string); !ok || id == "" {
		t.Errorf("_id = %v, want stringified object id", body["_id"])
	}
}

func TestMessageAddEndpoint(t *testing.T) {
	router := newTestRouter(t)
	seedUserWithRelation(t, router, "alice@example.com", "a")

	w := doJSON(t, router, http.MethodPost, "/message/add", gin.H{
		"email": "alice@example.com", "relation_id": "nope", "message": "hey",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown relation status = %d, want 404", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, "/message/add", gin.H{
		"email": "alice@example.com", "relation_id": "a", "message": "hey",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("message/add status = %d, body = %s", w.Code, w.Body.String())
	}
	if got := decode(t, w)["message"]; got != "Message added successfully" {
		t.Errorf("message = %v", got)
	}
}

func TestRegisterFaceEndpoint(t *testing.T) {
	router := newTestRouter(t)
	seedUserWithRelation(t, router, "alice@example.com", "a")

	short := make([]float64, 127)
	w := doJSON(t, router, http.MethodPost, "/register-face", gin.H{
		"email": "alice@example.com", "relation_id": "a", "face_descriptor": short,
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("127-component descriptor status = %d, want 400", w.Code)
	}

	full := make([]float64, 128)
	w = doJSON(t, router, http.MethodPost, "/register-face", gin.H{
		"email": "alice@example.com", "relation_id": "a", "face_descriptor": full,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("register-face status = %d, body = %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["relation_id"] != "a" {
		t.Errorf("relation_id = %v, want a", body["relation_id"])
	}

	// 分区投影
	w = doJSON(t, router, http.MethodGet, "/get-face-descriptors?email=alice@example.com", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get-face-descriptors status = %d", w.Code)
	}
	listing := decode(t, w)
	if descriptors, ok := listing["descriptors"].([]interface{}); !ok || len(descriptors) != 1 {
		t.Errorf("descriptors = %v, want one registered entry", listing["descriptors"])
	}
	if unregistered, ok := listing["unregistered"].([]interface{}); !ok || len(unregistered) != 0 {
		t.Errorf("unregistered = %v, want empty", listing["unregistered"])
	}
}

func TestReminderEndpoints(t *testing.T) {
	router := newTestRouter(t)
	seedUserWithRelation(t, router, "alice@example.com", "a")

	w := doJSON(t, router, http.MethodPost, "/reminder/add", gin.H{
		"email": "alice@example.com", "time": "25:00", "message": "too late",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid time status = %d, want 400", w.Code)
	}
	if got := decode(t, w)["error"]; got != "Invalid time format. Use HH:MM" {
		t.Errorf("invalid time error = %v", got)
	}

	w = doJSON(t, router, http.MethodPost, "/reminder/add", gin.H{
		"email": "alice@example.com", "time": "09:30", "message": "meds",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("reminder/add status = %d, body = %s", w.Code, w.Body.String())
	}
	if got := decode(t, w)["message"]; got != "Reminder set for 09:30" {
		t.Errorf("reminder message = %v", got)
	}

	w = doJSON(t, router, http.MethodGet, "/reminder/get?email=alice@example.com", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reminder/get status = %d", w.Code)
	}
	reminders, ok := decode(t, w)["reminders"].([]interface{})
	if !ok || len(reminders) != 1 {
		t.Fatalf("reminders = %v, want one entry", reminders)
	}
	first, _ := reminders[0].(map[string]interface{})
	if first["id"] != float64(1) || first["time"] != "09:30" {
		t.Errorf("reminder = %v, want id 1 at 09:30", first)
	}

	// reminder_id 缺失
	w = doJSON(t, router, http.MethodDelete, "/reminder/delete", gin.H{"email": "alice@example.com"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing reminder_id status = %d, want 400", w.Code)
	}

	w = doJSON(t, router, http.MethodDelete, "/reminder/delete", gin.H{
		"email": "alice@example.com", "reminder_id": 99,
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown reminder status = %d, want 404", w.Code)
	}

	w = doJSON(t, router, http.MethodDelete, "/reminder/delete", gin.H{
		"email": "alice@example.com", "reminder_id": 1,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("reminder/delete status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestConversationEndpoints(t *testing.T) {
	router := newTestRouter(t)
	seedUserWithRelation(t, router, "alice@example.com", "a")

	// 没有历史：哨兵而非错误
	w := doJSON(t, router, http.MethodGet, "/conversation/latest?email=alice@example.com&relation_id=a", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("latest (empty) status = %d", w.Code)
	}
	body := decode(t, w)
	if body["isFirstMeeting"] != true || body["summary"] != "First time meeting" {
		t.Errorf("sentinel = %v", body)
	}

	// transcript 和 summary 都为空
	w = doJSON(t, router, http.MethodPost, "/conversation/add", gin.H{
		"email": "alice@example.com", "relation_id": "a",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty conversation status = %d, want 400", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, "/conversation/add", gin.H{
		"email": "alice@example.com", "relation_id": "a", "summary": "hi",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("conversation/add status = %d, body = %s", w.Code, w.Body.String())
	}
	body = decode(t, w)
	if body["summary"] != "hi" || body["conversation_id"] == "" {
		t.Errorf("conversation/add body = %v", body)
	}

	w = doJSON(t, router, http.MethodGet, "/conversation/latest?email=alice@example.com&relation_id=a", nil)
	body = decode(t, w)
	if body["isFirstMeeting"] != false || body["summary"] != "hi" {
		t.Errorf("latest after add = %v", body)
	}

	w = doJSON(t, router, http.MethodGet, "/conversations/all?email=alice@example.com", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("conversations/all status = %d", w.Code)
	}
	conversations, ok := decode(t, w)["conversations"].([]interface{})
	if !ok || len(conversations) != 1 {
		t.Errorf("conversations = %v, want one entry", conversations)
	}
}

func TestRelationUpdateAndDeleteEndpoints(t *testing.T) {
	router := newTestRouter(t)
	seedUserWithRelation(t, router, "alice@example.com", "a")

	// 白名单外的键被静默忽略
	w := doJSON(t, router, http.MethodPost, "/relation/update", gin.H{
		"email":       "alice@example.com",
		"relation_id": "a",
		"updates":     gin.H{"name": "Anastasia", "isRegistered": true},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("relation/update status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/get-user?email=alice@example.com", nil)
	user := decode(t, w)
	relations, _ := user["relations"].([]interface{})
	if len(relations) != 1 {
		t.Fatalf("relations = %v", relations)
	}
	rel, _ := relations[0].(map[string]interface{})
	if rel["name"] != "Anastasia" {
		t.Errorf("name = %v, want Anastasia", rel["name"])
	}
	if rel["isRegistered"] != false {
		t.Errorf("isRegistered = %v, non-whitelisted update must be ignored", rel["isRegistered"])
	}

	w = doJSON(t, router, http.MethodPost, "/relation/update", gin.H{
		"email": "alice@example.com", "relation_id": "nope", "updates": gin.H{"name": "X"},
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("update unknown relation status = %d, want 404", w.Code)
	}

	w = doJSON(t, router, http.MethodDelete, "/relation/delete", gin.H{
		"email": "alice@example.com", "relation_id": "nope",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("delete unknown relation status = %d, want 404", w.Code)
	}

	w = doJSON(t, router, http.MethodDelete, "/relation/delete", gin.H{
		"email": "alice@example.com", "relation_id": "a",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("relation/delete status = %d, body = %s", w.Code, w.Body.String())
	}
	if got := decode(t, w)["message"]; got != "Relation deleted successfully" {
		t.Errorf("delete message = %v", got)
	}
}
