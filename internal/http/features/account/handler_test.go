package account

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/ninebudget/ninebudget/pkg/auth"
	"github.com/ninebudget/ninebudget/pkg/domain"
	"github.com/ninebudget/ninebudget/pkg/lifecycle"
	"github.com/ninebudget/ninebudget/pkg/repository"
)

func newTestHandler(t *testing.T) (*Handler, *lifecycle.Service) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	store := repository.NewMemoryStore()
	svc := lifecycle.NewService(lifecycle.Config{}, logger, store, auth.PasswordHasher{}, auth.KeyGenerator{}, auth.DefaultPasswordPolicy())

	return NewHandler(logger, svc, nil, "http://localhost:8080"), svc
}

func registerUser(t *testing.T, svc *lifecycle.Service, email, username, password string) *domain.User {
	t.Helper()

	user, err := svc.Register(context.Background(), lifecycle.RegisterInput{
		Email:    email,
		Username: username,
		Password: password,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return user
}

func activateUser(t *testing.T, svc *lifecycle.Service, user *domain.User) {
	t.Helper()

	if _, err := svc.Activate(context.Background(), *user.ActivationKey); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
}

func TestHandler_Register(t *testing.T) {
	h, _ := newTestHandler(t)

	body := `{"first_name":"Alice","last_name":"Smith","email":"Alice@Example.COM","username":"Alice","password":"longenough"}`
	req := httptest.NewRequest("POST", "/v1/account/register", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.Register(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var resp UserResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Email != "alice@example.com" {
		t.Errorf("email = %q, want lowercased", resp.Email)
	}
	if resp.Activated {
		t.Error("new user should not be activated")
	}
	if strings.Contains(w.Body.String(), "key") {
		t.Error("response must not expose keys")
	}
}

func TestHandler_Register_Errors(t *testing.T) {
	h, svc := newTestHandler(t)
	existing := registerUser(t, svc, "taken@example.com", "taken", "longenough")
	activateUser(t, svc, existing)

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{
			name:       "malformed json",
			body:       `{"email":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing fields",
			body:       `{"email":"a@example.com"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid email",
			body:       `{"email":"nope","username":"bob","password":"longenough"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "weak password",
			body:       `{"email":"bob@example.com","username":"bob","password":"short"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "email already used by activated user",
			body:       `{"email":"taken@example.com","username":"someoneelse","password":"longenough"}`,
			wantStatus: http.StatusConflict,
		},
		{
			name:       "username already used",
			body:       `{"email":"fresh@example.com","username":"TAKEN","password":"longenough"}`,
			wantStatus: http.StatusConflict,
		},
		{
			name:       "invalid account id",
			body:       `{"email":"bob@example.com","username":"bob","password":"longenough","account_id":"nope"}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/v1/account/register", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.Register(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestHandler_Register_ReplacesAbandonedRegistration(t *testing.T) {
	h, svc := newTestHandler(t)
	registerUser(t, svc, "pending@example.com", "pending", "longenough")

	// The email is held by an unactivated user, so a fresh registration
	// evicts it and succeeds.
	body := `{"email":"pending@example.com","username":"newcomer","password":"longenough"}`
	req := httptest.NewRequest("POST", "/v1/account/register", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.Register(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	if _, err := svc.FindByCredential(context.Background(), "pending"); err == nil {
		t.Error("abandoned registration should be gone")
	}
}

func TestHandler_Activate(t *testing.T) {
	h, svc := newTestHandler(t)
	user := registerUser(t, svc, "alice@example.com", "alice", "longenough")
	key := *user.ActivationKey

	req := httptest.NewRequest("GET", "/v1/account/activate?key="+key, nil)
	w := httptest.NewRecorder()
	h.Activate(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp UserResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !resp.Activated {
		t.Error("user should be activated")
	}

	// The key is single-use
	req = httptest.NewRequest("GET", "/v1/account/activate?key="+key, nil)
	w = httptest.NewRecorder()
	h.Activate(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("second activation status = %d, want %d", w.Code, http.StatusNotFound)
	}

	// Missing key
	req = httptest.NewRequest("GET", "/v1/account/activate", nil)
	w = httptest.NewRecorder()
	h.Activate(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("missing key status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandler_RequestPasswordReset_NeverLeaksExistence(t *testing.T) {
	h, svc := newTestHandler(t)
	activateUser(t, svc, registerUser(t, svc, "alice@example.com", "alice", "longenough"))

	bodies := map[string]string{
		"known email":   `{"email":"alice@example.com"}`,
		"unknown email": `{"email":"nobody@example.com"}`,
	}

	var responses []string
	for name, body := range bodies {
		req := httptest.NewRequest("POST", "/v1/account/reset-password/init", strings.NewReader(body))
		w := httptest.NewRecorder()
		h.RequestPasswordReset(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want %d", name, w.Code, http.StatusOK)
		}
		responses = append(responses, w.Body.String())
	}

	if responses[0] != responses[1] {
		t.Error("responses must be identical for known and unknown emails")
	}
}

func TestHandler_FinishPasswordReset(t *testing.T) {
	h, svc := newTestHandler(t)
	activateUser(t, svc, registerUser(t, svc, "alice@example.com", "alice", "longenough"))

	user, err := svc.RequestPasswordReset(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}

	body := `{"key":"` + *user.ResetKey + `","new_password":"evenlongerthanbefore"}`
	req := httptest.NewRequest("POST", "/v1/account/reset-password/finish", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.FinishPasswordReset(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	if _, err := svc.Authenticate(context.Background(), "alice", "evenlongerthanbefore"); err != nil {
		t.Errorf("new password should verify: %v", err)
	}

	// Bogus key
	req = httptest.NewRequest("POST", "/v1/account/reset-password/finish",
		strings.NewReader(`{"key":"nosuchkey","new_password":"evenlongerthanbefore"}`))
	w = httptest.NewRecorder()
	h.FinishPasswordReset(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("bogus key status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandler_Login(t *testing.T) {
	h, svc := newTestHandler(t)
	activateUser(t, svc, registerUser(t, svc, "alice@example.com", "alice", "longenough"))

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{
			name:       "valid credentials",
			body:       `{"username":"alice","password":"longenough"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "case-insensitive username",
			body:       `{"username":"ALICE","password":"longenough"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "wrong password",
			body:       `{"username":"alice","password":"wrongwrong"}`,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "unknown username",
			body:       `{"username":"nobody","password":"longenough"}`,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "missing fields",
			body:       `{"username":"alice"}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/v1/account/login", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.Login(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestHandler_Login_Lockout(t *testing.T) {
	h, svc := newTestHandler(t)
	activateUser(t, svc, registerUser(t, svc, "alice@example.com", "alice", "longenough"))

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("POST", "/v1/account/login",
			strings.NewReader(`{"username":"alice","password":"wrongwrong"}`))
		w := httptest.NewRecorder()
		h.Login(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("failure %d: status = %d, want %d", i+1, w.Code, http.StatusUnauthorized)
		}
	}

	// The account is now locked, even for the correct password
	req := httptest.NewRequest("POST", "/v1/account/login",
		strings.NewReader(`{"username":"alice","password":"longenough"}`))
	w := httptest.NewRecorder()
	h.Login(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("locked status = %d, want %d", w.Code, http.StatusForbidden)
	}
}
