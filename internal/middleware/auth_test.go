package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clupso/server/internal/auth"
	"github.com/clupso/server/internal/model"
	"github.com/clupso/server/internal/repo"
)

// staticUserRepo serves a single user for middleware tests.
type staticUserRepo struct {
	user model.User
}

func (s *staticUserRepo) Create(context.Context, model.User) (model.User, error) {
	return model.User{}, repo.ErrConflict
}

func (s *staticUserRepo) GetByID(_ context.Context, id uuid.UUID) (model.User, error) {
	if id != s.user.ID {
		return model.User{}, repo.ErrNotFound
	}
	return s.user, nil
}

func (s *staticUserRepo) GetByEmail(context.Context, string) (model.User, error) {
	return s.user, nil
}

func (s *staticUserRepo) SetTOTPSecret(context.Context, uuid.UUID, string) error { return nil }
func (s *staticUserRepo) EnableTOTP(context.Context, uuid.UUID) error            { return nil }
func (s *staticUserRepo) DisableTOTP(context.Context, uuid.UUID) error           { return nil }
func (s *staticUserRepo) SetResetToken(context.Context, uuid.UUID, string, time.Time) error {
	return nil
}
func (s *staticUserRepo) FindByResetTokenHash(context.Context, string, time.Time) (model.User, error) {
	return model.User{}, repo.ErrNotFound
}
func (s *staticUserRepo) ResetPassword(context.Context, uuid.UUID, string) error { return nil }

func TestAuthMiddleware(t *testing.T) {
	jwtService := auth.NewJWTService("test-secret-at-least-32-characters-long")
	user := model.User{ID: uuid.New(), Email: "a@x.com"}
	users := &staticUserRepo{user: user}

	var gotUserID uuid.UUID
	handler := AuthMiddleware(jwtService, users)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := GetUserID(r.Context())
		if !ok {
			t.Error("user ID should be on the request context")
		}
		gotUserID = id
		w.WriteHeader(http.StatusOK)
	}))

	do := func(authHeader string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if authHeader != "" {
			req.Header.Set("Authorization", authHeader)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := do(""); code != http.StatusUnauthorized {
		t.Errorf("missing header: got %d, want 401", code)
	}
	if code := do("Basic abc"); code != http.StatusUnauthorized {
		t.Errorf("non-bearer header: got %d, want 401", code)
	}
	if code := do("Bearer garbage"); code != http.StatusUnauthorized {
		t.Errorf("invalid token: got %d, want 401", code)
	}

	// Valid token but the account no longer exists.
	strayToken, err := jwtService.SignSession(uuid.New(), time.Now())
	if err != nil {
		t.Fatalf("SignSession failed: %v", err)
	}
	if code := do("Bearer " + strayToken); code != http.StatusUnauthorized {
		t.Errorf("unknown user: got %d, want 401", code)
	}

	// Expired token.
	expired, err := jwtService.SignSession(user.ID, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("SignSession failed: %v", err)
	}
	if code := do("Bearer " + expired); code != http.StatusUnauthorized {
		t.Errorf("expired token: got %d, want 401", code)
	}

	// Happy path.
	token, err := jwtService.SignSession(user.ID, time.Now())
	if err != nil {
		t.Fatalf("SignSession failed: %v", err)
	}
	if code := do("Bearer " + token); code != http.StatusOK {
		t.Errorf("valid token: got %d, want 200", code)
	}
	if gotUserID != user.ID {
		t.Errorf("context user ID = %s, want %s", gotUserID, user.ID)
	}
}
