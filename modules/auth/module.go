package auth

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/TheLab-ms/bench/engine"
	"github.com/golang-jwt/jwt/v5"
	"github.com/julienschmidt/httprouter"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

const tokenTTL = 24 * time.Hour

type Module struct {
	db     *sql.DB
	issuer *engine.TokenIssuer

	// loginLimiter slows down password guessing across all accounts.
	loginLimiter *rate.Limiter
}

func New(db *sql.DB, issuer *engine.TokenIssuer) *Module {
	return &Module{
		db:           db,
		issuer:       issuer,
		loginLimiter: rate.NewLimiter(rate.Every(time.Second), 10),
	}
}

func (m *Module) AttachRoutes(router *engine.Router) {
	router.Authenticator = m
	router.Handle("POST", "/api/login", m.handleLogin)
	router.Handle("GET", "/api/whoami", m.WithAuth(func(r *http.Request, _ httprouter.Params) engine.Response {
		return engine.JSON(GetUserMeta(r.Context()))
	}))
	router.Handle("POST", "/api/logout", func(r *http.Request, _ httprouter.Params) engine.Response {
		cook := &http.Cookie{Name: "token", Path: "/", MaxAge: -1}
		return engine.WithCookie(cook, engine.Empty())
	})
}

func (m *Module) handleLogin(r *http.Request, _ httprouter.Params) engine.Response {
	if !m.loginLimiter.Allow() {
		return engine.ClientErrorf(http.StatusTooManyRequests, "too many login attempts - slow down")
	}

	body := struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return engine.ClientErrorf(400, "invalid request body: %s", err)
	}

	var id int64
	var hash string
	err := m.db.QueryRowContext(r.Context(),
		"SELECT id, password_hash FROM members WHERE email = ? AND active = 1 LIMIT 1", body.Email).Scan(&id, &hash)
	if err != nil {
		return engine.Unauthorized(err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(body.Password)); err != nil {
		return engine.Unauthorized(err)
	}

	tok, err := m.issuer.Sign(&jwt.RegisteredClaims{
		Issuer:    "bench",
		Audience:  jwt.ClaimStrings{"bench"},
		Subject:   strconv.FormatInt(id, 10),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenTTL)),
	})
	if err != nil {
		return engine.Errorf("signing jwt: %s", err)
	}

	cook := &http.Cookie{
		Name:     "token",
		Value:    tok,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(tokenTTL),
	}
	return engine.WithCookie(cook, engine.JSON(map[string]string{"token": tok}))
}

// WithAuth authenticates incoming requests and loads the member's metadata
// into the request context.
func (m *Module) WithAuth(next engine.Handler) engine.Handler {
	return func(r *http.Request, ps httprouter.Params) engine.Response {
		tok := bearerToken(r)
		if tok == "" {
			if cook, err := r.Cookie("token"); err == nil {
				tok = cook.Value
			}
		}
		if tok == "" {
			return engine.Unauthorized(nil)
		}

		claims, err := m.issuer.Verify(tok)
		if err != nil || len(claims.Audience) == 0 || claims.Audience[0] != "bench" {
			return engine.Unauthorized(err)
		}

		meta := &UserMetadata{}
		var role string
		err = m.db.QueryRowContext(r.Context(),
			"SELECT id, email, name, role FROM members WHERE id = ? AND active = 1 LIMIT 1",
			claims.Subject).Scan(&meta.ID, &meta.Email, &meta.Name, &role)
		if err != nil {
			return engine.Unauthorized(err)
		}
		meta.Role = NormalizeRole(role)

		rows, err := m.db.QueryContext(r.Context(),
			"SELECT certification FROM member_certifications WHERE member = ?", meta.ID)
		if err != nil {
			return engine.Errorf("querying certifications: %s", err)
		}
		defer rows.Close()
		for rows.Next() {
			var cert string
			if err := rows.Scan(&cert); err != nil {
				return engine.Errorf("scanning certifications: %s", err)
			}
			meta.Certifications = append(meta.Certifications, cert)
		}

		r = r.WithContext(WithUserMeta(r.Context(), meta))
		return next(r, ps)
	}
}

// WithTender restricts a route to shop tenders.
func (m *Module) WithTender(next engine.Handler) engine.Handler {
	return m.WithAuth(func(r *http.Request, ps httprouter.Params) engine.Response {
		if meta := GetUserMeta(r.Context()); meta == nil || meta.Role != RoleTender {
			return engine.Error(engine.Forbidden("this action requires a shop tender"))
		}
		return next(r, ps)
	})
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}
