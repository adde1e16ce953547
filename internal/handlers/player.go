// internal/handlers/player.go
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/MushroomFleet/lobby-system/internal/auth"
	"github.com/MushroomFleet/lobby-system/internal/database"
	"github.com/MushroomFleet/lobby-system/internal/models"
)

// defaultAvatars is the pool guests draw from.
var defaultAvatars = []string{"dragon", "ninja", "rocket", "wolf", "gem"}

// CreatePlayerHandler registers a new account.
func CreatePlayerHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Username string `json:"username"`
		Avatar   string `json:"avatar"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Password == "" || req.Username == "" {
		http.Error(w, "email, password and username are required", http.StatusBadRequest)
		return
	}

	player := models.Player{
		Email:    req.Email,
		Password: req.Password,
		Username: req.Username,
		Avatar:   req.Avatar,
	}
	if player.Avatar == "" {
		player.Avatar = defaultAvatars[0]
	}

	if err := database.CreatePlayer(r.Context(), &player); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			http.Error(w, "email already exists", http.StatusConflict)
			return
		}
		http.Error(w, "error creating player", http.StatusInternalServerError)
		return
	}

	player.Password = ""
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(player)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// LoginHandler exchanges credentials for a session token, also delivered as
// the auth_token cookie.
func LoginHandler(logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request payload", http.StatusBadRequest)
			return
		}

		token, err := database.AuthenticatePlayer(r.Context(), req.Email, req.Password)
		if err != nil {
			logger.Warnf("failed to authenticate player: %v", err)
			http.Error(w, "authentication failed", http.StatusForbidden)
			return
		}

		setAuthCookie(w, token)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(loginResponse{Token: token})
	}
}

func setAuthCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    token,
		HttpOnly: true,
		Path:     "/",
		MaxAge:   auth.TokenExpireSec,
	})
}

func tokenFromRequest(r *http.Request) string {
	c, err := r.Cookie("auth_token")
	if err != nil {
		return ""
	}
	return c.Value
}

// EnsureGuest resolves the caller's player id from their token, minting an
// ephemeral guest identity (and cookie) when no valid token is present.
func EnsureGuest(w http.ResponseWriter, r *http.Request) (uuid.UUID, error) {
	if token := tokenFromRequest(r); token != "" {
		if sub, err := auth.VerifyToken(token); err == nil {
			id, parseErr := uuid.Parse(sub)
			if parseErr != nil {
				return uuid.Nil, fmt.Errorf("invalid player id in token: %w", parseErr)
			}
			return id, nil
		}
		// Fall through: an expired or bogus token gets a fresh guest.
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to generate guest id: %w", err)
	}
	guest := models.Player{
		ID:       id,
		Username: "Guest_" + id.String()[:4],
		Avatar:   defaultAvatars[int(id[0])%len(defaultAvatars)],
		IsGuest:  true,
	}
	if err := database.CreatePlayer(r.Context(), &guest); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create guest player: %w", err)
	}

	token, err := auth.CreateToken(guest.ID.String())
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create guest token: %w", err)
	}
	setAuthCookie(w, token)
	return guest.ID, nil
}

// requirePlayer authenticates the request and returns the caller's id.
func requirePlayer(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	token := tokenFromRequest(r)
	if token == "" {
		http.Error(w, "missing auth_token", http.StatusUnauthorized)
		return uuid.Nil, false
	}
	sub, err := auth.VerifyToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusForbidden)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(sub)
	if err != nil {
		http.Error(w, "invalid player id in token", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}
