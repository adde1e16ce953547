// internal/database/player.go
package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MushroomFleet/lobby-system/internal/auth"
	"github.com/MushroomFleet/lobby-system/internal/models"
)

// CreatePlayer inserts an account row, hashing the password first. Guest
// accounts keep an empty password hash.
func CreatePlayer(ctx context.Context, p *models.Player) error {
	if p.ID == uuid.Nil {
		id, err := uuid.NewRandom()
		if err != nil {
			return fmt.Errorf("failed to generate player id: %w", err)
		}
		p.ID = id
	}
	if p.Level == 0 {
		p.Level = 1
	}

	if !p.IsGuest {
		hash, err := auth.HashPassword(p.Password)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		p.Password = hash
	}

	q := `INSERT INTO players (id, email, password, username, level, avatar, is_guest)
	      VALUES ($1, $2, $3, $4, $5, $6, $7)`

	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, q,
			p.ID, p.Email, p.Password, p.Username, p.Level, p.Avatar, p.IsGuest,
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("failed to insert player: %w", err)
	}
	return nil
}

// GetPlayerByID fetches one account row.
func GetPlayerByID(ctx context.Context, id uuid.UUID) (*models.Player, error) {
	var p models.Player
	q := `SELECT id, email, password, username, level, avatar, is_guest
	      FROM players WHERE id = $1`
	err := DB.QueryRow(ctx, q, id).Scan(
		&p.ID, &p.Email, &p.Password, &p.Username, &p.Level, &p.Avatar, &p.IsGuest,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPlayerByEmail fetches one account row by email.
func GetPlayerByEmail(ctx context.Context, email string) (*models.Player, error) {
	var p models.Player
	q := `SELECT id, email, password, username, level, avatar, is_guest
	      FROM players WHERE email = $1`
	err := DB.QueryRow(ctx, q, email).Scan(
		&p.ID, &p.Email, &p.Password, &p.Username, &p.Level, &p.Avatar, &p.IsGuest,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// AuthenticatePlayer checks credentials and returns a signed session token.
func AuthenticatePlayer(ctx context.Context, email, password string) (string, error) {
	p, err := GetPlayerByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("player not found or db error: %w", err)
	}

	match, err := auth.VerifyPassword(password, p.Password)
	if err != nil || !match {
		return "", fmt.Errorf("invalid credentials")
	}

	token, err := auth.CreateToken(p.ID.String())
	if err != nil {
		return "", fmt.Errorf("failed to create token: %w", err)
	}
	return token, nil
}
