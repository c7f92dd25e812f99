// Package sqlite persists the admin session in a local sqlite file so a login
// survives between CLI invocations. Tokens are sealed before they are written.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/prepadmin/internal/store"
	"github.com/aussiebroadwan/prepadmin/pkg/apiclient"
	"github.com/aussiebroadwan/prepadmin/pkg/cryptox"
	_ "modernc.org/sqlite"
)

var _ store.Store = (*Store)(nil)

// sessionRowID is the only row the session table ever holds.
const sessionRowID = 1

type Store struct {
	db     *sql.DB
	sealer *cryptox.Sealer
}

// DSN builds a modernc sqlite DSN for a database file.
func DSN(path string) string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
}

func NewStore(dsn string, sealer *cryptox.Sealer) (*Store, error) {
	if sealer == nil {
		return nil, errors.New("sqlite: sealer is required")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// One writer is all a CLI needs and it keeps sqlite from SQLITE_BUSY churn
	db.SetMaxOpenConns(1)

	return &Store{db: db, sealer: sealer}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Load(ctx context.Context) (apiclient.Session, error) {
	var (
		access, refresh string
		userJSON        sql.NullString
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT access_token, refresh_token, user_json FROM session WHERE id = ?`,
		sessionRowID,
	).Scan(&access, &refresh, &userJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return apiclient.Session{}, nil
	}
	if err != nil {
		return apiclient.Session{}, fmt.Errorf("failed to load session: %w", err)
	}

	var sess apiclient.Session
	if sess.AccessToken, err = s.sealer.Open(access); err != nil {
		return apiclient.Session{}, fmt.Errorf("failed to open access token: %w", err)
	}
	if sess.RefreshToken, err = s.sealer.Open(refresh); err != nil {
		return apiclient.Session{}, fmt.Errorf("failed to open refresh token: %w", err)
	}

	if userJSON.Valid && userJSON.String != "" {
		var p apiclient.Profile
		if err := json.Unmarshal([]byte(userJSON.String), &p); err != nil {
			return apiclient.Session{}, fmt.Errorf("failed to decode stored profile: %w", err)
		}
		sess.User = &p
	}

	return sess, nil
}

func (s *Store) Save(ctx context.Context, sess apiclient.Session) error {
	access, err := s.sealer.Seal(sess.AccessToken)
	if err != nil {
		return err
	}
	refresh, err := s.sealer.Seal(sess.RefreshToken)
	if err != nil {
		return err
	}

	var userJSON sql.NullString
	if sess.User != nil {
		data, err := json.Marshal(sess.User)
		if err != nil {
			return fmt.Errorf("failed to encode profile: %w", err)
		}
		userJSON = sql.NullString{String: string(data), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session (id, access_token, refresh_token, user_json)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			access_token  = excluded.access_token,
			refresh_token = excluded.refresh_token,
			user_json     = excluded.user_json,
			updated_at    = CURRENT_TIMESTAMP`,
		sessionRowID, access, refresh, userJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// SetAccessToken returns store.ErrNotFound when there is no session to update.
func (s *Store) SetAccessToken(ctx context.Context, token string) error {
	sealed, err := s.sealer.Seal(token)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE session SET access_token = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		sealed, sessionRowID,
	)
	if err != nil {
		return fmt.Errorf("failed to update access token: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session WHERE id = ?`, sessionRowID); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
