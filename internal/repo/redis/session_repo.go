package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	authsvc "github.com/astraweb/lunaria/backend/internal/services/auth"
)

const (
	sessionKeyPrefix  = "auth:sess:"
	refreshKeyPrefix  = "auth:rt:"
	userSetKeyPrefix  = "auth:user:"
	sessionFieldUser  = "user_id"
	sessionFieldRole  = "role"
	sessionFieldToken = "refresh_token"
	sessionFieldExp   = "expires_at"
)

// SessionRepo keeps one hash per session and a plain pointer key per
// refresh token. The token key holds only the sid; the session hash is
// the single source of truth, including which refresh token is
// currently valid for it.
type SessionRepo struct {
	client *goredis.Client
}

func NewSessionRepo(client *goredis.Client) *SessionRepo {
	return &SessionRepo{client: client}
}

func (r *SessionRepo) Create(ctx context.Context, session authsvc.SessionRecord, refreshToken string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if strings.TrimSpace(session.SID) == "" || strings.TrimSpace(refreshToken) == "" || session.UserID <= 0 {
		return authsvc.ErrInvalidInput
	}

	ttl := sessionTTL(session.ExpiresAt)

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, sessionKey(session.SID), map[string]interface{}{
		sessionFieldUser:  session.UserID,
		sessionFieldRole:  session.Role,
		sessionFieldToken: refreshToken,
		sessionFieldExp:   session.ExpiresAt.Unix(),
	})
	pipe.Expire(ctx, sessionKey(session.SID), ttl)
	pipe.Set(ctx, refreshKey(refreshToken), session.SID, ttl)
	pipe.SAdd(ctx, userSetKey(session.UserID), session.SID)
	pipe.Expire(ctx, userSetKey(session.UserID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	return nil
}

func (r *SessionRepo) GetSession(ctx context.Context, sid string) (authsvc.SessionRecord, error) {
	session, _, err := r.loadSession(ctx, sid)
	return session, err
}

// GetByRefreshToken follows the token pointer to the session hash and
// rejects the token unless the hash still names it as current. A
// rotated-out token can keep a live pointer until its TTL fires; the
// field check is what actually invalidates it.
func (r *SessionRepo) GetByRefreshToken(ctx context.Context, refreshToken string) (authsvc.SessionRecord, error) {
	if r.client == nil {
		return authsvc.SessionRecord{}, fmt.Errorf("redis client is nil")
	}
	if strings.TrimSpace(refreshToken) == "" {
		return authsvc.SessionRecord{}, authsvc.ErrRefreshNotFound
	}

	sid, err := r.client.Get(ctx, refreshKey(refreshToken)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return authsvc.SessionRecord{}, authsvc.ErrRefreshNotFound
		}
		return authsvc.SessionRecord{}, fmt.Errorf("resolve refresh token: %w", err)
	}

	session, currentToken, err := r.loadSession(ctx, sid)
	if err != nil {
		if errors.Is(err, authsvc.ErrSessionNotFound) {
			return authsvc.SessionRecord{}, authsvc.ErrRefreshNotFound
		}
		return authsvc.SessionRecord{}, err
	}
	if currentToken != refreshToken {
		return authsvc.SessionRecord{}, authsvc.ErrRefreshNotFound
	}

	return session, nil
}

func (r *SessionRepo) RotateRefresh(ctx context.Context, sid, oldRefreshToken, newRefreshToken string, expiresAt time.Time) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if strings.TrimSpace(newRefreshToken) == "" {
		return authsvc.ErrInvalidInput
	}

	session, err := r.GetByRefreshToken(ctx, oldRefreshToken)
	if err != nil {
		return err
	}
	if sid != "" && sid != session.SID {
		return authsvc.ErrRefreshNotFound
	}

	ttl := sessionTTL(expiresAt)

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, refreshKey(oldRefreshToken))
	pipe.Set(ctx, refreshKey(newRefreshToken), session.SID, ttl)
	pipe.HSet(ctx, sessionKey(session.SID), map[string]interface{}{
		sessionFieldToken: newRefreshToken,
		sessionFieldExp:   expiresAt.Unix(),
	})
	pipe.Expire(ctx, sessionKey(session.SID), ttl)
	pipe.Expire(ctx, userSetKey(session.UserID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}

	return nil
}

func (r *SessionRepo) DeleteSession(ctx context.Context, sid string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if strings.TrimSpace(sid) == "" {
		return nil
	}

	session, currentToken, err := r.loadSession(ctx, sid)
	if err != nil {
		if errors.Is(err, authsvc.ErrSessionNotFound) {
			return nil
		}
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, sessionKey(sid))
	if currentToken != "" {
		pipe.Del(ctx, refreshKey(currentToken))
	}
	pipe.SRem(ctx, userSetKey(session.UserID), sid)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	return nil
}

func (r *SessionRepo) DeleteAllForUser(ctx context.Context, userID int64) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if userID <= 0 {
		return authsvc.ErrInvalidInput
	}

	sids, err := r.client.SMembers(ctx, userSetKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("list user sessions: %w", err)
	}

	for _, sid := range sids {
		if err := r.DeleteSession(ctx, sid); err != nil {
			return err
		}
	}

	if err := r.client.Del(ctx, userSetKey(userID)).Err(); err != nil {
		return fmt.Errorf("delete user session set: %w", err)
	}

	return nil
}

func (r *SessionRepo) loadSession(ctx context.Context, sid string) (authsvc.SessionRecord, string, error) {
	fields, err := r.client.HGetAll(ctx, sessionKey(sid)).Result()
	if err != nil {
		return authsvc.SessionRecord{}, "", fmt.Errorf("load session hash: %w", err)
	}
	if len(fields) == 0 {
		return authsvc.SessionRecord{}, "", authsvc.ErrSessionNotFound
	}

	userID, err := strconv.ParseInt(fields[sessionFieldUser], 10, 64)
	if err != nil || userID <= 0 {
		return authsvc.SessionRecord{}, "", authsvc.ErrUnauthorized
	}
	expiresUnix, err := strconv.ParseInt(fields[sessionFieldExp], 10, 64)
	if err != nil {
		return authsvc.SessionRecord{}, "", authsvc.ErrUnauthorized
	}

	return authsvc.SessionRecord{
		SID:       sid,
		UserID:    userID,
		Role:      fields[sessionFieldRole],
		ExpiresAt: time.Unix(expiresUnix, 0).UTC(),
	}, fields[sessionFieldToken], nil
}

func sessionTTL(expiresAt time.Time) time.Duration {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return time.Second
	}
	return ttl
}

func sessionKey(sid string) string {
	return sessionKeyPrefix + sid
}

func refreshKey(token string) string {
	return refreshKeyPrefix + token
}

func userSetKey(userID int64) string {
	return userSetKeyPrefix + strconv.FormatInt(userID, 10)
}
