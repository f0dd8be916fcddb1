package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/nsnotes/noteauth/internal/model"
)

// Redisキーのプレフィックス。
const (
	ownerKeyPrefix   = "note:owner:"
	writersKeyPrefix = "note:writers:"
	readersKeyPrefix = "note:readers:"
	refreshKeyPrefix = "refresh:"
)

// RedisConfig はRedis接続の設定。
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Redis はPermissionCacheとRefreshSessionStoreのRedis実装。
type Redis struct {
	client *redis.Client
}

// NewRedis はRedisクライアントを生成し、疎通確認を行う。
func NewRedis(ctx context.Context, config RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Redis{client: client}, nil
}

// Close はRedis接続を閉じる。
func (r *Redis) Close() error {
	return r.client.Close()
}

// Owner はノートのオーナーIDを返す。エントリが存在しない場合は空文字列を返す。
func (r *Redis) Owner(ctx context.Context, noteID string) (string, error) {
	val, err := r.client.Get(ctx, ownerKeyPrefix+noteID).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get owner cache entry: %w", err)
	}
	return val, nil
}

// SetOwner はノートのオーナーエントリを書き込む。TTLなしの永続エントリ。
func (r *Redis) SetOwner(ctx context.Context, noteID, userID string) error {
	if err := r.client.Set(ctx, ownerKeyPrefix+noteID, userID, 0).Err(); err != nil {
		return fmt.Errorf("failed to set owner cache entry: %w", err)
	}
	return nil
}

// AddRoleMember はロールセットにユーザーを追加する。
func (r *Redis) AddRoleMember(ctx context.Context, noteID string, role model.Role, userID string) error {
	key, err := roleSetKey(noteID, role)
	if err != nil {
		return err
	}
	if err := r.client.SAdd(ctx, key, userID).Err(); err != nil {
		return fmt.Errorf("failed to add role set member: %w", err)
	}
	return nil
}

// RemoveRoleMember はロールセットからユーザーを除去する。
func (r *Redis) RemoveRoleMember(ctx context.Context, noteID string, role model.Role, userID string) error {
	key, err := roleSetKey(noteID, role)
	if err != nil {
		return err
	}
	if err := r.client.SRem(ctx, key, userID).Err(); err != nil {
		return fmt.Errorf("failed to remove role set member: %w", err)
	}
	return nil
}

// IsRoleMember はユーザーがロールセットに含まれるかを返す。
func (r *Redis) IsRoleMember(ctx context.Context, noteID string, role model.Role, userID string) (bool, error) {
	key, err := roleSetKey(noteID, role)
	if err != nil {
		return false, err
	}
	member, err := r.client.SIsMember(ctx, key, userID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check role set member: %w", err)
	}
	return member, nil
}

// Save はリフレッシュトークンをTTL付きで保存する。既存の値は上書きされる。
func (r *Redis) Save(ctx context.Context, userID, refreshToken string, ttl time.Duration) error {
	if err := r.client.Set(ctx, refreshKeyPrefix+userID, refreshToken, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save refresh session: %w", err)
	}
	return nil
}

// Find は保存されたリフレッシュトークンを返す。存在しない場合は空文字列を返す。
func (r *Redis) Find(ctx context.Context, userID string) (string, error) {
	val, err := r.client.Get(ctx, refreshKeyPrefix+userID).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to find refresh session: %w", err)
	}
	return val, nil
}

// Delete はリフレッシュセッションを削除する。存在しない場合も成功とする。
func (r *Redis) Delete(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, refreshKeyPrefix+userID).Err(); err != nil {
		return fmt.Errorf("failed to delete refresh session: %w", err)
	}
	return nil
}

// roleSetKey はロールセットのRedisキーを返す。OWNERはセットを持たない。
func roleSetKey(noteID string, role model.Role) (string, error) {
	switch role {
	case model.RoleWriter:
		return writersKeyPrefix + noteID, nil
	case model.RoleReader:
		return readersKeyPrefix + noteID, nil
	default:
		return "", fmt.Errorf("role %q has no cache set", role)
	}
}

// compile-time interface check
var (
	_ PermissionCache     = (*Redis)(nil)
	_ RefreshSessionStore = (*Redis)(nil)
)
