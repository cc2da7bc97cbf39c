package project

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/aspecsweb/nano-tags/internal/config"
)

// Querier is satisfied by *pgxpool.Pool.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const lookupSQL = `
	SELECT project_key FROM project_sites
	WHERE host = $1 AND is_active = true
`

// Resolver finds the project key for a page activated without one. Hosts are
// looked up in the static site map first, then in Postgres, with Postgres
// answers cached in Redis.
type Resolver struct {
	sites map[string]string
	db    Querier
	redis *redis.Client
	ttl   time.Duration

	pool *pgxpool.Pool
}

// NewResolver connects to whatever backends cfg names. Both Postgres and
// Redis are optional.
func NewResolver(cfg *config.Config) (*Resolver, error) {
	r := &Resolver{
		sites: normalizeSites(cfg.Projects.Sites),
		ttl:   cfg.Projects.CacheTTL,
	}

	if cfg.Postgres.DSN != "" {
		pool, err := pgxpool.New(context.Background(), cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		r.pool = pool
		r.db = pool
	}

	if cfg.Redis.Addr != "" {
		r.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	return r, nil
}

// NewResolverWith builds a resolver from ready clients. db and rdb may be nil.
func NewResolverWith(sites map[string]string, db Querier, rdb *redis.Client, ttl time.Duration) *Resolver {
	return &Resolver{
		sites: normalizeSites(sites),
		db:    db,
		redis: rdb,
		ttl:   ttl,
	}
}

func normalizeSites(sites map[string]string) map[string]string {
	out := make(map[string]string, len(sites))
	for host, key := range sites {
		out[strings.ToLower(host)] = key
	}
	return out
}

// Resolve returns projectKey when set, otherwise the key registered for the
// host of pageURL. An unknown host resolves to the empty key.
func (r *Resolver) Resolve(ctx context.Context, projectKey, pageURL string) (string, error) {
	if projectKey != "" {
		return projectKey, nil
	}

	u, err := url.Parse(pageURL)
	if err != nil {
		return "", nil
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", nil
	}

	if key, ok := r.sites[host]; ok {
		return key, nil
	}

	cacheKey := "project:site:" + host
	if r.redis != nil {
		if key, err := r.redis.Get(ctx, cacheKey).Result(); err == nil {
			return key, nil
		}
	}

	if r.db == nil {
		return "", nil
	}

	var key string
	err = r.db.QueryRow(ctx, lookupSQL, host).Scan(&key)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		log.Error().Err(err).Str("host", host).Msg("Failed to look up project key")
		return "", fmt.Errorf("look up project for %s: %w", host, err)
	}

	if r.redis != nil {
		r.redis.Set(ctx, cacheKey, key, r.ttl)
	}
	return key, nil
}

func (r *Resolver) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
	if r.redis != nil {
		r.redis.Close()
	}
}
