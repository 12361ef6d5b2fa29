package main

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/emigration-stats/internal/auth"
	"github.com/sells-group/emigration-stats/internal/ingest"
	"github.com/sells-group/emigration-stats/internal/store"
	"github.com/sells-group/emigration-stats/pkg/notion"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		return store.NewMemory(), nil
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "emigration.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	case "notion":
		if cfg.Notion.Token == "" {
			return nil, eris.New("notion token is required (EMIGRATION_NOTION_TOKEN)")
		}
		if cfg.Notion.DatabaseID == "" {
			return nil, eris.New("notion database ID is required (EMIGRATION_NOTION_DATABASE_ID)")
		}
		client := notion.NewClient(cfg.Notion.Token, notion.WithRateLimit(cfg.Notion.RateLimit))
		return store.NewNotion(client, cfg.Notion.DatabaseID), nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore initializes the configured store and applies its schema.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func initPolicy() (*auth.Policy, error) {
	policy := auth.DefaultPolicy()
	if cfg.Auth.RolesFile != "" {
		p, err := auth.LoadPolicy(cfg.Auth.RolesFile)
		if err != nil {
			return nil, err
		}
		policy = p
	}
	if name := strings.TrimSpace(cfg.Auth.DefaultRole); name != "" {
		role := auth.Role(strings.ToLower(name))
		if !policy.HasRole(role) {
			return nil, eris.Errorf("default role %q is not defined", name)
		}
		policy.DefaultRole = role
	}
	return policy, nil
}

func initRemote() *ingest.Remote {
	return ingest.NewRemote(ingest.RemoteOptions{
		UserAgent:  cfg.Fetch.UserAgent,
		Timeout:    cfg.Fetch.Timeout(),
		MaxRetries: cfg.Fetch.MaxRetries,
		HostRPS:    cfg.Fetch.HostRPS,
	})
}
