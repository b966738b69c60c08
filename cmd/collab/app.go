package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/collab/internal/blob"
	"github.com/collab/internal/cache"
	"github.com/collab/internal/classify"
	"github.com/collab/internal/composer"
	"github.com/collab/internal/config"
	"github.com/collab/internal/logger"
	"github.com/collab/internal/model"
	"github.com/collab/internal/presence"
	"github.com/collab/internal/realtime"
	"github.com/collab/internal/repository"
	"github.com/collab/internal/startup"
	"github.com/collab/internal/storage"
	"github.com/collab/internal/storage/memory"
	"github.com/collab/internal/storage/pgstore"
	"github.com/collab/internal/store"
	"github.com/collab/internal/workspace"
	"github.com/collab/migrations"
)

var errNoUser = errors.New("member id required: --user or COLLAB_USER_ID")

// database — пул и (в режиме --dev) встроенный Postgres.
type database struct {
	pool     *pgxpool.Pool
	embedded *embeddedpostgres.EmbeddedPostgres
}

func (d *database) Close() {
	if d.pool != nil {
		d.pool.Close()
	}
	if d.embedded != nil {
		logger.Info("stopping embedded postgres...")
		if err := d.embedded.Stop(); err != nil {
			logger.Errorf("embedded postgres stop: %v", err)
		}
	}
}

// openDatabase подключается к БД (с повторами) и применяет миграции.
func openDatabase(cmd *cobra.Command, cfg *config.Config) (*database, error) {
	dev, _ := cmd.Flags().GetBool("dev")
	db := &database{}
	if dev {
		var err error
		db.embedded, err = startup.StartEmbeddedPostgres(cfg)
		if err != nil {
			return nil, fmt.Errorf("embedded postgres: %w", err)
		}
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("parse db config: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConnections())
	db.pool, err = startup.ConnectDBWithRetry(cmd.Context(), poolCfg, startup.Retry{MaxWait: 60 * time.Second})
	if err != nil {
		db.Close()
		return nil, err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	if err := migrations.Apply(ctx, db.pool); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// app — собранная сессия клиента.
type app struct {
	cfg      *config.Config
	db       *database
	repos    repos
	st       *store.Store
	sess     *workspace.Session
	presence storage.PresenceStore
	tracker  *presence.Tracker
	cache    *cache.Cache
	uploader composer.Uploader
}

type repos struct {
	members  *repository.MemberRepository
	channels *repository.ChannelRepository
	messages *repository.MessageRepository
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Load()
	logger.SetLevel(cfg.LogLevel)
	if u, _ := cmd.Flags().GetString("user"); u != "" {
		cfg.UserID = u
	}
	return cfg, nil
}

// openApp собирает хранилище, бэкенд, подписку, кеш и трекер присутствия
// и загружает рабочее пространство.
func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if cfg.UserID == "" {
		return nil, errNoUser
	}
	db, err := openDatabase(cmd, cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, db: db}
	pool := db.pool

	a.repos = repos{
		members:  repository.NewMemberRepository(pool),
		channels: repository.NewChannelRepository(pool),
		messages: repository.NewMessageRepository(pool),
	}
	be := workspace.Backend{
		Messages:  a.repos.messages,
		Channels:  a.repos.channels,
		Members:   a.repos.members,
		Reactions: repository.NewReactionRepository(pool),
		Tags:      repository.NewTagRepository(pool),
		Pins:      repository.NewPinnedRepository(pool),
		Saves:     repository.NewSavedRepository(pool),
		Directs:   repository.NewDirectRepository(pool),
	}

	a.st = store.New(cfg.UserID)

	var stream realtime.Stream
	switch cfg.RealtimeMode {
	case "ws":
		stream = realtime.NewWSStream(cfg.GatewayURL, cfg.UserID)
	default:
		stream = realtime.NewPGStream(pool, a.repos.messages)
	}

	opts := workspace.Options{
		Realtime: realtime.NewAdapter(stream, a.st),
		PageSize: cfg.PageSize,
		Thresholds: presence.Thresholds{
			AwayAfter:    cfg.Presence.AwayAfter,
			OfflineAfter: cfg.Presence.OfflineAfter,
		},
	}
	if c, err := cache.Open(cfg.CacheDir); err != nil {
		logger.Warnf("cache disabled: %v", err)
	} else {
		a.cache = c
		opts.Cache = c
	}
	if cl := classify.NewClient(cfg.ClassifierURL); cl.Enabled() {
		opts.Suggester = cl
	}
	a.sess = workspace.New(a.st, be, opts)

	dev, _ := cmd.Flags().GetBool("dev")
	a.presence, err = openPresence(cmd.Context(), cfg, pool, dev)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.tracker = presence.NewTracker(a.presence, a.st, presence.Config{
		UserID:            cfg.UserID,
		HeartbeatInterval: cfg.Presence.HeartbeatInterval,
		PollInterval:      cfg.Presence.PollInterval,
	})

	if cfg.FileServiceURL != "" {
		a.uploader = blob.NewClient(cfg.FileServiceURL)
	} else {
		a.uploader = blob.NewLocal(cfg.UploadDir, cfg.MaxUploadSize, "")
	}

	if err := a.sess.Load(cmd.Context()); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// openPresence выбирает хранилище присутствия: redis, таблица presence или память процесса.
// В --dev внешнего Redis нет, поэтому redis заменяется таблицей.
func openPresence(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, dev bool) (storage.PresenceStore, error) {
	backend := cfg.Presence.Backend
	if dev && backend == "redis" {
		backend = "pg"
	}
	switch backend {
	case "redis":
		c, err := startup.ConnectRedisWithRetry(ctx, cfg.RedisURL, startup.Retry{MaxWait: 30 * time.Second})
		if err != nil {
			return nil, err
		}
		return c, nil
	case "pg":
		return pgstore.New(repository.NewPresenceRepository(pool)), nil
	default:
		return memory.New(), nil
	}
}

func (a *app) Close() {
	a.sess.Close()
	if a.presence != nil {
		if err := a.presence.Close(); err != nil {
			logger.Errorf("presence close: %v", err)
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			logger.Errorf("cache close: %v", err)
		}
	}
	a.db.Close()
}

// composer возвращает компоновщик с ростером хранилища.
func (a *app) composer() *composer.Composer {
	return composer.New(composer.Options{
		Roster:       func() []model.Member { return a.st.Snapshot().Members },
		Uploader:     a.uploader,
		MentionLimit: a.cfg.MentionLimit,
		Limit:        rate.Every(time.Second),
		Burst:        5,
	})
}

// channel находит канал по идентификатору или коду.
func (a *app) channel(ref string) (model.Channel, error) {
	st := a.st.Snapshot()
	for _, list := range [][]model.Channel{st.Channels, st.Archived} {
		for _, c := range list {
			if c.ID == ref || strings.EqualFold(c.Code, ref) {
				return c, nil
			}
		}
	}
	return model.Channel{}, fmt.Errorf("%w: %s", workspace.ErrUnknownChannel, ref)
}

// member находит участника по идентификатору, имени или email.
func (a *app) member(ref string) (model.Member, error) {
	for _, m := range a.st.Snapshot().Members {
		if m.ID == ref || strings.EqualFold(m.Name, ref) || strings.EqualFold(m.Email, ref) {
			return m, nil
		}
	}
	return model.Member{}, fmt.Errorf("unknown member: %s", ref)
}
