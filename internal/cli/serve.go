package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kestrelsec/ransomchat/internal/chat"
	"github.com/kestrelsec/ransomchat/internal/config"
	"github.com/kestrelsec/ransomchat/internal/gateway"
	"github.com/kestrelsec/ransomchat/internal/kv"
	"github.com/kestrelsec/ransomchat/internal/llm"
	"github.com/kestrelsec/ransomchat/internal/scheduler"
	"github.com/kestrelsec/ransomchat/internal/store"
)

func newServeCmd() *cobra.Command {
	var (
		port       int
		redisAddr  string
		personaDir string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat gateway and task workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}

			if port != 0 {
				cfg.Server.Port = port
			}
			if redisAddr != "" {
				cfg.Redis.Addr = redisAddr
			}
			if personaDir != "" {
				cfg.Personas.Dir = personaDir
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			db, err := store.Open(cfg.Store.Path, log)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer db.Close()
			log.Info().Str("path", cfg.Store.Path).Msg("session store ready")

			// Locks and results live in Redis so multiple nodes can
			// share them; without Redis an in-process store suffices.
			var kvStore kv.Store
			if cfg.Redis.Addr != "" {
				redisStore, err := kv.NewRedisStore(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
				if err != nil {
					return fmt.Errorf("connecting to redis: %w", err)
				}
				defer redisStore.Close()
				kvStore = redisStore
				log.Info().Str("addr", cfg.Redis.Addr).Msg("using redis lock and result store")
			} else {
				kvStore = kv.NewMemoryStore()
				log.Info().Msg("using in-memory lock and result store")
			}

			sessions := store.NewChatStore(db)
			orch := chat.NewOrchestrator(
				sessions,
				cfg.Personas.Dir,
				llm.OpenAIFactory,
				cfg.LLM.BaseURL,
				cfg.LLM.Model,
				log,
			)

			results := kv.NewResults(kvStore, cfg.Scheduler.ResultTTL.Std())
			sched := scheduler.New(scheduler.Config{
				Workers:           cfg.Scheduler.Workers,
				QueueSize:         cfg.Scheduler.QueueSize,
				LockTTL:           cfg.Scheduler.LockTTL.Std(),
				LockRetries:       cfg.Scheduler.LockRetries,
				LockRetryInterval: cfg.Scheduler.LockRetryInterval.Std(),
			}, orch, kv.NewLock(kvStore), results, log)
			sched.Start()
			defer sched.Stop()

			srv := gateway.NewServer(cfg.Server, orch, sched, results, log)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override server port")
	cmd.Flags().StringVar(&redisAddr, "redis", "", "override redis address")
	cmd.Flags().StringVar(&personaDir, "personas", "", "override persona behaviour directory")

	return cmd
}
