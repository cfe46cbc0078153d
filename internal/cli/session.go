package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"possystem/backend/internal/cache"
	"possystem/backend/internal/config"
	"possystem/backend/internal/metrics"
	"possystem/backend/internal/service"
	"possystem/backend/internal/store"
	"possystem/backend/internal/store/backend"
)

// session is one command's view of the system: a gateway, the service built
// on it, and whatever has to be closed afterwards.
type session struct {
	gateway store.Gateway
	svc     *service.Service
	out     *OutputFormatter
	closers []func() error
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

func (o *RootOptions) open(cmd *cobra.Command) (*session, error) {
	out := o.formatter(cmd)

	if o.OpenGateway != nil {
		gateway, err := o.OpenGateway(cmd)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "open gateway", err)
		}
		return &session{
			gateway: gateway,
			svc:     service.New(gateway, nil, 0, metrics.New()),
			out:     out,
		}, nil
	}

	if err := config.LoadEnvFile(o.EnvFile); err != nil {
		return nil, WrapExitError(ExitCommandError, "load configuration", err)
	}
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	gateway, err := backend.Open(ctx, cfg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open gateway", err)
	}
	s := &session{gateway: gateway, out: out, closers: []func() error{gateway.Close}}

	txCache := cache.TransactionCache(cache.NoopTransactionCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisTransactionCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			out.VerboseLog("redis unavailable (%v), using noop cache", err)
		} else {
			txCache = redisCache
			s.closers = append(s.closers, redisCache.Close)
		}
	}
	s.svc = service.New(gateway, txCache, time.Duration(cfg.TransactionCacheTTLSeconds)*time.Second, metrics.New())
	return s, nil
}

func (s *session) Close() {
	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil {
			s.out.VerboseLog("close error: %v", err)
		}
	}
}

// run opens a session, runs fn, and prints its failure in the configured
// format.
func (o *RootOptions) run(cmd *cobra.Command, fn func(s *session) error) error {
	s, err := o.open(cmd)
	if err != nil {
		return o.formatter(cmd).Failure(err)
	}
	defer s.Close()

	if err := fn(s); err != nil {
		return s.out.Failure(err)
	}
	return nil
}
