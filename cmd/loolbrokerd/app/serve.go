package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/stacklok/loolbrokerd/pkg/api/internalapi"
	"github.com/stacklok/loolbrokerd/pkg/api/public"
	"github.com/stacklok/loolbrokerd/pkg/broker"
	"github.com/stacklok/loolbrokerd/pkg/config"
	"github.com/stacklok/loolbrokerd/pkg/idgen"
	"github.com/stacklok/loolbrokerd/pkg/logger"
	"github.com/stacklok/loolbrokerd/pkg/maintenance"
	"github.com/stacklok/loolbrokerd/pkg/pidfile"
	"github.com/stacklok/loolbrokerd/pkg/session"
	"github.com/stacklok/loolbrokerd/pkg/supervisorlink"
	"github.com/stacklok/loolbrokerd/pkg/workerpool"
)

// gracefulTimeout bounds how long a server's Shutdown is allowed to drain
// in-flight requests, mirroring the teacher's Kubernetes-friendly default.
const gracefulTimeout = 30 * time.Second

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the public and internal endpoints",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runServe(v)
		},
	}
	config.BindFlags(cmd, v)
	return cmd
}

func runServe(v *viper.Viper) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	pf, err := pidfile.Acquire(cfg.PIDFile)
	if err != nil {
		return err
	}
	defer pf.Release()

	if !cfg.KeepJails {
		cleanupJails(cfg.ChildRoot)
	}

	pipePath, err := ensureSupervisorPipes(cfg.ChildRoot)
	if err != nil {
		return err
	}

	link := supervisorlink.New(nil)
	if err := link.Start(context.Background(), "loolforkit", []string{"--childroot", cfg.ChildRoot}, pipePath); err != nil {
		logger.Warnf("supervisor did not start (continuing so the endpoints can still serve test doubles): %v", err)
	}

	pool := workerpool.New(link, cfg.NumPreSpawns)
	registry := broker.NewRegistry(pool)
	workerSessions := session.NewAvailableWorkerSessions()
	ids := idgen.New()
	var terminate atomic.Bool

	if err := pool.PreSpawn(); err != nil {
		logger.Warnf("initial pre-spawn request failed: %v", err)
	}

	publicRoutes := &public.Routes{
		Registry:             registry,
		WorkerSessions:       workerSessions,
		IDs:                  ids,
		Terminate:            &terminate,
		ChildRoot:            cfg.ChildRoot,
		DiscoveryXMLPath:     filepath.Join(cfg.FileServerRoot, "discovery.xml"),
		MaxDocumentSizeBytes: 100 << 20,
	}
	internalRoutes := &internalapi.Routes{
		Pool:           pool,
		Registry:       registry,
		WorkerSessions: workerSessions,
		Terminate:      &terminate,
	}

	publicServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: publicRoutes.Router(),
	}
	internalServer := &http.Server{
		Addr:    cfg.InternalBindAddr,
		Handler: internalRoutes.Router(),
	}

	maintenanceLoop := &maintenance.Loop{
		Registry:   registry,
		Supervisor: link,
		Terminate:  &terminate,
	}

	g, ctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		logger.Infof("public endpoint listening on %s", publicServer.Addr)
		if err := publicServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Infof("internal endpoint listening on %s", internalServer.Addr)
		if err := internalServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		maintenanceLoop.Run()
		return errSupervisorExited
	})
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
			logger.Info("received shutdown signal")
			terminate.Store(true)
		case <-ctx.Done():
		}
		return shutdownServers(publicServer, internalServer, link)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errSupervisorExited) {
		return err
	}

	if !cfg.KeepJails {
		cleanupJails(cfg.ChildRoot)
	}
	return nil
}

// errSupervisorExited is a sentinel the maintenance-loop goroutine
// returns once it observes supervisor death, so errgroup cancels every
// sibling goroutine's context without itself being treated as a real
// failure by runServe's caller.
var errSupervisorExited = errors.New("supervisor exited")

func shutdownServers(publicServer, internalServer *http.Server, link *supervisorlink.SupervisorLink) error {
	ctx, cancel := context.WithTimeout(context.Background(), gracefulTimeout)
	defer cancel()

	var firstErr error
	if err := publicServer.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := internalServer.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := link.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// cleanupJails deletes every direct child directory of childRoot,
// matching spec.md §6's on-shutdown cleanup and SPEC_FULL.md's
// supplemented pre-fork startup cleanup (both call this the same way).
func cleanupJails(childRoot string) {
	entries, err := os.ReadDir(childRoot)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(childRoot, entry.Name())); err != nil {
			logger.Warnf("failed to remove jail directory %s: %v", entry.Name(), err)
		}
	}
}

// ensureSupervisorPipes creates childroot/pipe/{loolwsd,admin-notify} as
// named FIFOs if missing, per spec.md §6's on-disk layout.
func ensureSupervisorPipes(childRoot string) (string, error) {
	pipeDir := filepath.Join(childRoot, "pipe")
	if err := os.MkdirAll(pipeDir, 0o755); err != nil {
		return "", err
	}
	commandPipe := filepath.Join(pipeDir, "loolwsd")
	adminPipe := filepath.Join(pipeDir, "admin-notify")
	for _, p := range []string{commandPipe, adminPipe} {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			if err := syscall.Mkfifo(p, 0o666); err != nil {
				return "", err
			}
		}
	}
	return commandPipe, nil
}

