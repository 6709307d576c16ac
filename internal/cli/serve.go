package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/harlan/mixcue/internal/config"
	"github.com/harlan/mixcue/internal/observability"
	"github.com/harlan/mixcue/pkg/runtime"
	"github.com/harlan/mixcue/pkg/wallet"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the resident decision service",
	Long: `Run decisions continuously: one session input JSON per line on stdin,
one decision JSON per line on stdout. While resident, the wallet reset
scheduler renews monthly caps and edits to the config file switch the
runtime kind without a restart.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfigAndLogger()
	if err != nil {
		return err
	}

	deps, err := buildPipeline(cfg, log)
	if err != nil {
		return err
	}
	defer deps.close()

	if cfg.Metrics.Enabled {
		observability.EnsureRegistered()
		go serveMetrics(cfg.Metrics.Addr, log)
	}

	kind, err := runtime.ParseKind(cfg.Runtime.Kind)
	if err != nil {
		return err
	}
	adapter, err := buildAdapter(cfg, kind, deps, log)
	if err != nil {
		return err
	}

	service := newDecisionService(adapter, deps.ledger, log)

	scheduler, err := wallet.NewResetScheduler(deps.ledger, cfg.Budget.ResetCron, log)
	if err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	watcher, err := config.NewWatcher(config.NewLoader(cfgFile), log, func(next *config.Config) {
		nextKind, err := runtime.ParseKind(next.Runtime.Kind)
		if err != nil {
			log.Error().Err(err).Msg("Reloaded config has an unknown runtime kind, keeping current adapter")
			return
		}
		nextAdapter, err := buildAdapter(next, nextKind, deps, log)
		if err != nil {
			log.Error().Err(err).Msg("Failed to rebuild adapter from reloaded config, keeping current adapter")
			return
		}
		service.swap(nextAdapter)
		log.Info().Str("runtime", next.Runtime.Kind).Msg("Adapter rebuilt from reloaded config")
	})
	if err != nil {
		// Hot reload is best-effort; the service still runs without it.
		log.Warn().Err(err).Msg("Config watcher unavailable")
	} else {
		defer watcher.Stop()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("runtime", cfg.Runtime.Kind).Msg("Decision service started")
	return service.serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
}

// decisionService runs decisions against whichever adapter is current. The
// config watcher swaps the adapter between requests, never during one.
type decisionService struct {
	mu      sync.RWMutex
	adapter *runtime.Adapter
	ledger  *wallet.Ledger
	logger  zerolog.Logger
}

func newDecisionService(adapter *runtime.Adapter, ledger *wallet.Ledger, logger zerolog.Logger) *decisionService {
	return &decisionService{
		adapter: adapter,
		ledger:  ledger,
		logger:  logger.With().Str("component", "decision_service").Logger(),
	}
}

func (s *decisionService) swap(adapter *runtime.Adapter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adapter = adapter
}

func (s *decisionService) current() *runtime.Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.adapter
}

// serve processes newline-delimited session inputs until EOF or ctx cancel.
// A malformed or failed request yields an error line; the service keeps
// going.
func (s *decisionService) serve(ctx context.Context, r io.Reader, w io.Writer) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Decision service stopping")
			return nil
		case line, ok := <-lines:
			if !ok {
				return <-scanErr
			}
			if line == "" {
				continue
			}
			s.handle(ctx, line, w)
		}
	}
}

func (s *decisionService) handle(ctx context.Context, line string, w io.Writer) {
	in, err := decodeSessionInput([]byte(line))
	if err != nil {
		s.respondError(w, err)
		return
	}

	result, err := executeDecision(ctx, s.current(), s.ledger, in)
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", in.SessionID).Msg("Decision failed")
		s.respondError(w, err)
		return
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		s.respondError(w, err)
		return
	}
	fmt.Fprintln(w, string(encoded))
}

func (s *decisionService) respondError(w io.Writer, err error) {
	encoded, _ := json.Marshal(map[string]string{"error": err.Error()})
	fmt.Fprintln(w, string(encoded))
}
