package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/harlan/mixcue/internal/config"
	"github.com/harlan/mixcue/internal/logger"
	"github.com/harlan/mixcue/internal/observability"
	"github.com/harlan/mixcue/pkg/catalog"
	"github.com/harlan/mixcue/pkg/chain"
	"github.com/harlan/mixcue/pkg/curator"
	"github.com/harlan/mixcue/pkg/embedding"
	"github.com/harlan/mixcue/pkg/events"
	"github.com/harlan/mixcue/pkg/pricing"
	"github.com/harlan/mixcue/pkg/runtime"
	"github.com/harlan/mixcue/pkg/tools"
	"github.com/harlan/mixcue/pkg/wallet"
)

var (
	decideInput   string
	decideRuntime string
)

var decideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Run one curation decision",
	Long: `Run the decision pipeline for a single session. The session input is
read as JSON from the file given with --input, or from stdin when --input
is - or omitted.`,
	RunE: runDecide,
}

func init() {
	decideCmd.Flags().StringVarP(&decideInput, "input", "i", "-", "session input JSON file (- for stdin)")
	decideCmd.Flags().StringVar(&decideRuntime, "runtime", "", "override runtime kind (local, llm)")
	rootCmd.AddCommand(decideCmd)
}

func runDecide(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfigAndLogger()
	if err != nil {
		return err
	}

	in, err := readSessionInput(decideInput)
	if err != nil {
		return err
	}

	kindName := cfg.Runtime.Kind
	if decideRuntime != "" {
		kindName = decideRuntime
	}
	kind, err := runtime.ParseKind(kindName)
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

	adapter, err := buildAdapter(cfg, kind, deps, log)
	if err != nil {
		return err
	}

	result, err := executeDecision(context.Background(), adapter, deps.ledger, in)
	if err != nil {
		return err
	}

	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
	return nil
}

// executeDecision runs one decision with the wallet, not the caller, as the
// budget authority, and settles the approved spend against it.
func executeDecision(ctx context.Context, adapter *runtime.Adapter, ledger *wallet.Ledger, in curator.SessionInput) (curator.DecisionResult, error) {
	remaining, err := ledger.Remaining(ctx, in.UserID)
	if err != nil {
		return curator.DecisionResult{}, fmt.Errorf("failed to read wallet: %w", err)
	}
	if in.BudgetRemainingUSD <= 0 || in.BudgetRemainingUSD > remaining {
		in.BudgetRemainingUSD = remaining
	}

	result, err := adapter.Run(ctx, in)
	if err != nil {
		return curator.DecisionResult{}, err
	}

	if result.TotalSpendUSD > 0 {
		spend, err := ledger.Spend(ctx, in.UserID, result.TotalSpendUSD)
		if err != nil {
			return curator.DecisionResult{}, fmt.Errorf("failed to debit wallet: %w", err)
		}
		if !spend.Allowed {
			// Decision and wallet disagree; surface it rather than settle.
			return curator.DecisionResult{}, fmt.Errorf("wallet refused debit of $%.2f (remaining $%.2f)",
				result.TotalSpendUSD, spend.RemainingUSD)
		}
	}
	return result, nil
}

// pipelineDeps bundles the long-lived stores the commands build.
type pipelineDeps struct {
	catalog   *catalog.Store
	listings  *chain.Store
	ledger    *wallet.Ledger
	registry  *tools.Registry
	reader    chain.Reader
	publisher events.Publisher
}

func (d *pipelineDeps) close() {
	d.catalog.Close()
	d.listings.Close()
	d.ledger.Close()
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return nil, zerolog.Nop(), err
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to create data directory: %w", err)
	}

	l, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: true,
		Pretty:  cfg.Logging.Pretty,
	})
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, l.GetZerolog(), nil
}

func buildPipeline(cfg *config.Config, log zerolog.Logger) (*pipelineDeps, error) {
	catalogStore, err := catalog.NewStore(cfg.CatalogDBPath(), log)
	if err != nil {
		return nil, err
	}

	listingStore, err := chain.NewStore(cfg.ListingsDBPath(), log)
	if err != nil {
		catalogStore.Close()
		return nil, err
	}

	ledger, err := wallet.NewLedger(cfg.WalletDBPath(), cfg.Budget.MonthlyCapUSD, events.NewEmitter(), log)
	if err != nil {
		catalogStore.Close()
		listingStore.Close()
		return nil, err
	}

	engine := pricing.NewEngine(pricing.Config{
		BaseUSD:         cfg.Pricing.BaseUSD,
		FloorUSD:        cfg.Pricing.FloorUSD,
		CeilingUSD:      cfg.Pricing.CeilingUSD,
		VolumeThreshold: cfg.Pricing.VolumeThreshold,
		VolumeDiscount:  cfg.Pricing.VolumeDiscount,
	})

	registry := tools.NewRegistry()
	if err := tools.RegisterBuiltins(registry, tools.BuiltinDeps{
		Catalog:    catalogStore,
		Pricing:    engine,
		Embeddings: embedding.NewStore(),
	}); err != nil {
		catalogStore.Close()
		listingStore.Close()
		ledger.Close()
		return nil, err
	}

	var reader chain.Reader
	if cfg.Chain.RPCURL != "" {
		reader = chain.NewRPCClient(cfg.Chain.RPCURL, cfg.Chain.ContractAddress,
			time.Duration(cfg.Chain.TimeoutMs)*time.Millisecond)
	}

	return &pipelineDeps{
		catalog:   catalogStore,
		listings:  listingStore,
		ledger:    ledger,
		registry:  registry,
		reader:    reader,
		publisher: events.NewEmitter(),
	}, nil
}

func buildAdapter(cfg *config.Config, kind runtime.Kind, deps *pipelineDeps, log zerolog.Logger) (*runtime.Adapter, error) {
	selector := curator.NewSelector(deps.registry, log)
	negotiator := curator.NewNegotiator(deps.registry, deps.listings, deps.reader, log)

	orchestrator, err := curator.NewOrchestrator(curator.OrchestratorConfig{
		Selector:       selector,
		Negotiator:     negotiator,
		Publisher:      deps.publisher,
		Logger:         log,
		CandidateLimit: cfg.Selection.CandidateLimit,
		UseEmbeddings:  cfg.Selection.UseEmbeddings,
	})
	if err != nil {
		return nil, err
	}

	local := runtime.NewLocalRuntime(orchestrator)
	if kind == runtime.KindLocal {
		return runtime.NewAdapter(local, nil, deps.publisher, log)
	}

	llmRuntime := runtime.NewLLMRuntime(runtime.LLMConfig{
		Credential:  cfg.AI.Credential,
		Temperature: cfg.AI.Temperature,
		MaxTokens:   cfg.AI.MaxTokens,
		MaxRounds:   cfg.Runtime.MaxRounds,
		CallTimeout: time.Duration(cfg.Runtime.CallTimeoutMs) * time.Millisecond,
	}, deps.registry, log)

	return runtime.NewAdapter(llmRuntime, local, deps.publisher, log)
}

func readSessionInput(path string) (curator.SessionInput, error) {
	var raw []byte
	var err error

	if path == "-" || path == "" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return curator.SessionInput{}, fmt.Errorf("failed to read session input: %w", err)
	}
	return decodeSessionInput(raw)
}

func decodeSessionInput(raw []byte) (curator.SessionInput, error) {
	var in curator.SessionInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return curator.SessionInput{}, fmt.Errorf("invalid session input: %w", err)
	}
	if in.SessionID == "" {
		return curator.SessionInput{}, fmt.Errorf("session input requires session_id")
	}
	if in.UserID == "" {
		return curator.SessionInput{}, fmt.Errorf("session input requires user_id")
	}
	return in, nil
}

func serveMetrics(addr string, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.MetricsHandler())

	log.Info().Str("addr", addr).Msg("Serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("Metrics server stopped")
	}
}
