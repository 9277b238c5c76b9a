package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/log"

	"github.com/celokit/celo-reader/internal/tools"
	"github.com/celokit/celo-reader/pkg/cache"
	"github.com/celokit/celo-reader/pkg/chain"
	"github.com/celokit/celo-reader/pkg/chaindata"
	"github.com/celokit/celo-reader/pkg/config"
	"github.com/celokit/celo-reader/pkg/contracts"
	"github.com/celokit/celo-reader/pkg/multicall"
	"github.com/celokit/celo-reader/pkg/rpc"
	"github.com/celokit/celo-reader/pkg/staking"
	"github.com/celokit/celo-reader/pkg/tokens"
)

// request is one JSON line on stdin.
type request struct {
	ID   string         `json:"id,omitempty"`
	Tool string         `json:"tool"`
	Args map[string]any `json:"args,omitempty"`
}

// response is one JSON line on stdout.
type response struct {
	ID     string `json:"id,omitempty"`
	Tool   string `json:"tool"`
	Result any    `json:"result"`
}

func main() {
	configPath := flag.String("config", "", "path to config yaml (optional, env-only without it)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	setupLogging(cfg.Log)

	preset, ok := chain.Get(cfg.Network)
	if !ok {
		log.Crit("Unknown network", "network", cfg.Network)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// RPC nodes: configured list, or the preset endpoint as a single node.
	nodeConfigs := cfg.RPC
	if len(nodeConfigs) == 0 {
		nodeConfigs = []rpc.NodeConfig{{URL: preset.Endpoint, Priority: 1}}
	}
	client, err := rpc.NewClient(ctx, nodeConfigs)
	if err != nil {
		log.Crit("Failed to init RPC client", "err", err)
	}
	defer client.Close()
	log.Info("Connected", "network", preset.Name, "nodes", len(nodeConfigs))

	store, err := initCache(cfg)
	if err != nil {
		log.Crit("Failed to init cache", "err", err)
	}
	defer store.Close()

	abiStore, err := initABIStore(cfg)
	if err != nil {
		log.Crit("Failed to init ABI store", "err", err)
	}
	defer abiStore.Close()

	batcher := multicall.New(client, preset.Multicall3, cfg.Reader.BatchSize)

	registry, err := tools.NewDefaultRegistry(tools.Services{
		ChainData: chaindata.New(client, preset),
		Tokens:    tokens.New(client, batcher, store, preset, cfg.Reader.SoftTimeout),
		Staking:   staking.New(batcher, store, preset),
		Contracts: contracts.New(client, abiStore, store),
	}, cfg.Reader.RequestTimeout)
	if err != nil {
		log.Crit("Failed to build tool registry", "err", err)
	}

	log.Info("Reader ready", "tools", len(registry.List()))
	if err := serve(ctx, registry, os.Stdin, os.Stdout); err != nil {
		log.Crit("Serve failed", "err", err)
	}
	log.Info("Shutting down")
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.LoadDefaults(), nil
	}
	return config.Load(path)
}

func setupLogging(cfg config.LogConfig) {
	level := log.LevelInfo
	switch cfg.Level {
	case "debug":
		level = log.LevelDebug
	case "warn":
		level = log.LevelWarn
	case "error":
		level = log.LevelError
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = log.JSONHandlerWithLevel(os.Stderr, level)
	} else {
		handler = log.NewTerminalHandlerWithLevel(os.Stderr, level, false)
	}
	log.SetDefault(log.NewLogger(handler))
}

// initCache selects the result cache backend.
func initCache(cfg *config.Config) (cache.Cache, error) {
	switch cfg.Cache.Backend {
	case "redis":
		log.Info("Using Redis cache", "addr", cfg.Cache.Redis.Addr)
		return cache.NewRedisCache(cfg.Cache.Redis.Addr, cfg.Cache.Redis.Password, cfg.Cache.Redis.DB, cfg.Cache.Redis.Prefix)
	case "", "memory":
		c := cache.NewMemoryCache()
		c.StartJanitor(cfg.Cache.TTL)
		log.Info("Using memory cache")
		return c, nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.Cache.Backend)
	}
}

// initABIStore selects where registered contract ABIs live.
func initABIStore(cfg *config.Config) (contracts.ABIStore, error) {
	switch cfg.ABI.Backend {
	case "postgres":
		log.Info("Using PostgreSQL ABI store", "table_prefix", cfg.ABI.TablePrefix)
		return contracts.NewPostgresABIStore(cfg.ABI.PostgresDSN, cfg.ABI.TablePrefix)
	case "redis":
		log.Info("Using Redis ABI store", "addr", cfg.ABI.Redis.Addr)
		return contracts.NewRedisABIStore(cfg.ABI.Redis.Addr, cfg.ABI.Redis.Password, cfg.ABI.Redis.DB, cfg.ABI.Redis.Prefix)
	case "", "memory":
		log.Info("Using memory ABI store (registrations lost on restart)")
		return contracts.NewMemoryABIStore(), nil
	default:
		return nil, fmt.Errorf("unknown ABI store backend: %s", cfg.ABI.Backend)
	}
}

// serve runs the JSON-lines loop: one request object per stdin line, one
// response object per stdout line.
func serve(ctx context.Context, registry *tools.Registry, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		scanErr <- scanner.Err()
		close(lines)
	}()

	encoder := json.NewEncoder(out)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, open := <-lines:
			if !open {
				return <-scanErr
			}
			if resp := handleLine(ctx, registry, line); resp != nil {
				if err := encoder.Encode(resp); err != nil {
					return err
				}
			}
		}
	}
}

// handleLine parses and dispatches one request line. Blank lines are
// ignored; malformed ones get an error response.
func handleLine(ctx context.Context, registry *tools.Registry, line string) *response {
	if line == "" {
		return nil
	}

	var req request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		return &response{Result: tools.ErrorPayload{Error: fmt.Sprintf("malformed request: %v", err)}}
	}

	if req.Tool == "list_tools" {
		list := registry.List()
		names := make([]map[string]string, len(list))
		for i, t := range list {
			names[i] = map[string]string{"name": t.Name, "description": t.Description}
		}
		return &response{ID: req.ID, Tool: req.Tool, Result: names}
	}

	return &response{
		ID:     req.ID,
		Tool:   req.Tool,
		Result: registry.Dispatch(ctx, req.Tool, req.Args),
	}
}
