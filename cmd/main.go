// Command clarb runs the cross-venue CL arbitrage opportunity loop: it
// dials the configured RPC endpoint(s), builds the engine from environment
// configuration, and blocks in the reconnect shell until the circuit
// breaker trips or the process is signalled to stop.
package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/joho/godotenv"

	"github.com/ChoSanghyuk/clarb/configs"
	"github.com/ChoSanghyuk/clarb/internal/db"
	"github.com/ChoSanghyuk/clarb/internal/engine"
)

func main() {
	// Dotenv loading is ambient convenience only; a missing .env is not
	// fatal, matching the teacher's own test-time godotenv usage.
	_ = godotenv.Load()

	cfg, err := configs.Load()
	if err != nil {
		log.Fatalf("configs: %v", err)
	}
	poolConfigs, err := configs.PoolConfigs()
	if err != nil {
		log.Fatalf("configs: %v", err)
	}

	privateKey, err := loadSignerKey(cfg)
	if err != nil {
		log.Fatalf("signer key: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, rawRPC, err := dial(ctx, cfg)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer client.Close()

	var gethClient *gethclient.Client
	if rawRPC != nil {
		gethClient = gethclient.New(rawRPC)
	} else {
		log.Printf("⚠️ transport %s does not support subscriptions; mempool-driven refresh is disabled", cfg.Transport)
	}

	var shadow *db.ShadowLogger
	if !cfg.ExecutionEnabled {
		shadow, err = db.OpenShadowLogger(cfg.ShadowLogPath)
		if err != nil {
			log.Fatalf("shadow log: %v", err)
		}
		defer shadow.Close()
	}

	var recorder *db.MySQLRecorder
	if dsn := os.Getenv("AUDIT_DB_DSN"); dsn != "" {
		recorder, err = db.NewMySQLRecorder(dsn)
		if err != nil {
			log.Fatalf("audit db: %v", err)
		}
		defer recorder.Close()
	}

	eng, err := engine.New(client, gethClient, cfg, privateKey, poolConfigs, shadow, recorder)
	if err != nil {
		log.Fatalf("engine: %v", err)
	}

	if err := eng.Setup(ctx); err != nil {
		log.Fatalf("engine setup: %v", err)
	}

	if err := eng.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("engine: %v", err)
	}
}

// loadSignerKey resolves the signer's private key either from an
// already-decrypted environment value or from an on-disk encrypted
// keystore file, following the same split BotConfig documents. Producing
// the keystore itself (the CLI prompt flow) is an external collaborator's
// job per spec §1/§6; this only consumes one.
func loadSignerKey(cfg *configs.BotConfig) (*ecdsa.PrivateKey, error) {
	if cfg.SignerPrivateKeyHex != "" {
		return crypto.HexToECDSA(strings.TrimPrefix(cfg.SignerPrivateKeyHex, "0x"))
	}
	if cfg.KeystorePath == "" {
		return nil, fmt.Errorf("neither SIGNER_PRIVATE_KEY nor KEYSTORE_PATH is set")
	}
	raw, err := os.ReadFile(cfg.KeystorePath)
	if err != nil {
		return nil, fmt.Errorf("read keystore: %w", err)
	}
	key, err := keystore.DecryptKey(raw, cfg.KeyPassword)
	if err != nil {
		return nil, fmt.Errorf("decrypt keystore: %w", err)
	}
	return key.PrivateKey, nil
}

// dial opens the client connection per the configured transport
// preference. It returns the raw *rpc.Client only when the transport
// supports duplex subscriptions (ws/ipc), so callers can tell when the
// mempool-driven path is unavailable over http.
func dial(ctx context.Context, cfg *configs.BotConfig) (*ethclient.Client, *rpc.Client, error) {
	switch cfg.Transport {
	case configs.TransportWS:
		return dialSubscribable(ctx, cfg.RPCWebsocketURL)
	case configs.TransportIPC:
		return dialSubscribable(ctx, cfg.RPCIPCPath)
	case configs.TransportHTTP:
		c, err := ethclient.DialContext(ctx, cfg.RPCHTTPURL)
		return c, nil, err
	default: // auto: prefer ipc, then ws, then http
		if cfg.RPCIPCPath != "" {
			if c, raw, err := dialSubscribable(ctx, cfg.RPCIPCPath); err == nil {
				return c, raw, nil
			}
		}
		if cfg.RPCWebsocketURL != "" {
			if c, raw, err := dialSubscribable(ctx, cfg.RPCWebsocketURL); err == nil {
				return c, raw, nil
			}
		}
		c, err := ethclient.DialContext(ctx, cfg.RPCHTTPURL)
		return c, nil, err
	}
}

func dialSubscribable(ctx context.Context, endpoint string) (*ethclient.Client, *rpc.Client, error) {
	if endpoint == "" {
		return nil, nil, fmt.Errorf("dial: endpoint not configured")
	}
	client, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return nil, nil, err
	}
	return client, client.Client(), nil
}
