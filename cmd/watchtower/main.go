// Command watchtower runs the stackflow watchtower: ingests pipe contract
// events, tracks off-chain signature states, co-signs counterparty
// requests, and disputes closures for which it holds a newer signed state
// (spec.md §1).
// Grounded on the teacher's cmd/gateway main (config load, signal-driven
// graceful shutdown over a net.Listener) generalized from the payments
// gateway's TLS/mTLS concerns to the watchtower's store/core/cosigner wiring.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/stackflow/watchtower/internal/chainevent"
	"github.com/stackflow/watchtower/internal/config"
	"github.com/stackflow/watchtower/internal/cosigner"
	"github.com/stackflow/watchtower/internal/dispute"
	"github.com/stackflow/watchtower/internal/httpapi"
	"github.com/stackflow/watchtower/internal/obslog"
	"github.com/stackflow/watchtower/internal/obstrace"
	"github.com/stackflow/watchtower/internal/signer"
	"github.com/stackflow/watchtower/internal/stacksapi"
	"github.com/stackflow/watchtower/internal/store"
	"github.com/stackflow/watchtower/internal/verifier"
	"github.com/stackflow/watchtower/internal/watchtower"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("watchtower: %v", err)
	}
}

func run() error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}

	logger := obslog.Setup(obslog.Config{
		Service:  "watchtower",
		Env:      cfg.Env,
		FilePath: cfg.LogFile,
	})

	shutdownTracing, err := obstrace.Init(context.Background(), obstrace.Config{
		ServiceName: "watchtower",
		Environment: cfg.Env,
		Endpoint:    cfg.OtelEndpoint,
		Enabled:     cfg.OtelEnabled,
	})
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	st, err := store.Open(context.Background(), cfg.DBFile, cfg.MaxRecentEvents)
	if err != nil {
		return err
	}
	defer st.Close()

	sigVerifier, err := buildVerifier(cfg)
	if err != nil {
		return err
	}
	disputeExecutor, err := buildDisputeExecutor(cfg)
	if err != nil {
		return err
	}

	parser := chainevent.NewParser(cfg.WatchedContracts, ".stackflow-pipe")
	core := watchtower.New(st, parser, sigVerifier, disputeExecutor, cfg.WatchedPrincipals, cfg.DisputeOnlyBeneficial, logger)

	var cosignerSvc *cosigner.Service
	if cfg.CounterpartyKey != "" || cfg.CounterpartySignerMode == "kms" {
		counterpartySigner, err := buildSigner(cfg)
		if err != nil {
			return err
		}
		cosignerSvc = &cosigner.Service{
			Core:                core,
			Verifier:            sigVerifier,
			Signer:              counterpartySigner,
			Network:             cfg.StacksNetwork,
			StackflowMessageVer: cfg.StackflowMessageVersion,
		}
	}

	handler := httpapi.New(httpapi.Config{
		Core:              core,
		Cosigner:          cosignerSvc,
		CosignerPrincipal: cfg.CounterpartyPrincipal,
		Logger:            logger,
		ServiceName:       "watchtower",
		MetricsEnable:     cfg.MetricsEnabled,
		TracingEnable:     cfg.OtelEnabled,
		StaticDir:         cfg.StaticDir,
	}).Handler()

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		logger.Info("watchtower listening", slog.String("addr", listener.Addr().String()))
		if serveErr := srv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			logger.Error("serve failed", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
	}
	return nil
}

func buildVerifier(cfg *config.Config) (verifier.Verifier, error) {
	switch cfg.SignatureVerifierMode {
	case "accept-all":
		return verifier.AcceptAll{}, nil
	case "reject-all":
		return verifier.RejectAll{}, nil
	default:
		client := stacksapi.New(cfg.StacksAPIURL, cfg.StacksAPIToken)
		return &verifier.ReadOnly{
			Client:            client,
			ContractPrincipal: cfg.ContractPrincipal,
			ContractName:      cfg.ContractName,
			Sender:            cfg.ContractPrincipal,
		}, nil
	}
}

func buildDisputeExecutor(cfg *config.Config) (dispute.Executor, error) {
	switch cfg.DisputeExecutorMode {
	case "noop":
		return dispute.Noop{}, nil
	case "mock":
		return &dispute.Mock{}, nil
	default:
		if cfg.SignerKey == "" {
			return dispute.Noop{}, nil
		}
		s, err := signer.NewLocalSigner(cfg.ContractPrincipal, cfg.SignerKey)
		if err != nil {
			return nil, err
		}
		client := stacksapi.New(cfg.StacksAPIURL, cfg.StacksAPIToken)
		return &dispute.Real{
			Client:              client,
			Signer:              s,
			Network:             cfg.StacksNetwork,
			StackflowMessageVer: cfg.StackflowMessageVersion,
		}, nil
	}
}

// buildSigner constructs the co-signer's own signing capability. KMS mode
// requires a concrete signer.KMSClient binding, which spec.md §1 leaves as
// an unspecified boundary -- see DESIGN.md for why no such binding ships
// here.
func buildSigner(cfg *config.Config) (signer.Signer, error) {
	switch cfg.CounterpartySignerMode {
	case "kms":
		return nil, errNoKMSBinding
	default:
		return signer.NewLocalSigner(cfg.CounterpartyPrincipal, cfg.CounterpartyKey)
	}
}

var errNoKMSBinding = errors.New("counterparty signer mode kms requires a signer.KMSClient binding not provided by this build")
