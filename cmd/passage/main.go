// Command passage is a demo host for the Passage client: it issues intent
// tokens, runs a connection session against the realtime gateway, and prints
// locally stored connection results.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/getpassage/passage-go"
	"github.com/getpassage/passage-go/pkg/api"
	"github.com/getpassage/passage-go/pkg/config"
	"github.com/getpassage/passage-go/pkg/intenttoken"
	"github.com/getpassage/passage-go/pkg/observability"
	"github.com/getpassage/passage-go/pkg/storage"
)

var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:           "passage",
		Short:         "Passage connection client",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (YAML)")

	cmd.AddCommand(tokenCmd(&cfgPath))
	cmd.AddCommand(connectCmd(&cfgPath))
	cmd.AddCommand(dataCmd(&cfgPath))
	cmd.AddCommand(decodeCmd())
	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadConfig(path)
}

func buildStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case "", "memory":
		return storage.NewMemoryStore(), nil
	case "file":
		return storage.NewFileStore(cfg.Storage.Dir)
	case "redis":
		return storage.NewRedisStore(storage.RedisConfig{
			Addr:     cfg.Storage.RedisAddr,
			Password: cfg.Storage.RedisPassword,
			DB:       cfg.Storage.RedisDB,
			Key:      cfg.Storage.RedisKey,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func buildClient(cfg *config.Config) (*passage.Client, error) {
	store, err := buildStore(cfg)
	if err != nil {
		return nil, err
	}

	var tel observability.Telemetry = observability.NopTelemetry{}
	if cfg.Telemetry.LogEvents {
		tel = observability.LogTelemetry{}
	}
	if cfg.Telemetry.EnableMetrics {
		observability.InitMetrics()
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.MetricsHandler())
			log.Printf("Serving metrics on %s", cfg.Telemetry.MetricsAddr)
			if err := http.ListenAndServe(cfg.Telemetry.MetricsAddr, mux); err != nil {
				log.Printf("Metrics server error: %v", err)
			}
		}()
	}
	if err := observability.InitTracingFromEnv(); err != nil {
		log.Printf("Tracing disabled: %v", err)
	}

	return passage.New(passage.Config{
		PublishableKey: cfg.PublishableKey,
		APIURL:         cfg.APIURL,
		SocketURL:      cfg.SocketURL,
		Namespace:      cfg.Namespace,
		Store:          store,
		Telemetry:      tel,
	}), nil
}

func tokenCmd(cfgPath *string) *cobra.Command {
	var integration string
	var resources []string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an intent token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			client := api.New(cfg.APIURL, cfg.PublishableKey, nil)
			token, err := client.CreateIntentToken(cmd.Context(), api.IntentTokenRequest{
				IntegrationID: integration,
				Resources:     resources,
			})
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&integration, "integration", "", "integration id to connect")
	cmd.Flags().StringSliceVar(&resources, "resources", nil, "resource grants to request (e.g. trip-read)")
	return cmd
}

func connectCmd(cfgPath *string) *cobra.Command {
	var token string
	var integration string

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Run a connection session and wait for its outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			client, err := buildClient(cfg)
			if err != nil {
				return err
			}
			defer client.Disconnect()

			done := make(chan error, 4)
			handlers := passage.Handlers{
				OnConnectionComplete: func(res passage.ConnectionResult) {
					log.Printf("Connection %s complete (%d prompts)", res.ID, len(res.Prompts))
				},
				OnDataComplete: func(res storage.DataResult) {
					out, _ := json.MarshalIndent(res, "", "  ")
					fmt.Println(string(out))
					done <- nil
				},
				OnPromptComplete: func(p passage.PromptResult) {
					log.Printf("Prompt %s completed", p.Name)
				},
				OnError: func(e passage.Error) {
					done <- e
				},
			}

			ctx := cmd.Context()
			if token == "" {
				if err := cfg.Validate(); err != nil {
					return err
				}
				if err := client.Initialize(ctx, passage.InitializeOptions{
					IntegrationID: integration,
					Handlers:      handlers,
				}); err != nil {
					return err
				}
			}
			if err := client.Open(ctx, passage.OpenOptions{IntentToken: token, Handlers: handlers}); err != nil {
				return err
			}
			if cfg.Telemetry.LogEvents {
				defer client.AddMessageListener(func(event string, data json.RawMessage) {
					log.Printf("event %s: %s", event, data)
				})()
			}
			log.Printf("Session %s open, waiting for data", client.SessionID())

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-done:
				return err
			case <-quit:
				log.Println("Interrupted, disconnecting")
				return nil
			}
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "existing intent token (skips issuance)")
	cmd.Flags().StringVar(&integration, "integration", "", "integration id to connect")
	return cmd
}

func dataCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Print stored connection results, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			store, err := buildStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(entries, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	return cmd
}

func decodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <intent-token>",
		Short: "Decode an intent token's claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			claims, err := intenttoken.Decode(args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(claims, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}
