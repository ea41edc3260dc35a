package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"lite-signal/client"
	"lite-signal/common"
	"lite-signal/configs"
	"lite-signal/directory"
	"lite-signal/keystore"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	userID  string
	cfg     *configs.Config
	app     *client.Client
	closers []func() error
)

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "lite-signal",
		Short:        "End-to-end encrypted messaging client",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = configs.Load(".env", ".env."+userID)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			level, err := logrus.ParseLevel(cfg.LogLevel)
			if err != nil {
				return err
			}
			logger.SetLevel(level)

			ks, err := openKeystore(cfg, userID)
			if err != nil {
				return err
			}
			app, err = client.New(cmd.Context(), userID, ks,
				directory.NewClient(cfg.ServerAddress, nil),
				logger,
				client.WithSignatureVerification(cfg.VerifyPrekeySignatures),
			)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			for _, c := range closers {
				if err := c(); err != nil {
					logger.Errorf("Error during shutdown: %v", err)
				}
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&userID, "user", "u", "", "your user id")
	_ = root.MarkPersistentFlagRequired("user")

	root.AddCommand(initCmd(), publishCmd(), replenishCmd(), sendCmd(), listenCmd(), fingerprintCmd())
	return root
}

// openKeystore picks the backend named by KEYSTORE_BACKEND.
func openKeystore(cfg *configs.Config, userID string) (keystore.Keystore, error) {
	switch cfg.KeystoreBackend {
	case "memory":
		logger.Warn("Using in-memory keystore, keys are lost on exit")
		return keystore.NewMemory(), nil
	case "file":
		if cfg.KeystorePassphrase == "" {
			return nil, fmt.Errorf("KEYSTORE_PASSPHRASE is required for the file keystore")
		}
		path := cfg.KeystorePath
		if path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, err
			}
			path = filepath.Join(home, ".lite-signal", userID+".keystore")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, err
		}
		return keystore.OpenFile(path, cfg.KeystorePassphrase, keystore.DefaultScryptParams)
	case "redis":
		rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
		closers = append(closers, rc.Close)
		return keystore.NewRedis(rc, userID), nil
	}
	return nil, fmt.Errorf("unknown keystore backend %q", cfg.KeystoreBackend)
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Generate identity, signed prekey and one-time prekeys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			created, err := app.Init(cmd.Context())
			if err != nil {
				return err
			}
			if created {
				fmt.Println("keys generated")
			} else {
				fmt.Println("keys already present")
			}
			return nil
		},
	}
}

func publishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish",
		Short: "Publish your public keys to the directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Register(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("published")
			return nil
		},
	}
}

func replenishCmd() *cobra.Command {
	var target int
	cmd := &cobra.Command{
		Use:   "replenish",
		Short: "Top up your one-time prekeys on the directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			added, err := app.Replenish(cmd.Context(), target)
			if err != nil {
				return err
			}
			fmt.Printf("added %d one-time prekeys\n", added)
			return nil
		},
	}
	cmd.Flags().IntVar(&target, "target", configs.DefaultOneTimePrekeys, "number of one-time prekeys to keep published")
	return cmd
}

func sendCmd() *cobra.Command {
	var restart bool
	cmd := &cobra.Command{
		Use:   "send <peer> <message>",
		Short: "Encrypt and send a message to a peer",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			peer := args[0]
			if err := app.Connect(ctx, cfg.ServerAddress); err != nil {
				return err
			}
			closers = append(closers, app.Close)

			if restart {
				if err := app.StartChat(ctx, peer); err != nil {
					return err
				}
			}
			if err := app.Send(ctx, peer, []byte(strings.Join(args[1:], " "))); err != nil {
				if errors.Is(err, common.ErrNoSession) {
					return fmt.Errorf("%w (rerun with --new-session to start one)", err)
				}
				return err
			}
			fmt.Println("sent")
			return nil
		},
	}
	cmd.Flags().BoolVar(&restart, "new-session", false, "fetch the peer's keys and start a new session first")
	return cmd
}

func listenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Receive and decrypt messages until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			if err := app.Connect(ctx, cfg.ServerAddress); err != nil {
				return err
			}
			logger.Infof("Listening as %s", userID)
			return app.Listen(ctx, func(from string, plaintext []byte) {
				fmt.Printf("[%s] %s\n", from, plaintext)
			})
		},
	}
}

func fingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint <peer>",
		Short: "Show the safety number for your session with a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			number, err := app.Fingerprint(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(number)
			return nil
		},
	}
}
