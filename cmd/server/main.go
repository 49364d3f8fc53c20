package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/SphrGhfri/roomchat/api/ws"
	"github.com/SphrGhfri/roomchat/config"
	"github.com/SphrGhfri/roomchat/internal/app"
	"github.com/SphrGhfri/roomchat/internal/domain"
	"github.com/SphrGhfri/roomchat/internal/nats"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

func main() {
	// a missing .env is normal outside development
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "roomchat",
		Short:         "Room based websocket chat server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "service configuration file (env CONFIG_PATH)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the chat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	})
	root.AddCommand(tailCmd(), tokenCmd())
	return root
}

func loadConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	return config.ReadConfig(path)
}

func serve() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	application, err := app.NewApp(cfg)
	if err != nil {
		return err
	}

	go func() {
		if err := application.Start(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"roomchat": application.Stop,
		},
	)
	os.Exit(<-wait)
	return nil
}

func tailCmd() *cobra.Command {
	var (
		rooms   []string
		exclude string
	)
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print room events published on NATS",
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := parseRooms(rooms)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.NATSURL == "" {
				return fmt.Errorf("nats_url is not configured")
			}
			client, err := nats.NewNATSClient(cfg.NATSURL)
			if err != nil {
				return err
			}
			defer client.Close()

			err = client.Tail(keys, exclude, func(p domain.Payload) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s/%s [%s] %s: %s\n",
					p.Timestamp, p.RoomType, p.RoomID, p.Type, p.Sender, p.Content)
			})
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&rooms, "room", nil, "room to follow as type/id, repeatable; all rooms when unset")
	cmd.Flags().StringVar(&exclude, "exclude-sender", "", "skip events sent by this participant id")
	return cmd
}

// parseRooms turns "type/id" values into room keys. A bare id means a public room.
func parseRooms(values []string) ([]domain.RoomKey, error) {
	keys := make([]domain.RoomKey, 0, len(values))
	for _, v := range values {
		rt, id := "", v
		if i := strings.Index(v, "/"); i >= 0 {
			rt, id = v[:i], v[i+1:]
		}
		roomType, err := domain.ParseRoomType(rt)
		if err != nil {
			return nil, err
		}
		id = strings.TrimSpace(id)
		if err := domain.ValidateRoomID(id); err != nil {
			return nil, fmt.Errorf("room %q: %w", v, err)
		}
		keys = append(keys, domain.NewRoomKey(roomType, id))
	}
	return keys, nil
}

func tokenCmd() *cobra.Command {
	var (
		name string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <participant-id>",
		Short: "Issue an access token signed with jwt_secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			tok, err := ws.NewAuthenticator(cfg.JWTSecret).Issue(args[0], name, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
