// warden - unattended moderation relay for multiplayer game servers
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/svarog-dev/warden/internal/api"
	"github.com/svarog-dev/warden/internal/auth"
	"github.com/svarog-dev/warden/internal/bus"
	"github.com/svarog-dev/warden/internal/config"
	"github.com/svarog-dev/warden/internal/coordinator"
	"github.com/svarog-dev/warden/internal/domain"
	"github.com/svarog-dev/warden/internal/fetch"
	"github.com/svarog-dev/warden/internal/monitor"
	"github.com/svarog-dev/warden/internal/relay"
	"github.com/svarog-dev/warden/internal/storage"
)

var version = "dev"

const defaultConfigPath = "/etc/warden/config.yml"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "hash":
		cmdHash()
	case "version":
		fmt.Printf("warden %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: warden <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve       Start the moderation relay")
	fmt.Println("  hash        Prompt for a password and print its bcrypt hash")
	fmt.Println("  version     Show version")
	fmt.Println("  help        Show this help")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config <path>    Path to configuration file (default /etc/warden/config.yml)")
}

// cmdHash prompts for a password and prints the bcrypt hash for the
// admin_password_hash config field.
func cmdHash() {
	fmt.Fprint(os.Stderr, "Password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		log.Fatalf("Failed to read password: %v", err)
	}
	hash, err := auth.HashPassword(string(password))
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}
	fmt.Println(hash)
}

// cmdServe starts the moderation relay
func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	cfgPath := *configPath
	if cfgPath == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			cfgPath = defaultConfigPath
		} else {
			log.Fatalf("No config file found at %s. Use --config to specify a config file.", defaultConfigPath)
		}
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Warden %s starting...", version)
	log.Printf("Monitoring %d servers", len(cfg.GameServers))

	store, err := storage.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()
	log.Printf("Database initialized at %s", cfg.Database.Path)

	eventBus, err := bus.New()
	if err != nil {
		log.Fatalf("Failed to start event bus: %v", err)
	}
	defer eventBus.Close()

	publish := func(evt domain.Event) {
		if err := eventBus.PublishEvent(evt); err != nil {
			log.Printf("Publishing %s event: %v", evt.Type, err)
		}
	}

	sender := bus.NewChatSender(eventBus, cfg.Relay.SendInterval)
	defer sender.Close()

	rel := relay.New(relay.Config{
		ForceCancelAfter:   cfg.Relay.ForceCancelAfter,
		NotFoundRetries:    cfg.Relay.NotFoundRetries,
		StartServerRetries: cfg.Relay.StartServerRetries,
		MaxAttempts:        cfg.Relay.MaxAttempts,
	}, sender, relay.NewTableClassifier(), nil, nil)

	var coord *coordinator.Coordinator
	reconciler := monitor.NewReconciler(botPredicate(cfg.Monitor.BotNamePrefixes))
	mon := monitor.NewMonitor(reconciler, cfg.Monitor.SpectatorInterval, publish, func(tag string) {
		if coord != nil {
			coord.OnServerRemoved(tag)
		}
	})

	client := fetch.NewClient(cfg.Status.BaseURL, cfg.Status.Timeout)
	manager := monitor.NewManager(mon, rel, client, client, cfg.Monitor.TickInterval, cfg.Monitor.RosterDelay)

	coord = coordinator.New(rel, mon, store, store, store, eventBus, client, publish)
	rel.SetResultHandler(coord.HandleResult)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Track servers from storage and config; both paths are idempotent.
	stored, err := store.ListServerConfigs(ctx)
	if err != nil {
		log.Fatalf("Failed to load stored server configs: %v", err)
	}
	for _, sc := range stored {
		mon.AddServer(sc)
	}
	for _, sc := range cfg.GameServers {
		if err := store.UpsertServerConfig(ctx, sc); err != nil {
			log.Fatalf("Failed to store server config %s: %v", sc.Tag, err)
		}
		mon.AddServer(sc)
	}

	// Bot replies coming in over the bus feed the relay classifier.
	if _, err := eventBus.SubscribeChatInbound(func(actor domain.Actor, text string) {
		manager.Do(func() { rel.HandleMessage(actor, text) })
	}); err != nil {
		log.Fatalf("Failed to subscribe to inbound chat: %v", err)
	}

	manager.Start(ctx)

	// Expired warm records are dead weight; sweep them periodically.
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := store.PruneWarmRecords(ctx); err != nil {
					log.Printf("Pruning warm records: %v", err)
				}
			}
		}
	}()

	authService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenDuration)
	if cfg.Auth.JWTSecret == "" {
		log.Printf("Warning: No JWT secret configured. Auth tokens will use an empty secret.")
	}
	if cfg.Auth.APIToken == "" {
		log.Printf("Warning: No API token configured. Automation endpoints will refuse all requests.")
	}

	relayIn := func(actor, text string) {
		manager.Do(func() { rel.HandleMessage(domain.Actor(actor), text) })
	}
	router := api.NewRouter(cfg, store, manager, mon, coord, authService, eventBus, relayIn)
	if err := router.StartWebSocketHub(); err != nil {
		log.Fatalf("Failed to start websocket hub: %v", err)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.ListenAddr, cfg.Server.HTTPPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("HTTP server listening on %s", addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, shutting down...", sig)
	case err := <-serverErr:
		log.Fatalf("HTTP server error: %v", err)
	}

	// Sequential shutdown
	log.Println("Shutting down HTTP server...")
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := server.Shutdown(httpCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("Stopping scheduler...")
	manager.Stop()

	cancel()
	log.Println("Shutdown complete")
}

// botPredicate builds the injected isBot check from configured prefixes.
func botPredicate(prefixes []string) func(string) bool {
	if len(prefixes) == 0 {
		return nil
	}
	return func(name string) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(name, p) {
				return true
			}
		}
		return false
	}
}
