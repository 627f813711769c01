package app

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"dnshelper/internal/app/server"
	"dnshelper/internal/app/version"
	"dnshelper/internal/auth"
	"dnshelper/internal/config"
	"dnshelper/internal/database"
	"dnshelper/internal/hosts"
	"dnshelper/internal/jobs/decay"
	"dnshelper/internal/jobs/instance"
	"dnshelper/internal/jobs/maintenance"
	"dnshelper/internal/jobs/sources"
	"dnshelper/internal/resolver"
	"dnshelper/internal/support"
)

const defaultPort = 8082

func Run() error {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found. Falling back to system environment variables.")
	}

	setLogLevel(support.GetEnv("LOG_LEVEL", "debug"))

	portFlag := flag.Int("port", defaultPort, "Port for API server")
	settingsFlag := flag.String("settings", "", "Path of the settings file")
	hashPasswordFlag := flag.String("hash-password", "", `Print the bcrypt hash for ADMIN_PASSWORD_HASH and exit ("-" reads the password from stdin)`)
	flag.Parse()

	if *hashPasswordFlag != "" {
		return printPasswordHash(os.Stdout, os.Stdin, *hashPasswordFlag)
	}

	port := resolvePort("BACKEND_PORT", "PORT", *portFlag)
	if *settingsFlag != "" {
		config.SetSettingsPath(*settingsFlag)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Starting dnshelper", "version", version.BuildVersion())

	config.ReadSettings()

	db, err := database.SetupDB()
	if err != nil {
		return fmt.Errorf("failed to set up database: %w", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			log.Warn("error closing database", "error", err)
		}
	}()

	redisClient, err := support.GetRedisClient()
	switch {
	case err == nil:
		config.EnableRedisSynchronization(ctx, redisClient)
		heartbeatCancel := instance.LaunchHeartbeat(ctx, redisClient)
		defer func() {
			heartbeatCancel()
			config.DisableRedisSynchronization()
			if err := support.CloseRedisClient(); err != nil {
				log.Warn("error closing redis client", "error", err)
			}
		}()
	case errors.Is(err, support.ErrRedisDisabled):
		redisClient = nil
		log.Info("REDIS_URL not set, running as a single instance")
	default:
		return fmt.Errorf("failed to get redis client: %w", err)
	}

	cfg := config.GetConfig()

	chain, err := newResolverChain(cfg)
	if err != nil {
		return fmt.Errorf("failed to build resolver: %w", err)
	}

	var dialer *resolver.Dialer
	if cfg.Import.UseDoH {
		dialer = resolver.NewDialer(chain, cfg.DoHTimeout())
	}

	table := hosts.NewTable(database.NewHostStore(db))
	importer := hosts.NewImporter(table,
		hosts.WithHTTPClient(hosts.NewSourceClient(cfg.ImportTimeout(), dialer)),
		hosts.WithMaxRetries(int(cfg.Import.MaxRetries)),
	)
	exporter := hosts.NewExporter(table)
	refresher := sources.NewRefresher(importer, exporter)

	go decay.StartDecayRoutine(ctx, table)
	go sources.StartRefreshRoutine(ctx, refresher)
	go maintenance.StartExportSyncRoutine(ctx, exporter)

	srv := server.New(server.Deps{
		Table:     table,
		Exporter:  exporter,
		Refresher: refresher,
		Resolver:  chain,
		Redis:     redisClient,
	})
	return srv.ListenAndServe(ctx, port)
}

func newResolverChain(cfg config.Config) (*resolver.Chain, error) {
	return resolver.New(resolver.Options{
		Providers:     cfg.DoH.Providers,
		Timeout:       cfg.DoHTimeout(),
		CloudflareURL: cfg.DoH.CloudflareURL,
		GoogleURL:     cfg.DoH.GoogleURL,
		SOCKS5:        cfg.DoH.SOCKS5,
		Google: resolver.GoogleProvider{
			CheckingDisabled: cfg.DoH.Google.CheckingDisabled,
			ClientSubnet:     cfg.DoH.Google.ClientSubnet,
			RandomPadding:    cfg.DoH.Google.RandomPadding,
		},
	})
}

func printPasswordHash(w io.Writer, stdin io.Reader, password string) error {
	if password == "-" {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		return errors.New("password must not be empty")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	_, err = fmt.Fprintln(w, hash)
	return err
}

func setLogLevel(raw string) {
	level, err := log.ParseLevel(raw)
	if err != nil {
		log.Warn("invalid LOG_LEVEL, using debug", "value", raw)
		level = log.DebugLevel
	}
	log.SetLevel(level)
}

func resolvePort(primaryEnv, legacyEnv string, fallback int) int {
	if port := readPort(primaryEnv); port != 0 {
		return port
	}
	if port := readPort(legacyEnv); port != 0 {
		return port
	}
	return fallback
}

func readPort(envKey string) int {
	raw := os.Getenv(envKey)
	if raw == "" {
		return 0
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port <= 0 || port > 65535 {
		log.Warn("invalid port override", "env", envKey, "value", raw)
		return 0
	}
	return port
}
