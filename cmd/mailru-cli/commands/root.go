package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mailru-backend/internal/mailru/browser"
	"mailru-backend/internal/mailru/cookie"
	"mailru-backend/internal/mailru/scraper"
	"mailru-backend/internal/mailru/session"
	"mailru-backend/internal/telemetry"
	"mailru-backend/lib/configutil"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var (
	configPath  *string
	debug       *bool
	passError   *bool
	metricsAddr *string
	perfStats   *time.Duration
)

// env is everything the commands share, built before any command runs.
var env struct {
	config    Config
	tel       telemetry.API
	otel      telemetry.Telemetry
	metrics   *telemetry.Metrics
	session   *session.Session
	browser   *lazyChrome
	scraper   *scraper.Scraper
	cancelEnv context.CancelFunc
}

var rootCmd = &cobra.Command{
	Use:               "mailru-cli",
	Short:             "mailru-cli calls the my.mail.ru API, scraping what the API does not serve.",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	configPath = rootCmd.PersistentFlags().String("config", "", "Path to the config file, searched for upwards from the working directory by default.")
	debug = rootCmd.PersistentFlags().Bool("debug", false, "Log debug reports.")
	passError = rootCmd.PersistentFlags().Bool("pass-error", false, "Print API error payloads instead of failing.")
	metricsAddr = rootCmd.PersistentFlags().String("metrics-addr", "", "Serve prometheus metrics on this address while the command runs.")
	perfStats = rootCmd.PersistentFlags().Duration("perf-stats", 0, "Record process gauges at this interval, 0 disables them.")
	cobra.OnFinalize(teardown)
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	telemetry.InitSlog(*debug)

	cfg, err := configutil.Load[Config](*configPath, "config.json5")
	if errors.Is(err, os.ErrNotExist) && *configPath == "" {
		slog.Warn("no config.json5 found, using public defaults")
	} else if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if cfg.CookiesFile != "" {
		stored, err := cookie.ReadFile(cfg.CookiesFile)
		switch {
		case errors.Is(err, os.ErrNotExist):
			slog.Warn("cookies file does not exist yet, run login to create it", "path", cfg.CookiesFile)
		case err != nil:
			return fmt.Errorf("read cookies: %w", err)
		default:
			cfg.Cookies = append(cfg.Cookies, stored...)
		}
	}
	if *passError {
		cfg.PassError = true
	}
	env.config = cfg
	env.tel = telemetry.SlogAPI{}

	ctx, cancel := context.WithCancel(cmd.Context())
	env.cancelEnv = cancel

	env.otel, err = telemetry.Setup(ctx, "mailru-cli", cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	if *perfStats > 0 {
		telemetry.InstrumentPerfStats(ctx, env.tel, *perfStats)
	}

	env.metrics = telemetry.NewMetrics()
	if *metricsAddr != "" {
		serveMetrics(ctx, *metricsAddr, env.metrics)
	}

	env.session, err = session.New(session.Options{
		Credentials:      cfg.Credentials,
		Cookies:          cfg.Cookies,
		PassError:        cfg.PassError,
		APIURL:           cfg.Http.ApiUrl,
		PublicURL:        cfg.Http.PublicUrl,
		OAuthURL:         cfg.Http.OAuthUrl,
		AuthURL:          cfg.Http.AuthUrl,
		Timeout:          seconds(cfg.Http.TimeoutSeconds),
		RateLimit:        cfg.Http.RateLimit,
		CloudflareBypass: cfg.Http.CloudflareBypass,
		Metrics:          env.metrics,
	}, env.tel)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	env.browser = &lazyChrome{ctx: ctx, opts: cfg.Browser, tel: env.tel}
	env.scraper = scraper.New(scraper.Options{
		Session: env.session,
		Browser: env.browser,
		Config:  cfg.Scraper.scraperConfig(),
		Metrics: env.metrics,
	}, env.tel)
	return nil
}

func teardown() {
	if env.browser != nil {
		env.browser.Close()
	}
	if env.session != nil {
		env.session.Close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := env.otel.Shutdown(ctx)
	if err != nil {
		slog.Warn("failed to flush telemetry", "err", err)
	}
	if env.cancelEnv != nil {
		env.cancelEnv()
	}
}

func serveMetrics(ctx context.Context, addr string, metrics *telemetry.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		slog.Info("serving metrics", "addr", addr)
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server stopped", "err", err)
		}
	}()
	context.AfterFunc(ctx, func() {
		server.Close()
	})
}

// lazyChrome launches the browser on the first page request, commands that
// only talk to the API never start it.
type lazyChrome struct {
	ctx  context.Context
	opts browser.Options
	tel  telemetry.API

	mu     sync.Mutex
	chrome *browser.Chrome
}

func (l *lazyChrome) Page(ctx context.Context, url string, cookies []cookie.Cookie) (browser.Page, error) {
	l.mu.Lock()
	if l.chrome == nil {
		chrome, err := browser.NewChrome(l.ctx, l.opts, l.tel)
		if err != nil {
			l.mu.Unlock()
			return nil, err
		}
		l.chrome = chrome
	}
	chrome := l.chrome
	l.mu.Unlock()
	return chrome.Page(ctx, url, cookies)
}

func (l *lazyChrome) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.chrome == nil {
		return nil
	}
	return l.chrome.Close()
}
