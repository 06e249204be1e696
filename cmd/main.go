// 程序入口：仅负责读取配置、装配依赖并启动 HTTP 服务；路由注册在 internal/api
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"geozone-api/internal/api"
	"geozone-api/internal/app"
	"geozone-api/internal/config"
	"geozone-api/internal/geoip"
	"geozone-api/internal/ingest"
	"geozone-api/internal/logger"
	"geozone-api/internal/middleware"
	"geozone-api/internal/utils"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.L().Error("config_error", "err", err)
		os.Exit(1)
	}
	l := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	l.Debug("log_init_ok")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, prometheus.DefaultRegisterer)
	if err != nil {
		l.Error("startup_error", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	if a.DB == nil && cfg.ZonesGeoJSON != "" && cfg.ZonesReloadSeconds > 0 {
		go ingest.Watch(ctx, cfg.ZonesGeoJSON, time.Duration(cfg.ZonesReloadSeconds)*time.Second, func(ctx context.Context) error {
			_, err := a.Import(ctx, cfg.ZonesGeoJSON, "")
			return err
		})
	}

	// IP 定位可选；库缺失时仅要求调用方显式给出 lat/lon
	var loc api.Locator
	if cfg.GeoIPDBPath != "" {
		if g, err := geoip.Open(cfg.GeoIPDBPath); err == nil {
			defer g.Close()
			loc = g
		} else {
			l.Error("geoip_open_error", "path", cfg.GeoIPDBPath, "err", err)
		}
	}

	base := "/" + strings.Trim(cfg.APIBase, "/")
	mux := http.NewServeMux()
	apiMux := api.BuildRoutes(a.Resolver, loc)
	if base == "/" {
		mux.Handle("/zones", apiMux)
		mux.Handle("/zones/", apiMux)
	} else {
		mux.Handle(base+"/", http.StripPrefix(base, apiMux))
	}
	mux.Handle("/metrics", a.Metrics.Handler())
	mux.HandleFunc("/healthz", api.HealthHandler(a.Ping()))
	l.Debug("config_api_base", "base", base)

	var handler http.Handler = mux
	if cfg.RateLimitEnabled {
		handler = middleware.RateLimit(cfg.RateLimitQPS)(handler)
	}
	handler = logger.AccessMiddleware(l)(handler)
	handler = middleware.Recover(handler)

	s := &http.Server{Addr: cfg.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.Shutdown(sctx)
	}()

	if cfg.TLSEnable {
		if err := utils.EnsureSelfSignedCert(cfg.TLSCertPath, cfg.TLSKeyPath, "geozone-api.local"); err != nil {
			l.Error("tls_cert_error", "err", err)
			os.Exit(1)
		}
		l.Info("listening_tls", "addr", cfg.Addr, "cert", cfg.TLSCertPath)
		err = s.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
	} else {
		l.Info("listening", "addr", cfg.Addr)
		err = s.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Error("server_error", "err", err)
	}
	l.Info("shutdown")
}
