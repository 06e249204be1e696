// 围栏导入工具：读取 GeoJSON 文件或目录，重算包围盒后写入配置的存储
package main

import (
	"context"
	"flag"
	"os"

	"geozone-api/internal/app"
	"geozone-api/internal/config"
	"geozone-api/internal/loader"
	"geozone-api/internal/logger"
)

func main() {
	path := flag.String("file", "", "GeoJSON file or directory")
	account := flag.String("account", "", "account for features without an account property")
	dryRun := flag.Bool("dry-run", false, "parse only, do not write")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.L().Error("config_error", "err", err)
		os.Exit(1)
	}
	l := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	if *path == "" {
		*path = cfg.ZonesGeoJSON
	}
	if *path == "" {
		l.Error("import_no_input", "hint", "pass -file or set ZONES_GEOJSON")
		os.Exit(2)
	}

	if *dryRun {
		zs, err := loader.LoadPath(*path, *account)
		if err != nil {
			l.Error("import_parse_error", "err", err)
			os.Exit(1)
		}
		l.Info("import_dry_run", "zones", len(zs))
		return
	}

	if cfg.PostgresDSN() == "" {
		l.Error("import_no_database", "hint", "set PG_HOST")
		os.Exit(2)
	}
	// 只写库，不需要从 ZONES_GEOJSON 预装载
	cfg.ZonesGeoJSON = ""
	ctx := context.Background()
	a, err := app.Build(ctx, cfg, nil)
	if err != nil {
		l.Error("startup_error", "err", err)
		os.Exit(1)
	}
	defer a.Close()
	n, err := a.Import(ctx, *path, *account)
	if err != nil {
		l.Error("import_error", "saved", n, "err", err)
		os.Exit(1)
	}
	l.Info("import_success", "zones", n)
}
