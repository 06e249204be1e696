// 包 ingest：后台刷新围栏数据；轮询 GeoJSON 文件或目录的修改时间，变化后重新导入
package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"geozone-api/internal/logger"
)

// latestModTime：文件的修改时间，目录取其中 .geojson 文件的最大修改时间
func latestModTime(path string) (time.Time, error) {
	st, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	if !st.IsDir() {
		return st.ModTime(), nil
	}
	latest := st.ModTime()
	entries, err := os.ReadDir(path)
	if err != nil {
		return time.Time{}, err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".geojson") {
			continue
		}
		fi, err := os.Stat(filepath.Join(path, e.Name()))
		if err == nil && fi.ModTime().After(latest) {
			latest = fi.ModTime()
		}
	}
	return latest, nil
}

// 文档注释：轮询 path 并在修改后执行 reload
// 背景：内存存储模式下编辑 GeoJSON 后无需重启进程；启动时的首次装载由调用方完成，这里只记录基线。
// 约束：阻塞直到 ctx 结束；reload 失败只记录日志，下次修改时重试；导入为按主键覆盖，文件中删除的围栏不会从存储中移除。
func Watch(ctx context.Context, path string, every time.Duration, reload func(context.Context) error) {
	l := logger.Component("ingest")
	base, err := latestModTime(path)
	if err != nil {
		l.Warn("watch_stat_error", "path", path, "err", err)
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		mod, err := latestModTime(path)
		if err != nil {
			l.Warn("watch_stat_error", "path", path, "err", err)
			continue
		}
		if !mod.After(base) {
			continue
		}
		l.Info("reload_start", "path", path, "modified", mod)
		if err := reload(ctx); err != nil {
			l.Error("reload_error", "path", path, "err", err)
			continue
		}
		base = mod
		l.Info("reload_done", "path", path)
	}
}
