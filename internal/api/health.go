package api

import (
	"context"
	"net/http"
	"time"
)

// HealthHandler：依次执行探活函数，任一失败返回 503
func HealthHandler(checks map[string]func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		out := map[string]string{}
		code := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				out[name] = err.Error()
				code = http.StatusServiceUnavailable
				continue
			}
			out[name] = "ok"
		}
		writeJSON(w, code, out)
	}
}
