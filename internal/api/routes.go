// 包 api：围栏查询 HTTP 路由；独立 ServeMux，由主入口挂载到 API_BASE 前缀
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"geozone-api/internal/geozone"
	"geozone-api/internal/logger"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// statusOf：错误分类到 HTTP 状态码
func statusOf(err error) int {
	switch {
	case errors.Is(err, geozone.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, geozone.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, geozone.ErrUnsupportedZoneType):
		return http.StatusUnprocessableEntity
	case errors.Is(err, geozone.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	if code >= 500 {
		logger.L().Error("api_error", "path", r.URL.Path, "err", err)
	} else {
		logger.L().Debug("api_rejected", "path", r.URL.Path, "status", code, "err", err)
	}
	writeJSON(w, code, errorResult{Error: err.Error()})
}

func nonNil(zs []*geozone.Zone) []*geozone.Zone {
	if zs == nil {
		return []*geozone.Zone{}
	}
	return zs
}

// 文档注释：构建路由
// 背景：每个处理器只做参数解析与错误映射，语义全部在 Resolver 内；loc 为空时必须显式给出 lat/lon。
func BuildRoutes(res Resolver, loc Locator) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /zones/containing", func(w http.ResponseWriter, r *http.Request) {
		p, err := pointFrom(r, loc)
		if err != nil {
			writeError(w, r, err)
			return
		}
		zs, err := res.FindContaining(r.Context(), r.URL.Query().Get("account"), p)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, zonesResult{Zones: nonNil(zs)})
	})

	mux.HandleFunc("GET /zones/first", func(w http.ResponseWriter, r *http.Request) {
		p, err := pointFrom(r, loc)
		if err != nil {
			writeError(w, r, err)
			return
		}
		q := r.URL.Query()
		z, err := res.FindFirstContaining(r.Context(), q.Get("account"), p, q.Get("purpose"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, zoneResult{Zone: z})
	})

	mux.HandleFunc("GET /zones/device", func(w http.ResponseWriter, r *http.Request) {
		p, err := pointFrom(r, loc)
		if err != nil {
			writeError(w, r, err)
			return
		}
		q := r.URL.Query()
		z, err := res.FindFirstForDevice(r.Context(), q.Get("account"), p, q.Get("device"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, zoneResult{Zone: z})
	})

	mux.HandleFunc("GET /zones/contains", func(w http.ResponseWriter, r *http.Request) {
		p, err := pointFrom(r, loc)
		if err != nil {
			writeError(w, r, err)
			return
		}
		q := r.URL.Query()
		ok, err := res.ContainsExact(r.Context(), q.Get("account"), q.Get("zone"), p)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, containsResult{Contains: ok})
	})

	mux.HandleFunc("GET /zones/bounds", func(w http.ResponseWriter, r *http.Request) {
		b, err := boundsFrom(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		zs, err := res.FindInBounds(r.Context(), r.URL.Query().Get("account"), b)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, zonesResult{Zones: nonNil(zs)})
	})

	mux.HandleFunc("GET /zones/description", func(w http.ResponseWriter, r *http.Request) {
		p, err := pointFrom(r, loc)
		if err != nil {
			writeError(w, r, err)
			return
		}
		d, err := res.Description(r.Context(), r.URL.Query().Get("account"), p)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, descriptionResult{Description: d})
	})

	mux.HandleFunc("GET /zones/types", func(w http.ResponseWriter, r *http.Request) {
		out := make([]typeInfo, 0, len(geozone.AllTypes))
		for _, t := range geozone.AllTypes {
			out = append(out, typeInfo{ID: int(t), Name: t.String(), HasRadius: t.HasRadius(), Supported: res.IsTypeSupported(t)})
		}
		writeJSON(w, http.StatusOK, out)
	})

	// 请求体中缺省的属性沿用新建围栏的默认值；未给出 radius 时按类型取默认半径
	mux.HandleFunc("POST /zones", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, r, errors.Join(geozone.ErrInvalidInput, err))
			return
		}
		z := geozone.New("", "", 0)
		var given struct {
			Radius *uint32 `json:"radius"`
		}
		if err := json.Unmarshal(body, z); err != nil {
			writeError(w, r, errors.Join(geozone.ErrInvalidInput, err))
			return
		}
		if err := json.Unmarshal(body, &given); err != nil {
			writeError(w, r, errors.Join(geozone.ErrInvalidInput, err))
			return
		}
		if given.Radius == nil {
			z.RadiusMeters = z.Type.DefaultRadius()
		}
		if strings.TrimSpace(z.Description) == "Custom Zone" {
			z.Description = "Custom Zone " + z.GeozoneID
		}
		if err := res.Save(r.Context(), z); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, z)
	})

	return mux
}
