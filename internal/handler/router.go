// Package handler は運用系HTTPエンドポイントのルーティングを提供する。
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// メトリクスレジストリ。nilの場合は/metricsを公開しない。
	Registry *prometheus.Registry
}

// NewRouter は運用系エンドポイントのルーティングを構成したchi.Routerを返す。
//
// /health はボット本体やデータベースの状態に依存せず、プロセスの生存のみを示す。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", Health)

	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	return r
}

// Health は生存確認エンドポイント。常に200を返す。
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
