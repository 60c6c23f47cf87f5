package container

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"grid-maker-go/internal/engine"
	"grid-maker-go/internal/lifecycle"
)

type gridView struct {
	Symbol      string  `json:"symbol"`
	State       string  `json:"state"`
	LastError   string  `json:"lastError,omitempty"`
	Uptime      string  `json:"uptime"`
	Generation  int     `json:"generation"`
	Size        float64 `json:"size"`
	LastPrice   float64 `json:"lastPrice"`
	DryRun      bool    `json:"dryRun"`
	Idle        int     `json:"idle"`
	Active      int     `json:"active"`
	Filled      int     `json:"filled"`
	NetExposure float64 `json:"netExposure"`
	Entries     int64   `json:"entries"`
	Fills       int64   `json:"fills"`
	Rebuilds    int64   `json:"rebuilds"`
	Errors      int64   `json:"errors"`

	RecentFills  int     `json:"recentFills"`
	AssumedFills int     `json:"assumedFills"`
	FillRate     float64 `json:"fillRatePerMin"`

	PositionsClosed int64   `json:"positionsClosed"`
	RealizedPnL     float64 `json:"realizedPnl"`
	HedgeActive     bool    `json:"hedgeActive"`
	HedgeKind       string  `json:"hedgeKind,omitempty"`
}

func newGridView(s engine.Summary) gridView {
	return gridView{
		Symbol:      s.Symbol,
		State:       string(s.Lifecycle.State),
		LastError:   s.Lifecycle.LastError,
		Uptime:      s.Lifecycle.Uptime.Truncate(time.Second).String(),
		Generation:  s.Generation,
		Size:        s.Size,
		LastPrice:   s.LastPrice,
		DryRun:      s.DryRun,
		Idle:        s.Levels.Idle,
		Active:      s.Levels.Active,
		Filled:      s.Levels.Filled,
		NetExposure: s.Exposure.Net,
		Entries:     s.Stats.Entries,
		Fills:       s.Stats.Fills,
		Rebuilds:    s.Stats.Rebuilds,
		Errors:      s.Stats.Errors,

		RecentFills:  s.Fills.Recent,
		AssumedFills: s.Fills.Assumed,
		FillRate:     s.Fills.RatePerMin,

		PositionsClosed: s.Stats.PositionsClosed,
		RealizedPnL:     s.Stats.RealizedPnL,
		HedgeActive:     s.Hedge.Active,
		HedgeKind:       string(s.Hedge.Kind),
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// adminRouter 运维接口：指标、健康检查、网格摘要和手动控制。
func (c *Container) adminRouter() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", c.monitor.Handler()).Methods("GET")
	r.HandleFunc("/healthz", c.handleHealth).Methods("GET")
	r.HandleFunc("/grids", c.handleListGrids).Methods("GET")
	r.HandleFunc("/grids/{symbol}", c.handleGetGrid).Methods("GET")
	r.HandleFunc("/grids/{symbol}/{action:pause|resume|rebalance}", c.handleGridAction).Methods("POST")
	return r
}

func (c *Container) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := c.HealthCheck(); err != nil {
		respondError(w, http.StatusServiceUnavailable, "unhealthy", err.Error())
		return
	}
	respondJSON(w, map[string]string{"status": "ok"})
}

func (c *Container) handleListGrids(w http.ResponseWriter, r *http.Request) {
	out := make([]gridView, 0, len(c.grids))
	for _, sym := range c.Symbols() {
		v, err := c.view(r.Context(), sym)
		if err != nil {
			// 已停止的网格只返回名称
			out = append(out, gridView{Symbol: sym, State: "STOPPED"})
			continue
		}
		out = append(out, v)
	}
	respondJSON(w, out)
}

func (c *Container) handleGetGrid(w http.ResponseWriter, r *http.Request) {
	sym := mux.Vars(r)["symbol"]
	if _, ok := c.grids[sym]; !ok {
		respondError(w, http.StatusNotFound, "grid not found", sym)
		return
	}
	v, err := c.view(r.Context(), sym)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "grid unavailable", err.Error())
		return
	}
	respondJSON(w, v)
}

func (c *Container) handleGridAction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sym, action := vars["symbol"], vars["action"]
	if _, ok := c.grids[sym]; !ok {
		respondError(w, http.StatusNotFound, "grid not found", sym)
		return
	}
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "admin " + action
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	var actionErr error
	var v gridView
	err := c.Do(ctx, sym, func(m *engine.GridManager) {
		switch action {
		case "pause":
			actionErr = m.Pause(reason)
		case "resume":
			actionErr = m.Resume(reason)
		case "rebalance":
			actionErr = m.Rebalance()
		}
		v = newGridView(m.Summary())
	})
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "grid unavailable", err.Error())
		return
	}
	if actionErr != nil {
		status := http.StatusInternalServerError
		var invalid *lifecycle.InvalidTransitionError
		if errors.Is(actionErr, engine.ErrNotActive) || errors.As(actionErr, &invalid) {
			status = http.StatusConflict
		}
		respondError(w, status, action+" failed", actionErr.Error())
		return
	}
	c.logger.Info("admin action applied",
		zap.String("symbol", sym), zap.String("action", action), zap.String("state", v.State))
	respondJSON(w, v)
}

func (c *Container) view(ctx context.Context, sym string) (gridView, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	var v gridView
	err := c.Do(ctx, sym, func(m *engine.GridManager) { v = newGridView(m.Summary()) })
	return v, err
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, msg string, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg, Message: detail})
}
