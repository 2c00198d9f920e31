package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"trade-journal/internal/chart"
	"trade-journal/internal/export"
	"trade-journal/internal/review"
	"trade-journal/internal/session"
	"trade-journal/internal/stats"
	"trade-journal/internal/store"
)

type server struct {
	journal  *store.Journal
	syncer   *syncer
	reviewer *review.Client
	logger   *zap.Logger
}

func startServer(ctx context.Context, s *server, port int, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/sessions", s.handleSessions)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/chart", s.handleChart)
	mux.HandleFunc("/review", s.handleReview)
	mux.HandleFunc("/sync", s.handleSync)
	mux.HandleFunc("/export/sessions.csv", s.handleExportSessions)
	mux.HandleFunc("/export/executions.csv", s.handleExportExecutions)

	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("关闭HTTP服务失败", zap.Error(err))
		}
	}()

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP服务异常", zap.Error(err))
		}
	}()

	logger.Info("HTTP接口已启动", zap.String("addr", addr))
	return nil
}

func sessionQueryFromRequest(r *http.Request) store.SessionQuery {
	q := r.URL.Query()

	query := store.SessionQuery{
		Account: strings.TrimSpace(q.Get("account")),
		Symbol:  strings.TrimSpace(q.Get("symbol")),
	}

	switch strings.ToLower(strings.TrimSpace(q.Get("status"))) {
	case "open":
		query.Status = session.StatusOpen
	case "closed":
		query.Status = session.StatusClosed
	}

	if qs := q.Get("limit"); qs != "" {
		if v, err := strconv.Atoi(qs); err == nil && v > 0 {
			if v > 1000 {
				v = 1000
			}
			query.Limit = v
		}
	}

	return query
}

func (s *server) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.journal.ListSessions(r.Context(), sessionQueryFromRequest(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, sessions)
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.journal.ListSessions(r.Context(), sessionQueryFromRequest(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, stats.Compute(sessions))
}

func (s *server) handleChart(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.journal.ListSessions(r.Context(), sessionQueryFromRequest(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := chart.Render(w, sessions); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	}
}

func (s *server) handleReview(w http.ResponseWriter, r *http.Request) {
	if s.reviewer == nil {
		http.Error(w, "AI 复盘未启用", http.StatusServiceUnavailable)
		return
	}

	sessions, err := s.journal.ListSessions(r.Context(), sessionQueryFromRequest(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	result, err := s.reviewer.Generate(r.Context(), stats.Compute(sessions), sessions)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	s.writeJSON(w, result)
}

func (s *server) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}

	if err := s.syncer.SyncAll(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *server) handleExportSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.journal.ListSessions(r.Context(), sessionQueryFromRequest(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="sessions.csv"`)
	if err := export.WriteSessions(w, sessions); err != nil {
		s.logger.Warn("导出会话失败", zap.Error(err))
	}
}

func (s *server) handleExportExecutions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	account := strings.TrimSpace(q.Get("account"))
	if account == "" {
		http.Error(w, "account 参数不能为空", http.StatusBadRequest)
		return
	}

	executions, err := s.journal.ListExecutions(r.Context(), account, strings.TrimSpace(q.Get("symbol")))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="executions.csv"`)
	if err := export.WriteExecutions(w, executions); err != nil {
		s.logger.Warn("导出成交记录失败", zap.Error(err))
	}
}

func (s *server) writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("写入响应失败", zap.Error(err))
	}
}
