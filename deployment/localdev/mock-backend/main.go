package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// naiveTime renders like Python's datetime.utcnow().isoformat(): UTC, no offset.
type naiveTime struct{ time.Time }

func (n naiveTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.UTC().Format("2006-01-02T15:04:05.000000"))
}

type logRecord struct {
	Timestamp  naiveTime `json:"timestamp"`
	RawLine    string    `json:"raw_line"`
	SourceFile string    `json:"source_file"`
	LineNumber int       `json:"line_number"`
}

type bucket struct {
	Timestamp naiveTime `json:"timestamp"`
	Count     int       `json:"count"`
}

type tokenCount struct {
	Token string `json:"token"`
	Count int    `json:"count"`
}

type sourceCount struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

var levels = []string{"INFO", "INFO", "WARNING", "INFO", "ERROR", "INFO", "DEBUG", "CRITICAL"}

var sources = []string{"/var/log/api.log", "/var/log/worker.log", "/var/log/payments.log"}

func main() {
	addr := flag.String("addr", ":8000", "listen address")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil)).With(slog.String("component", "backend-mock"))

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	mux.HandleFunc("/api/logs", func(w http.ResponseWriter, r *http.Request) {
		if !enforceMethod(w, r, http.MethodGet) {
			return
		}
		start, end, ok := window(w, r)
		if !ok {
			return
		}
		q := r.URL.Query()
		page := atoiDefault(q.Get("page"), 1)
		pageSize := atoiDefault(q.Get("page_size"), 50)

		all := synthesize(start, end, strings.TrimSpace(q.Get("query")), q.Get("source_file"))
		from := (page - 1) * pageSize
		to := from + pageSize
		if from > len(all) {
			from = len(all)
		}
		if to > len(all) {
			to = len(all)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"logs":      all[from:to],
			"total":     len(all),
			"page":      page,
			"page_size": pageSize,
		})
	})

	mux.HandleFunc("/api/logs/aggregations", func(w http.ResponseWriter, r *http.Request) {
		if !enforceMethod(w, r, http.MethodGet) {
			return
		}
		start, end, ok := window(w, r)
		if !ok {
			return
		}
		step := intervalStep(r.URL.Query().Get("interval"))
		records := synthesize(start, end, "", "")

		series := []bucket{}
		perSource := map[string]int{}
		perToken := map[string]int{}
		for t := start.Truncate(step); t.Before(end); t = t.Add(step) {
			series = append(series, bucket{Timestamp: naiveTime{t}, Count: 0})
		}
		for _, rec := range records {
			if i := int(rec.Timestamp.Sub(start.Truncate(step)) / step); i >= 0 && i < len(series) {
				series[i].Count++
			}
			perSource[rec.SourceFile]++
			perToken[strings.Fields(rec.RawLine)[0]]++
		}

		top := []tokenCount{}
		for tok, n := range perToken {
			top = append(top, tokenCount{Token: tok, Count: n})
		}
		src := []sourceCount{}
		for s, n := range perSource {
			src = append(src, sourceCount{Source: s, Count: n})
		}
		writeJSON(w, http.StatusOK, map[string]any{"time_series": series, "top_tokens": top, "sources": src})
	})

	mux.HandleFunc("/api/logs/search", func(w http.ResponseWriter, r *http.Request) {
		if !enforceMethod(w, r, http.MethodPost) {
			return
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid search body"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"hits": []any{}, "total": 0, "request": body})
	})

	mux.HandleFunc("/api/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"total_events": 48213, "indices": 3, "index_size": 7340032})
	})

	mux.HandleFunc("/api/chat/analyze", func(w http.ResponseWriter, r *http.Request) {
		if !enforceMethod(w, r, http.MethodPost) {
			return
		}
		var req struct {
			Keywords          *string `json:"keywords"`
			TimeWindowMinutes int     `json:"time_window_minutes"`
			ChatHistory       []any   `json:"chat_history"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "invalid analysis request"})
			return
		}
		if req.TimeWindowMinutes < 1 || req.TimeWindowMinutes > 1440 {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "time_window_minutes must be between 1 and 1440"})
			return
		}
		keywords := "all events"
		suggested := []string{"level:ERROR", "level:WARNING"}
		if req.Keywords != nil && *req.Keywords != "" {
			keywords = *req.Keywords
			suggested = append([]string{*req.Keywords + " AND level:ERROR"}, suggested...)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"analysis": fmt.Sprintf("Looked at %s over the last %d minutes (%d earlier messages). "+
				"Error volume is elevated on /var/log/payments.log.", keywords, req.TimeWindowMinutes, len(req.ChatHistory)),
			"timestamp":         time.Now().UTC().Format("2006-01-02T15:04:05.000000"),
			"summary":           map[string]any{"total_logs": 120, "error_count": 9, "warning_count": 14},
			"suggested_queries": suggested,
		})
	})

	mux.HandleFunc("/api/chat/feedback", func(w http.ResponseWriter, r *http.Request) {
		if !enforceMethod(w, r, http.MethodPost) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Feedback recorded"})
	})

	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		if !enforceMethod(w, r, http.MethodPost) {
			return
		}
		if err := r.ParseForm(); err != nil || r.PostForm.Get("username") == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Incorrect username or password"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"access_token": "mock-" + r.PostForm.Get("username"), "token_type": "bearer"})
	})

	srv := &http.Server{
		Addr:              *addr,
		Handler:           logRequests(logger, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("listening", slog.String("address", *addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", slog.Any("error", err))
		os.Exit(1)
	}
}

// synthesize produces one record per minute of the window, deterministically, so
// paging and filtering behave the same across requests.
func synthesize(start, end time.Time, query, source string) []logRecord {
	out := []logRecord{}
	i := 0
	for t := start.Truncate(time.Minute); t.Before(end); t = t.Add(time.Minute) {
		level := levels[i%len(levels)]
		file := sources[i%len(sources)]
		line := fmt.Sprintf("%s request %d handled in %dms", level, i, 10+(i*37)%900)
		i++
		if t.Before(start) {
			continue
		}
		if source != "" && file != source {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(line), strings.ToLower(strings.TrimPrefix(query, "level:"))) {
			continue
		}
		out = append(out, logRecord{Timestamp: naiveTime{t}, RawLine: line, SourceFile: file, LineNumber: i})
	}
	// Newest first.
	for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	return out
}

func window(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	q := r.URL.Query()
	start, err := time.Parse(time.RFC3339Nano, q.Get("start_time"))
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "start_time must be ISO-8601"})
		return time.Time{}, time.Time{}, false
	}
	end, err := time.Parse(time.RFC3339Nano, q.Get("end_time"))
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "end_time must be ISO-8601"})
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func intervalStep(interval string) time.Duration {
	switch interval {
	case "1m":
		return time.Minute
	case "5m":
		return 5 * time.Minute
	case "1d":
		return 24 * time.Hour
	default:
		return time.Hour
	}
}

func atoiDefault(v string, def int) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func enforceMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("encode error", slog.Any("error", err))
	}
}

func logRequests(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rw.status),
			slog.Duration("duration", time.Since(start)))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
