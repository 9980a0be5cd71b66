package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/miradorstack/log-console/internal/cache"
	"github.com/miradorstack/log-console/internal/metrics"
	"github.com/miradorstack/log-console/internal/models"
	"github.com/miradorstack/log-console/internal/utils"
)

// maxErrorBody caps how much of a failed response is read for the error detail.
const maxErrorBody = 64 << 10

// Paths locates each backend endpoint relative to the base URL.
type Paths struct {
	Logs         string
	Search       string
	Aggregations string
	Stats        string
	Analyze      string
	Feedback     string
	Login        string
	Health       string
}

// DefaultPaths matches the stock log backend routes.
func DefaultPaths() Paths {
	return Paths{
		Logs:         "/api/logs",
		Search:       "/api/logs/search",
		Aggregations: "/api/logs/aggregations",
		Stats:        "/api/stats",
		Analyze:      "/api/chat/analyze",
		Feedback:     "/api/chat/feedback",
		Login:        "/auth/login",
		Health:       "/health",
	}
}

// ClientOptions is the explicit transport configuration handed to NewClient.
type ClientOptions struct {
	BaseURL         string
	Paths           Paths
	Token           string
	Timeout         time.Duration
	Cache           cache.Provider
	AggregationsTTL time.Duration
	HTTPClient      *http.Client
}

// Client talks to the log storage and analysis backend over HTTP+JSON. A bearer token
// is attached to every request once set.
type Client struct {
	baseURL         string
	paths           Paths
	httpClient      *http.Client
	cache           cache.Provider
	aggregationsTTL time.Duration

	mu    sync.RWMutex
	token string
}

// NewClient constructs a client for the configured backend.
func NewClient(opts ClientOptions) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Cache == nil {
		opts.Cache = cache.NoopProvider{}
	}
	if opts.AggregationsTTL < 0 {
		opts.AggregationsTTL = 0
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		baseURL:         strings.TrimRight(opts.BaseURL, "/"),
		paths:           withDefaultPaths(opts.Paths),
		httpClient:      httpClient,
		cache:           opts.Cache,
		aggregationsTTL: opts.AggregationsTTL,
		token:           opts.Token,
	}
}

// Clone returns a client sharing transport and cache but holding its own token, so
// each operator session authenticates independently.
func (c *Client) Clone() *Client {
	return &Client{
		baseURL:         c.baseURL,
		paths:           c.paths,
		httpClient:      c.httpClient,
		cache:           c.cache,
		aggregationsTTL: c.aggregationsTTL,
		token:           c.Token(),
	}
}

// SetToken replaces the bearer token used for subsequent requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// LogQuery selects one page of log records.
type LogQuery struct {
	Window     models.TimeWindow
	Query      string
	SourceFile string
	Page       int
	PageSize   int
}

// FetchLogs returns one page of records matching the query.
func (c *Client) FetchLogs(ctx context.Context, q LogQuery) (models.LogPage, error) {
	start, end := q.Window.Bounds()
	params := url.Values{}
	params.Set("start_time", start)
	params.Set("end_time", end)
	if strings.TrimSpace(q.Query) != "" {
		params.Set("query", q.Query)
	}
	if q.SourceFile != "" {
		params.Set("source_file", q.SourceFile)
	}
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("page_size", strconv.Itoa(q.PageSize))

	var page models.LogPage
	if err := c.getJSON(ctx, "fetch_logs", c.paths.Logs, params, &page); err != nil {
		return models.LogPage{}, fmt.Errorf("fetch logs: %w", err)
	}
	if page.Logs == nil {
		page.Logs = []models.LogRecord{}
	}
	return page, nil
}

// FetchAggregations returns the chart projection for window. Responses are cached per
// (window, interval) so page changes within one window reuse the previous projection.
func (c *Client) FetchAggregations(ctx context.Context, window models.TimeWindow, interval string) (models.AggregationView, error) {
	start, end := window.Bounds()
	key := "aggregations:" + start + ":" + end + ":" + interval

	var view models.AggregationView
	if c.aggregationsTTL > 0 {
		if data, err := c.cache.Get(ctx, key); err == nil {
			if jsonErr := json.Unmarshal(data, &view); jsonErr == nil {
				metrics.ObserveCacheLookup(true)
				return view, nil
			}
		}
		metrics.ObserveCacheLookup(false)
	}

	params := url.Values{}
	params.Set("start_time", start)
	params.Set("end_time", end)
	params.Set("interval", interval)
	if err := c.getJSON(ctx, "fetch_aggregations", c.paths.Aggregations, params, &view); err != nil {
		return models.AggregationView{}, fmt.Errorf("fetch aggregations: %w", err)
	}

	if c.aggregationsTTL > 0 {
		if data, err := json.Marshal(view); err == nil {
			// Cache failures only cost a refetch.
			_ = c.cache.Set(ctx, key, data, c.aggregationsTTL)
		}
	}
	return view, nil
}

// SearchLogs forwards an arbitrary search body and returns the backend's raw answer.
func (c *Client) SearchLogs(ctx context.Context, body json.RawMessage) (json.RawMessage, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("search logs: empty body")
	}
	var out json.RawMessage
	if err := c.postJSON(ctx, "search_logs", c.paths.Search, body, &out); err != nil {
		return nil, fmt.Errorf("search logs: %w", err)
	}
	return out, nil
}

// FetchStats returns the backend's index summary.
func (c *Client) FetchStats(ctx context.Context) (models.Stats, error) {
	var stats models.Stats
	if err := c.getJSON(ctx, "fetch_stats", c.paths.Stats, nil, &stats); err != nil {
		return models.Stats{}, fmt.Errorf("fetch stats: %w", err)
	}
	return stats, nil
}

// ChatMessage is one role/content entry of the conversational context.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AnalysisRequest asks the analysis engine to narrate the logs of a recent window.
// A nil Keywords omits the field.
type AnalysisRequest struct {
	Keywords          *string       `json:"keywords,omitempty"`
	TimeWindowMinutes int           `json:"time_window_minutes"`
	ChatHistory       []ChatMessage `json:"chat_history"`
	Timestamp         *time.Time    `json:"timestamp,omitempty"`
}

// AnalysisResponse is the engine's answer. Summary and ChartData are kept verbatim.
type AnalysisResponse struct {
	Analysis         string          `json:"analysis"`
	Timestamp        string          `json:"timestamp"`
	Summary          json.RawMessage `json:"summary,omitempty"`
	SuggestedQueries []string        `json:"suggested_queries,omitempty"`
	ChartData        json.RawMessage `json:"chart_data,omitempty"`
}

// Time parses the engine's timestamp.
func (r *AnalysisResponse) Time() (time.Time, bool) {
	t, err := utils.ParseTimestamp(r.Timestamp)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// AnalyzeLogs submits an analysis request.
func (c *Client) AnalyzeLogs(ctx context.Context, req AnalysisRequest) (*AnalysisResponse, error) {
	if req.ChatHistory == nil {
		req.ChatHistory = []ChatMessage{}
	}
	var resp AnalysisResponse
	if err := c.postJSON(ctx, "analyze_logs", c.paths.Analyze, req, &resp); err != nil {
		return nil, fmt.Errorf("analyze logs: %w", err)
	}
	return &resp, nil
}

// FeedbackRequest rates one assistant turn.
type FeedbackRequest struct {
	MessageID string `json:"message_id"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment,omitempty"`
}

// ChatFeedback forwards a rating; the acknowledgement body is ignored.
func (c *Client) ChatFeedback(ctx context.Context, req FeedbackRequest) error {
	if err := c.postJSON(ctx, "chat_feedback", c.paths.Feedback, req, nil); err != nil {
		return fmt.Errorf("chat feedback: %w", err)
	}
	return nil
}

// LoginResponse carries the issued bearer token.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Token       string `json:"token"`
	TokenType   string `json:"token_type"`
}

// BearerToken returns whichever token field the backend populated.
func (r LoginResponse) BearerToken() string {
	if r.AccessToken != "" {
		return r.AccessToken
	}
	return r.Token
}

// Login exchanges credentials for a token via a form-encoded POST. The token is not
// stored; callers decide which client receives it.
func (c *Client) Login(ctx context.Context, username, password string) (LoginResponse, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	req, err := c.newRequest(ctx, http.MethodPost, c.paths.Login, nil, strings.NewReader(form.Encode()))
	if err != nil {
		return LoginResponse{}, fmt.Errorf("login: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp LoginResponse
	if err := c.do(req, "login", &resp); err != nil {
		return LoginResponse{}, fmt.Errorf("login: %w", err)
	}
	if resp.BearerToken() == "" {
		return LoginResponse{}, errors.New("login: backend returned no token")
	}
	return resp, nil
}

// Ping checks that the backend answers its health route.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.getJSON(ctx, "ping", c.paths.Health, nil, nil); err != nil {
		return fmt.Errorf("ping backend: %w", err)
	}
	return nil
}

// HTTPError is a non-2xx backend answer. Detail holds the backend's "detail" field
// when it sent one.
type HTTPError struct {
	StatusCode int
	Status     string
	Detail     string
}

func (e *HTTPError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend returned %s", e.Status)
	}
	return fmt.Sprintf("backend returned %s: %s", e.Status, e.Detail)
}

func (c *Client) getJSON(ctx context.Context, call, p string, params url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, p, params, nil)
	if err != nil {
		return err
	}
	return c.do(req, call, out)
}

func (c *Client) postJSON(ctx context.Context, call, p string, payload any, out any) error {
	var body []byte
	switch v := payload.(type) {
	case json.RawMessage:
		body = v
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = data
	}

	req, err := c.newRequest(ctx, http.MethodPost, p, nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, call, out)
}

func (c *Client) newRequest(ctx context.Context, method, p string, params url.Values, body io.Reader) (*http.Request, error) {
	endpoint, err := c.resolve(p)
	if err != nil {
		return nil, err
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, call string, out any) (err error) {
	started := time.Now()
	defer func() { metrics.ObserveBackendCall(call, time.Since(started), err) }()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, Detail: errorDetail(data)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) resolve(p string) (string, error) {
	if c.baseURL == "" {
		return "", errors.New("backend base URL not configured")
	}
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned, nil
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String(), nil
}

// errorDetail extracts FastAPI-style {"detail": ...} messages, falling back to the
// trimmed body text.
func errorDetail(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return ""
	}
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if len(envelope.Detail) > 0 {
			var text string
			if json.Unmarshal(envelope.Detail, &text) == nil {
				return text
			}
			return string(envelope.Detail)
		}
		if envelope.Error != "" {
			return envelope.Error
		}
	}
	return string(body)
}

func withDefaultPaths(p Paths) Paths {
	d := DefaultPaths()
	pick := func(v, def string) string {
		if strings.TrimSpace(v) == "" {
			return def
		}
		return v
	}
	return Paths{
		Logs:         pick(p.Logs, d.Logs),
		Search:       pick(p.Search, d.Search),
		Aggregations: pick(p.Aggregations, d.Aggregations),
		Stats:        pick(p.Stats, d.Stats),
		Analyze:      pick(p.Analyze, d.Analyze),
		Feedback:     pick(p.Feedback, d.Feedback),
		Login:        pick(p.Login, d.Login),
		Health:       pick(p.Health, d.Health),
	}
}
