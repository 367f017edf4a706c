package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jordanlanch/leadscope/pkg/database"
	"github.com/jordanlanch/leadscope/pkg/logger"
	"github.com/jordanlanch/leadscope/pkg/maps"
)

type ctxKey struct{}

// WithUserID attaches the calling user to ctx so provider calls can be attributed
func WithUserID(ctx context.Context, userID int) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserIDFromContext returns the user attached by WithUserID
func UserIDFromContext(ctx context.Context) (int, bool) {
	id, ok := ctx.Value(ctxKey{}).(int)
	return id, ok
}

// responseDescriptions maps provider HTTP codes to a status class and message
var responseDescriptions = map[int][2]string{
	200: {"Success", "OK"},
	201: {"Success", "Created"},
	204: {"Success", "No Content"},
	400: {"Client Error", "Bad Request"},
	401: {"Client Error", "Unauthorized"},
	403: {"Client Error", "Forbidden"},
	404: {"Client Error", "Not Found"},
	408: {"Client Error", "Request Timeout"},
	429: {"Client Error", "Too Many Requests"},
	500: {"Server Error", "Internal Server Error"},
	502: {"Server Error", "Bad Gateway"},
	503: {"Server Error", "Service Unavailable"},
}

// DescribeResponse returns the status class and message recorded for code
func DescribeResponse(code int) (status, message string) {
	if d, ok := responseDescriptions[code]; ok {
		return d[0], d[1]
	}
	return "Unknown", "Unknown Error"
}

// LogEntry represents one api_usage_logs row
type LogEntry struct {
	ID           string
	UserID       *int
	APIName      string
	Endpoint     string
	Params       map[string]string
	ResponseCode int
	ResponseTime time.Duration
	Timestamp    time.Time
}

// Service records outbound provider usage
type Service struct {
	db     *database.Client
	logger logger.Logger
}

// NewService creates a new audit service
func NewService(db *database.Client, log logger.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.OrDefault(log).With("component", "audit"),
	}
}

// Log inserts an api_usage_logs row
func (s *Service) Log(ctx context.Context, entry LogEntry) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	status, message := DescribeResponse(entry.ResponseCode)

	query, args, err := s.db.Builder().
		Insert("api_usage_logs").
		Columns("api_usage_id", "user_id", "api_name", "endpoint", "request_parameters",
			"response_status", "response_code", "response_message", "response_time_ms", "request_timestamp").
		Values(entry.ID, entry.UserID, entry.APIName, entry.Endpoint, database.NewJSON(entry.Params),
			status, entry.ResponseCode, message, entry.ResponseTime.Milliseconds(), entry.Timestamp.UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build api usage insert: %w", err)
	}

	if _, err := s.db.DB.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert api usage log: %w", err)
	}
	return nil
}

// ObserveCall implements maps.CallObserver. Failures are logged only.
func (s *Service) ObserveCall(ctx context.Context, call maps.Call) {
	entry := LogEntry{
		APIName:      call.APIName,
		Endpoint:     call.Endpoint,
		Params:       call.Params,
		ResponseCode: call.StatusCode,
		ResponseTime: call.Latency,
		Timestamp:    call.Timestamp,
	}
	if id, ok := UserIDFromContext(ctx); ok {
		entry.UserID = &id
	}

	// the request context may already be cancelled once the provider call returns
	if err := s.Log(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Error("failed to record api usage", "api", call.APIName, "error", err)
	}
}

// Usage summarises provider calls for one user
type Usage struct {
	APIName string `json:"api_name"`
	Calls   int    `json:"calls"`
	Errors  int    `json:"errors"`
}

// UsageByUser aggregates logged calls per API for userID since the given time
func (s *Service) UsageByUser(ctx context.Context, userID int, since time.Time) ([]Usage, error) {
	query, args, err := s.db.Builder().
		Select("api_name", "COUNT(*)", "SUM(CASE WHEN response_code BETWEEN 200 AND 299 THEN 0 ELSE 1 END)").
		From("api_usage_logs").
		Where("user_id = ? AND request_timestamp >= ?", userID, since.UTC()).
		GroupBy("api_name").
		OrderBy("api_name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build usage query: %w", err)
	}

	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query api usage: %w", err)
	}
	defer rows.Close()

	var usage []Usage
	for rows.Next() {
		var u Usage
		if err := rows.Scan(&u.APIName, &u.Calls, &u.Errors); err != nil {
			return nil, fmt.Errorf("failed to scan api usage: %w", err)
		}
		usage = append(usage, u)
	}
	return usage, rows.Err()
}
