// Package external contains clients for services owned by other systems.
package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/symptom-ledger-server/internal/domain"
)

// ErrProviderUnavailable is returned while the circuit breaker is open
var ErrProviderUnavailable = errors.New("assessment provider unavailable")

// legacyCompletedLayout is the timestamp format written by older CMS builds
const legacyCompletedLayout = "2006-01-02 15:04:05"

// AssessmentClient reads assessment snapshots from the CMS assessment API.
// It implements domain.AssessmentProvider.
type AssessmentClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	rateLimit  *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	log        *logrus.Logger
}

// assessmentResponse is the body of GET /users/{user}/assessments/{type}
type assessmentResponse struct {
	Answers        domain.Answers     `json:"answers"`
	OverallScore   *float64           `json:"overall_score"`
	CategoryScores map[string]float64 `json:"category_scores"`
	CompletedAt    string             `json:"completed_at"`
}

// NewAssessmentClient creates a rate limited, circuit broken API client
func NewAssessmentClient(config domain.AssessmentProviderConfig, logger *logrus.Logger) *AssessmentClient {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RateLimit <= 0 {
		config.RateLimit = 10
	}

	c := &AssessmentClient{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		apiKey:  config.APIKey,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		log:       logger,
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "assessment-provider",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker changed state")
		},
	})
	return c
}

// Snapshot fetches the latest snapshot of assessment t for userID. A user who
// has not taken the assessment yields nil, nil.
func (c *AssessmentClient) Snapshot(ctx context.Context, userID string, t domain.AssessmentType) (*domain.AssessmentSnapshot, error) {
	if err := c.rateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, userID, t)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: circuit breaker %s", ErrProviderUnavailable, c.breaker.State())
		}
		return nil, fmt.Errorf("fetching %s assessment: %w", t, err)
	}

	snapshot, _ := result.(*domain.AssessmentSnapshot)
	return snapshot, nil
}

// State returns the circuit breaker state
func (c *AssessmentClient) State() gobreaker.State {
	return c.breaker.State()
}

func (c *AssessmentClient) fetch(ctx context.Context, userID string, t domain.AssessmentType) (*domain.AssessmentSnapshot, error) {
	endpoint := fmt.Sprintf("%s/users/%s/assessments/%s",
		c.baseURL, url.PathEscape(userID), url.PathEscape(string(t)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("assessment API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload assessmentResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode assessment response: %w", err)
	}

	snapshot := &domain.AssessmentSnapshot{
		UserID:         userID,
		Type:           t,
		Answers:        payload.Answers,
		OverallScore:   payload.OverallScore,
		CategoryScores: payload.CategoryScores,
	}
	if completed, ok := parseCompletedAt(payload.CompletedAt); ok {
		snapshot.CompletedAt = &completed
	} else if payload.CompletedAt != "" {
		c.log.WithFields(logrus.Fields{
			"user_id":         userID,
			"assessment_type": t,
			"completed_at":    payload.CompletedAt,
		}).Warn("Ignoring unparseable assessment completion time")
	}
	return snapshot, nil
}

func parseCompletedAt(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), true
	}
	if t, err := time.ParseInLocation(legacyCompletedLayout, raw, time.UTC); err == nil {
		return t, true
	}
	return time.Time{}, false
}
