package recruitlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Recruitline HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

// Candidate represents the API candidate model (partial).
type Candidate struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Email            string `json:"email"`
	Phone            string `json:"phone,omitempty"`
	Status           string `json:"status"`
	Archived         bool   `json:"archived"`
	ApplicationCount int    `json:"application_count"`
	JobTitle         string `json:"job_title,omitempty"`
	BranchName       string `json:"branch_name,omitempty"`
}

type CandidateInput struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone,omitempty"`
	CVRef      string `json:"cv_ref,omitempty"`
	JobTitle   string `json:"job_title,omitempty"`
	BranchName string `json:"branch_name,omitempty"`
}

type ApplicationResult struct {
	Candidate   Candidate `json:"candidate"`
	Created     bool      `json:"created"`
	Reactivated bool      `json:"reactivated"`
	Duplicate   bool      `json:"duplicate"`
}

type Feedback struct {
	Rating         int    `json:"rating"`
	Recommendation string `json:"recommendation"`
	Strengths      string `json:"strengths,omitempty"`
	Weaknesses     string `json:"weaknesses,omitempty"`
	Comments       string `json:"comments,omitempty"`
}

type Interview struct {
	ID            string    `json:"id"`
	CandidateID   string    `json:"candidate_id"`
	CandidateName string    `json:"candidate_name,omitempty"`
	Type          string    `json:"type"`
	Status        string    `json:"status"`
	ScheduledDate time.Time `json:"scheduled_date"`
	Duration      int       `json:"duration"`
	Feedback      *Feedback `json:"feedback,omitempty"`
}

type BookingLink struct {
	ID            string    `json:"id"`
	CandidateID   string    `json:"candidate_id"`
	Token         string    `json:"token"`
	InterviewType string    `json:"interview_type"`
	Status        string    `json:"status"`
	ExpiresAt     time.Time `json:"expires_at"`
}

type Slot struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Available bool      `json:"available"`
}

// BookingPage is what a candidate holding a link sees for one day.
type BookingPage struct {
	InterviewType string    `json:"interview_type"`
	ExpiresAt     time.Time `json:"expires_at"`
	Date          string    `json:"date"`
	Slots         []Slot    `json:"slots"`
}

type BookingConfirmation struct {
	InterviewID   string    `json:"interview_id"`
	InterviewType string    `json:"interview_type"`
	ScheduledDate time.Time `json:"scheduled_date"`
	Duration      int       `json:"duration"`
}

type DecisionResult struct {
	Candidate   Candidate    `json:"candidate"`
	Basis       Interview    `json:"basis"`
	BookingLink *BookingLink `json:"booking_link,omitempty"`
	Notified    bool         `json:"notified"`
}

// Activity represents an activity log entry.
type Activity struct {
	ID          int64          `json:"id"`
	EntityType  string         `json:"entity_type"`
	EntityID    string         `json:"entity_id"`
	Action      string         `json:"action"`
	Description string         `json:"description"`
	UserID      string         `json:"user_id"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// PaginatedActivity wraps activity listings with a cursor.
type PaginatedActivity struct {
	Items      []Activity `json:"items"`
	NextCursor string     `json:"next_cursor"`
}

type ActivityFilter struct {
	EntityType string
	EntityID   string
	Action     string
}

// APIError wraps non-2xx responses. Code and Message come from the error
// envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateCandidate creates a candidate.
func (c *Client) CreateCandidate(ctx context.Context, in CandidateInput) (Candidate, error) {
	var resp Candidate
	err := c.do(ctx, http.MethodPost, "candidates", in, &resp)
	return resp, err
}

// SubmitApplication creates, reactivates or reports a duplicate candidate.
func (c *Client) SubmitApplication(ctx context.Context, in CandidateInput, applicationKey string) (ApplicationResult, error) {
	body := struct {
		CandidateInput
		ApplicationKey string `json:"application_key,omitempty"`
	}{in, applicationKey}
	var resp ApplicationResult
	err := c.do(ctx, http.MethodPost, "applications", body, &resp)
	return resp, err
}

// GetCandidate fetches a candidate by id.
func (c *Client) GetCandidate(ctx context.Context, id string) (Candidate, error) {
	var resp Candidate
	err := c.do(ctx, http.MethodGet, "candidates/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ArchiveCandidate soft-deletes a candidate.
func (c *Client) ArchiveCandidate(ctx context.Context, id, reason string) error {
	return c.do(ctx, http.MethodPost, "candidates/"+url.PathEscape(id)+"/archive", map[string]any{"reason": reason}, nil)
}

// SubmitFeedback records or replaces feedback on an interview.
func (c *Client) SubmitFeedback(ctx context.Context, interviewID string, fb Feedback) (Interview, error) {
	var resp Interview
	err := c.do(ctx, http.MethodPut, "interviews/"+url.PathEscape(interviewID)+"/feedback", fb, &resp)
	return resp, err
}

// Decide runs approve, reject or schedule-trial on a candidate.
func (c *Client) Decide(ctx context.Context, candidateID, action, note string, notify bool) (DecisionResult, error) {
	switch action {
	case "approve", "reject", "schedule-trial":
	default:
		return DecisionResult{}, fmt.Errorf("unknown decision %q", action)
	}
	var resp DecisionResult
	endpoint := fmt.Sprintf("candidates/%s/%s", url.PathEscape(candidateID), action)
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"note": note, "notify": notify}, &resp)
	return resp, err
}

// CreateBookingLink issues a new booking link for a candidate.
func (c *Client) CreateBookingLink(ctx context.Context, candidateID, interviewType string, notify bool) (BookingLink, error) {
	var resp BookingLink
	endpoint := fmt.Sprintf("candidates/%s/booking-links", url.PathEscape(candidateID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"interview_type": interviewType, "notify": notify}, &resp)
	return resp, err
}

// BookingSlots returns the slot grid a link holder sees for date (YYYY-MM-DD).
// No credentials are needed.
func (c *Client) BookingSlots(ctx context.Context, token, date string) (BookingPage, error) {
	var resp BookingPage
	endpoint := fmt.Sprintf("bookings/%s/slots?date=%s", url.PathEscape(token), url.QueryEscape(date))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Book claims a slot with a booking link.
func (c *Client) Book(ctx context.Context, token, date, hhmm string) (BookingConfirmation, error) {
	var resp BookingConfirmation
	err := c.do(ctx, http.MethodPost, "bookings/"+url.PathEscape(token), map[string]any{"date": date, "time": hhmm}, &resp)
	return resp, err
}

// ActivityPage returns one page of the activity log, newest first.
func (c *Client) ActivityPage(ctx context.Context, f ActivityFilter, limit int, cursor string) (PaginatedActivity, error) {
	q := url.Values{}
	if f.EntityType != "" {
		q.Set("entity_type", f.EntityType)
	}
	if f.EntityID != "" {
		q.Set("entity_id", f.EntityID)
	}
	if f.Action != "" {
		q.Set("action", f.Action)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "activity"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedActivity
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	basePath := strings.Trim(c.BasePath, "/")
	root := strings.TrimRight(c.BaseURL, "/")
	if basePath == "" {
		return root
	}
	return root + "/" + basePath
}
