// Package client talks to the exam backend over REST. It implements the
// collaborator interfaces consumed by the quiz session and the authoring draft.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"slagie/internal/config"
	"slagie/internal/domain"
	"slagie/internal/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const defaultTimeout = 10 * time.Second

// Client is safe for concurrent use; every call acquires its own agent.
type Client struct {
	baseURL string
	token   string
	timeout time.Duration
	log     *zap.Logger
}

var (
	_ domain.ExamSource          = (*Client)(nil)
	_ domain.ScoringCollaborator = (*Client)(nil)
	_ domain.ExamStore           = (*Client)(nil)
)

type Option func(*Client)

// WithToken attaches "Authorization: Bearer <token>" to every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithTimeout bounds each request. Context deadlines still apply.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New returns a client for the API rooted at baseURL, e.g. http://localhost:8090/api.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: defaultTimeout,
		log:     logger.Named("client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig builds a client from the client config section.
func NewFromConfig(cfg config.ClientConfig) *Client {
	return New(cfg.BaseURL, WithToken(cfg.Token), WithTimeout(cfg.Timeout))
}

func (c *Client) FetchExamQuestions(ctx context.Context, examID string) (*domain.Exam, error) {
	var exam domain.Exam
	if err := c.do(ctx, fiber.MethodGet, "/student/exams/"+url.PathEscape(examID)+"/start", nil, &exam); err != nil {
		return nil, err
	}
	return &exam, nil
}

// ListPublished returns the headers of all published exams.
func (c *Client) ListPublished(ctx context.Context) ([]*domain.Exam, error) {
	var exams []*domain.Exam
	if err := c.do(ctx, fiber.MethodGet, "/student/exams", nil, &exams); err != nil {
		return nil, err
	}
	return exams, nil
}

func (c *Client) CheckAnswer(ctx context.Context, req domain.CheckAnswerRequest) (*domain.CheckResult, error) {
	var res domain.CheckResult
	if err := c.do(ctx, fiber.MethodPost, "/student/exams/check-answer", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// FinishRequest is the body of the finish call.
type FinishRequest struct {
	Score int `json:"score"`
	Total int `json:"total"`
}

func (c *Client) FinishExam(ctx context.Context, examID string, score, total int) (*domain.AttemptRecord, error) {
	var rec domain.AttemptRecord
	body := FinishRequest{Score: score, Total: total}
	if err := c.do(ctx, fiber.MethodPost, "/exams/"+url.PathEscape(examID)+"/finish", body, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListExams returns every exam, published or not.
func (c *Client) ListExams(ctx context.Context) ([]*domain.Exam, error) {
	var exams []*domain.Exam
	if err := c.do(ctx, fiber.MethodGet, "/admin/exams", nil, &exams); err != nil {
		return nil, err
	}
	return exams, nil
}

func (c *Client) FetchExam(ctx context.Context, examID string) (*domain.Exam, error) {
	return c.examCall(ctx, fiber.MethodGet, "/admin/exams/"+url.PathEscape(examID), nil)
}

func (c *Client) SaveExam(ctx context.Context, exam *domain.Exam) (*domain.Exam, error) {
	return c.examCall(ctx, fiber.MethodPost, "/admin/exams", exam)
}

func (c *Client) UpdateExam(ctx context.Context, examID string, exam *domain.Exam) (*domain.Exam, error) {
	return c.examCall(ctx, fiber.MethodPut, "/admin/exams/"+url.PathEscape(examID), exam)
}

func (c *Client) Publish(ctx context.Context, examID string) (*domain.Exam, error) {
	return c.examCall(ctx, fiber.MethodPut, "/admin/exams/"+url.PathEscape(examID)+"/publish", nil)
}

func (c *Client) Unpublish(ctx context.Context, examID string) (*domain.Exam, error) {
	return c.examCall(ctx, fiber.MethodPut, "/admin/exams/"+url.PathEscape(examID)+"/unpublish", nil)
}

func (c *Client) DeleteExam(ctx context.Context, examID string) error {
	return c.do(ctx, fiber.MethodDelete, "/admin/exams/"+url.PathEscape(examID), nil, nil)
}

// ListAttempts returns the latest finished attempts of an exam, newest first.
// A limit of zero leaves the page size to the server.
func (c *Client) ListAttempts(ctx context.Context, examID string, limit int) ([]*domain.AttemptRecord, error) {
	path := "/admin/exams/" + url.PathEscape(examID) + "/attempts"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var records []*domain.AttemptRecord
	if err := c.do(ctx, fiber.MethodGet, path, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) examCall(ctx context.Context, method, path string, body interface{}) (*domain.Exam, error) {
	var exam domain.Exam
	if err := c.do(ctx, method, path, body, &exam); err != nil {
		return nil, err
	}
	return &exam, nil
}

// do sends one request and decodes a 2xx body into out. The agent API has no
// context support, so ctx is honoured before sending and through the timeout.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return context.DeadlineExceeded
		}
		if remaining < timeout {
			timeout = remaining
		}
	}

	a := newAgent(method, c.baseURL+path)
	a.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	if c.token != "" {
		a.Set(fiber.HeaderAuthorization, "Bearer "+c.token)
	}
	if body != nil {
		a.JSON(body)
	}
	a.Timeout(timeout)

	start := time.Now()
	status, respBody, errs := a.Bytes()
	if len(errs) > 0 {
		c.log.Warn("request failed", zap.String("method", method), zap.String("path", path), zap.Errors("errors", errs))
		return fmt.Errorf("%s %s: %w", method, path, errors.Join(errs...))
	}
	c.log.Debug("request done",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", status),
		zap.Duration("duration", time.Since(start)))

	if status < 200 || status >= 300 {
		return decodeError(status, respBody)
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

func newAgent(method, rawURL string) *fiber.Agent {
	switch method {
	case fiber.MethodPost:
		return fiber.Post(rawURL)
	case fiber.MethodPut:
		return fiber.Put(rawURL)
	case fiber.MethodDelete:
		return fiber.Delete(rawURL)
	default:
		return fiber.Get(rawURL)
	}
}

// errorBody covers both the plain and the validation error responses.
type errorBody struct {
	Code    string                   `json:"code"`
	Message string                   `json:"message"`
	Errors  []domain.ValidationError `json:"errors"`
}

// decodeError turns a non-2xx response back into the domain error the server raised.
func decodeError(status int, body []byte) error {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil || eb.Code == "" {
		return domain.NewError(codeForStatus(status), fmt.Sprintf("unexpected status %d", status), nil).
			WithContext("status", status)
	}
	if len(eb.Errors) > 0 {
		return domain.ValidationErrors(eb.Errors)
	}
	return domain.NewError(domain.ErrorCode(eb.Code), eb.Message, nil).WithContext("status", status)
}

func codeForStatus(status int) domain.ErrorCode {
	switch status {
	case fiber.StatusNotFound:
		return domain.CodeNotFound
	case fiber.StatusBadRequest:
		return domain.CodeInvalidInput
	case fiber.StatusUnauthorized, fiber.StatusForbidden:
		return domain.CodeUnauthorized
	default:
		return domain.CodeInternal
	}
}
