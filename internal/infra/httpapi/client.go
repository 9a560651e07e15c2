package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"exam-session-engine/internal/domain"
)

// Client talks to the hosted exam backend. It implements both
// app.QuestionSource and app.AnswerUplink; the engine decides which calls
// are best-effort, the client just reports errors.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) FetchQuestions(ctx context.Context, examName, date string) ([]domain.Question, error) {
	endpoint := fmt.Sprintf("%s/api/exams/%s/questions?date=%s",
		c.baseURL, url.PathEscape(examName), url.QueryEscape(date))
	var questions []domain.Question
	if err := c.get(ctx, endpoint, &questions); err != nil {
		return nil, err
	}
	return questions, nil
}

func (c *Client) TodaysDeadline(ctx context.Context, examName string) (domain.Schedule, error) {
	endpoint := fmt.Sprintf("%s/api/exams/%s/deadline", c.baseURL, url.PathEscape(examName))
	var schedule domain.Schedule
	if err := c.get(ctx, endpoint, &schedule); err != nil {
		return domain.Schedule{}, err
	}
	return schedule, nil
}

func (c *Client) SaveAnswer(ctx context.Context, upload domain.AnswerUpload) error {
	return c.post(ctx, c.baseURL+"/api/answers", upload)
}

func (c *Client) SubmitTimeoutAnswers(ctx context.Context, uploads []domain.AnswerUpload) error {
	return c.post(ctx, c.baseURL+"/api/answers/timeout", uploads)
}

func (c *Client) CompleteExam(ctx context.Context, candidateID, examName string, uploads []domain.AnswerUpload) error {
	payload := struct {
		CandidateID string                `json:"candidateId"`
		ExamName    string                `json:"examName"`
		Answers     []domain.AnswerUpload `json:"answers"`
		Submitted   bool                  `json:"submitted"`
	}{
		CandidateID: candidateID,
		ExamName:    examName,
		Answers:     uploads,
		Submitted:   true,
	}
	return c.post(ctx, c.baseURL+"/api/exams/"+url.PathEscape(examName)+"/complete", payload)
}

func (c *Client) get(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, endpoint string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, nil)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrNoExamScheduled
	case resp.StatusCode >= 400:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("exam backend: %s: %s", resp.Status, bytes.TrimSpace(snippet))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
