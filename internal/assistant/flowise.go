package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxResponseBytes = 1 << 20
	maxExcerptBytes  = 4 << 10
)

// Shape names the JSON fields exchanged with the prediction endpoint.
type Shape struct {
	QuestionField string
	SessionField  string
	MetadataField string
	AnswerField   string
	// ReplySessionField is read from the response; it defaults to SessionField.
	ReplySessionField string
}

func DefaultShape() Shape {
	return Shape{
		QuestionField:     "question",
		SessionField:      "sessionId",
		MetadataField:     "metadata",
		AnswerField:       "text",
		ReplySessionField: "sessionId",
	}
}

type FlowiseOptions struct {
	BaseURL      string
	APIKey       string
	ChatflowID   string
	DocumentPath string
	Timeout      time.Duration
	Shape        Shape
}

type FlowiseClient struct {
	BaseURL      string
	APIKey       string
	ChatflowID   string
	DocumentPath string
	Shape        Shape
	Client       *http.Client
}

func NewFlowiseClient(opts FlowiseOptions) *FlowiseClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	chatflow := strings.TrimSpace(opts.ChatflowID)
	if chatflow == "" {
		chatflow = "chat"
	}
	docPath := opts.DocumentPath
	if docPath == "" {
		docPath = "/api/v1/nodes/pdfFile"
	}

	shape := DefaultShape()
	if opts.Shape.QuestionField != "" {
		shape.QuestionField = opts.Shape.QuestionField
	}
	if opts.Shape.SessionField != "" {
		shape.SessionField = opts.Shape.SessionField
		shape.ReplySessionField = opts.Shape.SessionField
	}
	if opts.Shape.MetadataField != "" {
		shape.MetadataField = opts.Shape.MetadataField
	}
	if opts.Shape.AnswerField != "" {
		shape.AnswerField = opts.Shape.AnswerField
	}
	if opts.Shape.ReplySessionField != "" {
		shape.ReplySessionField = opts.Shape.ReplySessionField
	}

	return &FlowiseClient{
		BaseURL:      strings.TrimRight(opts.BaseURL, "/"),
		APIKey:       opts.APIKey,
		ChatflowID:   chatflow,
		DocumentPath: docPath,
		Shape:        shape,
		Client:       &http.Client{Timeout: timeout},
	}
}

func (c *FlowiseClient) Configured() bool {
	return c != nil && c.Client != nil && c.BaseURL != "" && strings.TrimSpace(c.APIKey) != ""
}

// Ask posts the question to the chatflow prediction endpoint.
func (c *FlowiseClient) Ask(ctx context.Context, q Question) (*Answer, error) {
	if !c.Configured() {
		return nil, &Error{Kind: ErrNotConfigured}
	}

	payload := map[string]any{
		c.Shape.QuestionField: q.Message,
		c.Shape.SessionField:  q.SessionID,
	}
	if len(q.Metadata) > 0 {
		payload[c.Shape.MetadataField] = q.Metadata
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/api/v1/prediction/%s", c.BaseURL, c.ChatflowID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, &Error{Kind: ErrMalformedResponse, Err: err}
	}

	var text string
	raw, ok := fields[c.Shape.AnswerField]
	if !ok {
		return nil, &Error{Kind: ErrMalformedResponse, Err: fmt.Errorf("missing %q", c.Shape.AnswerField)}
	}
	if err := json.Unmarshal(raw, &text); err != nil {
		return nil, &Error{Kind: ErrMalformedResponse, Err: fmt.Errorf("%q is not a string", c.Shape.AnswerField)}
	}
	if strings.TrimSpace(text) == "" {
		return nil, &Error{Kind: ErrMalformedResponse, Err: fmt.Errorf("empty %q", c.Shape.AnswerField)}
	}

	sessionID := q.SessionID
	if raw, ok := fields[c.Shape.ReplySessionField]; ok {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			sessionID = s
		}
	}
	return &Answer{Text: text, SessionID: sessionID}, nil
}

// Health checks that the upstream is reachable with the configured key.
func (c *FlowiseClient) Health(ctx context.Context) error {
	if !c.Configured() {
		return &Error{Kind: ErrNotConfigured}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/v1/health", nil)
	if err != nil {
		return err
	}
	c.authorize(req)
	_, err = c.do(req)
	return err
}

type Document struct {
	Filename string
	Content  io.Reader
	Metadata map[string]any
}

// UploadDocument sends a PDF to the document loader node and returns the
// upstream JSON reply.
func (c *FlowiseClient) UploadDocument(ctx context.Context, doc Document) (json.RawMessage, error) {
	if !c.Configured() {
		return nil, &Error{Kind: ErrNotConfigured}
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", doc.Filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(fw, doc.Content); err != nil {
		return nil, fmt.Errorf("copy document: %w", err)
	}
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return nil, err
	}
	for k, v := range map[string]string{
		"usage":       "perPage",
		"legacyBuild": "false",
		"metadata":    string(meta),
	} {
		if err := mw.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+c.DocumentPath, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.authorize(req)

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, &Error{Kind: ErrMalformedResponse, Body: excerpt(body)}
	}
	return json.RawMessage(body), nil
}

func (c *FlowiseClient) authorize(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
}

// do performs exactly one attempt and classifies the failure.
func (c *FlowiseClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, &Error{Kind: ErrUpstreamUnavailable, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxExcerptBytes))
		return nil, &Error{Kind: ErrUpstreamStatus, Status: resp.StatusCode, Body: excerpt(body)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &Error{Kind: ErrUpstreamUnavailable, Err: err}
	}
	return body, nil
}

// excerpt trims an upstream body for error reports, never splitting a rune.
func excerpt(b []byte) string {
	if len(b) > maxExcerptBytes {
		b = b[:maxExcerptBytes]
	}
	// drop a rune cut by the limit
	for len(b) > 0 {
		r, size := utf8.DecodeLastRune(b)
		if r != utf8.RuneError || size > 1 {
			break
		}
		b = b[:len(b)-1]
	}
	return strings.TrimSpace(string(b))
}
