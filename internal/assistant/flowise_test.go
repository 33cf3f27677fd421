package assistant

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *FlowiseClient {
	return NewFlowiseClient(FlowiseOptions{
		BaseURL:    url + "/",
		APIKey:     "k3y",
		ChatflowID: "flow-1",
		Timeout:    5 * time.Second,
	})
}

func TestAsk_SendsQuestionAndParsesAnswer(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/prediction/flow-1", r.URL.Path)
		assert.Equal(t, "Bearer k3y", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"text":"hi","sessionId":"abc","chatId":"x"}`)
	}))
	defer srv.Close()

	ans, err := newTestClient(srv.URL).Ask(context.Background(), Question{
		Message:  "hello",
		Metadata: map[string]any{"userid": 1},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi", ans.Text)
	assert.Equal(t, "abc", ans.SessionID)

	assert.Equal(t, "hello", got["question"])
	assert.Equal(t, "", got["sessionId"])
	assert.Equal(t, map[string]any{"userid": float64(1)}, got["metadata"])
}

func TestAsk_EchoesSessionWhenUpstreamOmitsIt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"text":"again"}`)
	}))
	defer srv.Close()

	ans, err := newTestClient(srv.URL).Ask(context.Background(), Question{Message: "m", SessionID: "s-1"})
	require.NoError(t, err)
	assert.Equal(t, "s-1", ans.SessionID)
}

func TestAsk_CustomShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "m", body["prompt"])
		_, _ = io.WriteString(w, `{"output":"ok","conversation":"c9"}`)
	}))
	defer srv.Close()

	c := NewFlowiseClient(FlowiseOptions{
		BaseURL: srv.URL,
		APIKey:  "k",
		Shape:   Shape{QuestionField: "prompt", AnswerField: "output", SessionField: "conversation"},
	})
	ans, err := c.Ask(context.Background(), Question{Message: "m"})
	require.NoError(t, err)
	assert.Equal(t, "ok", ans.Text)
	assert.Equal(t, "c9", ans.SessionID)
}

func TestAsk_Failures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"server error", http.StatusInternalServerError, `boom`, ErrUpstreamStatus},
		{"unauthorized", http.StatusUnauthorized, `{"message":"bad key"}`, ErrUpstreamStatus},
		{"not json", http.StatusOK, `<html>`, ErrMalformedResponse},
		{"missing text", http.StatusOK, `{"answer":"hi"}`, ErrMalformedResponse},
		{"text not string", http.StatusOK, `{"text":42}`, ErrMalformedResponse},
		{"blank text", http.StatusOK, `{"text":"  "}`, ErrMalformedResponse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL).Ask(context.Background(), Question{Message: "m"})
			require.ErrorIs(t, err, tc.want)
			assert.Equal(t, 1, calls, "exactly one attempt")

			var ae *Error
			require.ErrorAs(t, err, &ae)
			if tc.want == ErrUpstreamStatus {
				assert.Equal(t, tc.status, ae.Status)
			}
		})
	}
}

func TestAsk_ErrorBodyExcerpt(t *testing.T) {
	// one ASCII byte shifts every two-byte rune across the 4 KiB cut
	body := "a" + strings.Repeat("é", 3000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, body)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Ask(context.Background(), Question{Message: "m"})
	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.True(t, utf8.ValidString(ae.Body))
	assert.Equal(t, 4095, len(ae.Body))
	assert.True(t, strings.HasPrefix(body, ae.Body))
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "short", excerpt([]byte("  short \n")))
	long := strings.Repeat("x", 5000)
	assert.Len(t, excerpt([]byte(long)), 4096)
	assert.Equal(t, "ab", excerpt([]byte{'a', 'b', 0xC3}))
}

func TestAsk_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestClient(url).Ask(context.Background(), Question{Message: "m"})
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestAsk_NotConfigured(t *testing.T) {
	c := NewFlowiseClient(FlowiseOptions{BaseURL: "http://localhost:3000"})
	assert.False(t, c.Configured())

	_, err := c.Ask(context.Background(), Question{Message: "m"})
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorIs(t, c.Health(context.Background()), ErrNotConfigured)
}

func TestHealth(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/health", r.URL.Path)
		w.WriteHeader(status)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	assert.NoError(t, c.Health(context.Background()))

	status = http.StatusServiceUnavailable
	assert.ErrorIs(t, c.Health(context.Background()), ErrUpstreamStatus)
}

func TestUploadDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/nodes/pdfFile", r.URL.Path)
		assert.Equal(t, "Bearer k3y", r.Header.Get("Authorization"))
		assert.NoError(t, r.ParseMultipartForm(1<<20))

		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer f.Close()
		content, _ := io.ReadAll(f)
		assert.Equal(t, "notes.pdf", hdr.Filename)
		assert.Equal(t, "%PDF-1.4 body", string(content))

		assert.Equal(t, "perPage", r.FormValue("usage"))
		assert.Equal(t, "false", r.FormValue("legacyBuild"))
		assert.JSONEq(t, `{"courseid":3}`, r.FormValue("metadata"))
		_, _ = io.WriteString(w, `{"numAdded":2}`)
	}))
	defer srv.Close()

	raw, err := newTestClient(srv.URL).UploadDocument(context.Background(), Document{
		Filename: "notes.pdf",
		Content:  strings.NewReader("%PDF-1.4 body"),
		Metadata: map[string]any{"courseid": 3},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"numAdded":2}`, string(raw))
}

func TestUploadDocument_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `unsupported`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).UploadDocument(context.Background(), Document{
		Filename: "a.pdf",
		Content:  strings.NewReader("%PDF"),
	})
	require.ErrorIs(t, err, ErrUpstreamStatus)
	assert.Contains(t, err.Error(), "unsupported")
}
