package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/iksnae/bob-the-lawyer/internal"
	"github.com/iksnae/bob-the-lawyer/internal/attachment"
	"github.com/iksnae/bob-the-lawyer/internal/chat"
	"github.com/iksnae/bob-the-lawyer/internal/config"
	"github.com/iksnae/bob-the-lawyer/internal/observability"
	"github.com/iksnae/bob-the-lawyer/internal/reply"
	"github.com/iksnae/bob-the-lawyer/testutil"
)

type captureBackend struct {
	mu   sync.Mutex
	got  reply.Request
	text string
	err  error
	gate chan struct{}
}

func (b *captureBackend) Name() string { return "capture" }

func (b *captureBackend) Generate(ctx context.Context, req reply.Request) (string, error) {
	b.mu.Lock()
	b.got = req
	b.mu.Unlock()
	if b.gate != nil {
		<-b.gate
	}
	return b.text, b.err
}

func (b *captureBackend) request() reply.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.got
}

type testEnv struct {
	ts      *httptest.Server
	chat    *chat.Service
	metrics *observability.Metrics
}

func newTestEnv(t *testing.T, backend reply.Backend) *testEnv {
	t.Helper()
	store, err := internal.OpenStore(context.Background(), testutil.TempDBPath(t))
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	metrics := observability.NewMetrics("test")
	var gen chat.Generator
	if backend != nil {
		gen = reply.NewClient(backend, reply.WithObserver(metrics.ObserveReply))
	}
	svc := chat.NewService(store, gen, attachment.NewExtractor(""))

	ts := httptest.NewServer(New(config.Config{}, svc, gen, metrics).Router())
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, chat: svc, metrics: metrics}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(testutil.JSONMarshal(t, body))
	}
	req, err := http.NewRequest(method, e.ts.URL+path, rd)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	defer res.Body.Close()
	data, _ := io.ReadAll(res.Body)
	return res, data
}

func (e *testEnv) createDiscussion(t *testing.T) string {
	t.Helper()
	res, body := e.do(t, http.MethodPost, "/v1/discussions", nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", res.StatusCode, body)
	}
	var created map[string]string
	testutil.JSONUnmarshal(t, body, &created)
	return created["id"]
}

func TestDiscussionLifecycle(t *testing.T) {
	env := newTestEnv(t, reply.NewMockBackend())

	id := env.createDiscussion(t)
	if id != "discussion_1" {
		t.Fatalf("created id = %q, want discussion_1", id)
	}

	res, body := env.do(t, http.MethodGet, "/v1/discussions", nil)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(body), `"discussion_1"`) {
		t.Fatalf("list status = %d, body = %s", res.StatusCode, body)
	}

	res, body = env.do(t, http.MethodPost, "/v1/discussions/"+id+"/messages", map[string]any{"question": "hello"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("send status = %d, body = %s", res.StatusCode, body)
	}
	var ex exchangeView
	testutil.JSONUnmarshal(t, body, &ex)
	if ex.Display != "I heard you: hello" || ex.Outcome != reply.OutcomeSucceeded {
		t.Errorf("exchange = %+v", ex)
	}
	if ex.Reply.Bubble.Label != "BOB" || ex.Question.Bubble.Label != "YOU" {
		t.Errorf("bubble labels = %q / %q", ex.Question.Bubble.Label, ex.Reply.Bubble.Label)
	}

	res, body = env.do(t, http.MethodGet, "/v1/discussions/"+id+"/messages", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("messages status = %d", res.StatusCode)
	}
	var listed struct {
		Messages []messageView `json:"messages"`
	}
	testutil.JSONUnmarshal(t, body, &listed)
	if len(listed.Messages) != 2 || listed.Messages[1].Sender != internal.SenderBot {
		t.Errorf("messages = %+v", listed.Messages)
	}

	if res, _ = env.do(t, http.MethodDelete, "/v1/discussions/"+id, nil); res.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", res.StatusCode)
	}
	if res, _ = env.do(t, http.MethodGet, "/v1/discussions/"+id, nil); res.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", res.StatusCode)
	}
}

func TestDiscussionErrors(t *testing.T) {
	env := newTestEnv(t, reply.NewMockBackend())
	id := env.createDiscussion(t)

	tests := []struct {
		name     string
		method   string
		path     string
		body     any
		wantCode int
		wantErr  string
	}{
		{"invalid id", http.MethodGet, "/v1/discussions/chat_1", nil, http.StatusBadRequest, "invalid_discussion_id"},
		{"unknown discussion", http.MethodGet, "/v1/discussions/discussion_9/messages", nil, http.StatusNotFound, "discussion_not_found"},
		{"send to unknown discussion", http.MethodPost, "/v1/discussions/discussion_9/messages", map[string]string{"question": "hi"}, http.StatusNotFound, "discussion_not_found"},
		{"empty prompt", http.MethodPost, "/v1/discussions/" + id + "/messages", map[string]string{"question": "  "}, http.StatusBadRequest, "empty_prompt"},
		{"delete unknown", http.MethodDelete, "/v1/discussions/discussion_9", nil, http.StatusNotFound, "discussion_not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, body := env.do(t, tt.method, tt.path, tt.body)
			if res.StatusCode != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", res.StatusCode, tt.wantCode, body)
			}
			var er errorResponse
			testutil.JSONUnmarshal(t, body, &er)
			if er.Code != tt.wantErr {
				t.Errorf("code = %q, want %q", er.Code, tt.wantErr)
			}
		})
	}
}

func TestPostMessage_NoBackend(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.createDiscussion(t)

	res, body := env.do(t, http.MethodPost, "/v1/discussions/"+id+"/messages", map[string]string{"question": "hi"})
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 (body %s)", res.StatusCode, body)
	}
	var er errorResponse
	testutil.JSONUnmarshal(t, body, &er)
	if er.Code != "backend_unavailable" {
		t.Errorf("code = %q", er.Code)
	}
}

func TestPostMessage_Busy(t *testing.T) {
	backend := &captureBackend{text: "ok", gate: make(chan struct{})}
	env := newTestEnv(t, backend)
	id := env.createDiscussion(t)

	done, err := env.chat.Submit(context.Background(), id, "first")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	res, body := env.do(t, http.MethodPost, "/v1/discussions/"+id+"/messages", map[string]string{"question": "second"})
	if res.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409 (body %s)", res.StatusCode, body)
	}
	if res, body = env.do(t, http.MethodDelete, "/v1/discussions/"+id, nil); res.StatusCode != http.StatusConflict {
		t.Errorf("delete status = %d, want 409 (body %s)", res.StatusCode, body)
	}

	close(backend.gate)
	<-done
	if res, _ = env.do(t, http.MethodDelete, "/v1/discussions/"+id, nil); res.StatusCode != http.StatusNoContent {
		t.Errorf("delete after reply status = %d, want 204", res.StatusCode)
	}
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t, reply.NewMockBackend())

	req, _ := http.NewRequest(http.MethodGet, env.ts.URL+"/healthz", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	res.Body.Close()
	if got := res.Header.Get(RequestIDHeader); got != "req-42" {
		t.Errorf("echoed request id = %q", got)
	}

	res, _ = env.do(t, http.MethodGet, "/healthz", nil)
	if _, err := uuid.Parse(res.Header.Get(RequestIDHeader)); err != nil {
		t.Errorf("generated request id %q is not a uuid: %v", res.Header.Get(RequestIDHeader), err)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, reply.NewMockBackend())
	env.createDiscussion(t)

	res, body := env.do(t, http.MethodGet, "/healthz", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}
	var got map[string]any
	testutil.JSONUnmarshal(t, body, &got)
	if got["backend"] != "mock" || got["ready"] != true || got["discussions"] != float64(1) {
		t.Errorf("health = %v", got)
	}
}

func TestGenerate(t *testing.T) {
	t.Run("defaults applied", func(t *testing.T) {
		backend := &captureBackend{text: "  Seek counsel.  "}
		env := newTestEnv(t, backend)

		res, body := env.do(t, http.MethodPost, "/v1/generate", map[string]string{"user_input": "What now?"})
		if res.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, body = %s", res.StatusCode, body)
		}
		if strings.TrimSpace(string(body)) != `{"reply":"Seek counsel."}` {
			t.Errorf("body = %s", body)
		}
		want := reply.Request{UserInput: "What now?", MaxNewTokens: 100, Temperature: 0.7, TopP: 0.9}
		if got := backend.request(); got != want {
			t.Errorf("backend request = %+v, want %+v", got, want)
		}
	})

	t.Run("overrides", func(t *testing.T) {
		backend := &captureBackend{text: "ok"}
		env := newTestEnv(t, backend)

		env.do(t, http.MethodPost, "/v1/generate", map[string]any{"user_input": "q", "max_new_tokens": 20, "temperature": 0.1, "top_p": 0.5})
		got := backend.request()
		if got.MaxNewTokens != 20 || got.Temperature != 0.1 || got.TopP != 0.5 {
			t.Errorf("backend request = %+v", got)
		}
	})

	tests := []struct {
		name       string
		backend    reply.Backend
		body       any
		wantStatus int
		wantDetail string
	}{
		{"not ready", nil, map[string]string{"user_input": "q"}, http.StatusServiceUnavailable, "Model service is not ready"},
		{"missing input", reply.NewMockBackend(), map[string]int{"max_new_tokens": 5}, http.StatusUnprocessableEntity, "user_input is required"},
		{"generation error", &captureBackend{err: errors.New("out of memory")}, map[string]string{"user_input": "q"}, http.StatusInternalServerError, "Error generating response: out of memory"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.backend)
			res, body := env.do(t, http.MethodPost, "/v1/generate", tt.body)
			if res.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", res.StatusCode, tt.wantStatus, body)
			}
			var d detailResponse
			testutil.JSONUnmarshal(t, body, &d)
			if !strings.HasPrefix(d.Detail, tt.wantDetail) {
				t.Errorf("detail = %q, want prefix %q", d.Detail, tt.wantDetail)
			}
		})
	}
}

func TestGenerate_AsRemoteEndpoint(t *testing.T) {
	env := newTestEnv(t, reply.NewMockBackend())

	remote, err := reply.NewHTTPBackend([]string{env.ts.URL + "/v1/generate"}, 5*time.Second)
	if err != nil {
		t.Fatalf("NewHTTPBackend() error = %v", err)
	}
	got := reply.NewClient(remote).GenerateReply(context.Background(), "is this binding?")
	if got != "I heard you: is this binding?" {
		t.Errorf("GenerateReply() = %q", got)
	}
}

func TestAttach(t *testing.T) {
	backend := &captureBackend{text: "Reviewed."}
	env := newTestEnv(t, backend)
	id := env.createDiscussion(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range map[string]string{"lease.txt": "Rent is due monthly.", "bundle.rar": "Rar!"} {
		fw, err := mw.CreateFormFile("file", name)
		if err != nil {
			t.Fatalf("CreateFormFile() error = %v", err)
		}
		fw.Write([]byte(content))
	}
	mw.Close()

	res, err := http.Post(env.ts.URL+"/v1/discussions/"+id+"/attachments", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("POST attachments error = %v", err)
	}
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", res.StatusCode, body)
	}

	var got struct {
		Attachments  []attachmentView `json:"attachments"`
		PendingFiles []string         `json:"pending_files"`
	}
	testutil.JSONUnmarshal(t, body, &got)
	if len(got.PendingFiles) != 1 || got.PendingFiles[0] != "lease.txt" {
		t.Errorf("pending_files = %v", got.PendingFiles)
	}
	var rejected int
	for _, a := range got.Attachments {
		if a.Error != "" {
			rejected++
			if a.Error != "Error processing bundle.rar: unsupported file type: .rar" {
				t.Errorf("error = %q", a.Error)
			}
		}
	}
	if rejected != 1 {
		t.Errorf("rejected = %d, want 1", rejected)
	}

	res2, body := env.do(t, http.MethodPost, "/v1/discussions/"+id+"/messages", nil)
	if res2.StatusCode != http.StatusOK {
		t.Fatalf("analyze status = %d, body = %s", res2.StatusCode, body)
	}
	prompt := backend.request().UserInput
	if !strings.HasPrefix(prompt, chat.AnalyzePrompt) || !strings.Contains(prompt, "Rent is due monthly.") {
		t.Errorf("prompt = %q", prompt)
	}

	_, metrics := env.do(t, http.MethodGet, "/metrics", nil)
	for _, want := range []string{
		`test_attachments_rejected_total{type="rar"} 1`,
		`test_replies_total{backend="capture",outcome="succeeded"} 1`,
		`test_discussions_created_total 1`,
	} {
		if !strings.Contains(string(metrics), want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestWebsocketChat(t *testing.T) {
	env := newTestEnv(t, reply.NewMockBackend())
	id := env.createDiscussion(t)

	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/v1/discussions/" + id + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	read := func() serverEvent {
		t.Helper()
		var ev serverEvent
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		return ev
	}

	if ev := read(); ev.Type != EventHistory || ev.DiscussionID != id {
		t.Fatalf("first event = %+v, want history", ev)
	}

	if err := conn.WriteJSON(map[string]string{"type": "ask", "question": "hello"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if ev := read(); ev.Type != EventPending || ev.Text != "Thinking..." {
		t.Fatalf("event = %+v, want pending", ev)
	}
	ev := read()
	if ev.Type != EventReply || ev.Text != "I heard you: hello" || len(ev.Messages) != 2 {
		t.Fatalf("event = %+v, want reply", ev)
	}

	if err := conn.WriteJSON(map[string]string{"type": "ask"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if ev := read(); ev.Type != EventError || ev.Code != "empty_prompt" {
		t.Errorf("event = %+v, want empty_prompt error", ev)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	if ev := read(); ev.Type != EventError || ev.Code != "invalid_client_message" {
		t.Errorf("event = %+v, want invalid_client_message", ev)
	}
}

func TestWebsocket_RejectsForeignOrigin(t *testing.T) {
	env := newTestEnv(t, reply.NewMockBackend())
	id := env.createDiscussion(t)

	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/v1/discussions/" + id + "/ws"
	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, res, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		t.Fatal("Dial() should fail for a foreign origin")
	}
	if res == nil || res.StatusCode != http.StatusForbidden {
		t.Errorf("response = %v, want 403", res)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{internal.ErrInvalidDiscussionID, http.StatusBadRequest},
		{&internal.StoreError{Op: "read", Err: internal.ErrDiscussionNotFound}, http.StatusNotFound},
		{chat.ErrBusy, http.StatusConflict},
		{chat.ErrEmptyPrompt, http.StatusBadRequest},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got, _ := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestViewOf_FileBubble(t *testing.T) {
	v := viewOf(internal.Message{Sender: internal.SenderFile, Content: "lease.txt: Rent is due"})
	data, _ := json.Marshal(v)
	if !strings.Contains(string(data), `"label":"FILE lease.txt"`) || !strings.Contains(string(data), `"sender":"file"`) {
		t.Errorf("view = %s", data)
	}
}

func TestViewsOf_UploadNameWithSeparator(t *testing.T) {
	views := viewsOf([]internal.Message{
		{Sender: internal.SenderUser, Content: chat.UploadedPrefix + "Re: lease"},
		{Sender: internal.SenderFile, Content: "Re: lease: Rent is due"},
	})
	if views[1].Bubble.FileName != "Re: lease" || views[1].Bubble.Text != "Rent is due" {
		t.Errorf("file bubble = %+v", views[1].Bubble)
	}
}
