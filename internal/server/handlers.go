package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/iksnae/bob-the-lawyer/internal"
	"github.com/iksnae/bob-the-lawyer/internal/attachment"
	"github.com/iksnae/bob-the-lawyer/internal/chat"
	"github.com/iksnae/bob-the-lawyer/internal/reply"
)

const maxUploadBytes = 32 << 20

type bubbleView struct {
	Kind     internal.BubbleKind `json:"kind"`
	Label    string              `json:"label"`
	Text     string              `json:"text"`
	FileName string              `json:"file_name,omitempty"`
}

type messageView struct {
	internal.Message
	Bubble bubbleView `json:"bubble"`
}

func viewOf(m internal.Message) messageView {
	return viewWith(m, internal.RenderMessage(m))
}

func viewWith(m internal.Message, b internal.Bubble) messageView {
	return messageView{
		Message: m,
		Bubble:  bubbleView{Kind: b.Kind, Label: b.Label(), Text: b.Text, FileName: b.FileName},
	}
}

func viewsOf(msgs []internal.Message) []messageView {
	bubbles := internal.RenderMessages(msgs)
	out := make([]messageView, 0, len(msgs))
	for i, m := range msgs {
		out = append(out, viewWith(m, bubbles[i]))
	}
	return out
}

type discussionView struct {
	ID           string        `json:"id"`
	Number       int64         `json:"number"`
	Messages     []messageView `json:"messages"`
	Pending      bool          `json:"pending"`
	PendingFiles []string      `json:"pending_files"`
}

func (s *Server) handleListDiscussions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.chat.Store().ListDiscussions(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"discussions": ids})
}

func (s *Server) handleCreateDiscussion(w http.ResponseWriter, r *http.Request) {
	id, err := s.chat.Store().CreateDiscussion(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}
	s.metrics.DiscussionsCreated.Inc()
	internal.LogInfo("Created %s", id)
	respondJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) loadDiscussion(w http.ResponseWriter, r *http.Request) (*internal.Discussion, bool) {
	d, err := internal.LoadDiscussion(r.Context(), s.chat.Store(), chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, err)
		return nil, false
	}
	return d, true
}

func (s *Server) handleGetDiscussion(w http.ResponseWriter, r *http.Request) {
	d, ok := s.loadDiscussion(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, discussionView{
		ID:           d.ID,
		Number:       d.Number,
		Messages:     viewsOf(d.Messages),
		Pending:      s.chat.Busy(d.ID),
		PendingFiles: s.chat.PendingFiles(d.ID),
	})
}

func (s *Server) handleDeleteDiscussion(w http.ResponseWriter, r *http.Request) {
	if err := s.chat.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	d, ok := s.loadDiscussion(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"discussion_id": d.ID,
		"messages":      viewsOf(d.Messages),
	})
}

type sendRequest struct {
	Question     string   `json:"question"`
	MaxNewTokens *int     `json:"max_new_tokens,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	TopP         *float64 `json:"top_p,omitempty"`
}

func (req sendRequest) options() []reply.Option {
	var opts []reply.Option
	if req.MaxNewTokens != nil {
		opts = append(opts, reply.WithMaxNewTokens(*req.MaxNewTokens))
	}
	if req.Temperature != nil {
		opts = append(opts, reply.WithTemperature(*req.Temperature))
	}
	if req.TopP != nil {
		opts = append(opts, reply.WithTopP(*req.TopP))
	}
	return opts
}

type exchangeView struct {
	Question messageView   `json:"question"`
	Reply    messageView   `json:"reply"`
	Display  string        `json:"display"`
	Outcome  reply.Outcome `json:"outcome"`
	Backend  string        `json:"backend"`
	Files    []string      `json:"files,omitempty"`
}

func exchangeOf(ex chat.Exchange) exchangeView {
	return exchangeView{
		Question: viewOf(ex.Question),
		Reply:    viewOf(ex.Reply),
		Display:  ex.Display(),
		Outcome:  ex.Result.Outcome,
		Backend:  ex.Result.Backend,
		Files:    ex.Files,
	}
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	d, ok := s.loadDiscussion(w, r)
	if !ok {
		return
	}

	ex, err := s.chat.Send(r.Context(), d.ID, req.Question, req.options()...)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, exchangeOf(ex))
}

type attachmentView struct {
	Name     string        `json:"name"`
	Error    string        `json:"error,omitempty"`
	Messages []messageView `json:"messages"`
}

func (s *Server) handleAttach(w http.ResponseWriter, r *http.Request) {
	d, ok := s.loadDiscussion(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_upload", err.Error())
		return
	}
	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		respondError(w, http.StatusBadRequest, "invalid_upload", `multipart field "file" is required`)
		return
	}

	views := make([]attachmentView, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_upload", err.Error())
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_upload", err.Error())
			return
		}

		res, err := s.chat.AttachData(r.Context(), d.ID, fh.Filename, data)
		if err != nil {
			respondErr(w, err)
			return
		}
		v := attachmentView{Name: res.Name, Messages: viewsOf(res.Messages)}
		if res.Err != nil {
			v.Error = attachment.ErrorText(res.Name, res.Err)
			s.metrics.AttachmentsRejected.WithLabelValues(typeLabel(res.Name)).Inc()
		}
		views = append(views, v)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"attachments":   views,
		"pending_files": s.chat.PendingFiles(d.ID),
	})
}

func typeLabel(name string) string {
	if t := attachment.TypeOf(name); t != "" {
		return t
	}
	return "none"
}

// generateRequest mirrors the standalone model service contract
type generateRequest struct {
	UserInput    *string  `json:"user_input"`
	MaxNewTokens *int     `json:"max_new_tokens"`
	Temperature  *float64 `json:"temperature"`
	TopP         *float64 `json:"top_p"`
}

type detailResponse struct {
	Detail string `json:"detail"`
}

// handleGenerate answers a single prompt without touching discussions, so one
// bob instance can serve as the remote endpoint of another.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if s.replies == nil {
		internal.LogError("Generation requested before a reply backend is ready")
		respondJSON(w, http.StatusServiceUnavailable, detailResponse{Detail: "Model service is not ready. Please try again later."})
		return
	}

	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSON(w, http.StatusUnprocessableEntity, detailResponse{Detail: "invalid request body: " + err.Error()})
		return
	}
	if req.UserInput == nil {
		respondJSON(w, http.StatusUnprocessableEntity, detailResponse{Detail: "user_input is required"})
		return
	}
	opts := sendRequest{MaxNewTokens: req.MaxNewTokens, Temperature: req.Temperature, TopP: req.TopP}.options()

	res := s.replies.Generate(r.Context(), *req.UserInput, opts...)
	if !res.OK() {
		respondJSON(w, http.StatusInternalServerError, detailResponse{Detail: "Error generating response: " + errText(res)})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"reply": strings.TrimSpace(res.Text)})
}

func errText(res reply.Result) string {
	if res.Err != nil {
		return res.Err.Error()
	}
	return string(res.Outcome)
}
