// Package chat runs the conversation flow: attachments are extracted and
// recorded, prompts are assembled, and replies are generated and persisted.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/iksnae/bob-the-lawyer/internal"
	"github.com/iksnae/bob-the-lawyer/internal/attachment"
	"github.com/iksnae/bob-the-lawyer/internal/reply"
)

// Fixed texts recorded in the discussion
const (
	AnalyzePrompt       = "Please analyze these documents:"
	DocumentsQuestion   = "Uploaded documents for analysis"
	UploadedPrefix      = internal.UploadNoticePrefix
	ReceivedNotice      = "Received documents for analysis"
	ErrorMessagePrefix  = "Error: "
	PendingReplyMessage = "Thinking..."
)

var (
	// ErrBusy is returned while a reply for the same discussion is pending.
	ErrBusy = errors.New("a reply is already pending for this discussion")

	// ErrEmptyPrompt is returned when there is neither a question nor an attachment.
	ErrEmptyPrompt = errors.New("nothing to send: enter a question or attach a document")

	// ErrNoBackend is returned by sends on a service built without a generator.
	ErrNoBackend = errors.New("no reply backend is configured")
)

// Generator produces replies; *reply.Client satisfies it.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts ...reply.Option) reply.Result
}

// Service coordinates one store and one reply generator.
type Service struct {
	store     internal.DiscussionStore
	replies   Generator
	extractor *attachment.Extractor

	mu       sync.Mutex
	inflight map[string]bool
	files    map[string][]attachment.File
}

// NewService wires the conversation flow
func NewService(store internal.DiscussionStore, replies Generator, extractor *attachment.Extractor) *Service {
	if extractor == nil {
		extractor = attachment.NewExtractor("")
	}
	return &Service{
		store:     store,
		replies:   replies,
		extractor: extractor,
		inflight:  make(map[string]bool),
		files:     make(map[string][]attachment.File),
	}
}

// Store returns the underlying discussion store
func (s *Service) Store() internal.DiscussionStore {
	return s.store
}

// AttachResult describes one processed attachment. Err is an extraction
// failure that has already been recorded as a system message.
type AttachResult struct {
	Name     string
	File     attachment.File
	Err      error
	Messages []internal.Message
}

// AttachFile extracts the file at path and records it in the discussion
func (s *Service) AttachFile(ctx context.Context, discussionID, path string) (AttachResult, error) {
	f, err := s.extractor.ExtractFile(ctx, path)
	return s.record(ctx, discussionID, nameOf(path), f, err)
}

// AttachData is AttachFile for an in-memory upload
func (s *Service) AttachData(ctx context.Context, discussionID, name string, data []byte) (AttachResult, error) {
	f, err := s.extractor.Extract(ctx, name, data)
	return s.record(ctx, discussionID, name, f, err)
}

func (s *Service) record(ctx context.Context, discussionID, name string, f attachment.File, extractErr error) (AttachResult, error) {
	res := AttachResult{Name: name, File: f, Err: extractErr}

	if extractErr != nil {
		internal.LogWarn("Attachment %s rejected: %v", name, extractErr)
		msg, err := s.store.AppendMessage(ctx, discussionID, internal.SenderSystem, attachment.ErrorText(name, extractErr))
		if err != nil {
			return res, err
		}
		res.Messages = append(res.Messages, msg)
		return res, nil
	}

	for _, m := range []struct{ sender, content string }{
		{internal.SenderUser, UploadedPrefix + f.Name},
		{internal.SenderFile, attachment.Summary(f)},
	} {
		msg, err := s.store.AppendMessage(ctx, discussionID, m.sender, m.content)
		if err != nil {
			return res, err
		}
		res.Messages = append(res.Messages, msg)
	}

	s.mu.Lock()
	s.files[discussionID] = append(s.files[discussionID], f)
	s.mu.Unlock()
	return res, nil
}

// PendingFiles lists attachments that will be sent with the next question
func (s *Service) PendingFiles(discussionID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.files[discussionID]))
	for _, f := range s.files[discussionID] {
		names = append(names, f.Name)
	}
	return names
}

// Busy reports whether a reply is pending for the discussion
func (s *Service) Busy(discussionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight[discussionID]
}

// Delete removes a discussion unless a reply for it is pending. The in-flight
// slot is held for the duration, so no send can start until the rows are gone.
func (s *Service) Delete(ctx context.Context, discussionID string) error {
	if _, err := internal.ParseDiscussionID(discussionID); err != nil {
		return err
	}

	s.mu.Lock()
	if s.inflight[discussionID] {
		s.mu.Unlock()
		return ErrBusy
	}
	s.inflight[discussionID] = true
	s.mu.Unlock()

	err := s.store.DeleteDiscussion(ctx, discussionID)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, discussionID)
	if err == nil {
		delete(s.files, discussionID)
	}
	return err
}

// Exchange is the result of one send
type Exchange struct {
	Prompt   string
	Question internal.Message
	Reply    internal.Message // bot reply, or a system message on failure
	Result   reply.Result
	Files    []string
}

// Display is the text shown to the user for the reply
func (e Exchange) Display() string {
	return e.Result.Display()
}

// Send records the question, generates a reply and records it. Only one send
// per discussion may be in flight.
func (s *Service) Send(ctx context.Context, discussionID, question string, opts ...reply.Option) (Exchange, error) {
	files, err := s.acquire(discussionID, question)
	if err != nil {
		return Exchange{}, err
	}
	defer s.release(discussionID)
	return s.send(ctx, discussionID, question, files, opts)
}

// Completion is delivered once on the channel returned by Submit
type Completion struct {
	Exchange Exchange
	Err      error
}

// Submit starts a send in the background. The busy check happens before it
// returns; the channel yields exactly one Completion and is then closed.
func (s *Service) Submit(ctx context.Context, discussionID, question string, opts ...reply.Option) (<-chan Completion, error) {
	files, err := s.acquire(discussionID, question)
	if err != nil {
		return nil, err
	}

	done := make(chan Completion, 1)
	go func() {
		defer close(done)
		defer s.release(discussionID)
		ex, err := s.send(ctx, discussionID, question, files, opts)
		done <- Completion{Exchange: ex, Err: err}
	}()
	return done, nil
}

// acquire claims the in-flight slot and takes the pending attachments
func (s *Service) acquire(discussionID, question string) ([]attachment.File, error) {
	if _, err := internal.ParseDiscussionID(discussionID); err != nil {
		return nil, err
	}

	if s.replies == nil {
		return nil, ErrNoBackend
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[discussionID] {
		return nil, ErrBusy
	}
	files := s.files[discussionID]
	if strings.TrimSpace(question) == "" && len(files) == 0 {
		return nil, ErrEmptyPrompt
	}
	s.inflight[discussionID] = true
	delete(s.files, discussionID)
	return files, nil
}

func (s *Service) release(discussionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, discussionID)
}

// restore puts attachments back when the send fails before generation
func (s *Service) restore(discussionID string, files []attachment.File) {
	if len(files) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[discussionID] = append(files, s.files[discussionID]...)
}

func (s *Service) send(ctx context.Context, discussionID, question string, files []attachment.File, opts []reply.Option) (Exchange, error) {
	question = strings.TrimSpace(question)
	ex := Exchange{Prompt: BuildPrompt(question, files)}
	for _, f := range files {
		ex.Files = append(ex.Files, f.Name)
	}

	stored := question
	if stored == "" {
		stored = DocumentsQuestion
	}
	q, err := s.store.AppendMessage(ctx, discussionID, internal.SenderUser, stored)
	if err != nil {
		s.restore(discussionID, files)
		return Exchange{}, fmt.Errorf("record question: %w", err)
	}
	ex.Question = q

	ex.Result = s.replies.Generate(ctx, ex.Prompt, opts...)

	sender, content := internal.SenderBot, ex.Result.Text
	if !ex.Result.OK() {
		sender, content = internal.SenderSystem, ErrorMessagePrefix+errorDetail(ex.Result)
	}
	r, err := s.store.AppendMessage(ctx, discussionID, sender, content)
	if err != nil {
		return ex, fmt.Errorf("record reply: %w", err)
	}
	ex.Reply = r
	return ex, nil
}

// BuildPrompt joins the question with the attachment context block
func BuildPrompt(question string, files []attachment.File) string {
	block := attachment.BuildContext(files)
	if question == "" {
		return AnalyzePrompt + block
	}
	return question + block
}

func errorDetail(res reply.Result) string {
	if res.Err != nil {
		return res.Err.Error()
	}
	return string(res.Outcome)
}

func nameOf(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}
