package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iksnae/bob-the-lawyer/internal"
	"github.com/iksnae/bob-the-lawyer/internal/chat"
	"github.com/iksnae/bob-the-lawyer/internal/reply"
)

// Websocket event types
const (
	EventAsk     = "ask"
	EventHistory = "history"
	EventPending = "pending"
	EventReply   = "reply"
	EventError   = "error"
)

type clientEvent struct {
	Type string `json:"type"`
	sendRequest
}

type serverEvent struct {
	Type         string        `json:"type"`
	DiscussionID string        `json:"discussion_id"`
	Text         string        `json:"text,omitempty"`
	Code         string        `json:"code,omitempty"`
	Outcome      reply.Outcome `json:"outcome,omitempty"`
	Messages     []messageView `json:"messages,omitempty"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	d, ok := s.loadDiscussion(w, r)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.WSConnections.Inc()
	defer s.metrics.WSConnections.Dec()

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	outbound := make(chan serverEvent, 16)
	enqueue := func(ev serverEvent) {
		ev.DiscussionID = d.ID
		select {
		case outbound <- ev:
		case <-ctx.Done():
		}
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-outbound:
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(ev); err != nil {
					internal.LogDebug("Websocket write for %s failed: %v", d.ID, err)
					cancel()
					return
				}
			}
		}
	}()

	enqueue(serverEvent{Type: EventHistory, Messages: viewsOf(d.Messages)})

	var replies sync.WaitGroup
	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if !isCloseError(err) {
				internal.LogDebug("Websocket read for %s failed: %v", d.ID, err)
			}
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}

		var ev clientEvent
		if err := json.Unmarshal(data, &ev); err != nil || ev.Type != EventAsk {
			enqueue(serverEvent{Type: EventError, Code: "invalid_client_message", Text: "expected {\"type\":\"ask\",\"question\":...}"})
			continue
		}

		done, err := s.chat.Submit(context.WithoutCancel(ctx), d.ID, ev.Question, ev.options()...)
		if err != nil {
			_, code := statusFor(err)
			enqueue(serverEvent{Type: EventError, Code: code, Text: err.Error()})
			continue
		}
		enqueue(serverEvent{Type: EventPending, Text: chat.PendingReplyMessage})

		replies.Add(1)
		go func() {
			defer replies.Done()
			c := <-done
			if c.Err != nil {
				_, code := statusFor(c.Err)
				enqueue(serverEvent{Type: EventError, Code: code, Text: c.Err.Error()})
				return
			}
			enqueue(serverEvent{
				Type:     EventReply,
				Text:     c.Exchange.Display(),
				Outcome:  c.Exchange.Result.Outcome,
				Messages: viewsOf([]internal.Message{c.Exchange.Question, c.Exchange.Reply}),
			})
		}()
	}

	// let in-flight replies finish and be stored even though nobody is listening
	replies.Wait()
	cancel()
	<-writerDone
}

func isCloseError(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, context.Canceled) || strings.Contains(err.Error(), "use of closed network connection")
}
