// Package pipeline turns one inbound chat message into a synthesized reply
// via a fixed sequence of completion calls, mutating the conversation's
// dialogue cache along the way.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/stupiduntilnot/enhancer/internal/commander"
	"github.com/stupiduntilnot/enhancer/internal/events"
	"github.com/stupiduntilnot/enhancer/internal/history"
	"github.com/stupiduntilnot/enhancer/internal/model"
	"github.com/stupiduntilnot/enhancer/internal/payload"
	"github.com/stupiduntilnot/enhancer/internal/prompts"
)

// synthesisRole is the fixed instruction for the final call.
const synthesisRole = "Ответь на запрос"

// Enricher runs the enrichment pipeline. Events and RootEventID are
// optional; a nil event log discards run records.
type Enricher struct {
	Completer   model.Completer
	Roles       prompts.Roles
	Store       *history.Store
	Sender      commander.Sender
	Events      *events.Log
	RootEventID int64
}

// Process handles one inbound message end to end: append to history, enrich,
// synthesize, attach the reply, send it. The conversation stays locked for
// the whole run, so messages from one chat are processed one at a time.
//
// A returned error means no reply was sent and the appended interaction
// keeps an empty response. Malformed JSON from the extraction stages is not
// an error; transport failures and unresolved roles are.
func (e *Enricher) Process(ctx context.Context, chatID int64, text string) error {
	runID := uuid.NewString()
	runEventID := e.record(e.parent(), events.EventPipelineStarted, map[string]any{
		"chat_id": chatID,
		"run_id":  runID,
		"text":    truncate(text, 1000),
	})

	err := e.Store.WithConversation(chatID, func(cache *history.Cache) error {
		cache.Append(text)

		reply, err := e.enrich(ctx, runEventID, text, cache)
		if err != nil {
			return err
		}

		cache.AttachResponse(reply)
		if err := e.Sender.SendMessage(chatID, reply); err != nil {
			return fmt.Errorf("send reply: %w", err)
		}
		e.record(&runEventID, events.EventReplySent, map[string]any{"chat_id": chatID})
		return nil
	})
	if err != nil {
		e.record(&runEventID, events.EventPipelineFailed, map[string]any{
			"chat_id": chatID,
			"error":   truncate(err.Error(), 1000),
		})
		return err
	}
	return nil
}

// enrich builds the request payload stage by stage and returns the
// synthesized reply.
func (e *Enricher) enrich(ctx context.Context, runEventID int64, text string, cache *history.Cache) (string, error) {
	if err := e.Roles.Validate(); err != nil {
		return "", fmt.Errorf("config: %w", err)
	}

	p := payload.New()
	p.Request = text
	// Early stages see the history as one block; stage 5 replaces it with
	// the per-interaction list.
	p.Cache = []string{cache.Transcript()}

	ctxResp, err := e.Completer.Complete(ctx, e.Roles.Context, text)
	if err != nil {
		return "", fmt.Errorf("context extraction: %w", err)
	}
	p.Context = ctxResp.Content
	e.record(&runEventID, events.EventContextExtracted, map[string]any{"fallback": ctxResp.Fallback})

	vpResp, err := e.Completer.CompleteJSON(ctx, e.Roles.Viewpoints, text)
	if err != nil {
		return "", fmt.Errorf("viewpoint extraction: %w", err)
	}
	if applyViewpoints(p, vpResp.Content) {
		e.record(&runEventID, events.EventViewpointsExtracted, map[string]any{"count": len(p.Viewpoints)})
	} else {
		log.Printf("[pipeline] viewpoints response unusable, field unchanged")
	}

	profResp, err := e.Completer.CompleteJSON(ctx, e.Roles.Profile, text)
	if err != nil {
		return "", fmt.Errorf("profile inference: %w", err)
	}
	expertiseSet, styleSet := applyProfile(p, profResp.Content)
	if expertiseSet || styleSet {
		e.record(&runEventID, events.EventProfileInferred, map[string]any{
			"expertise_set": expertiseSet,
			"style_set":     styleSet,
		})
	} else {
		log.Printf("[pipeline] profile response unusable, fields unchanged")
	}

	p.Cache = cache.TranscriptList()

	pretty, err := p.Pretty()
	if err != nil {
		return "", fmt.Errorf("serialize payload: %w", err)
	}
	e.record(&runEventID, events.EventPayloadAssembled, map[string]any{
		"cache_entries": len(p.Cache),
		"viewpoints":    len(p.Viewpoints),
	})

	wrapped, err := json.Marshal(map[string]string{
		"system_role":       synthesisRole,
		"request_structure": pretty,
	})
	if err != nil {
		return "", fmt.Errorf("serialize synthesis request: %w", err)
	}

	final, err := e.Completer.Complete(ctx, synthesisRole, string(wrapped))
	if err != nil {
		return "", fmt.Errorf("synthesis: %w", err)
	}
	return final.Content, nil
}

// applyViewpoints updates the payload from a viewpoint-extraction response.
// Non-string array elements are dropped; a malformed object or a missing
// viewpoints array leaves the payload untouched and returns false.
func applyViewpoints(p *payload.RequestPayload, content string) bool {
	var parsed struct {
		Viewpoints []any `json:"viewpoints"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return false
	}
	if parsed.Viewpoints == nil {
		return false
	}
	viewpoints := make([]string, 0, len(parsed.Viewpoints))
	for _, v := range parsed.Viewpoints {
		if s, ok := v.(string); ok {
			viewpoints = append(viewpoints, s)
		}
	}
	p.Viewpoints = viewpoints
	return true
}

// applyProfile updates expertise_lvl and communication_style independently;
// each is touched only when present as a string. Malformed JSON updates
// neither.
func applyProfile(p *payload.RequestPayload, content string) (expertiseSet, styleSet bool) {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return false, false
	}
	if expertise, ok := parsed["expertise_lvl"].(string); ok {
		p.UserProfile.ExpertiseLvl = expertise
		expertiseSet = true
	}
	if style, ok := parsed["communication_style"].(string); ok {
		p.UserProfile.CommunicationStyle = style
		styleSet = true
	}
	return expertiseSet, styleSet
}

// record logs an event, ignoring logging failures: observability must never
// fail a run.
func (e *Enricher) record(parentID *int64, eventType string, payload map[string]any) int64 {
	id, err := e.Events.Record(parentID, eventType, payload)
	if err != nil {
		log.Printf("[pipeline] failed to record %s: %v", eventType, err)
	}
	return id
}

func (e *Enricher) parent() *int64 {
	if e.RootEventID > 0 {
		return &e.RootEventID
	}
	return nil
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
