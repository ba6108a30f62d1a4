// Package dummy provides scripted stand-ins for the chat source and the
// completion service, driven by comma-separated action scripts. Used for
// tests and offline runs.
package dummy

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	cmdpkg "github.com/stupiduntilnot/enhancer/internal/commander"
	"github.com/stupiduntilnot/enhancer/internal/model"
	"github.com/stupiduntilnot/enhancer/internal/openai"
)

type action struct {
	kind string
	arg  string
}

// parseScript parses actions like "msg:hi,ok,err:provider_api,empty".
// The last action repeats once the script is exhausted.
func parseScript(script string) ([]action, error) {
	if strings.TrimSpace(script) == "" {
		return []action{{kind: "ok"}}, nil
	}
	parts := strings.Split(script, ",")
	actions := make([]action, 0, len(parts))
	for _, p := range parts {
		token := strings.TrimSpace(p)
		if token == "" {
			continue
		}
		switch {
		case token == "ok" || token == "empty":
			actions = append(actions, action{kind: token})
		case strings.HasPrefix(token, "err:"):
			actions = append(actions, action{kind: "err", arg: strings.TrimPrefix(token, "err:")})
		case strings.HasPrefix(token, "sleep:"):
			actions = append(actions, action{kind: "sleep", arg: strings.TrimPrefix(token, "sleep:")})
		case strings.HasPrefix(token, "msg:"):
			actions = append(actions, action{kind: "msg", arg: strings.TrimPrefix(token, "msg:")})
		case strings.HasPrefix(token, "msgb64:"):
			actions = append(actions, action{kind: "msgb64", arg: strings.TrimPrefix(token, "msgb64:")})
		default:
			return nil, fmt.Errorf("invalid dummy action: %s", token)
		}
	}
	if len(actions) == 0 {
		actions = append(actions, action{kind: "ok"})
	}
	return actions, nil
}

type scriptRunner struct {
	actions []action
	index   int
}

func newRunner(script string) (*scriptRunner, error) {
	actions, err := parseScript(script)
	if err != nil {
		return nil, err
	}
	return &scriptRunner{actions: actions}, nil
}

func (r *scriptRunner) next() action {
	if len(r.actions) == 0 {
		return action{kind: "ok"}
	}
	if r.index >= len(r.actions) {
		return r.actions[len(r.actions)-1]
	}
	a := r.actions[r.index]
	r.index++
	return a
}

// Commander is a scripted chat source: the poll script controls GetUpdates,
// the send script controls SendMessage.
type Commander struct {
	mu       sync.Mutex
	poll     *scriptRunner
	send     *scriptRunner
	updateID int64
}

func NewCommander(pollScript, sendScript string) (*Commander, error) {
	poll, err := newRunner(pollScript)
	if err != nil {
		return nil, err
	}
	send, err := newRunner(sendScript)
	if err != nil {
		return nil, err
	}
	return &Commander{poll: poll, send: send, updateID: 1}, nil
}

func (c *Commander) GetUpdates(offset int64, timeout int) ([]cmdpkg.Update, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a := c.poll.next()
	switch a.kind {
	case "err":
		return nil, fmt.Errorf("dummy commander error class=%s", emptyAs(a.arg, "command_source_api"))
	case "sleep":
		ms, _ := strconv.Atoi(a.arg)
		if ms > 0 {
			time.Sleep(time.Duration(ms) * time.Millisecond)
		}
		return nil, nil
	case "msg":
		return c.update(a.arg), nil
	case "msgb64":
		raw, err := base64.StdEncoding.DecodeString(a.arg)
		if err != nil {
			return nil, fmt.Errorf("dummy commander msgb64 decode failed: %w", err)
		}
		return c.update(string(raw)), nil
	default:
		return nil, nil
	}
}

func (c *Commander) update(text string) []cmdpkg.Update {
	c.updateID++
	return []cmdpkg.Update{
		{
			UpdateID: c.updateID,
			Message: &cmdpkg.Message{
				Chat: cmdpkg.Chat{ID: 1},
				Text: &text,
				Date: time.Now().Unix(),
			},
		},
	}
}

func (c *Commander) SendMessage(chatID int64, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	a := c.send.next()
	switch a.kind {
	case "err":
		return fmt.Errorf("dummy commander send error class=%s", emptyAs(a.arg, "command_source_api"))
	case "sleep":
		ms, _ := strconv.Atoi(a.arg)
		if ms > 0 {
			time.Sleep(time.Duration(ms) * time.Millisecond)
		}
		return nil
	default:
		return nil
	}
}

// Completer is a scripted completion service. Both completion modes consume
// the same script in call order, which matches the pipeline's fixed stage
// sequence.
type Completer struct {
	mu     sync.Mutex
	script *scriptRunner
}

func NewCompleter(script string) (*Completer, error) {
	runner, err := newRunner(script)
	if err != nil {
		return nil, err
	}
	return &Completer{script: runner}, nil
}

func (c *Completer) Complete(ctx context.Context, systemRole, userText string) (model.Response, error) {
	return c.run(ctx)
}

func (c *Completer) CompleteJSON(ctx context.Context, systemRole, userText string) (model.Response, error) {
	return c.run(ctx)
}

func (c *Completer) run(ctx context.Context) (model.Response, error) {
	if err := ctx.Err(); err != nil {
		return model.Response{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	a := c.script.next()
	switch a.kind {
	case "err":
		return model.Response{}, fmt.Errorf("dummy provider error class=%s", emptyAs(a.arg, "provider_api"))
	case "empty":
		return model.Response{Content: openai.FallbackReply, Fallback: true}, nil
	case "sleep":
		ms, _ := strconv.Atoi(a.arg)
		if ms > 0 {
			time.Sleep(time.Duration(ms) * time.Millisecond)
		}
		return model.Response{Content: "dummy-after-sleep"}, nil
	case "msg":
		return model.Response{Content: a.arg}, nil
	case "msgb64":
		raw, err := base64.StdEncoding.DecodeString(a.arg)
		if err != nil {
			return model.Response{}, fmt.Errorf("dummy provider msgb64 decode failed: %w", err)
		}
		return model.Response{Content: string(raw)}, nil
	default:
		return model.Response{Content: "dummy-ok"}, nil
	}
}

func emptyAs(v string, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
