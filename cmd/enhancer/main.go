package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	cmdpkg "github.com/stupiduntilnot/enhancer/internal/commander"
	"github.com/stupiduntilnot/enhancer/internal/config"
	"github.com/stupiduntilnot/enhancer/internal/control"
	"github.com/stupiduntilnot/enhancer/internal/dummy"
	"github.com/stupiduntilnot/enhancer/internal/events"
	"github.com/stupiduntilnot/enhancer/internal/history"
	"github.com/stupiduntilnot/enhancer/internal/model"
	"github.com/stupiduntilnot/enhancer/internal/openai"
	"github.com/stupiduntilnot/enhancer/internal/pipeline"
	"github.com/stupiduntilnot/enhancer/internal/prompts"
	"github.com/stupiduntilnot/enhancer/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[enhancer] %v", err)
	}

	database, err := events.OpenDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("[enhancer] %v", err)
	}
	defer database.Close()

	if err := events.InitSchema(database); err != nil {
		log.Fatalf("[enhancer] failed to init schema: %v", err)
	}
	evlog := events.NewLog(database)

	rootEventID, err := evlog.Record(nil, events.EventProcessStarted, map[string]any{
		"pid":      os.Getpid(),
		"provider": cfg.ModelProvider,
		"source":   cfg.Commander,
	})
	if err != nil {
		log.Printf("[enhancer] failed to record process.started: %v", err)
	}

	roles, err := prompts.Load(cfg.RolesPath)
	if err != nil {
		log.Fatalf("[enhancer] %v", err)
	}

	chatSource, err := newCommander(&cfg)
	if err != nil {
		log.Fatalf("[enhancer] failed to init commander: %v", err)
	}
	completer, err := newCompleter(&cfg)
	if err != nil {
		log.Fatalf("[enhancer] failed to init model provider: %v", err)
	}

	enricher := &pipeline.Enricher{
		Completer:   completer,
		Roles:       roles,
		Store:       history.NewStore(cfg.HistoryCapacity),
		Sender:      chatSource,
		Events:      evlog,
		RootEventID: rootEventID,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := newDispatcher(ctx, enricher.Process)
	circuit := control.NewCircuitBreaker(5, 30*time.Second)

	var offset int64
	if cfg.DropPending {
		bootstrapped, err := bootstrapOffset(chatSource, cfg.PendingWindowSeconds, cfg.PendingMaxMessages)
		if err != nil {
			log.Printf("[enhancer] bootstrap offset error: %v", err)
		} else {
			offset = bootstrapped
		}
	}

	log.Printf("enhancer running model=%s provider=%s source=%s capacity=%d",
		cfg.OpenAIModel, cfg.ModelProvider, cfg.Commander, cfg.HistoryCapacity)

	for ctx.Err() == nil {
		beforeAllow := circuit.State()
		if !circuit.Allow(time.Now()) {
			sleep(ctx, time.Duration(cfg.SleepSeconds)*time.Second)
			continue
		}
		if beforeAllow == control.CircuitOpen && circuit.State() == control.CircuitHalfOpen {
			evlog.Record(&rootEventID, events.EventCircuitHalfOpen, map[string]any{
				"error_class": circuit.OpenedClass(),
			})
		}

		updates, err := chatSource.GetUpdates(offset, cfg.Timeout)
		if err != nil {
			log.Printf("getUpdates error: %v", err)
			prevState := circuit.State()
			circuit.RecordFailure("command_source_api", time.Now())
			if prevState != control.CircuitOpen && circuit.State() == control.CircuitOpen {
				evlog.Record(&rootEventID, events.EventCircuitOpened, map[string]any{
					"error_class":      "command_source_api",
					"threshold":        circuit.Threshold,
					"cooldown_seconds": int(circuit.Cooldown.Seconds()),
				})
			}
			sleep(ctx, time.Duration(cfg.SleepSeconds)*time.Second)
			continue
		}
		if circuit.State() == control.CircuitHalfOpen {
			circuit.RecordSuccess()
			evlog.Record(&rootEventID, events.EventCircuitClosed, map[string]any{"recovered": true})
		}

		for _, update := range updates {
			offset = update.UpdateID + 1

			if update.Message == nil || update.Message.Text == nil {
				continue
			}
			text := *update.Message.Text
			if len(text) == 0 {
				continue
			}
			chatID := update.Message.Chat.ID

			evlog.Record(&rootEventID, events.EventMessageReceived, map[string]any{
				"chat_id":   chatID,
				"update_id": update.UpdateID,
			})

			if isStartCommand(text) {
				if err := chatSource.SendMessage(chatID, "Hello!"); err != nil {
					log.Printf("chat %d failed to greet: %v", chatID, err)
				}
				continue
			}

			d.dispatch(chatID, text)
		}

		if len(updates) == 0 {
			sleep(ctx, time.Duration(cfg.SleepSeconds)*time.Second)
		}
	}

	log.Printf("enhancer shutting down, draining in-flight pipelines")
	d.wait()
	log.Printf("enhancer stopped")
}

// isStartCommand matches the /start bot command, with or without the
// @botname suffix Telegram appends in groups.
func isStartCommand(text string) bool {
	trimmed := strings.TrimSpace(text)
	return trimmed == "/start" || strings.HasPrefix(trimmed, "/start@")
}

// dispatcher fans updates out to one worker goroutine per chat, so messages
// from a single conversation are processed strictly in arrival order while
// distinct conversations run in parallel.
type dispatcher struct {
	ctx     context.Context
	process func(ctx context.Context, chatID int64, text string) error

	mu     sync.Mutex
	queues map[int64]chan string
	wg     sync.WaitGroup
}

const chatQueueSize = 64

func newDispatcher(ctx context.Context, process func(context.Context, int64, string) error) *dispatcher {
	return &dispatcher{
		ctx:     ctx,
		process: process,
		queues:  map[int64]chan string{},
	}
}

// dispatch enqueues a message for its chat's worker, starting the worker on
// first use. A full queue drops the message rather than blocking the poll loop.
func (d *dispatcher) dispatch(chatID int64, text string) {
	d.mu.Lock()
	q, ok := d.queues[chatID]
	if !ok {
		q = make(chan string, chatQueueSize)
		d.queues[chatID] = q
		d.wg.Add(1)
		go d.runChat(chatID, q)
	}
	d.mu.Unlock()

	select {
	case q <- text:
	default:
		log.Printf("chat %d queue full, dropping message", chatID)
	}
}

func (d *dispatcher) runChat(chatID int64, q chan string) {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case text := <-q:
			if err := d.process(d.ctx, chatID, text); err != nil {
				// Contract on failure: log it, the user gets no reply.
				log.Printf("chat %d pipeline failed: %v", chatID, err)
			}
		}
	}
}

// wait blocks until all chat workers have observed cancellation and exited.
func (d *dispatcher) wait() {
	d.wg.Wait()
}

// bootstrapOffset skips messages that piled up while the process was down,
// keeping at most pendingMaxMessages that arrived within the pending window.
func bootstrapOffset(chatSource cmdpkg.Commander, pendingWindowSeconds int64, pendingMaxMessages int) (int64, error) {
	updates, err := chatSource.GetUpdates(0, 0)
	if err != nil {
		return 0, err
	}
	if len(updates) == 0 {
		return 0, nil
	}

	now := time.Now().Unix()
	cutoff := now - pendingWindowSeconds

	var inWindow []cmdpkg.Update
	for _, u := range updates {
		if u.Message != nil && u.Message.Date >= cutoff {
			inWindow = append(inWindow, u)
		}
	}

	if len(inWindow) == 0 {
		return updates[len(updates)-1].UpdateID + 1, nil
	}

	if len(inWindow) > pendingMaxMessages {
		inWindow = inWindow[len(inWindow)-pendingMaxMessages:]
	}

	return inWindow[0].UpdateID, nil
}

// sleep waits for the duration or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func newCommander(cfg *config.Config) (cmdpkg.Commander, error) {
	switch cfg.Commander {
	case "telegram":
		return telegram.NewClient(cfg.TelegramAPIBase, time.Duration(cfg.Timeout+20)*time.Second), nil
	case "dummy":
		return dummy.NewCommander(cfg.DummyCommanderScript, cfg.DummySendScript)
	default:
		return nil, fmt.Errorf("unsupported commander: %s", cfg.Commander)
	}
}

func newCompleter(cfg *config.Config) (model.Completer, error) {
	switch cfg.ModelProvider {
	case "openai":
		return openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIChatCompURL, cfg.OpenAIModel, 120*time.Second), nil
	case "dummy":
		return dummy.NewCompleter(cfg.DummyProviderScript)
	default:
		return nil, fmt.Errorf("unsupported model provider: %s", cfg.ModelProvider)
	}
}
