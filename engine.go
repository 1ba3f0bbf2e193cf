package convo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/everydev1618/goconvo/dsl"
	"github.com/everydev1618/goconvo/llm"
	"github.com/everydev1618/goconvo/store"
)

// Engine runs convo documents as conversations whose shared state
// survives between runs.
type Engine struct {
	cfg     Config
	logger  *slog.Logger
	store   store.Store
	out     io.Writer
	externs map[string]dsl.ExternFunc

	// locks serializes runs of one conversation.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithStore persists snapshots in st. Without a store every run starts
// from an empty shared table.
func WithStore(st store.Store) EngineOption {
	return func(e *Engine) {
		e.store = st
	}
}

// WithEngineLogger sets the logger for the engine and its contexts.
func WithEngineLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithEngineOutput sets where print writes during runs.
func WithEngineOutput(w io.Writer) EngineOption {
	return func(e *Engine) {
		e.out = w
	}
}

// WithEngineExterns provides implementations for body-less functions.
func WithEngineExterns(externs map[string]dsl.ExternFunc) EngineOption {
	return func(e *Engine) {
		e.externs = externs
	}
}

// NewEngine creates an engine from cfg.
func NewEngine(cfg Config, opts ...EngineOption) *Engine {
	e := &Engine{
		cfg:    cfg,
		logger: slog.Default(),
		out:    io.Discard,
		locks:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunResult is the outcome of one run.
type RunResult struct {
	Conversation string         `json:"conversation,omitempty" yaml:"conversation,omitempty"`
	Result       any            `json:"result" yaml:"result"`
	Shared       map[string]any `json:"shared" yaml:"shared"`
	Setters      []string       `json:"setters" yaml:"setters"`
	ResultBlock  string         `json:"result_block,omitempty" yaml:"result_block,omitempty"`
	SnapshotID   int64          `json:"snapshot_id,omitempty" yaml:"snapshot_id,omitempty"`
}

// Parse parses src with the configured limits. Parse failures are
// returned as *dsl.ParseError.
func (e *Engine) Parse(src string) ([]*dsl.Message, error) {
	res := dsl.NewParser(e.cfg.ParserOptions()...).Parse(src)
	if err := res.Error(); err != nil {
		return nil, err
	}
	return res.Messages, nil
}

// NewContext returns an execution context configured like the engine's
// runs.
func (e *Engine) NewContext() *dsl.Context {
	opts := append(e.cfg.ContextOptions(e.logger),
		dsl.WithOutput(e.out),
		dsl.WithExterns(e.externs),
	)
	return dsl.NewContext(opts...)
}

// Run executes the top-level blocks of src. With a store and a
// conversation id the latest snapshot is restored first and a new one is
// saved after the run; pending values are awaited until ctx is done.
func (e *Engine) Run(ctx context.Context, conversationID, src string) (*RunResult, error) {
	messages, err := e.Parse(src)
	if err != nil {
		return nil, err
	}

	persist := e.store != nil && conversationID != ""
	if persist {
		unlock := e.lock(conversationID)
		defer unlock()
	}

	c := e.NewContext()
	if persist {
		if err := e.restore(c, conversationID); err != nil {
			return nil, err
		}
	}

	v, err := c.Run(messages)
	if f, ok := v.(*dsl.Future); ok && err == nil {
		v, err = f.Wait(ctx)
	}
	if err != nil {
		return nil, err
	}

	res := &RunResult{
		Conversation: conversationID,
		Result:       v,
		Shared:       c.Snapshot(),
		Setters:      c.SharedSetters(),
		ResultBlock:  c.ResultBlock(),
	}
	if persist {
		snap, err := e.store.SaveSnapshot(store.Snapshot{
			ConversationID: conversationID,
			Vars:           c.SharedVars(),
			Setters:        res.Setters,
			Source:         c.StateBlock(),
		})
		if err != nil {
			return nil, fmt.Errorf("save snapshot: %w", err)
		}
		res.SnapshotID = snap.ID
		e.logger.Info("snapshot saved", "conversation", conversationID, "id", snap.ID, "setters", len(res.Setters))
	}
	return res, nil
}

// restore replays the latest snapshot of a conversation into c.
func (e *Engine) restore(c *dsl.Context, conversationID string) error {
	snap, err := e.store.LatestSnapshot(conversationID)
	if errors.Is(err, store.ErrNoSnapshot) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if snap.Source == "" {
		return nil
	}
	messages, err := e.Parse(snap.Source)
	if err != nil {
		return fmt.Errorf("restore snapshot %d: %w", snap.ID, err)
	}
	if _, err := c.Run(messages); err != nil {
		return fmt.Errorf("restore snapshot %d: %w", snap.ID, err)
	}
	c.ClearSharedSetters()
	e.logger.Debug("snapshot restored", "conversation", conversationID, "id", snap.ID)
	return nil
}

// Tools returns the tool schemas of src's callable functions. Define
// blocks run first so declared parameter types resolve.
func (e *Engine) Tools(src string) ([]llm.ToolSchema, error) {
	messages, err := e.Parse(src)
	if err != nil {
		return nil, err
	}
	c := e.NewContext()
	for _, m := range messages {
		if m.Fn != nil && m.Fn.TopLevel && m.Fn.Name == "define" {
			if _, err := c.ExecuteTopLevel(m.Fn); err != nil {
				return nil, err
			}
		}
	}
	return c.ToolSchemas(messages)
}

// History returns a conversation's snapshots, newest first.
func (e *Engine) History(conversationID string, limit int) ([]store.Snapshot, error) {
	if e.store == nil {
		return nil, nil
	}
	return e.store.ListSnapshots(conversationID, limit)
}

func (e *Engine) lock(conversationID string) func() {
	e.mu.Lock()
	l, ok := e.locks[conversationID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[conversationID] = l
	}
	e.mu.Unlock()
	l.Lock()
	return l.Unlock
}
