package service

import (
	"context"
	"sync"

	"costsense-go/internal/model"
	"costsense-go/pkg/dsl"
)

type fakeProvider struct {
	mu          sync.Mutex
	id          string
	unconfig    bool
	result      *dsl.Result
	err         error
	calls       int
	lastPrompt  string
	lastHistory []model.ConversationTurn
}

func newFakeProvider(id string, result *dsl.Result, err error) *fakeProvider {
	return &fakeProvider{id: id, result: result, err: err}
}

func (p *fakeProvider) Name() string        { return p.id }
func (p *fakeProvider) DisplayName() string { return "Fake " + p.id }
func (p *fakeProvider) IsConfigured() bool  { return !p.unconfig }

func (p *fakeProvider) ValidateConfiguration(context.Context) error {
	if p.unconfig {
		return &providerErr{msg: "API key is not configured"}
	}
	return nil
}

func (p *fakeProvider) Generate(_ context.Context, prompt string, history []model.ConversationTurn) (*dsl.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.lastPrompt = prompt
	p.lastHistory = append([]model.ConversationTurn(nil), history...)
	if p.err != nil {
		return nil, p.err
	}
	r := *p.result
	return &r, nil
}

func (p *fakeProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type providerErr struct{ msg string }

func (e *providerErr) Error() string { return e.msg }

func diagramResult(text string) *dsl.Result {
	return &dsl.Result{Kind: dsl.StructuredDiagram, DSL: &text, Explanation: "Here is your diagram."}
}

func chatResult(text string) *dsl.Result {
	return &dsl.Result{Kind: dsl.Conversational, Explanation: text}
}

type recordingSink struct {
	mu      sync.Mutex
	entries []model.GenerationLog
	err     error
}

func (r *recordingSink) Record(_ context.Context, entry *model.GenerationLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	return r.err
}
