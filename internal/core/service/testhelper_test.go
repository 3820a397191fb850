package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/scriptgate-go/internal/core/domain"
	"github.com/yndnr/scriptgate-go/pkg/namegen"
)

// mockScriptRepo is an in-memory ScriptRepository with the same
// optimistic-locking semantics as the real stores.
type mockScriptRepo struct {
	mu      sync.Mutex
	scripts map[string]*domain.Script

	// beforeUpdate, when set, runs before each Update and may inject
	// failures (e.g. a one-shot version conflict).
	beforeUpdate func() error

	createCalls int
	updateCalls int
}

func newMockScriptRepo() *mockScriptRepo {
	return &mockScriptRepo{scripts: make(map[string]*domain.Script)}
}

func (m *mockScriptRepo) Create(_ context.Context, script *domain.Script) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if _, ok := m.scripts[script.Name]; ok {
		return domain.ErrNameConflict
	}
	m.scripts[script.Name] = script.Clone()
	return nil
}

func (m *mockScriptRepo) Get(_ context.Context, name string) (*domain.Script, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	script, ok := m.scripts[name]
	if !ok {
		return nil, domain.ErrScriptNotFound
	}
	return script.Clone(), nil
}

func (m *mockScriptRepo) Exists(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.scripts[name]
	return ok, nil
}

func (m *mockScriptRepo) Update(_ context.Context, script *domain.Script, expectedVersion uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	if m.beforeUpdate != nil {
		if err := m.beforeUpdate(); err != nil {
			return err
		}
	}
	cur, ok := m.scripts[script.Name]
	if !ok {
		return domain.ErrScriptNotFound
	}
	if cur.Version != expectedVersion {
		return domain.ErrScriptVersionConflict
	}
	next := script.Clone()
	next.Version = expectedVersion + 1
	m.scripts[script.Name] = next
	script.Version = next.Version
	return nil
}

// stored returns the repository copy for assertions.
func (m *mockScriptRepo) stored(t *testing.T, name string) *domain.Script {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	script, ok := m.scripts[name]
	if !ok {
		t.Fatalf("script %q not in repository", name)
	}
	return script.Clone()
}

func (m *mockScriptRepo) seed(script *domain.Script) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[script.Name] = script.Clone()
}

// mockAnswerRepo is an in-memory AnswerRepository.
type mockAnswerRepo struct {
	mu      sync.Mutex
	answers map[string]*domain.Answer
	order   []string
}

func newMockAnswerRepo() *mockAnswerRepo {
	return &mockAnswerRepo{answers: make(map[string]*domain.Answer)}
}

func (m *mockAnswerRepo) Create(_ context.Context, answer *domain.Answer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers[answer.ID] = answer.Clone()
	m.order = append(m.order, answer.ID)
	return nil
}

func (m *mockAnswerRepo) Get(_ context.Context, id string) (*domain.Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	answer, ok := m.answers[id]
	if !ok {
		return nil, domain.ErrAnswerNotFound
	}
	return answer.Clone(), nil
}

func (m *mockAnswerRepo) SetOutput(_ context.Context, id, output string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	answer, ok := m.answers[id]
	if !ok {
		return domain.ErrAnswerNotFound
	}
	answer.Output = output
	return nil
}

func (m *mockAnswerRepo) ListByScript(_ context.Context, scriptName string) ([]*domain.Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Answer
	for i := len(m.order) - 1; i >= 0; i-- {
		if a := m.answers[m.order[i]]; a.ScriptName == scriptName {
			out = append(out, a.Clone())
		}
	}
	return out, nil
}

func (m *mockAnswerRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.answers)
}

// mockArtifactStore records saves without touching the filesystem.
type mockArtifactStore struct {
	mu    sync.Mutex
	saves int
	fail  error
}

func (m *mockArtifactStore) Save(_ context.Context, data []byte, filename, namePrefix string) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return "", "", m.fail
	}
	m.saves++
	rel := "uploads/" + namePrefix + "_" + filename
	return "/tmp/" + rel, rel, nil
}

// mockEvaluator returns a fixed output or error.
type mockEvaluator struct {
	mu     sync.Mutex
	output string
	fail   error
	calls  int
}

func (m *mockEvaluator) Solve(_ context.Context, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fail != nil {
		return "", m.fail
	}
	return m.output, nil
}

// testEnv bundles a service with its collaborators.
type testEnv struct {
	svc       *ScriptService
	scripts   *mockScriptRepo
	answers   *mockAnswerRepo
	artifacts *mockArtifactStore
	evaluator *mockEvaluator
	now       time.Time
}

func newTestEnv(t *testing.T, cfg GateConfig) *testEnv {
	t.Helper()

	env := &testEnv{
		scripts:   newMockScriptRepo(),
		answers:   newMockAnswerRepo(),
		artifacts: &mockArtifactStore{},
		evaluator: &mockEvaluator{output: "42"},
		now:       time.Now(),
	}

	gen, err := NewNameGenerator(namegen.DefaultConfig(domain.NameAlphabet), env.scripts)
	if err != nil {
		t.Fatalf("NewNameGenerator: %v", err)
	}

	svc, err := NewScriptService(env.scripts, env.answers, env.artifacts, env.evaluator, gen, cfg)
	if err != nil {
		t.Fatalf("NewScriptService: %v", err)
	}
	svc.clock = func() time.Time { return env.now }
	env.svc = svc
	return env
}

// seedActive stores an active script and returns it.
func (e *testEnv) seedActive(name string, maxUsed int) *domain.Script {
	script := domain.NewScript(name, maxUsed, domain.StatusActive)
	e.scripts.seed(script)
	return script
}

// validFingerprint is comfortably above the default minimum length.
const validFingerprint = "fp-3a9c2b41d6f8e705a1b2"
