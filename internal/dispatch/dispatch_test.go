package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doctrans/internal/rate"
	"doctrans/internal/retry"
	"doctrans/pkg/contract"
)

var en = contract.Language{Code: "en", Name: "English", Dir: "en"}

func mkJobs(n int) []contract.Job {
	jobs := make([]contract.Job, n)
	for i := range jobs {
		rel := fmt.Sprintf("doc%02d.md", i)
		jobs[i] = contract.Job{
			Seq:      i,
			Doc:      contract.Document{Path: "/docs/" + rel, Rel: rel},
			Lang:     en,
			Target:   "/docs/en/" + rel,
			Decision: contract.Translate,
		}
	}
	return jobs
}

func TestRunSequentialOrder(t *testing.T) {
	jobs := mkJobs(6)
	res := Run(context.Background(), jobs, Settings{Concurrency: 1}, ExecutorFunc(func(_ context.Context, j contract.Job) contract.Outcome {
		return contract.Outcome{Status: contract.StatusSucceeded, Attempts: 1}
	}))
	require.Len(t, res.Completed, 6)
	for i, j := range res.Completed {
		assert.Equal(t, i, j.Seq, "N=1 时完成顺序应等于输入顺序")
	}
	assert.Equal(t, RunSuccess, res.Status())
	assert.NoError(t, res.Err())
}

func TestRunFailureIsolation(t *testing.T) {
	jobs := mkJobs(10)
	boom := errors.New("upstream down")
	var calls atomic.Int32
	res := Run(context.Background(), jobs, Settings{Concurrency: 4}, ExecutorFunc(func(_ context.Context, j contract.Job) contract.Outcome {
		calls.Add(1)
		if j.Seq == 3 {
			return contract.Outcome{Status: contract.StatusFailed, Attempts: 4, Err: boom}
		}
		return contract.Outcome{Status: contract.StatusSucceeded, Attempts: 1}
	}))
	assert.EqualValues(t, 10, calls.Load(), "每个作业都应被执行")
	assert.Equal(t, 9, res.Translated)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "doc03.md", res.Failures[0].Source)
	assert.Equal(t, 4, res.Failures[0].Attempts)
	assert.Equal(t, RunPartial, res.Status())
	assert.ErrorIs(t, res.Err(), boom)
}

func TestRunConcurrencyBound(t *testing.T) {
	var inflight, peak atomic.Int32
	res := Run(context.Background(), mkJobs(20), Settings{Concurrency: 3}, ExecutorFunc(func(context.Context, contract.Job) contract.Outcome {
		cur := inflight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inflight.Add(-1)
		return contract.Outcome{}
	}))
	assert.Equal(t, 20, res.Translated)
	assert.LessOrEqual(t, peak.Load(), int32(3), "并发数不应超过 N")
}

func TestRunSkipsCounted(t *testing.T) {
	jobs := mkJobs(3)
	jobs[0].Decision = contract.SkipProtected
	jobs[1].Decision = contract.SkipExisting
	var calls atomic.Int32
	res := Run(context.Background(), jobs, Settings{Concurrency: 2}, ExecutorFunc(func(context.Context, contract.Job) contract.Outcome {
		calls.Add(1)
		return contract.Outcome{}
	}))
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, 1, res.SkippedProtected)
	assert.Equal(t, 1, res.SkippedExisting)
	assert.Equal(t, 2, res.Skipped())
	assert.Equal(t, 1, res.Translated)
	require.Len(t, res.Completed, 1)
	assert.Equal(t, 2, res.Completed[0].Seq)
}

func TestRunAllFailed(t *testing.T) {
	res := Run(context.Background(), mkJobs(2), Settings{Concurrency: 0}, ExecutorFunc(func(context.Context, contract.Job) contract.Outcome {
		return contract.Outcome{Err: errors.New("x")}
	}))
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, RunFailure, res.Status())
}

func TestRunCancelStopsDispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	release := make(chan struct{})
	var inflightCtxErr atomic.Value
	go func() {
		<-started
		cancel()
		close(release)
	}()
	res := Run(ctx, mkJobs(5), Settings{Concurrency: 1}, ExecutorFunc(func(jctx context.Context, j contract.Job) contract.Outcome {
		if j.Seq == 0 {
			close(started)
			<-release
			// 在途作业不受运行级取消影响
			inflightCtxErr.Store(fmt.Sprint(jctx.Err()))
		}
		return contract.Outcome{}
	}))
	assert.Equal(t, "<nil>", inflightCtxErr.Load())
	total := res.Translated + res.Failed
	assert.Equal(t, 5, total, "每个作业都应被记录")
	assert.GreaterOrEqual(t, res.Translated, 1)
	notDispatched := 0
	for _, f := range res.Failures {
		if errors.Is(f.Err, contract.ErrNotDispatched) {
			notDispatched++
		}
	}
	assert.Equal(t, res.Failed, notDispatched)
	assert.GreaterOrEqual(t, notDispatched, 3)
}

// memFS: 内存文件系统。
type memFS struct {
	mu      sync.Mutex
	files   map[string]string
	writes  int
	readErr error
	wErr    error
}

func newMemFS() *memFS { return &memFS{files: map[string]string{}} }

func (m *memFS) Exists(p string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[p]
	return ok
}

func (m *memFS) Read(_ context.Context, p string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	s, ok := m.files[p]
	if !ok {
		return nil, contract.ErrNotExist
	}
	return []byte(s), nil
}

func (m *memFS) Write(_ context.Context, p string, r io.Reader) error {
	if m.wErr != nil {
		return m.wErr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[p] = string(b)
	m.writes++
	return nil
}

type fakeTranslator struct {
	failFirst int
	calls     atomic.Int32
}

func (f *fakeTranslator) Translate(_ context.Context, content string, lang contract.Language) (string, error) {
	n := int(f.calls.Add(1))
	if n <= f.failFirst {
		return "", errors.New("transient")
	}
	return "[" + lang.Code + "] " + content, nil
}

type noSleep struct{ delays []time.Duration }

func (s *noSleep) Sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

func newRunner(fs *memFS, tr contract.Translator, sl retry.Sleeper) *Runner {
	return &Runner{
		FS:         fs,
		Translator: tr,
		Retry:      retry.Executor{MaxRetries: 3, BaseDelay: 2 * time.Second, Multiplier: 2, Sleeper: sl},
	}
}

func TestRunnerSuccessWithRetries(t *testing.T) {
	fs := newMemFS()
	fs.files["/docs/doc00.md"] = "# 标题"
	sl := &noSleep{}
	r := newRunner(fs, &fakeTranslator{failFirst: 2}, sl)
	out := r.Execute(context.Background(), mkJobs(1)[0])
	require.NoError(t, out.Err)
	assert.Equal(t, contract.StatusSucceeded, out.Status)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sl.delays)
	assert.Equal(t, "[en] # 标题", fs.files["/docs/en/doc00.md"])
}

func TestRunnerExhausted(t *testing.T) {
	fs := newMemFS()
	fs.files["/docs/doc00.md"] = "x"
	sl := &noSleep{}
	r := newRunner(fs, &fakeTranslator{failFirst: 100}, sl)
	out := r.Execute(context.Background(), mkJobs(1)[0])
	assert.Equal(t, contract.StatusFailed, out.Status)
	assert.Equal(t, 4, out.Attempts)
	assert.ErrorIs(t, out.Err, contract.ErrRetriesExhausted)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, sl.delays)
	assert.Zero(t, fs.writes, "失败作业不应写入")
}

func TestRunnerReadErrorTerminal(t *testing.T) {
	fs := newMemFS()
	tr := &fakeTranslator{}
	out := newRunner(fs, tr, &noSleep{}).Execute(context.Background(), mkJobs(1)[0])
	assert.ErrorIs(t, out.Err, contract.ErrNotExist)
	assert.Equal(t, 0, out.Attempts)
	assert.EqualValues(t, 0, tr.calls.Load(), "读失败不应调用翻译")
}

func TestRunnerWriteErrorNotRetried(t *testing.T) {
	fs := newMemFS()
	fs.files["/docs/doc00.md"] = "x"
	diskFull := errors.New("no space left on device")
	fs.wErr = diskFull
	tr := &fakeTranslator{}
	out := newRunner(fs, tr, &noSleep{}).Execute(context.Background(), mkJobs(1)[0])
	assert.ErrorIs(t, out.Err, diskFull)
	assert.NotErrorIs(t, out.Err, contract.ErrRetriesExhausted)
	assert.EqualValues(t, 1, tr.calls.Load(), "写失败不应重试翻译")
}

func TestRunnerGateErrorTerminal(t *testing.T) {
	fs := newMemFS()
	fs.files["/docs/doc00.md"] = "a very long body that exceeds the per request limit"
	tr := &fakeTranslator{}
	r := newRunner(fs, tr, &noSleep{})
	r.Gate = rate.NewGate(map[rate.LimitKey]rate.Limits{"k": {MaxTokensPerReq: 2}}, nil)
	r.GateKey = "k"
	out := r.Execute(context.Background(), mkJobs(1)[0])
	assert.ErrorIs(t, out.Err, contract.ErrInvalidInput)
	assert.EqualValues(t, 0, tr.calls.Load())
}

func TestRunIdempotentEndToEnd(t *testing.T) {
	fs := newMemFS()
	jobs := mkJobs(4)
	for _, j := range jobs {
		fs.files[j.Doc.Path] = "body " + j.Doc.Rel
	}
	r := newRunner(fs, &fakeTranslator{}, &noSleep{})
	res := Run(context.Background(), jobs, Settings{Concurrency: 2}, r)
	require.Equal(t, 4, res.Translated)
	assert.Equal(t, 4, fs.writes)
	for _, j := range jobs {
		assert.Equal(t, "[en] body "+j.Doc.Rel, fs.files[j.Target])
	}
}
