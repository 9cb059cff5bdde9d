package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/evolark/photogenbot/internal/catalog"
	"github.com/evolark/photogenbot/internal/evolink"
	"github.com/evolark/photogenbot/internal/ledger"
	"github.com/evolark/photogenbot/internal/models"
)

// ErrRunInFlight means the user's session is processing; new input is
// ignored until the current run returns the session to idle.
var ErrRunInFlight = errors.New("a run is already in flight for this user")

// ErrNotAwaitingImage means an image arrived outside the step that accepts one.
var ErrNotAwaitingImage = errors.New("session is not awaiting an image")

// Submitter submits a generation request (evolink.Client in production).
type Submitter interface {
	Submit(ctx context.Context, spec models.ModelSpec, prompt string, image *evolink.ImageInput) (*evolink.GenerationTask, error)
}

// Poller awaits an asynchronous task (evolink.Poller in production).
type Poller interface {
	AwaitCompletion(ctx context.Context, taskID string, media models.MediaKind) (string, error)
}

// Fetcher downloads a completed artifact (evolink.Fetcher in production).
type Fetcher interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// Messenger is the delivery contract back to the chat transport.
type Messenger interface {
	SendStatus(userID int64, text string) (int, error)
	EditStatus(userID int64, messageID int, text string)
	DeleteStatus(userID int64, messageID int)
	SendArtifact(userID int64, media models.MediaKind, data []byte, caption string) error
	SendFailure(userID int64, text string)
}

// SelectOutcome tells the transport what to show after a model selection.
type SelectOutcome struct {
	Spec    models.ModelSpec
	Free    bool
	Balance int
}

// Orchestrator drives the per-user session state machine. Each run executes
// on its own goroutine keyed by user id, so the chat-handling path returns
// immediately and one user's long-running request never blocks another.
type Orchestrator struct {
	catalog   *catalog.Catalog
	ledger    *ledger.Ledger
	submitter Submitter
	poller    Poller
	fetcher   Fetcher
	messenger Messenger
	log       *slog.Logger

	sessions *Manager

	mu   sync.Mutex
	runs map[int64]*runHandle
}

// runHandle tracks a spawned run. cancel is unused today but keeps a
// cancel-on-new-input policy implementable without ad hoc goroutines.
type runHandle struct {
	done   chan struct{}
	cancel context.CancelFunc
}

func NewOrchestrator(cat *catalog.Catalog, ldgr *ledger.Ledger, submitter Submitter, poller Poller, fetcher Fetcher, messenger Messenger, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		catalog:   cat,
		ledger:    ldgr,
		submitter: submitter,
		poller:    poller,
		fetcher:   fetcher,
		messenger: messenger,
		log:       log,
		sessions:  NewManager(),
		runs:      make(map[int64]*runHandle),
	}
}

// State exposes a copy of the user's session for the transport's menus.
func (o *Orchestrator) State(userID int64) State {
	return o.sessions.Get(userID)
}

// Reset discards the user's session unless a run is in flight.
func (o *Orchestrator) Reset(userID int64) error {
	if o.sessions.Get(userID).Step == StepProcessing {
		return ErrRunInFlight
	}
	o.sessions.Reset(userID)
	return nil
}

// SelectModel starts a new flow for the user, replacing any previous idle
// session. The free-vs-paid decision is made here, once, and frozen for the
// whole run.
func (o *Orchestrator) SelectModel(userID int64, modelID string) (SelectOutcome, error) {
	spec, err := o.catalog.Get(modelID)
	if err != nil {
		return SelectOutcome{}, err
	}
	if o.sessions.Get(userID).Step == StepProcessing {
		return SelectOutcome{}, ErrRunInFlight
	}

	free := o.ledger.HasFreeUse(userID, spec)
	o.sessions.Set(userID, State{
		ModelID: spec.ID,
		Step:    StepAwaitingInput,
		Free:    free,
	})

	account := o.ledger.GetOrInit(userID)
	return SelectOutcome{Spec: spec, Free: free, Balance: account.Balance}, nil
}

// AttachImage stores the collected image payload and advances image-seeded
// sessions to the prompt step.
func (o *Orchestrator) AttachImage(userID int64, data []byte, publicURL string) error {
	st := o.sessions.Get(userID)
	if st.Step == StepProcessing {
		return ErrRunInFlight
	}
	if st.Step != StepAwaitingInput {
		return ErrNotAwaitingImage
	}
	spec, err := o.catalog.Get(st.ModelID)
	if err != nil {
		return err
	}
	if !spec.RequiresImage() {
		return ErrNotAwaitingImage
	}

	o.sessions.Mutate(userID, func(s *State) bool {
		s.Image = data
		s.ImageURL = publicURL
		s.Step = StepAwaitingPrompt
		return true
	})
	return nil
}

// SubmitPrompt performs the debit-or-quota bookkeeping and, on success,
// launches the run. This is the last point at which ErrInsufficientFunds can
// abort the flow, before any network call. The error is returned to the
// caller with the session already reset.
func (o *Orchestrator) SubmitPrompt(ctx context.Context, userID int64, prompt string) error {
	st := o.sessions.Get(userID)
	if st.Step == StepProcessing {
		return ErrRunInFlight
	}
	if st.Step != StepAwaitingInput && st.Step != StepAwaitingPrompt {
		return fmt.Errorf("no model selected")
	}
	spec, err := o.catalog.Get(st.ModelID)
	if err != nil {
		return err
	}
	if st.Step == StepAwaitingInput && spec.RequiresImage() {
		return ErrNotAwaitingImage
	}

	if !st.Free {
		if err := o.ledger.Debit(userID, spec.Price); err != nil {
			o.sessions.Reset(userID)
			return err
		}
	}
	// Counted before submission: an aborted run still consumes quota.
	o.ledger.RecordUsage(userID, spec.ID)

	o.sessions.Mutate(userID, func(s *State) bool {
		s.Prompt = prompt
		s.Step = StepProcessing
		return true
	})

	runCtx, cancel := context.WithCancel(ctx)
	handle := &runHandle{done: make(chan struct{}), cancel: cancel}
	o.mu.Lock()
	o.runs[userID] = handle
	o.mu.Unlock()

	st = o.sessions.Get(userID)
	go o.run(runCtx, userID, spec, st, handle)
	return nil
}

// RunDone reports the join handle for the user's in-flight run, if any.
func (o *Orchestrator) RunDone(userID int64) (<-chan struct{}, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	handle, ok := o.runs[userID]
	if !ok {
		return nil, false
	}
	return handle.done, true
}

// run executes one full generation attempt: submit, poll when asynchronous,
// fetch, deliver. Whatever happens, the session returns to idle.
func (o *Orchestrator) run(ctx context.Context, userID int64, spec models.ModelSpec, st State, handle *runHandle) {
	defer func() {
		o.sessions.Reset(userID)
		o.mu.Lock()
		delete(o.runs, userID)
		o.mu.Unlock()
		handle.cancel()
		close(handle.done)
	}()

	statusID, err := o.messenger.SendStatus(userID, "⚙️ Отправляю запрос в AI-систему...\n\nПожалуйста, подождите ⏳")
	if err != nil {
		o.log.Error("send status", "user_id", userID, "err", err)
	}

	var image *evolink.ImageInput
	if len(st.Image) > 0 || st.ImageURL != "" {
		image = &evolink.ImageInput{Bytes: st.Image, URL: st.ImageURL}
	}

	task, err := o.submitter.Submit(ctx, spec, st.Prompt, image)
	if err != nil {
		o.log.Error("submit generation", "user_id", userID, "model", spec.ID, "err", err)
		o.fail(userID, statusID, "❌ Не удалось создать задачу. Попробуйте позже или другой запрос.")
		return
	}

	artifactURL := task.ResultURL
	if task.Async() {
		o.messenger.EditStatus(userID, statusID, fmt.Sprintf("⏳ Задача создана!\n\nID: %s\nОжидание: ~%d секунд", task.TaskID, task.EstimatedSeconds))

		artifactURL, err = o.poller.AwaitCompletion(ctx, task.TaskID, spec.Media)
		if err != nil {
			o.log.Error("await task", "user_id", userID, "task_id", task.TaskID, "err", err)
			o.fail(userID, statusID, pollFailureText(err))
			return
		}
	}

	data, err := o.fetcher.Download(ctx, artifactURL)
	if err != nil {
		o.log.Error("download artifact", "user_id", userID, "err", err)
		o.fail(userID, statusID, "❌ Ошибка загрузки результата. Попробуйте позже.")
		return
	}

	o.messenger.DeleteStatus(userID, statusID)
	if err := o.messenger.SendArtifact(userID, spec.Media, data, caption(spec, st)); err != nil {
		o.log.Error("deliver artifact", "user_id", userID, "err", err)
		o.messenger.SendFailure(userID, "✅ Результат готов, но отправить файл не удалось. Попробуйте еще раз.")
		return
	}
	o.log.Info("generation delivered", "user_id", userID, "model", spec.ID, "cost", models.CostOf(st.Free), "bytes", len(data))
}

func (o *Orchestrator) fail(userID int64, statusID int, text string) {
	o.messenger.DeleteStatus(userID, statusID)
	o.messenger.SendFailure(userID, text)
}

func pollFailureText(err error) string {
	var taskErr *evolink.TaskFailedError
	switch {
	case errors.As(err, &taskErr):
		return fmt.Sprintf("❌ Генерация не удалась: %s", taskErr.Message)
	case errors.Is(err, evolink.ErrWaitTimeout):
		return "❌ Превышено время ожидания. Попробуйте другой запрос."
	default:
		return "❌ Не удалось получить результат. Попробуйте другой запрос."
	}
}

func caption(spec models.ModelSpec, st State) string {
	text := fmt.Sprintf("✅ %s\n\n", spec.Name)
	if st.Free {
		text += "🎁 Бесплатная генерация!\n\n"
	} else {
		text += fmt.Sprintf("💰 Стоимость: %d руб\n\n", spec.Price)
	}
	if st.Prompt != "" && len(st.Prompt) < 100 {
		text += fmt.Sprintf("✍️ Запрос: %s\n\n", st.Prompt)
	}
	text += "Используйте /start для нового запроса"
	return text
}
