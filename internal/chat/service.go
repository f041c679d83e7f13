package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/kassir/internal/admin"
	"github.com/zombor/kassir/internal/draft"
	"github.com/zombor/kassir/internal/journal"
	"github.com/zombor/kassir/internal/kassa"
	"github.com/zombor/kassir/internal/store"
)

var (
	ErrEmptyMessage       = errors.New("message is empty")
	ErrInvalidOperation   = errors.New("unknown operation type")
	ErrBusy               = errors.New("a request is already in progress")
	ErrNoDraft            = errors.New("no receipt draft is pending")
	ErrUnbalancedPayments = errors.New("payments do not add up to the total")
	ErrMessageNotFound    = errors.New("message not found")
	ErrInvalidFeedback    = errors.New("feedback_type must be positive or negative")
)

// IDGenerator generates unique IDs for messages and users
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// ReceiptAPI is the external receipt-processing backend
type ReceiptAPI interface {
	RequestPreview(ctx context.Context, req kassa.PreviewRequest) (*kassa.PreviewResponse, error)
	ConfirmReceipt(ctx context.Context, req kassa.ConfirmRequest, previous draft.Document) (*kassa.ConfirmResponse, error)
}

// SettingsSource provides the per-user configuration context
type SettingsSource interface {
	Context(userID, contextMessage string) kassa.Settings
	Configured(userID string) bool
}

// Journal records settled receipts and feedback votes
type Journal interface {
	RecordReceipt(ctx context.Context, e journal.Entry) (int64, error)
	RecordVote(ctx context.Context, v journal.Vote) error
	Votes(ctx context.Context, userID string) (map[string]string, error)
}

// FeedbackSink forwards votes to the feedback API
type FeedbackSink interface {
	Submit(ctx context.Context, fb admin.Feedback) error
}

// Publisher delivers transcript events to connected clients
type Publisher interface {
	Publish(userID string, ev Event)
}

// Event types sent to live clients
const (
	EventMessage = "message"
	EventRemoved = "removed"
	EventCleared = "cleared"
	EventState   = "state"
)

// Event is a transcript change pushed to live clients
type Event struct {
	Type    string   `json:"type"`
	Message *Message `json:"message,omitempty"`
	IDs     []string `json:"ids,omitempty"`
	State   State    `json:"state,omitempty"`
}

// Notice is the short status shown next to the chat, optionally with an action
type Notice struct {
	Kind   string `json:"kind"`
	Text   string `json:"text"`
	Action string `json:"action,omitempty"`
}

// Notice kinds
const (
	NoticeSuccess            = "success"
	NoticeInfo               = "info"
	NoticeConnection         = "connection"
	NoticeFailed             = "failed"
	NoticeMissingIntegration = "missing_integration"
	NoticeMissingEmail       = "missing_email"
)

// ActionSettings asks the client to open the settings page
const ActionSettings = "settings"

// DraftView is the pending draft as the editor shows it
type DraftView struct {
	State    State           `json:"state"`
	Pending  *Pending        `json:"pending,omitempty"`
	Receipt  draft.Document  `json:"receipt"`
	EditMode bool            `json:"edit_mode"`
	Balance  draft.Balance   `json:"balance"`
	Issues   []draft.Issue   `json:"issues"`
	Bulk     *draft.BulkCopy `json:"bulk,omitempty"`
}

// Result is what a chat action produced
type Result struct {
	Cleared  bool       `json:"cleared,omitempty"`
	Messages []Message  `json:"messages"`
	Draft    *DraftView `json:"draft,omitempty"`
	Notice   *Notice    `json:"notice,omitempty"`
	State    State      `json:"state"`
}

// Service runs the chat sessions
type Service struct {
	kv          store.KV
	debouncer   *store.Debouncer
	receipts    ReceiptAPI
	settings    SettingsSource
	journal     Journal
	feedback    FeedbackSink
	publisher   Publisher
	idGenerator IDGenerator
	timeSource  TimeSource

	mu       sync.Mutex
	sessions map[string]*session
}

// Deps groups the collaborators of a Service
type Deps struct {
	KV        store.KV
	Debouncer *store.Debouncer
	Receipts  ReceiptAPI
	Settings  SettingsSource
	Journal   Journal
	Feedback  FeedbackSink
	Publisher Publisher
}

// NewService creates a new Service with default ID generator and time source
func NewService(deps Deps) *Service {
	return NewServiceWithDeps(deps, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(deps Deps, idGen IDGenerator, timeSrc TimeSource) *Service {
	if deps.Debouncer == nil {
		deps.Debouncer = store.NewDebouncer(store.DefaultDebounce)
	}
	if deps.Publisher == nil {
		deps.Publisher = nopPublisher{}
	}
	return &Service{
		kv:          deps.KV,
		debouncer:   deps.Debouncer,
		receipts:    deps.Receipts,
		settings:    deps.Settings,
		journal:     deps.Journal,
		feedback:    deps.Feedback,
		publisher:   deps.Publisher,
		idGenerator: idGen,
		timeSource:  timeSrc,
		sessions:    make(map[string]*session),
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, Event) {}

// NewUserID issues an anonymous user id
func (s *Service) NewUserID() string {
	return "user_" + s.idGenerator.Generate()
}

// Close writes pending transcript changes
func (s *Service) Close() {
	s.debouncer.Stop()
}

func (s *Service) welcome(userID string) Message {
	return WelcomeMessage(s.settings.Configured(userID), s.timeSource.Now())
}

// session returns the user's session, restoring it from the store on first use
func (s *Service) session(userID string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[userID]; ok {
		return sess
	}

	key := func(name string) string { return store.UserKey(userID, name) }
	sess := &session{
		userID:         userID,
		transcript:     LoadTranscript(s.kv, key(store.KeyChatMessages), s.welcome(userID)),
		pending:        store.Load[*Pending](s.kv, key(store.KeyPendingReceipt), nil),
		edited:         store.Load[draft.Document](s.kv, key(store.KeyEditedData), nil),
		lastReceipt:    store.Load[draft.Document](s.kv, key(store.KeyLastReceiptData), nil),
		contextMessage: store.Load(s.kv, key(store.KeyContextMessage), ""),
		editMode:       store.Load(s.kv, key(store.KeyEditMode), false),
		state:          StateIdle,
	}
	if sess.pending != nil && sess.edited != nil {
		sess.state = StatePreviewReady
	} else {
		sess.discardDraft()
	}
	s.sessions[userID] = sess
	return sess
}

func (s *Service) newMessage(role Role, content string) Message {
	return Message{
		ID:        s.idGenerator.Generate(),
		Role:      role,
		Content:   content,
		Timestamp: s.timeSource.Now(),
	}
}

// persistTranscript schedules a debounced write of the conversation. The
// snapshot is taken now so the write never needs the session lock.
func (s *Service) persistTranscript(sess *session) {
	key := store.UserKey(sess.userID, store.KeyChatMessages)
	snapshot := sess.transcript.Persisted()
	s.debouncer.Schedule(key, func() {
		store.Save(s.kv, key, snapshot)
	})
}

// persistDraft writes the draft keys immediately
func (s *Service) persistDraft(sess *session) {
	key := func(name string) string { return store.UserKey(sess.userID, name) }

	if sess.pending == nil {
		store.Remove(s.kv, key(store.KeyPendingReceipt))
	} else {
		store.Save(s.kv, key(store.KeyPendingReceipt), sess.pending)
	}
	if sess.edited == nil {
		store.Remove(s.kv, key(store.KeyEditedData))
	} else {
		store.Save(s.kv, key(store.KeyEditedData), sess.edited)
	}
	if sess.lastReceipt == nil {
		store.Remove(s.kv, key(store.KeyLastReceiptData))
	} else {
		store.Save(s.kv, key(store.KeyLastReceiptData), sess.lastReceipt)
	}
	if sess.contextMessage == "" {
		store.Remove(s.kv, key(store.KeyContextMessage))
	} else {
		store.Save(s.kv, key(store.KeyContextMessage), sess.contextMessage)
	}
	store.Save(s.kv, key(store.KeyEditMode), sess.editMode)
}

func (s *Service) append(sess *session, m Message) {
	sess.transcript.Append(m)
	s.persistTranscript(sess)
	s.publisher.Publish(sess.userID, Event{Type: EventMessage, Message: &m})
}

func (s *Service) removePreviews(sess *session) {
	ids := sess.transcript.RemoveRole(RolePreview)
	if len(ids) == 0 {
		return
	}
	s.persistTranscript(sess)
	s.publisher.Publish(sess.userID, Event{Type: EventRemoved, IDs: ids})
}

func (s *Service) setState(sess *session, to State) {
	sess.moveTo(to)
	s.publisher.Publish(sess.userID, Event{Type: EventState, State: to})
}

func (s *Service) clear(sess *session) {
	key := store.UserKey(sess.userID, store.KeyChatMessages)
	sess.transcript.SetWelcome(s.welcome(sess.userID))
	sess.transcript.Clear()
	s.debouncer.Cancel(key)
	store.Remove(s.kv, key)
	s.publisher.Publish(sess.userID, Event{Type: EventCleared})
}

func (s *Service) draftView(sess *session) *DraftView {
	view := &DraftView{
		State:    sess.state,
		Pending:  sess.pending,
		Receipt:  sess.edited,
		EditMode: sess.editMode,
		Balance:  sess.edited.PaymentsBalance(),
		Issues:   sess.edited.Validate(),
	}
	if view.Issues == nil {
		view.Issues = []draft.Issue{}
	}
	if bulk, ok := sess.edited.Bulk(); ok {
		view.Bulk = &bulk
	}
	return view
}

// Messages returns the user's transcript
func (s *Service) Messages(userID string) []Message {
	sess := s.session(userID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.transcript.SetWelcome(s.welcome(userID))
	return sess.transcript.Messages()
}

// Clear removes the conversation, keeping the welcome message
func (s *Service) Clear(userID string) error {
	sess := s.session(userID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state.InFlight() {
		return ErrBusy
	}
	s.clear(sess)
	return nil
}

// Send handles a user message: a clear-history command, or a preview request
func (s *Service) Send(ctx context.Context, userID, text, operationType string) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if operationType == "" {
		operationType = string(draft.OperationSell)
	}
	if !draft.OperationType(operationType).Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidOperation, operationType)
	}

	sess := s.session(userID)
	sess.mu.Lock()

	if sess.state.InFlight() {
		sess.mu.Unlock()
		return nil, ErrBusy
	}

	if DetectIntent(text) == IntentClearHistory {
		s.clear(sess)
		state := sess.state
		sess.mu.Unlock()
		return &Result{
			Cleared:  true,
			Messages: []Message{},
			Notice:   &Notice{Kind: NoticeSuccess, Text: "История переписки очищена"},
			State:    state,
		}, nil
	}

	userMsg := s.newMessage(RoleUser, text)
	s.append(sess, userMsg)

	// a new message replaces whatever draft was on screen
	s.removePreviews(sess)
	sess.discardDraft()
	sess.reset()
	s.setState(sess, StateAwaitingPreview)
	s.persistDraft(sess)

	req := kassa.PreviewRequest{
		Message:         text,
		OperationType:   operationType,
		Settings:        s.settings.Context(userID, sess.contextMessage),
		PreviousReceipt: sess.lastReceipt,
	}
	sess.mu.Unlock()

	resp, err := s.receipts.RequestPreview(ctx, req)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	result := &Result{Messages: []Message{userMsg}}

	if err != nil {
		slog.Error("Preview request failed", "user", userID, "error", err)
		reply := s.newMessage(RoleAgent, textPreviewTransport)
		s.append(sess, reply)
		s.setState(sess, StateIdle)
		result.Messages = append(result.Messages, reply)
		result.Notice = &Notice{Kind: NoticeConnection, Text: "Ошибка соединения с сервером"}
		result.State = sess.state
		return result, nil
	}

	if kind := resp.Kind(); kind != kassa.PreviewSuccess {
		// unanswered requests accumulate so the next attempt carries them
		if sess.contextMessage == "" {
			sess.contextMessage = text
		} else {
			sess.contextMessage = sess.contextMessage + " " + text
		}

		reply := s.newMessage(RoleAgent, textErrorPrefix+resp.ErrorText())
		s.append(sess, reply)
		s.setState(sess, StateIdle)
		s.persistDraft(sess)

		result.Messages = append(result.Messages, reply)
		switch kind {
		case kassa.PreviewMissingIntegration:
			result.Notice = &Notice{Kind: NoticeMissingIntegration, Text: resp.Error, Action: ActionSettings}
		case kassa.PreviewMissingEmail:
			result.Notice = &Notice{Kind: NoticeMissingEmail, Text: "Не указан email", Action: ActionSettings}
		default:
			result.Notice = &Notice{Kind: NoticeFailed, Text: resp.Error}
		}
		result.State = sess.state
		return result, nil
	}

	detected := resp.OperationType
	if detected == "" {
		detected = operationType
	}
	doc := resp.Receipt.With(map[string]any{
		draft.FieldOperationType: detected,
		draft.FieldTypeName:      draft.OperationType(detected).Label(),
	}).RecomputeTotals()

	preview := s.newMessage(RolePreview, textPreview)
	preview.PreviewData = doc
	s.removePreviews(sess)
	s.append(sess, preview)

	sess.pending = &Pending{UserInput: text, OperationType: detected}
	sess.edited = doc
	sess.lastReceipt = resp.Receipt
	sess.contextMessage = ""
	s.setState(sess, StatePreviewReady)
	s.persistDraft(sess)

	result.Messages = append(result.Messages, preview)
	result.Draft = s.draftView(sess)
	result.Notice = &Notice{Kind: NoticeInfo, Text: "Проверь данные и подтверди отправку"}
	result.State = sess.state
	return result, nil
}

// Draft returns the pending draft
func (s *Service) Draft(userID string) (*DraftView, error) {
	sess := s.session(userID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.pending == nil || sess.edited == nil {
		return nil, ErrNoDraft
	}
	return s.draftView(sess), nil
}

// SetField edits one value of the pending draft. Item edits recompute the total.
func (s *Service) SetField(userID string, path draft.Path, value any) (*DraftView, error) {
	sess := s.session(userID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state.InFlight() {
		return nil, ErrBusy
	}
	if sess.state != StatePreviewReady {
		return nil, ErrNoDraft
	}

	doc, err := sess.edited.SetField(path, value)
	if err != nil {
		return nil, fmt.Errorf("setting %s: %w", path, err)
	}
	if path.Touches(draft.Key(draft.FieldItems)) {
		doc = doc.RecomputeTotals()
	}
	sess.edited = doc
	s.persistDraft(sess)
	return s.draftView(sess), nil
}

// ToggleEdit switches the draft between read and edit mode
func (s *Service) ToggleEdit(userID string) (*DraftView, error) {
	sess := s.session(userID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state != StatePreviewReady {
		return nil, ErrNoDraft
	}
	sess.editMode = !sess.editMode
	s.persistDraft(sess)
	return s.draftView(sess), nil
}

// Cancel discards the pending draft
func (s *Service) Cancel(userID string) (*Result, error) {
	sess := s.session(userID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state.InFlight() {
		return nil, ErrBusy
	}
	if sess.state != StatePreviewReady {
		return nil, ErrNoDraft
	}

	s.removePreviews(sess)
	reply := s.newMessage(RoleAgent, textCancelled)
	s.append(sess, reply)

	sess.discardDraft()
	sess.lastReceipt = nil
	sess.contextMessage = ""
	s.setState(sess, StateIdle)
	s.persistDraft(sess)

	return &Result{
		Messages: []Message{reply},
		Notice:   &Notice{Kind: NoticeInfo, Text: "Отменено"},
		State:    sess.state,
	}, nil
}

// UnbalancedError carries the totals of a draft that cannot be submitted
type UnbalancedError struct {
	Balance draft.Balance
}

func (e *UnbalancedError) Error() string {
	return fmt.Sprintf("payments %s do not match total %s", e.Balance.Paid.StringFixed(2), e.Balance.Total.StringFixed(2))
}

// Is makes UnbalancedError match ErrUnbalancedPayments
func (e *UnbalancedError) Is(target error) bool {
	return target == ErrUnbalancedPayments
}

// Confirm submits the pending draft for fiscal processing
func (s *Service) Confirm(ctx context.Context, userID string) (*Result, error) {
	sess := s.session(userID)
	sess.mu.Lock()

	if sess.state.InFlight() {
		sess.mu.Unlock()
		return nil, ErrBusy
	}
	if sess.state != StatePreviewReady || sess.pending == nil {
		sess.mu.Unlock()
		return nil, ErrNoDraft
	}
	if len(sess.edited.Payments()) > 0 {
		if balance := sess.edited.PaymentsBalance(); !balance.Balanced {
			sess.mu.Unlock()
			return nil, &UnbalancedError{Balance: balance}
		}
	}

	s.removePreviews(sess)
	s.setState(sess, StateConfirming)

	now := s.timeSource.Now()
	pending := *sess.pending
	edited := sess.edited
	req := kassa.ConfirmRequest{
		Message:       pending.UserInput,
		OperationType: pending.OperationType,
		EditedData:    edited,
		ExternalID:    kassa.ExternalID(now),
		Settings:      s.settings.Context(userID, sess.contextMessage),
	}
	previous := sess.lastReceipt
	sess.mu.Unlock()

	resp, err := s.receipts.ConfirmReceipt(ctx, req, previous)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err != nil {
		slog.Error("Confirm request failed", "user", userID, "external_id", req.ExternalID, "error", err)
		reply := s.newMessage(RoleAgent, textConfirmTransport)
		reply.HasError = true
		s.append(sess, reply)

		// the draft survives so the user can retry
		preview := s.newMessage(RolePreview, textPreview)
		preview.PreviewData = sess.edited
		s.append(sess, preview)
		s.setState(sess, StatePreviewReady)

		return &Result{
			Messages: []Message{reply, preview},
			Draft:    s.draftView(sess),
			Notice:   &Notice{Kind: NoticeConnection, Text: "Ошибка соединения с сервером"},
			State:    sess.state,
		}, nil
	}

	var reply Message
	var notice *Notice
	if resp.Success {
		reply = s.newMessage(RoleAgent, textConfirmed)
		reply.ReceiptData = resp.Receipt
		reply.ReceiptUUID = resp.UUID
		reply.ReceiptPermalink = resp.Permalink
		notice = &Notice{Kind: NoticeSuccess, Text: "Чек успешно создан! Тип: " + draft.OperationType(pending.OperationType).Label()}
	} else {
		reason := resp.FailureText()
		reply = s.newMessage(RoleAgent, textFailurePrefix+reason)
		reply.HasError = true
		reply.ErrorMessage = reason
		notice = &Notice{Kind: NoticeFailed, Text: "Произошла ошибка при создании чека"}
	}
	s.append(sess, reply)

	s.record(ctx, userID, req, edited, resp)

	sess.discardDraft()
	sess.lastReceipt = nil
	sess.contextMessage = ""
	if resp.Success {
		s.setState(sess, StateSettledSuccess)
	} else {
		s.setState(sess, StateSettledFailure)
	}
	s.persistDraft(sess)

	return &Result{
		Messages: []Message{reply},
		Notice:   notice,
		State:    sess.state,
	}, nil
}

// record adds a settled receipt to the history. Failures only get logged.
func (s *Service) record(ctx context.Context, userID string, req kassa.ConfirmRequest, edited draft.Document, resp *kassa.ConfirmResponse) {
	if s.journal == nil {
		return
	}

	payload := edited
	if resp.Success && resp.Receipt != nil {
		payload = resp.Receipt
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Warn("Failed to encode receipt for history", "user", userID, "error", err)
	}

	entry := journal.Entry{
		UserID:          userID,
		ExternalID:      req.ExternalID,
		UUID:            resp.UUID,
		Permalink:       resp.Permalink,
		OperationType:   req.OperationType,
		UserMessage:     req.Message,
		Total:           edited.Total(),
		Success:         resp.Success,
		Payload:         data,
		CreatedAtMillis: s.timeSource.Now().UnixMilli(),
	}
	if !resp.Success {
		entry.ErrorMessage = resp.FailureText()
	}
	if _, err := s.journal.RecordReceipt(context.WithoutCancel(ctx), entry); err != nil {
		slog.Error("Failed to record receipt", "user", userID, "external_id", req.ExternalID, "error", err)
	}
}

// Feedback records a vote on a message and forwards it to the feedback API
func (s *Service) Feedback(ctx context.Context, userID, messageID, kind string) error {
	if !admin.ValidVote(kind) {
		return ErrInvalidFeedback
	}

	sess := s.session(userID)
	sess.mu.Lock()
	msg, ok := sess.transcript.Find(messageID)
	prompt := sess.transcript.PromptFor(messageID)
	sess.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
	}

	// the local vote is only kept once the feedback service accepted it
	if s.feedback != nil {
		err := s.feedback.Submit(ctx, admin.Feedback{
			MessageID:     messageID,
			UserMessage:   prompt,
			AgentResponse: msg.Content,
			FeedbackType:  kind,
		})
		if err != nil {
			return fmt.Errorf("submitting feedback: %w", err)
		}
	}

	if s.journal != nil {
		err := s.journal.RecordVote(ctx, journal.Vote{
			UserID:          userID,
			MessageID:       messageID,
			UserMessage:     prompt,
			AgentResponse:   msg.Content,
			FeedbackType:    kind,
			CreatedAtMillis: s.timeSource.Now().UnixMilli(),
		})
		if err != nil {
			return fmt.Errorf("recording vote: %w", err)
		}
	}
	return nil
}

// Votes returns the user's votes keyed by message id
func (s *Service) Votes(ctx context.Context, userID string) (map[string]string, error) {
	if s.journal == nil {
		return map[string]string{}, nil
	}
	votes, err := s.journal.Votes(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing votes: %w", err)
	}
	return votes, nil
}
