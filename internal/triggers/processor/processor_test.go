package processor

//go:generate mockgen -source=processor.go -destination=mocks/mocks.go -package=mocks TriggerStore,EventStore,ActionExecutor,Bus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"autoflow/internal/broker"
	eventmodels "autoflow/internal/events/models"
	"autoflow/internal/triggers/actions"
	"autoflow/internal/triggers/models"
	"autoflow/internal/triggers/processor/mocks"
)

const exchange = "automation.events"

type ProcessorSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	triggers  *mocks.MockTriggerStore
	events    *mocks.MockEventStore
	executor  *mocks.MockActionExecutor
	bus       *mocks.MockBus
	now       time.Time
	processor *Processor
	event     *eventmodels.DomainEvent
}

func TestProcessorSuite(t *testing.T) {
	suite.Run(t, new(ProcessorSuite))
}

func (s *ProcessorSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.triggers = mocks.NewMockTriggerStore(s.ctrl)
	s.events = mocks.NewMockEventStore(s.ctrl)
	s.executor = mocks.NewMockActionExecutor(s.ctrl)
	s.bus = mocks.NewMockBus(s.ctrl)
	s.now = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	s.processor = New(s.triggers, s.events, s.executor, s.bus, exchange,
		WithClock(func() time.Time { return s.now }),
		WithActionTimeout(time.Second),
	)
	s.event = &eventmodels.DomainEvent{
		ID:         uuid.New(),
		TenantID:   uuid.New(),
		EventType:  eventmodels.EventLeadCreated,
		EntityType: eventmodels.EntityLead,
		EntityID:   uuid.New(),
		Payload:    map[string]any{"source": "whatsapp"},
	}
}

func (s *ProcessorSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ProcessorSuite) trigger(name, conditions string, specs ...models.ActionSpec) *models.Trigger {
	raw, err := models.EncodeActions(specs...)
	s.Require().NoError(err)
	return &models.Trigger{
		ID:         uuid.New(),
		TenantID:   &s.event.TenantID,
		Name:       name,
		Event:      s.event.EventType,
		Conditions: models.Conditions(conditions),
		Actions:    raw,
		Active:     true,
	}
}

func actionSpec(t models.ActionType, description string) models.ActionSpec {
	return models.ActionSpec{Type: t, Description: description, Config: json.RawMessage(`{}`)}
}

func (s *ProcessorSuite) expectMatching(triggers ...*models.Trigger) {
	s.triggers.EXPECT().
		FindMatching(gomock.Any(), s.event.EventType, s.event.TenantID, models.MatchOrderCreated).
		Return(triggers, nil)
}

func (s *ProcessorSuite) expectMarked(n int64) {
	s.events.EXPECT().
		MarkProcessed(gomock.Any(), s.event.TenantID, s.event.EventType, s.event.EntityID, s.now).
		Return(n, nil)
}

func (s *ProcessorSuite) TestFailingActionDoesNotStopLaterActions() {
	ctx := context.Background()
	tr := s.trigger("log then notify", `{}`, actionSpec(models.ActionWebhook, "A"), actionSpec(models.ActionNotification, "B"))
	s.expectMatching(tr)

	gomock.InOrder(
		s.executor.EXPECT().
			Execute(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, sp models.ActionSpec, _ actions.Invocation) actions.ActionResult {
				s.Equal("A", sp.Description)
				return actions.ActionResult{
					Type:    sp.Type,
					Outcome: actions.Outcome{Status: actions.StatusFailed},
					Err:     errors.New("endpoint down"),
				}
			}),
		s.executor.EXPECT().
			Execute(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, sp models.ActionSpec, inv actions.Invocation) actions.ActionResult {
				s.Equal("B", sp.Description)
				s.Equal(tr.ID, inv.Trigger.ID)
				s.Equal(s.event.ID, inv.Event.ID)
				return actions.ActionResult{Type: sp.Type, Outcome: actions.Succeeded("sent")}
			}).Times(1),
	)
	s.triggers.EXPECT().RecordExecution(gomock.Any(), tr.ID, s.now, gomock.Any()).Return(nil).Times(1)
	s.expectMarked(1)

	report := s.processor.ProcessEvent(ctx, s.event)

	s.NoError(report.Err)
	s.Require().Len(report.Triggers, 1)
	got := report.Triggers[0]
	s.True(got.Executed)
	s.Require().Len(got.Actions, 2)
	s.Equal(0, got.Actions[0].Index)
	s.Equal(1, got.Actions[1].Index)
	s.Equal(1, got.FailedActions())
	s.Equal(int64(1), report.MarkedProcessed)
}

func (s *ProcessorSuite) TestConditionsNotMetSkipsActions() {
	tr := s.trigger("referrals only", `{"source":"referral"}`, actionSpec(models.ActionNotification, "n"))
	s.expectMatching(tr)
	s.expectMarked(1)

	report := s.processor.ProcessEvent(context.Background(), s.event)

	s.Require().Len(report.Triggers, 1)
	s.False(report.Triggers[0].Executed)
	s.Equal([]string{"source"}, report.Triggers[0].Conditions.Mismatched)
	s.Zero(report.Executed())
}

func (s *ProcessorSuite) TestMalformedTriggerIsIsolated() {
	badConditions := s.trigger("bad conditions", `"source=whatsapp"`, actionSpec(models.ActionActivity, "x"))
	badActions := s.trigger("bad actions", `{}`)
	badActions.Actions = json.RawMessage(`{"type":"webhook"}`)
	good := s.trigger("good", `{"source":"whatsapp"}`, actionSpec(models.ActionActivity, "ok"))
	s.expectMatching(badConditions, badActions, good)

	s.executor.EXPECT().Execute(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(actions.ActionResult{Type: models.ActionActivity, Outcome: actions.Succeeded("")})
	s.triggers.EXPECT().RecordExecution(gomock.Any(), good.ID, gomock.Any(), gomock.Any()).Return(nil)
	s.expectMarked(1)

	report := s.processor.ProcessEvent(context.Background(), s.event)

	s.Require().Len(report.Triggers, 3)
	s.ErrorIs(report.Triggers[0].Err, models.ErrInvalidConditions)
	s.ErrorIs(report.Triggers[1].Err, models.ErrInvalidActions)
	s.True(report.Triggers[2].Executed)
	s.NoError(report.Err)
}

func (s *ProcessorSuite) TestTriggerLookupFailureStillMarksProcessed() {
	s.triggers.EXPECT().FindMatching(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, errors.New("db down"))
	s.expectMarked(1)

	report := s.processor.ProcessEvent(context.Background(), s.event)

	s.Error(report.Err)
	s.Empty(report.Triggers)
	s.Equal(int64(1), report.MarkedProcessed)
}

func (s *ProcessorSuite) TestBookkeepingFailuresAreReported() {
	tr := s.trigger("t", `{}`, actionSpec(models.ActionActivity, "a"))
	s.expectMatching(tr)
	s.executor.EXPECT().Execute(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(actions.ActionResult{Outcome: actions.Succeeded("")})
	s.triggers.EXPECT().RecordExecution(gomock.Any(), tr.ID, gomock.Any(), gomock.Any()).Return(errors.New("deadlock"))
	s.events.EXPECT().MarkProcessed(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(int64(0), errors.New("db down"))

	report := s.processor.ProcessEvent(context.Background(), s.event)

	s.Require().Len(report.Triggers, 1)
	s.Error(report.Triggers[0].Err)
	s.True(report.Triggers[0].Executed)
	s.Error(report.Err)
}

func (s *ProcessorSuite) TestPriorityOrderIsPassedToStore() {
	p := New(s.triggers, s.events, s.executor, s.bus, exchange,
		WithMatchOrder(models.MatchOrderPriority),
		WithClock(func() time.Time { return s.now }),
	)
	s.triggers.EXPECT().
		FindMatching(gomock.Any(), s.event.EventType, s.event.TenantID, models.MatchOrderPriority).
		Return(nil, nil)
	s.expectMarked(0)

	p.ProcessEvent(context.Background(), s.event)
}

func (s *ProcessorSuite) TestEachActionRunsUnderTimeout() {
	tr := s.trigger("slow", `{}`, actionSpec(models.ActionWebhook, "slow"))
	p := New(s.triggers, s.events, s.executor, s.bus, exchange,
		WithActionTimeout(10*time.Millisecond),
		WithClock(func() time.Time { return s.now }),
	)
	s.expectMatching(tr)
	s.executor.EXPECT().Execute(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, sp models.ActionSpec, _ actions.Invocation) actions.ActionResult {
			<-ctx.Done()
			return actions.ActionResult{Type: sp.Type, Outcome: actions.Outcome{Status: actions.StatusFailed}, Err: ctx.Err()}
		})
	s.triggers.EXPECT().RecordExecution(gomock.Any(), tr.ID, gomock.Any(), gomock.Any()).Return(nil)
	s.expectMarked(1)

	report := p.ProcessEvent(context.Background(), s.event)

	s.Require().Len(report.Triggers, 1)
	s.ErrorIs(report.Triggers[0].Actions[0].Err, context.DeadlineExceeded)
}

func (s *ProcessorSuite) TestStartFailures() {
	ctx := context.Background()

	s.Run("connect failure", func() {
		s.bus.EXPECT().Connect(gomock.Any()).Return(broker.ErrConnection)
		err := s.processor.Start(ctx)
		s.ErrorIs(err, broker.ErrConnection)
		s.False(s.processor.IsRunning())
	})

	s.Run("subscribe failure", func() {
		s.bus.EXPECT().Connect(gomock.Any()).Return(nil)
		s.bus.EXPECT().Subscribe(gomock.Any(), exchange, SubscribePattern, gomock.Any(), broker.KindTopic).
			Return(nil, broker.ErrChannelNotInitialized)
		err := s.processor.Start(ctx)
		s.ErrorIs(err, broker.ErrChannelNotInitialized)
		s.False(s.processor.IsRunning())
	})
}

func (s *ProcessorSuite) TestIsRunningAnswersWhileStartIsConnecting() {
	entered, release := make(chan struct{}), make(chan struct{})
	s.bus.EXPECT().Connect(gomock.Any()).DoAndReturn(func(context.Context) error {
		close(entered)
		<-release
		return broker.ErrConnection
	}).Times(1)

	started := make(chan error, 1)
	go func() { started <- s.processor.Start(context.Background()) }()
	<-entered

	answered := make(chan bool, 1)
	go func() { answered <- s.processor.IsRunning() }()
	select {
	case running := <-answered:
		s.False(running)
	case <-time.After(time.Second):
		s.FailNow("IsRunning blocked behind a pending Start")
	}

	// a second Start while the first is connecting does not dial again
	s.NoError(s.processor.Start(context.Background()))

	close(release)
	s.ErrorIs(<-started, broker.ErrConnection)
	s.False(s.processor.IsRunning())
}

func (s *ProcessorSuite) TestStopWhenStoppedIsNoop() {
	s.processor.Stop()
	s.False(s.processor.IsRunning())
}
