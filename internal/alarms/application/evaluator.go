package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	alarms "fieldwatch/internal/alarms/domain"
	directory "fieldwatch/internal/directory/domain"
	"fieldwatch/internal/notify"
	"fieldwatch/internal/observability/metrics"
	telemetry "fieldwatch/internal/telemetry/domain"
)

// AlarmStore loads alarm rules and persists state transitions.
type AlarmStore interface {
	ListByPoint(ctx context.Context, pointID string) ([]alarms.Alarm, error)
	ListConnectionByClient(ctx context.Context, clientID string) ([]alarms.Alarm, error)
	SetActive(ctx context.Context, id string, active bool, now time.Time) error
}

// EventAppender records alarm activations.
type EventAppender interface {
	Insert(ctx context.Context, event *alarms.Event) error
}

// RecipientResolver resolves the users reachable through a group.
type RecipientResolver interface {
	ListGroupRecipients(ctx context.Context, groupID string) ([]directory.Recipient, error)
}

// Dispatcher hands messages to the notification pool.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg notify.Message)
}

// EventPublisher pushes activations to live subscribers.
type EventPublisher interface {
	Publish(event alarms.Event)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Evaluator runs alarm rules against fresh telemetry and connectivity state.
// Transitions are edge triggered: a rule that stays in the same state after
// an evaluation produces no new side effects.
type Evaluator struct {
	store      AlarmStore
	events     EventAppender
	recipients RecipientResolver
	dispatcher Dispatcher
	publisher  EventPublisher
	clock      Clock
	logger     *log.Logger
}

// EvaluatorOption customizes an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithClock overrides the wall clock.
func WithClock(clock Clock) EvaluatorOption {
	return func(e *Evaluator) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithEventPublisher wires a live stream for activations.
func WithEventPublisher(publisher EventPublisher) EvaluatorOption {
	return func(e *Evaluator) {
		e.publisher = publisher
	}
}

// NewEvaluator constructs an Evaluator.
func NewEvaluator(store AlarmStore, events EventAppender, recipients RecipientResolver, dispatcher Dispatcher, logger *log.Logger, opts ...EvaluatorOption) (*Evaluator, error) {
	if store == nil {
		return nil, errors.New("evaluator: nil alarm store")
	}
	if events == nil {
		return nil, errors.New("evaluator: nil event appender")
	}
	if recipients == nil {
		return nil, errors.New("evaluator: nil recipient resolver")
	}
	if dispatcher == nil {
		return nil, errors.New("evaluator: nil dispatcher")
	}
	if logger == nil {
		logger = log.Default()
	}
	e := &Evaluator{
		store:      store,
		events:     events,
		recipients: recipients,
		dispatcher: dispatcher,
		clock:      systemClock{},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// EvaluatePoint runs every point alarm bound to the point against its fresh
// value. Activation appends an event and notifies the alarm's group;
// deactivation is silent.
func (e *Evaluator) EvaluatePoint(ctx context.Context, point *telemetry.Point) error {
	if e == nil {
		return errors.New("evaluator: nil evaluator")
	}
	if point == nil {
		return errors.New("evaluator: nil point")
	}
	rules, err := e.store.ListByPoint(ctx, point.ID)
	if err != nil {
		return err
	}
	now := e.clock.Now().UTC()
	for i := range rules {
		alarm := &rules[i]
		met := conditionMet(alarm.Condition, alarm.Threshold, point.LastValue)
		if met == alarm.Active {
			continue
		}
		if err := e.store.SetActive(ctx, alarm.ID, met, now); err != nil {
			return err
		}
		if !met {
			metrics.IncAlarmTransition(metrics.TransitionInactive)
			e.logger.Printf("alarm %s cleared on point %s", alarm.Name, point.Name)
			continue
		}
		metrics.IncAlarmTransition(metrics.TransitionActive)
		event := alarms.Event{
			ID:        uuid.NewString(),
			Type:      alarms.EventTypeAlarm,
			PointID:   point.ID,
			GroupID:   alarm.GroupID,
			Value:     point.LastValue,
			CreatedAt: now,
		}
		if err := e.events.Insert(ctx, &event); err != nil {
			return err
		}
		if e.publisher != nil {
			e.publisher.Publish(event)
		}
		body := fmt.Sprintf("%s alarm activated: %s reported %+g", alarm.Name, point.Name, point.LastValue)
		e.notifyGroup(ctx, alarm.GroupID, body)
	}
	return nil
}

// EvaluateClientConnection runs every connection alarm bound to the client
// against the seconds elapsed since its last report. A client that has never
// reported counts as unreachable forever. Connection alarms notify on
// activation but never append events.
func (e *Evaluator) EvaluateClientConnection(ctx context.Context, client *directory.Client) error {
	if e == nil {
		return errors.New("evaluator: nil evaluator")
	}
	if client == nil {
		return errors.New("evaluator: nil client")
	}
	rules, err := e.store.ListConnectionByClient(ctx, client.ID)
	if err != nil {
		return err
	}
	now := e.clock.Now().UTC()
	elapsed := math.Inf(1)
	if !client.LastReportAt.IsZero() {
		elapsed = now.Sub(client.LastReportAt).Seconds()
	}
	for i := range rules {
		alarm := &rules[i]
		met := conditionMet(alarm.Condition, alarm.Threshold, elapsed)
		if met == alarm.Active {
			continue
		}
		if err := e.store.SetActive(ctx, alarm.ID, met, now); err != nil {
			return err
		}
		if !met {
			metrics.IncAlarmTransition(metrics.TransitionInactive)
			e.logger.Printf("alarm %s cleared on client %s", alarm.Name, client.Name)
			continue
		}
		metrics.IncAlarmTransition(metrics.TransitionActive)
		body := fmt.Sprintf("%s alarm activated: %s silent for %s", alarm.Name, client.Name, elapsedLabel(elapsed))
		e.notifyGroup(ctx, alarm.GroupID, body)
	}
	return nil
}

func (e *Evaluator) notifyGroup(ctx context.Context, groupID, body string) {
	if groupID == "" {
		return
	}
	recipients, err := e.recipients.ListGroupRecipients(ctx, groupID)
	if err != nil {
		e.logger.Printf("resolve recipients for group %s: %v", groupID, err)
		return
	}
	for _, recipient := range recipients {
		e.dispatcher.Dispatch(ctx, notify.Message{
			Phone:     recipient.Phone,
			Recipient: recipient.Name,
			Body:      body,
		})
	}
}

// conditionMet reports whether a rule fires for a value. The numeric
// comparisons are inclusive.
func conditionMet(condition alarms.Condition, threshold, value float64) bool {
	switch condition {
	case alarms.ConditionTrue:
		return telemetry.Truthy(value)
	case alarms.ConditionFalse:
		return !telemetry.Truthy(value)
	case alarms.ConditionGreater:
		return value >= threshold
	case alarms.ConditionLess:
		return value <= threshold
	default:
		return false
	}
}

func elapsedLabel(seconds float64) string {
	if math.IsInf(seconds, 1) {
		return "ever"
	}
	return fmt.Sprintf("%.0fs", seconds)
}
