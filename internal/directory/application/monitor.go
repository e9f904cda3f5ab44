package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	directory "fieldwatch/internal/directory/domain"
	"fieldwatch/internal/notify"
	"fieldwatch/internal/observability/metrics"
)

// ClientStore lists clients and persists connectivity flips.
type ClientStore interface {
	List(ctx context.Context) ([]directory.Client, error)
	SetConnected(ctx context.Context, id string, connected bool, now time.Time) error
}

// RecipientResolver resolves the users reachable from a client through its
// points' groups.
type RecipientResolver interface {
	ListClientRecipients(ctx context.Context, clientID string) ([]directory.Recipient, error)
}

// Dispatcher hands messages to the notification pool.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg notify.Message)
}

// ConnectionEvaluator runs connection alarms for a client.
type ConnectionEvaluator interface {
	EvaluateClientConnection(ctx context.Context, client *directory.Client) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// ConnectivityMonitor derives each client's online state from its report
// recency. A flip persists the new state and notifies the users reachable
// through the client's points exactly once per edge.
type ConnectivityMonitor struct {
	clients    ClientStore
	recipients RecipientResolver
	dispatcher Dispatcher
	evaluator  ConnectionEvaluator
	timeout    time.Duration
	clock      Clock
	logger     *log.Logger
}

// MonitorOption customizes a ConnectivityMonitor.
type MonitorOption func(*ConnectivityMonitor)

// WithClock overrides the wall clock.
func WithClock(clock Clock) MonitorOption {
	return func(m *ConnectivityMonitor) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithConnectionEvaluator runs connection alarms on every check pass.
func WithConnectionEvaluator(evaluator ConnectionEvaluator) MonitorOption {
	return func(m *ConnectivityMonitor) {
		m.evaluator = evaluator
	}
}

// NewConnectivityMonitor constructs a monitor. timeout is the heartbeat
// window after which a silent client counts as offline.
func NewConnectivityMonitor(clients ClientStore, recipients RecipientResolver, dispatcher Dispatcher, timeout time.Duration, logger *log.Logger, opts ...MonitorOption) (*ConnectivityMonitor, error) {
	if clients == nil {
		return nil, errors.New("connectivity monitor: nil client store")
	}
	if recipients == nil {
		return nil, errors.New("connectivity monitor: nil recipient resolver")
	}
	if dispatcher == nil {
		return nil, errors.New("connectivity monitor: nil dispatcher")
	}
	if timeout <= 0 {
		return nil, errors.New("connectivity monitor: non-positive timeout")
	}
	if logger == nil {
		logger = log.Default()
	}
	m := &ConnectivityMonitor{
		clients:    clients,
		recipients: recipients,
		dispatcher: dispatcher,
		timeout:    timeout,
		clock:      systemClock{},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// CheckAll recomputes every client's online state and returns the refreshed
// listing. Disabled clients are left as the disable cascade put them.
func (m *ConnectivityMonitor) CheckAll(ctx context.Context) ([]directory.Client, error) {
	if m == nil {
		return nil, errors.New("connectivity monitor: nil monitor")
	}
	clients, err := m.clients.List(ctx)
	if err != nil {
		return nil, err
	}
	now := m.clock.Now().UTC()
	for i := range clients {
		client := &clients[i]
		if !client.Enabled {
			continue
		}
		online := !client.Stale(now, m.timeout)
		if online != client.Connected {
			if err := m.clients.SetConnected(ctx, client.ID, online, now); err != nil {
				return nil, err
			}
			client.Connected = online
			m.notifyFlip(ctx, client, online)
		}
		if m.evaluator != nil {
			if err := m.evaluator.EvaluateClientConnection(ctx, client); err != nil {
				m.logger.Printf("connection alarms for client %s: %v", client.Name, err)
			}
		}
	}
	return clients, nil
}

// Run sweeps on a fixed interval until the context is canceled. All flips go
// through this single goroutine plus request-path calls to CheckAll; the
// store update is a plain idempotent write either way.
func (m *ConnectivityMonitor) Run(ctx context.Context, interval time.Duration) {
	if m == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.CheckAll(ctx); err != nil {
				m.logger.Printf("connectivity sweep: %v", err)
			}
		}
	}
}

func (m *ConnectivityMonitor) notifyFlip(ctx context.Context, client *directory.Client, online bool) {
	state := metrics.StateOffline
	verb := "went offline"
	if online {
		state = metrics.StateOnline
		verb = "is back online"
	}
	metrics.IncConnectivityFlip(state)
	m.logger.Printf("client %s %s", client.Name, verb)

	recipients, err := m.recipients.ListClientRecipients(ctx, client.ID)
	if err != nil {
		m.logger.Printf("resolve recipients for client %s: %v", client.Name, err)
		return
	}
	body := fmt.Sprintf("%s %s", client.Name, verb)
	for _, recipient := range recipients {
		m.dispatcher.Dispatch(ctx, notify.Message{
			Phone:     recipient.Phone,
			Recipient: recipient.Name,
			Body:      body,
		})
	}
}
