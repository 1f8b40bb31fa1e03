// Package trigger lets other systems ask the console for an immediate
// synchronization or violation scan over Google Cloud Pub/Sub.
package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/smarttraffic/console/internal/traffic"
)

// Job types.
const (
	JobTrafficRefresh    = "traffic_refresh"
	JobViolationScan     = "violation_scan"
	JobViolationsRefresh = "violations_refresh"
	JobHealthCheck       = "health_check"
)

// ErrMalformed is returned for a message that is not a valid job.
var ErrMalformed = errors.New("malformed trigger message")

// Message is the JSON payload of a trigger.
type Message struct {
	JobType        string `json:"job_type"`
	IntersectionID string `json:"intersection_id,omitempty"`
}

// Target is what triggers act on. *traffic.Synchronizer satisfies it.
type Target interface {
	Refresh(ctx context.Context) bool
	CheckViolations(ctx context.Context, id string) (bool, error)
	RefreshViolations(ctx context.Context)
}

// Outcome tells the subscriber whether to acknowledge a message.
type Outcome int

const (
	// Ack removes the message.
	Ack Outcome = iota
	// Nack asks for redelivery.
	Nack
)

// Dispatcher turns trigger messages into synchronizer calls.
type Dispatcher struct {
	target Target
	logger zerolog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(target Target, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{target: target, logger: logger}
}

// Dispatch runs the job in data. Jobs that cannot succeed on redelivery
// (unknown types, unknown intersections, failed backend calls the next poll
// will retry anyway) are acknowledged.
func (d *Dispatcher) Dispatch(ctx context.Context, data []byte) (Outcome, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Nack, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	logger := d.logger.With().Str("job_type", msg.JobType).Logger()

	switch msg.JobType {
	case JobTrafficRefresh:
		if !d.target.Refresh(ctx) {
			logger.Warn().Msg("triggered refresh did not update intersections")
		}
	case JobViolationScan:
		found, err := d.target.CheckViolations(ctx, msg.IntersectionID)
		if err != nil {
			logger.Warn().Err(err).Str("intersection_id", msg.IntersectionID).Msg("violation scan rejected")
			return Ack, err
		}
		logger.Info().Str("intersection_id", msg.IntersectionID).Bool("found", found).Msg("violation scan completed")
	case JobViolationsRefresh:
		d.target.RefreshViolations(ctx)
	case JobHealthCheck:
		logger.Debug().Msg("health check")
	default:
		logger.Warn().Msg("unknown job type")
		return Ack, fmt.Errorf("%w: unknown job type %q", ErrMalformed, msg.JobType)
	}
	return Ack, nil
}

// Subscriber receives trigger messages from a Pub/Sub subscription.
type Subscriber struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	dispatcher       *Dispatcher
	logger           zerolog.Logger
}

// SubscriberConfig holds configuration for the Subscriber.
type SubscriberConfig struct {
	ProjectID        string
	SubscriptionName string
	Target           Target
	Logger           zerolog.Logger
}

var _ Target = (*traffic.Synchronizer)(nil)

// NewSubscriber creates a Subscriber.
func NewSubscriber(ctx context.Context, cfg SubscriberConfig) (*Subscriber, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Triggers are cheap and idempotent; a handful in flight is plenty.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 4
	subscriber.ReceiveSettings.MaxExtension = time.Minute

	return &Subscriber{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		dispatcher:       NewDispatcher(cfg.Target, cfg.Logger),
		logger:           cfg.Logger,
	}, nil
}

// Start processes messages until ctx is cancelled.
func (s *Subscriber) Start(ctx context.Context) error {
	s.logger.Info().
		Str("subscription", s.subscriptionName).
		Msg("starting trigger subscriber")

	return s.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		s.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (s *Subscriber) Close() error {
	return s.client.Close()
}

func (s *Subscriber) handleMessage(ctx context.Context, msg *pubsub.Message) {
	start := time.Now()
	logger := s.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	outcome, err := s.dispatcher.Dispatch(ctx, msg.Data)
	if err != nil {
		logger.Error().Err(err).Msg("trigger failed")
	} else {
		logger.Info().Dur("duration", time.Since(start)).Msg("trigger handled")
	}

	if outcome == Nack {
		msg.Nack()
		return
	}
	msg.Ack()
}
