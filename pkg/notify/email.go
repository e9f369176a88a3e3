package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/jakechorley/radflow/pkg/core/model"
)

const defaultQueueSize = 256

// EmailSender sends one plain-text email
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// RadiologistLookup resolves a recipient's address
type RadiologistLookup interface {
	GetRadiologist(ctx context.Context, id int) (model.Radiologist, error)
}

type delivery struct {
	radiologistID int
	event         Event
}

// EmailNotifier queues events and mails them from a background worker, so Notify never waits
// on the mail API. When the queue is full the event is dropped and logged.
type EmailNotifier struct {
	sender    EmailSender
	directory RadiologistLookup
	logger    *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan delivery
	done   chan struct{}
	cancel context.CancelFunc
}

// NewEmailNotifier starts the delivery worker; call Close to drain and stop it
func NewEmailNotifier(sender EmailSender, directory RadiologistLookup, logger *zap.Logger, queueSize int) *EmailNotifier {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	n := &EmailNotifier{
		sender:    sender,
		directory: directory,
		logger:    logger,
		queue:     make(chan delivery, queueSize),
		done:      make(chan struct{}),
		cancel:    cancel,
	}
	go n.run(ctx)
	return n
}

func (n *EmailNotifier) Notify(radiologistID int, event Event) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return
	}
	select {
	case n.queue <- delivery{radiologistID: radiologistID, event: event}:
	default:
		n.logger.Warn("Notification queue full, dropping event",
			zap.Int("radiologist_id", radiologistID),
			zap.String("event", string(event.Kind)),
			zap.String("shift_id", event.ShiftID))
	}
}

// Close stops accepting events and waits for queued ones to be sent. Cancelling ctx abandons
// whatever is still queued.
func (n *EmailNotifier) Close(ctx context.Context) error {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.mu.Unlock()

	select {
	case <-n.done:
		return nil
	case <-ctx.Done():
		n.cancel()
		<-n.done
		return ctx.Err()
	}
}

func (n *EmailNotifier) run(ctx context.Context) {
	defer close(n.done)
	for d := range n.queue {
		if ctx.Err() != nil {
			continue
		}
		if err := n.deliver(ctx, d); err != nil {
			n.logger.Error("Failed to deliver notification",
				zap.Int("radiologist_id", d.radiologistID),
				zap.String("event", string(d.event.Kind)),
				zap.String("shift_id", d.event.ShiftID),
				zap.Error(err))
		}
	}
}

func (n *EmailNotifier) deliver(ctx context.Context, d delivery) error {
	rad, err := n.directory.GetRadiologist(ctx, d.radiologistID)
	if err != nil {
		return err
	}
	if rad.Email == "" {
		n.logger.Debug("No email on file, skipping notification", zap.Int("radiologist_id", rad.ID))
		return nil
	}
	return n.sender.SendEmail(ctx, rad.Email, d.event.Subject(), Body(rad.Name, d.event))
}

// Body renders the email text for an event
func Body(name string, e Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", name)
	switch e.Kind {
	case EventBiddingOpened:
		fmt.Fprintf(&b, "Bidding is open for the %s shift on %s at %s.\n", e.Type, e.Date, e.Location)
		if e.Amount > 0 {
			fmt.Fprintf(&b, "The minimum bid is $%d.\n", e.Amount)
		}
	case EventOutbid:
		fmt.Fprintf(&b, "Your bid on the %s shift on %s at %s has been outbid. The high bid is now $%d.\n", e.Type, e.Date, e.Location, e.Amount)
	case EventShiftAwarded:
		fmt.Fprintf(&b, "You won the %s shift on %s at %s for $%d.\n", e.Type, e.Date, e.Location, e.Amount)
	case EventShiftAssigned:
		fmt.Fprintf(&b, "You have been assigned the %s shift on %s at %s.\n", e.Type, e.Date, e.Location)
	case EventApprovalPending:
		fmt.Fprintf(&b, "Your winning bid of $%d for the %s shift on %s at %s is awaiting approval.\n", e.Amount, e.Type, e.Date, e.Location)
	case EventShiftExpired:
		fmt.Fprintf(&b, "The %s shift on %s at %s closed without being filled.\n", e.Type, e.Date, e.Location)
	default:
		fmt.Fprintf(&b, "The %s shift on %s at %s has been updated.\n", e.Type, e.Date, e.Location)
	}
	fmt.Fprintf(&b, "\nShift reference: %s\n", e.ShiftID)
	return b.String()
}

// EmailApprover mails approval requests to a single approver address
type EmailApprover struct {
	sender EmailSender
	to     string
	logger *zap.Logger
}

func NewEmailApprover(sender EmailSender, to string, logger *zap.Logger) *EmailApprover {
	return &EmailApprover{sender: sender, to: to, logger: logger}
}

func (a *EmailApprover) RequestApproval(ctx context.Context, shiftID string, amount int) error {
	subject := fmt.Sprintf("Approval required: shift %s at $%d", shiftID, amount)
	body := fmt.Sprintf("A winning bid of $%d on shift %s exceeds the approval threshold or monthly budget.\n\n"+
		"Approve or reject it with:\n  radflow approveShift --id %s --approve\n  radflow approveShift --id %s --reject\n",
		amount, shiftID, shiftID, shiftID)

	if err := a.sender.SendEmail(ctx, a.to, subject, body); err != nil {
		return fmt.Errorf("failed to request approval for shift %s: %w", shiftID, err)
	}
	a.logger.Info("Approval requested", zap.String("shift_id", shiftID), zap.Int("amount", amount), zap.String("approver", a.to))
	return nil
}
