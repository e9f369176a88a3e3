package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jakechorley/radflow/pkg/core/model"
)

type EventKind string

const (
	EventBiddingOpened   EventKind = "bidding_opened"
	EventOutbid          EventKind = "outbid"
	EventShiftAwarded    EventKind = "shift_awarded"
	EventShiftAssigned   EventKind = "shift_assigned"
	EventApprovalPending EventKind = "approval_pending"
	EventShiftExpired    EventKind = "shift_expired"
)

// Event describes something a radiologist should hear about
type Event struct {
	Kind     EventKind
	ShiftID  string
	Date     string
	Type     model.ShiftType
	Location string
	// Amount is the relevant bid amount, zero when not applicable
	Amount int
}

// NewEvent builds an event for the shift
func NewEvent(kind EventKind, shift model.Shift, amount int) Event {
	return Event{
		Kind:     kind,
		ShiftID:  shift.ID,
		Date:     shift.Date.Format(model.DateLayout),
		Type:     shift.Type,
		Location: shift.Location,
		Amount:   amount,
	}
}

// Subject is a one-line summary suitable for an email subject
func (e Event) Subject() string {
	switch e.Kind {
	case EventBiddingOpened:
		return fmt.Sprintf("Bidding open: %s %s at %s", e.Type, e.Date, e.Location)
	case EventOutbid:
		return fmt.Sprintf("You have been outbid: %s %s at %s", e.Type, e.Date, e.Location)
	case EventShiftAwarded:
		return fmt.Sprintf("Shift awarded: %s %s at %s", e.Type, e.Date, e.Location)
	case EventShiftAssigned:
		return fmt.Sprintf("Shift assigned: %s %s at %s", e.Type, e.Date, e.Location)
	case EventApprovalPending:
		return fmt.Sprintf("Awaiting approval: %s %s at %s", e.Type, e.Date, e.Location)
	case EventShiftExpired:
		return fmt.Sprintf("Shift closed unfilled: %s %s at %s", e.Type, e.Date, e.Location)
	}
	return fmt.Sprintf("Shift update: %s %s at %s", e.Type, e.Date, e.Location)
}

// Notifier delivers events to radiologists. Implementations must not block the caller;
// delivery failures are logged and never retried by the engine.
type Notifier interface {
	Notify(radiologistID int, event Event)
}

// ApprovalRequester asks an approver to sign off a winning bid. The shift stays in
// Pending Approval until the decision is recorded.
type ApprovalRequester interface {
	RequestApproval(ctx context.Context, shiftID string, amount int) error
}

// LogNotifier writes events to the log
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(radiologistID int, event Event) {
	n.logger.Info("Notification",
		zap.Int("radiologist_id", radiologistID),
		zap.String("event", string(event.Kind)),
		zap.String("shift_id", event.ShiftID),
		zap.String("subject", event.Subject()),
		zap.Int("amount", event.Amount))
}

// LogApprover records approval requests in the log for an administrator to act on
type LogApprover struct {
	logger *zap.Logger
}

func NewLogApprover(logger *zap.Logger) *LogApprover {
	return &LogApprover{logger: logger}
}

func (a *LogApprover) RequestApproval(ctx context.Context, shiftID string, amount int) error {
	a.logger.Warn("Approval required",
		zap.String("shift_id", shiftID),
		zap.Int("amount", amount))
	return nil
}
