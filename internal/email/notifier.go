package email

import (
	"context"
	"fmt"
	"log"

	"quorum/api/internal/engine"
	"quorum/api/internal/store"
)

// Directory resolves user ids to addressable users.
type Directory interface {
	UserByID(ctx context.Context, id int64) (store.User, error)
}

// Notifier turns engine notification events into mail. An unconfigured
// service makes every dispatch a logged no-op so local environments work
// without SMTP.
type Notifier struct {
	mail  *Service
	users Directory
}

func NewNotifier(mail *Service, users Directory) *Notifier {
	return &Notifier{mail: mail, users: users}
}

func (n *Notifier) CollaboratorAdded(ctx context.Context, event store.TrainingEvent, userID int64) error {
	return n.sendToUser(ctx, userID, event,
		"You were added as a collaborator",
		"You have been added as a collaborator on a training event.")
}

func (n *Notifier) PocAdded(ctx context.Context, event store.TrainingEvent, userID int64) error {
	return n.sendToUser(ctx, userID, event,
		"You were added as a point of contact",
		"You have been added as a point of contact on a training event.")
}

func (n *Notifier) SessionCreated(ctx context.Context, event store.TrainingEvent, session store.TrainingSession) error {
	return n.sendToUser(ctx, event.OwnerID, event,
		"A session was created",
		fmt.Sprintf("Session %d was added to your training event.", session.ID))
}

func (n *Notifier) SessionCompleted(ctx context.Context, event store.TrainingEvent, session store.TrainingSession) error {
	return n.sendToUsers(ctx, event.PocIDs, event,
		"A session is complete",
		fmt.Sprintf("Session %d on your training event has been marked complete.", session.ID))
}

func (n *Notifier) SessionPocComplete(ctx context.Context, event store.TrainingEvent, session store.TrainingSession) error {
	return n.sendToUser(ctx, event.OwnerID, event,
		"Point of contact sign-off",
		fmt.Sprintf("The point of contact signed off on session %d.", session.ID))
}

func (n *Notifier) EventCompleted(ctx context.Context, event store.TrainingEvent) error {
	return n.sendToUsers(ctx, event.PocIDs, event,
		"Training event complete",
		"A training event you are the point of contact for has been marked complete.")
}

func (n *Notifier) PocSignOff(ctx context.Context, event store.TrainingEvent) error {
	return n.sendToUser(ctx, event.OwnerID, event,
		"Point of contact sign-off",
		"The point of contact signed off on your training event.")
}

func (n *Notifier) sendToUsers(ctx context.Context, userIDs store.IDList, event store.TrainingEvent, subject, body string) error {
	for _, id := range userIDs {
		if err := n.sendToUser(ctx, id, event, subject, body); err != nil {
			return err
		}
	}
	return nil
}

func (n *Notifier) sendToUser(ctx context.Context, userID int64, event store.TrainingEvent, subject, body string) error {
	if userID == 0 {
		return nil
	}
	if !n.mail.IsConfigured() {
		log.Printf("email: skip %q for user %d, smtp not configured", subject, userID)
		return nil
	}
	user, err := n.users.UserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolve user %d: %w", userID, err)
	}
	return n.mail.SendNotification([]string{user.Email}, subject, NotificationData{
		AppName:   "Quorum",
		Heading:   subject,
		Body:      body,
		EventName: eventName(event),
	})
}

func eventName(event store.TrainingEvent) string {
	payload, err := engine.DecodePayload(event.Data)
	if err != nil {
		return ""
	}
	return payload.EventName()
}
