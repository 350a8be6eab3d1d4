package notifications

import (
	"fmt"
	"html"

	"github.com/seatline/backend/internal/models"
)

// Message is a rendered notification ready for a Mailer.
type Message struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

const dateLayout = "Mon, 02 Jan 2006 15:04 MST"

// Render builds the message for a notice kind addressed to user about event.
func Render(kind models.NotificationKind, user *models.User, event *models.Event) (Message, error) {
	name := user.FullName
	if name == "" {
		name = user.Email
	}
	title := event.Title
	date := event.Date.UTC().Format(dateLayout)

	var subject, text, markup string
	switch kind {
	case models.NotificationConfirmation:
		subject = "Event Confirmation"
		text = fmt.Sprintf("You have been confirmed for the event %q scheduled on %s.", title, date)
		markup = fmt.Sprintf("You have been <strong>confirmed</strong> for the event \"<strong>%s</strong>\" scheduled on <strong>%s</strong>.",
			html.EscapeString(title), date)
	case models.NotificationWaiting:
		subject = "Added to Waiting List"
		text = fmt.Sprintf("You have been added to the waiting list for the event %q scheduled on %s.", title, date)
		markup = fmt.Sprintf("You have been added to the <strong>waiting list</strong> for the event \"<strong>%s</strong>\" scheduled on <strong>%s</strong>.",
			html.EscapeString(title), date)
	case models.NotificationPromotion:
		subject = "Promotion to Confirmed Participant"
		text = fmt.Sprintf("Good news! You've been moved from the waiting list to confirmed for the event %q scheduled on %s.", title, date)
		markup = fmt.Sprintf("Good news! You've been moved from the <strong>waiting list</strong> to <strong>confirmed</strong> for the event \"<strong>%s</strong>\" scheduled on <strong>%s</strong>.",
			html.EscapeString(title), date)
	case models.NotificationCancellation:
		subject = "Registration Cancelled"
		text = fmt.Sprintf("Your registration for the event %q scheduled on %s has been cancelled.", title, date)
		markup = fmt.Sprintf("Your registration for the event \"<strong>%s</strong>\" scheduled on <strong>%s</strong> has been <strong>cancelled</strong>.",
			html.EscapeString(title), date)
	default:
		return Message{}, fmt.Errorf("unknown notification kind %q", kind)
	}

	return Message{
		To:       user.Email,
		Subject:  subject,
		TextBody: fmt.Sprintf("Hello %s,\n\n%s", name, text),
		HTMLBody: fmt.Sprintf("<p>Hello %s,</p><p>%s</p>", html.EscapeString(name), markup),
	}, nil
}
