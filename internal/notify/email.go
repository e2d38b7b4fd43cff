package notify

import (
	"context"
	"fmt"
	"strings"

	"commentary/api/internal/store"
	"commentary/api/internal/thread"
)

type mailer interface {
	IsConfigured() bool
	ThreadURL(commontableType, commontableID string) string
	SendCommentNotice(to []string, actorName, commontable, threadURL, body string) error
	SendReopenNotice(to []string, actorName, commontable, threadURL string) error
}

// AddressBook resolves a subscriber to an email address. ok is false for
// subscribers without one.
type AddressBook interface {
	Address(ctx context.Context, subscriber store.Ref) (address string, ok bool)
}

// DomainAddressBook addresses subscribers of the listed types. IDs that are
// already email addresses are used as is; other IDs become <id>@<Domain>.
type DomainAddressBook struct {
	Domain string
	Types  []string
}

func (b DomainAddressBook) Address(_ context.Context, subscriber store.Ref) (string, bool) {
	for _, typ := range b.Types {
		if typ != subscriber.Type {
			continue
		}
		if strings.Contains(subscriber.ID, "@") {
			return subscriber.ID, true
		}
		if b.Domain == "" {
			return "", false
		}
		return subscriber.ID + "@" + b.Domain, true
	}
	return "", false
}

// EmailNotifier mails notices to every recipient the AddressBook knows.
type EmailNotifier struct {
	mailer    mailer
	addresses AddressBook
}

func NewEmailNotifier(m mailer, addresses AddressBook) *EmailNotifier {
	return &EmailNotifier{mailer: m, addresses: addresses}
}

func (e *EmailNotifier) Notify(ctx context.Context, n thread.Notification) error {
	if !e.mailer.IsConfigured() || n.Commontable == nil {
		return nil
	}

	to := make([]string, 0, len(n.Recipients))
	for _, recipient := range n.Recipients {
		if address, ok := e.addresses.Address(ctx, recipient); ok {
			to = append(to, address)
		}
	}
	if len(to) == 0 {
		return nil
	}

	url := e.mailer.ThreadURL(n.Commontable.Type, n.Commontable.ID)
	switch n.Kind {
	case thread.NotificationCommentCreated:
		return e.mailer.SendCommentNotice(to, n.ActorName, n.Commontable.String(), url, n.Body)
	case thread.NotificationThreadReopened:
		return e.mailer.SendReopenNotice(to, n.ActorName, n.Commontable.String(), url)
	default:
		return fmt.Errorf("unsupported notification kind %q", n.Kind)
	}
}
