package monitor

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"

	"concierge-automation/internal/common/errors"
	"concierge-automation/internal/models"
)

// MailboxClient fetches new messages from one account. Implementations
// are polled by the email monitor loop.
type MailboxClient interface {
	FetchUnread(ctx context.Context) ([]*models.InboundEmail, error)
	Close() error
}

// IMAPConfig holds one mailbox account.
type IMAPConfig struct {
	Server   string `json:"server"`
	Username string `json:"username"`
	Password string `json:"password"`
	Folder   string `json:"folder"`
}

func (c *IMAPConfig) Validate() error {
	if c.Server == "" {
		return errors.ConfigError("imap server is required")
	}
	if c.Username == "" {
		return errors.ConfigError("imap username is required")
	}
	if c.Folder == "" {
		c.Folder = "INBOX"
	}
	return nil
}

// IMAPMailbox reads unseen messages over IMAP, marking fetched messages
// as seen so a healthy mailbox is drained exactly once.
type IMAPMailbox struct {
	config IMAPConfig
	userID string
	client *client.Client
}

func NewIMAPMailbox(config IMAPConfig, userID string) (*IMAPMailbox, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &IMAPMailbox{config: config, userID: userID}, nil
}

func (m *IMAPMailbox) connect() error {
	if m.client != nil {
		if state := m.client.State(); state == imap.AuthenticatedState || state == imap.SelectedState {
			return nil
		}
		m.client.Logout()
		m.client = nil
	}

	c, err := client.DialTLS(m.config.Server, nil)
	if err != nil {
		return errors.ConnectionError("failed to connect to imap server", err)
	}
	if err := c.Login(m.config.Username, m.config.Password); err != nil {
		c.Logout()
		return errors.ConnectionError("imap login failed", err)
	}
	m.client = c
	return nil
}

func (m *IMAPMailbox) FetchUnread(ctx context.Context) ([]*models.InboundEmail, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.connect(); err != nil {
		return nil, err
	}

	if _, err := m.client.Select(m.config.Folder, false); err != nil {
		return nil, errors.ConnectionError("failed to select imap folder", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	ids, err := m.client.Search(criteria)
	if err != nil {
		return nil, errors.ConnectionError("imap search failed", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	section, _ := imap.ParseBodySectionName("BODY[]")
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- m.client.Fetch(seqset, items, messages)
	}()

	var emails []*models.InboundEmail
	for msg := range messages {
		emails = append(emails, m.convertMessage(msg, section))
	}
	if err := <-done; err != nil {
		return nil, errors.ConnectionError("imap fetch failed", err)
	}

	// mark fetched messages seen so the next poll skips them
	flagItem := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := m.client.Store(seqset, flagItem, []interface{}{imap.SeenFlag}, nil); err != nil {
		return emails, errors.ConnectionError("failed to mark messages seen", err)
	}
	return emails, nil
}

func (m *IMAPMailbox) convertMessage(msg *imap.Message, section *imap.BodySectionName) *models.InboundEmail {
	email := &models.InboundEmail{
		UserID:     m.userID,
		MessageID:  fmt.Sprintf("%s-%d", m.config.Username, msg.Uid),
		ReceivedAt: time.Now(),
	}
	if msg.Envelope != nil {
		email.Subject = msg.Envelope.Subject
		email.ReceivedAt = msg.Envelope.Date
		if len(msg.Envelope.From) > 0 {
			from := msg.Envelope.From[0]
			email.From = fmt.Sprintf("%s@%s", from.MailboxName, from.HostName)
		}
		if msg.Envelope.MessageId != "" {
			email.MessageID = msg.Envelope.MessageId
		}
	}
	if body := msg.GetBody(section); body != nil {
		email.Body = readPlainText(body)
	}
	return email
}

// readPlainText extracts the first text/plain part of a MIME message.
func readPlainText(r io.Reader) string {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return ""
	}
	for {
		part, err := mr.NextPart()
		if err != nil {
			return ""
		}
		if header, ok := part.Header.(*mail.InlineHeader); ok {
			contentType, _, _ := header.ContentType()
			if contentType == "" || strings.Contains(contentType, "text/plain") {
				data, _ := io.ReadAll(part.Body)
				return string(data)
			}
		}
	}
}

func (m *IMAPMailbox) Close() error {
	if m.client == nil {
		return nil
	}
	err := m.client.Logout()
	m.client = nil
	return err
}
