package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/avertine/storefront-backend/pkg/config"
	"github.com/avertine/storefront-backend/pkg/enums"
	pkgerrors "github.com/avertine/storefront-backend/pkg/errors"
	"github.com/avertine/storefront-backend/pkg/logger"
)

var (
	errAPIKeyRequired      = errors.New("sendgrid api key is required")
	errFromRequired        = errors.New("sendgrid from email is required")
	errMailerLoggerMissing = errors.New("sendgrid logger is required")
)

// Client sends transactional email through SendGrid dynamic templates.
type Client struct {
	sg        *sendgrid.Client
	fromEmail string
	fromName  string
	templates map[enums.EmailTemplate]string
	logger    *logger.Logger
}

// NewClient initializes the SendGrid wrapper and validates the credentials.
func NewClient(cfg config.SendgridConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errMailerLoggerMissing
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	fromEmail := strings.TrimSpace(cfg.DefaultFrom)
	if fromEmail == "" {
		return nil, errFromRequired
	}

	return &Client{
		sg:        sendgrid.NewSendClient(apiKey),
		fromEmail: fromEmail,
		fromName:  strings.TrimSpace(cfg.FromName),
		templates: map[enums.EmailTemplate]string{
			enums.EmailTemplateOrderConfirmation: cfg.TemplateOrderConfirmation,
			enums.EmailTemplateInvoice:           cfg.TemplateInvoice,
			enums.EmailTemplateShipment:          cfg.TemplateShipment,
			enums.EmailTemplateCreditPurchase:    cfg.TemplateCreditPurchase,
			enums.EmailTemplateWelcome:           cfg.TemplateWelcome,
		},
		logger: logg,
	}, nil
}

// Send delivers one message and returns the SendGrid message id.
func (c *Client) Send(ctx context.Context, msg Message) (string, error) {
	templateID := strings.TrimSpace(c.templates[msg.Template])
	if templateID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("no sendgrid template configured for %q", msg.Template))
	}
	recipient := strings.TrimSpace(msg.Recipient)
	if recipient == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "email recipient is required")
	}

	email := sgmail.NewV3Mail()
	email.SetFrom(sgmail.NewEmail(c.fromName, c.fromEmail))
	email.SetTemplateID(templateID)

	personalization := sgmail.NewPersonalization()
	personalization.AddTos(sgmail.NewEmail("", recipient))
	for key, value := range msg.Variables {
		personalization.SetDynamicTemplateData(key, value)
	}
	email.AddPersonalizations(personalization)

	resp, err := c.sg.SendWithContext(ctx, email)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("sendgrid send %s failed", msg.Template))
	}
	if resp.StatusCode >= 400 {
		err := fmt.Errorf("sendgrid returned status %d: %s", resp.StatusCode, strings.TrimSpace(resp.Body))
		if resp.StatusCode < 500 {
			return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("sendgrid rejected %s", msg.Template))
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("sendgrid send %s failed", msg.Template))
	}

	messageID := messageIDFromHeaders(resp.Headers)
	c.logger.Info(c.logger.WithFields(ctx, map[string]any{
		"template":   msg.Template.String(),
		"message_id": messageID,
	}), "email delivered")
	return messageID, nil
}

func messageIDFromHeaders(headers map[string][]string) string {
	for key, values := range headers {
		if strings.EqualFold(key, "X-Message-Id") && len(values) > 0 {
			return values[0]
		}
	}
	return ""
}
