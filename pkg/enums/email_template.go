package enums

import "fmt"

// EmailTemplate names a transactional email template known to the store's
// notification provider.
type EmailTemplate string

const (
	EmailTemplateOrderConfirmation EmailTemplate = "order_confirmation"
	EmailTemplateInvoice           EmailTemplate = "invoice"
	EmailTemplateShipment          EmailTemplate = "shipment"
	EmailTemplateCreditPurchase    EmailTemplate = "credit_purchase"
	EmailTemplateWelcome           EmailTemplate = "welcome"
)

var validEmailTemplates = []EmailTemplate{
	EmailTemplateOrderConfirmation,
	EmailTemplateInvoice,
	EmailTemplateShipment,
	EmailTemplateCreditPurchase,
	EmailTemplateWelcome,
}

// String implements fmt.Stringer.
func (e EmailTemplate) String() string {
	return string(e)
}

// IsValid reports whether the value is a known EmailTemplate.
func (e EmailTemplate) IsValid() bool {
	for _, candidate := range validEmailTemplates {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseEmailTemplate converts raw input into an EmailTemplate.
func ParseEmailTemplate(value string) (EmailTemplate, error) {
	for _, candidate := range validEmailTemplates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid email template %q", value)
}
