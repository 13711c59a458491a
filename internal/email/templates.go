package email

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"github.com/231Brooks/HBH-2-sub003/internal/models"
)

// messageTemplate pairs a subject line with a plain-text body template
// for one event kind.
type messageTemplate struct {
	subject string
	body    string
}

var eventTemplates = map[models.EventKind]messageTemplate{
	models.EventOutbid: {
		subject: "You have been outbid on {{.AuctionTitle}}",
		body: "Your bid of {{.CurrencyCode}} {{printf \"%.2f\" .Amount}} on {{.AuctionTitle}} has been outbid.\n" +
			"The new highest bid is {{.CurrencyCode}} {{printf \"%.2f\" .NewHighestBid}}.\n" +
			"To regain the lead, bid at least {{.CurrencyCode}} {{printf \"%.2f\" .MinimumNextBid}} before {{.EndAtFormatted}}.\n",
	},
	models.EventEndingSoon: {
		subject: "Ending soon: {{.AuctionTitle}}",
		body: "The auction {{.AuctionTitle}} ends at {{.EndAtFormatted}}.\n" +
			"The minimum next bid is {{.CurrencyCode}} {{printf \"%.2f\" .MinimumNextBid}}.\n",
	},
	models.EventEndingToday: {
		subject: "Ending today: {{.AuctionTitle}}",
		body: "The auction {{.AuctionTitle}} ends today at {{.EndAtFormatted}}.\n" +
			"The minimum next bid is {{.CurrencyCode}} {{printf \"%.2f\" .MinimumNextBid}}.\n",
	},
	models.EventWon: {
		subject: "You won {{.AuctionTitle}}",
		body: "Congratulations, your bid of {{.CurrencyCode}} {{printf \"%.2f\" .FinalPrice}} won the auction {{.AuctionTitle}}.\n" +
			"The seller will be in touch to complete the sale.\n",
	},
	models.EventLost: {
		subject: "Auction closed: {{.AuctionTitle}}",
		body:    "The auction {{.AuctionTitle}} has closed and your bid was not the winning one.\n",
	},
	models.EventSoldToOwner: {
		subject: "Your auction sold: {{.AuctionTitle}}",
		body:    "Your auction {{.AuctionTitle}} sold for {{.CurrencyCode}} {{printf \"%.2f\" .FinalPrice}}.\n",
	},
	models.EventNoSale: {
		subject: "Your auction closed without a sale: {{.AuctionTitle}}",
		body:    "Your auction {{.AuctionTitle}} has closed without a sale.\n",
	},
}

// templateData extends the event payload with pre-formatted fields the
// templates need.
type templateData struct {
	models.EventPayload
	EndAtFormatted string
}

// Render produces the subject and plain-text body for an event kind and
// payload. It returns an error for unknown kinds so callers fail loudly
// rather than sending an empty message.
func Render(kind models.EventKind, payload models.EventPayload) (subject string, body string, err error) {
	tmpl, ok := eventTemplates[kind]
	if !ok {
		return "", "", fmt.Errorf("no email template for event kind %s", kind)
	}

	data := templateData{
		EventPayload:   payload,
		EndAtFormatted: payload.EndAt.UTC().Format(time.RFC1123),
	}

	subject, err = renderOne("subject", tmpl.subject, data)
	if err != nil {
		return "", "", err
	}
	body, err = renderOne("body", tmpl.body, data)
	if err != nil {
		return "", "", err
	}
	return subject, body, nil
}

// BuildRawMessage assembles a complete RFC 5322 style message from the
// rendered parts, ready for a Sender.
func BuildRawMessage(from string, to string, subject string, body string) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(body)
	return buf.Bytes()
}

func renderOne(name, text string, data templateData) (string, error) {
	t, err := template.New(name).Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse %s template: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s template: %w", name, err)
	}
	return buf.String(), nil
}
