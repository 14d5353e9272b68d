package email

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

// Client sends transactional email through Postmark.
type Client struct {
	serverToken string
	fromEmail   string
	baseURL     string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// NewClient creates a Postmark client. baseURL is the public address of this
// server, used to build links in email bodies.
func NewClient(serverToken, fromEmail, baseURL string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		baseURL:     baseURL,
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c.serverToken != ""
}

// UpdateConfig replaces the client's settings at runtime.
func (c *Client) UpdateConfig(serverToken, fromEmail, baseURL string) {
	c.serverToken = serverToken
	c.fromEmail = fromEmail
	c.baseURL = baseURL
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
}

// SendMagicLink sends a sign-in link to a property manager.
func (c *Client) SendMagicLink(toEmail, token string) error {
	link := fmt.Sprintf("%s/auth/verify?token=%s", c.baseURL, token)
	text := fmt.Sprintf("Click the link below to sign in to Stay Verify:\n\n%s\n\nThis link expires in 24 hours and can only be used once.", link)
	html := fmt.Sprintf(
		`<p>Click the link below to sign in to Stay Verify:</p><p><a href="%s">Sign in</a></p><p>This link expires in 24 hours and can only be used once.</p>`,
		link,
	)
	return c.send(toEmail, "Sign in to Stay Verify", html, text)
}

// SendGuestApproval tells a guest their ID was approved.
func (c *Client) SendGuestApproval(toEmail, propertyName, bookingID string, guestNumber int) error {
	subject := fmt.Sprintf("Your ID verification for %s is approved", propertyName)
	text := fmt.Sprintf(
		"Good news! The ID document for guest %d on booking %s at %s has been verified and approved.\n\nYou're all set for your stay.",
		guestNumber, bookingID, propertyName,
	)
	html := fmt.Sprintf(
		`<p>Good news! The ID document for guest %d on booking <strong>%s</strong> at <strong>%s</strong> has been verified and approved.</p><p>You're all set for your stay.</p>`,
		guestNumber, bookingID, propertyName,
	)
	return c.send(toEmail, subject, html, text)
}

// SendGuestRejection tells a guest their ID was rejected, with the
// reviewer's reason when one was given.
func (c *Client) SendGuestRejection(toEmail, propertyName, bookingID string, guestNumber int, reason string) error {
	subject := fmt.Sprintf("Action needed: ID verification for %s", propertyName)
	text := fmt.Sprintf(
		"The ID document for guest %d on booking %s at %s could not be approved.",
		guestNumber, bookingID, propertyName,
	)
	html := fmt.Sprintf(
		`<p>The ID document for guest %d on booking <strong>%s</strong> at <strong>%s</strong> could not be approved.</p>`,
		guestNumber, bookingID, propertyName,
	)
	if reason != "" {
		text += fmt.Sprintf("\n\nReason: %s", reason)
		html += fmt.Sprintf(`<p>Reason: %s</p>`, reason)
	}
	text += "\n\nPlease contact the property manager or upload a clearer document."
	html += `<p>Please contact the property manager or upload a clearer document.</p>`
	return c.send(toEmail, subject, html, text)
}

// SendSubmissionAlert tells a property manager a guest uploaded a document.
func (c *Client) SendSubmissionAlert(toEmail, propertyName, bookingID string, guestNumber int) error {
	subject := fmt.Sprintf("New ID document for booking %s", bookingID)
	link := fmt.Sprintf("%s/dashboard", c.baseURL)
	text := fmt.Sprintf(
		"Guest %d on booking %s at %s has uploaded an ID document.\n\nReview it here: %s",
		guestNumber, bookingID, propertyName, link,
	)
	html := fmt.Sprintf(
		`<p>Guest %d on booking <strong>%s</strong> at <strong>%s</strong> has uploaded an ID document.</p><p><a href="%s">Review it on your dashboard</a></p>`,
		guestNumber, bookingID, propertyName, link,
	)
	return c.send(toEmail, subject, html, text)
}

// SendSubscriptionWelcome confirms a property's subscription is active.
func (c *Client) SendSubscriptionWelcome(toEmail, propertyName string) error {
	subject := fmt.Sprintf("Subscription active for %s", propertyName)
	text := fmt.Sprintf(
		"Your Stay Verify subscription for %s is now active.\n\nYou can create verification links for your bookings at %s/dashboard.",
		propertyName, c.baseURL,
	)
	html := fmt.Sprintf(
		`<p>Your Stay Verify subscription for <strong>%s</strong> is now active.</p><p>You can create verification links for your bookings on <a href="%s/dashboard">your dashboard</a>.</p>`,
		propertyName, c.baseURL,
	)
	return c.send(toEmail, subject, html, text)
}

func (c *Client) send(to, subject, htmlBody, textBody string) error {
	if !c.Configured() {
		return fmt.Errorf("email client not configured: missing server token")
	}

	payload := postmarkEmail{
		From:     c.fromEmail,
		To:       to,
		Subject:  subject,
		HtmlBody: htmlBody,
		TextBody: textBody,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequest("POST", "https://api.postmarkapp.com/email", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}
	return nil
}
