// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package testutil

import (
	"context"
	"errors"
	"regexp"
	"sync"
)

// Mail is a message captured by Outbox.
type Mail struct {
	To      string
	Subject string
	Body    string
}

var tokenPattern = regexp.MustCompile(`token=([0-9a-f]+)`)

// Token returns the token embedded in the mail's link, or "".
func (m Mail) Token() string {
	if match := tokenPattern.FindStringSubmatch(m.Body); match != nil {
		return match[1]
	}
	return ""
}

// Outbox records sent mails in memory.
type Outbox struct {
	mu   sync.Mutex
	sent []Mail
	Fail bool
}

// Send records the message, or fails when Fail is set.
func (o *Outbox) Send(_ context.Context, to, subject, body string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Fail {
		return errors.New("outbox: delivery failed")
	}
	o.sent = append(o.sent, Mail{To: to, Subject: subject, Body: body})
	return nil
}

// Sent returns a copy of all recorded mails.
func (o *Outbox) Sent() []Mail {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Mail(nil), o.sent...)
}

// Last returns the most recent mail addressed to to.
func (o *Outbox) Last(to string) (Mail, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.sent) - 1; i >= 0; i-- {
		if o.sent[i].To == to {
			return o.sent[i], true
		}
	}
	return Mail{}, false
}
