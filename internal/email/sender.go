package email

import (
	"context"
	"errors"
	"time"
)

// Kind identifica la plantilla de correo.
type Kind string

const (
	KindVerification    Kind = "verification"
	KindWelcome         Kind = "welcome"
	KindPasswordReset   Kind = "password_reset"
	KindPasswordChanged Kind = "password_changed"
)

// Payload contiene los datos que interpolan las plantillas.
type Payload struct {
	Name      string
	Link      string
	ExpiresAt time.Time
}

// Message es una notificación para un destinatario.
type Message struct {
	To      string
	Kind    Kind
	Payload Payload
}

// Sender define la interfaz para envío de correos transaccionales.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type disabledSender struct {
	reason string
}

func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) Send(_ context.Context, _ Message) error {
	if s.reason == "" {
		return errors.New("email sender disabled")
	}
	return errors.New(s.reason)
}
