// Package email renders and sends order emails over SMTP.
package email

import (
	"fmt"
	"net/smtp"

	"github.com/shopspring/decimal"
)

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service handles email sending via SMTP
type Service struct {
	host string
	port string
	from string
	send SendFunc
}

func NewService(host, port, from string) *Service {
	return &Service{
		host: host,
		port: port,
		from: from,
		send: smtp.SendMail,
	}
}

// WithSendFunc replaces the SMTP transport, mainly for tests.
func (s *Service) WithSendFunc(fn SendFunc) *Service {
	s.send = fn
	return s
}

// SendOrderConfirmation sends one shopper the confirmation for their part of
// an order.
func (s *Service) SendOrderConfirmation(to string, c Confirmation) error {
	subject := fmt.Sprintf("Your grocery order %s is confirmed", shortID(c.OrderID))
	return s.deliver(to, subject, BuildOrderConfirmationBody(c))
}

// SendRefundNotice tells a shopper that money went back to their wallet.
func (s *Service) SendRefundNotice(to, orderID string, amount decimal.Decimal, reason string) error {
	subject := fmt.Sprintf("Refund for order %s", shortID(orderID))
	return s.deliver(to, subject, BuildRefundBody(orderID, amount, reason))
}

func (s *Service) deliver(to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.from, to, subject, body)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	return s.send(addr, nil, s.from, []string{to}, []byte(msg))
}

func shortID(orderID string) string {
	if len(orderID) > 8 {
		return orderID[:8]
	}
	return orderID
}
