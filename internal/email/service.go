package email

import (
	"fmt"
	"net/smtp"
)

// Service handles email sending via SMTP
type Service struct {
	host string
	port string
	from string
}

// NewService creates a new email service
func NewService(host, port, from string) *Service {
	return &Service{
		host: host,
		port: port,
		from: from,
	}
}

// SendReceipt sends the order receipt email
func (s *Service) SendReceipt(to, orderID string, totalInCents int, lines []ReceiptLine) error {
	shortID := orderID
	if len(orderID) > 8 {
		shortID = orderID[:8]
	}
	subject := fmt.Sprintf("Your order receipt (order %s)", shortID)
	body := BuildReceiptBody(orderID, totalInCents, lines)
	return s.send(to, subject, body)
}

func (s *Service) send(to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.from, to, subject, body)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	return smtp.SendMail(addr, nil, s.from, []string{to}, []byte(msg))
}
