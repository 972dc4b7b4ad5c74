package mailer

import (
	"encoding/json"
	"fmt"
	"html"
	"net/smtp"
	"os"
	"strings"
	"time"

	"github.com/UniReviews/community-service/internal/model"
	"github.com/UniReviews/community-service/internal/rabbitmq"
	"go.uber.org/zap"
)

var headerSafe = strings.NewReplacer("\r", " ", "\n", " ")

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Mailer struct {
	logger *zap.Logger
	broker rabbitmq.Broker
	send   sendFunc

	from string
	pass string
	host string
	port string
}

func New(logger *zap.Logger, broker rabbitmq.Broker) *Mailer {
	return &Mailer{
		logger: logger,
		broker: broker,
		send:   smtp.SendMail,
		from:   os.Getenv("FROM"),
		pass:   os.Getenv("PASS"),
		host:   os.Getenv("HOST"),
		port:   os.Getenv("PORT"),
	}
}

func (m *Mailer) StartProcessing() {
	go m.ProcessNotificationEmails()
}

func (m *Mailer) ProcessNotificationEmails() {
	queue := rabbitmq.NOTIFICATION_EMAIL_QUEUE
	msgs, err := m.broker.Consume(queue)
	if err != nil {
		m.logger.Sugar().Fatalf("Failed to start consuming(%s): %s", queue, err.Error())
	}

	for msg := range msgs {
		var email model.NotificationEmail
		if err := json.Unmarshal(msg.Body, &email); err != nil {
			m.logger.Sugar().Errorf("Failed to unmarshal json in queue(%s): %s", queue, err.Error())
			msg.Nack(false, false)
			continue
		}

		if err := m.SendNotificationMail(email); err != nil {
			m.logger.Sugar().Errorf("Failed to send mail to(%s): %s", email.Email, err.Error())
			msg.Nack(false, !msg.Redelivered)
			continue
		}

		msg.Ack(false)

		m.logger.Sugar().Infof("Successfully sent notification from queue(%s) to(%s)", queue, email.Email)
		time.Sleep(time.Millisecond * 10)
	}
}

func notificationMessage(input model.NotificationEmail) []byte {
	subject := headerSafe.Replace(input.Title)
	body := fmt.Sprintf("<b>%s</b><br>%s", html.EscapeString(input.Title), html.EscapeString(input.Message))

	return []byte("Subject: " + subject + "\r\n" +
		"MIME-version: 1.0;\nContent-Type: text/html; charset=\"UTF-8\";\n\n" +
		"\r\n" + body)
}

func (m *Mailer) SendNotificationMail(input model.NotificationEmail) error {
	auth := smtp.PlainAuth("", m.from, m.pass, m.host)

	return m.send(m.host+":"+m.port, auth, m.from, []string{input.Email}, notificationMessage(input))
}
