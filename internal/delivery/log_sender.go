package delivery

import (
	"github.com/sirupsen/logrus"
)

// LogSender writes the code to the log instead of sending anything.
// Development mode only; the code also comes back in the API response there.
type LogSender struct {
	logger *logrus.Logger
}

func NewLogSender(logger *logrus.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(identity, code string) error {
	s.logger.WithFields(logrus.Fields{
		"identity": identity,
		"code":     code,
	}).Info("Password reset code (development mode, not delivered)")
	return nil
}
