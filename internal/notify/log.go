package notify

import "go.uber.org/zap"

// LogNotifier writes notifications to the structured log. In schedule
// mode it is the local channel, since there is no terminal to watch.
type LogNotifier struct {
	log *zap.Logger
}

// NewLogNotifier creates a notifier backed by the given logger.
func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// Send logs the notification at a level matching its type.
func (l *LogNotifier) Send(n Notification) error {
	fields := []zap.Field{zap.String("detail", n.Message)}
	if n.Command != "" {
		fields = append(fields,
			zap.String("command", n.Command),
			zap.String("target", n.Target))
	}

	switch n.Type {
	case NotifyError:
		l.log.Error(n.Title, fields...)
	case NotifyWarning:
		l.log.Warn(n.Title, fields...)
	default:
		l.log.Info(n.Title, fields...)
	}
	return nil
}
