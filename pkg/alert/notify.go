package alert

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"github.com/actris-cloudnet/cloudnet-processing/pkg/log"
)

// Source labels which stage of the pipeline raised the alert
type Source string

const (
	SourceData    Source = "data"
	SourceModel   Source = "model"
	SourcePid     Source = "pid"
	SourceWrapper Source = "wrapper"
	SourceImg     Source = "img"
	SourceWorker  Source = "worker"
)

// Alert describes one failure report posted to Slack
type Alert struct {
	Source  Source
	Err     error
	SiteID  string
	Date    string
	Product string
	// Log is the captured tail of the worker log, attached as a file
	// snippet when non-empty
	Log string
}

// Notifier posts failure alerts to a Slack channel. A notifier built
// without a token or channel is disabled: Send becomes a no-op so
// callers never need to branch on configuration.
type Notifier struct {
	client  *slack.Client
	channel string
	logger  zerolog.Logger
}

// NewNotifier creates a Slack notifier. Extra slack options are passed
// through, which lets tests point the client at a local server.
func NewNotifier(token, channel string, opts ...slack.Option) *Notifier {
	n := &Notifier{
		channel: channel,
		logger:  log.WithComponent("alert"),
	}
	if token == "" || channel == "" {
		return n
	}
	n.client = slack.New(token, opts...)
	return n
}

// Enabled reports whether alerts will actually be sent
func (n *Notifier) Enabled() bool {
	return n.client != nil
}

// Send posts the alert. With a captured log the report is uploaded as a
// file snippet so Slack renders it collapsed; otherwise a plain message
// is posted. Errors are returned but callers normally just log them: an
// alert path must never fail the task outcome it reports on.
func (n *Notifier) Send(ctx context.Context, a Alert) error {
	if !n.Enabled() {
		n.logger.Debug().Str("source", string(a.Source)).Msg("Slack alerting disabled, dropping alert")
		return nil
	}

	msg := a.message()
	if a.Log == "" {
		_, _, err := n.client.PostMessageContext(ctx, n.channel, slack.MsgOptionText(msg, false))
		if err != nil {
			return fmt.Errorf("failed to post Slack message: %w", err)
		}
		return nil
	}

	_, err := n.client.UploadFileContext(ctx, slack.UploadFileParameters{
		Channel:        n.channel,
		Filename:       "task.log",
		Title:          fmt.Sprintf("Log tail (%s)", a.Source),
		Content:        a.Log,
		FileSize:       len(a.Log),
		InitialComment: msg,
	})
	if err != nil {
		return fmt.Errorf("failed to upload Slack log snippet: %w", err)
	}
	return nil
}

func (a Alert) message() string {
	var b strings.Builder
	b.WriteString(":rotating_light: *Processing failure*\n")
	fmt.Fprintf(&b, "*Source:* %s\n", a.Source)
	if a.SiteID != "" {
		fmt.Fprintf(&b, "*Site:* %s\n", a.SiteID)
	}
	if a.Date != "" {
		fmt.Fprintf(&b, "*Date:* %s\n", a.Date)
	}
	if a.Product != "" {
		fmt.Fprintf(&b, "*Product:* %s\n", a.Product)
	}
	if a.Err != nil {
		fmt.Fprintf(&b, "*Error:* %v", a.Err)
	}
	return strings.TrimRight(b.String(), "\n")
}
