// Package templates provides email template content blocks
package templates

import (
	"bytes"
	"html/template"
	"log"
	"time"
)

// DeadLetterEmailProps carries the details of a record that exhausted its
// retry budget.
type DeadLetterEmailProps struct {
	RecordID  string
	UserID    string
	ZoneID    string
	Attempts  int
	LastError string
	DeadAt    time.Time
	DeadTotal int
}

var deadLetterTemplate = template.Must(template.New("deadLetterEmail").Parse(`
    <p style="font-family: Helvetica, sans-serif; font-size: 18px; font-weight: bold; margin: 0; margin-bottom: 16px;">Attendance record needs attention</p>
    <p style="font-family: Helvetica, sans-serif; font-size: 16px; margin: 0; margin-bottom: 16px;">
      A record could not be delivered to the remote store after {{.Attempts}} attempts and has been moved to the dead-letter set. It will not retry until it is requeued.
    </p>
    <table role="presentation" border="0" cellpadding="6" cellspacing="0" style="border-collapse: collapse; width: 100%; font-family: Helvetica, sans-serif; font-size: 14px; margin-bottom: 16px;">
      <tr><td style="color: #9a9ea6;">Record</td><td><code>{{.RecordID}}</code></td></tr>
      <tr><td style="color: #9a9ea6;">User</td><td>{{.UserID}}</td></tr>
      <tr><td style="color: #9a9ea6;">Zone</td><td>{{.ZoneID}}</td></tr>
      <tr><td style="color: #9a9ea6;">Dead since</td><td>{{.DeadAt.Format "2006-01-02 15:04:05 MST"}}</td></tr>
      <tr><td style="color: #9a9ea6;">Last error</td><td>{{.LastError}}</td></tr>
    </table>
    <p style="font-family: Helvetica, sans-serif; font-size: 16px; margin: 0;">
      {{.DeadTotal}} record(s) are currently in the dead-letter set.
    </p>`))

// GetDeadLetterEmailContent renders the dead-letter alert body.
func GetDeadLetterEmailContent(props DeadLetterEmailProps) string {
	var buf bytes.Buffer
	if err := deadLetterTemplate.Execute(&buf, props); err != nil {
		log.Printf("Error executing dead-letter email template: %v", err)
		return "<p>A queued attendance record exhausted its retries.</p>"
	}
	return buf.String()
}
