package report

import "time"

// Context is the session context attached to every report.
type Context struct {
	ProjectKey string
	SessionID  string
	UserAgent  string
	Referrer   string
	URL        string
	Title      string
	Path       string
}

// ContextFunc returns the session context as of the moment of a send.
type ContextFunc func() Context

// TimestampLayout is the ISO-8601 layout used for the timestamp field.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Fields returns the common payload fields for c stamped with now.
func (c Context) Fields(now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"projectKey": c.ProjectKey,
		"sessionId":  c.SessionID,
		"userAgent":  c.UserAgent,
		"referrer":   c.Referrer,
		"url":        c.URL,
		"page_title": c.Title,
		"page_path":  c.Path,
		"timestamp":  now.UTC().Format(TimestampLayout),
	}
}
