package pglock

import (
	"fmt"
	"strings"
)

type Option func(*request)

type request struct {
	key         Key
	shared      bool
	wait        bool
	using       string
	triggeredBy string
}

func newRequest(key Key, opts []Option) *request {
	r := &request{key: key, wait: true}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Shared takes the lock in shared mode; any number of shared holders may coexist.
func Shared() Option {
	return func(r *request) { r.shared = true }
}

// NoWait uses the pg_try_* functions, which report failure instead of blocking.
func NoWait() Option {
	return func(r *request) { r.wait = false }
}

// Wait sets the blocking mode explicitly. Blocking is the default.
func Wait(wait bool) Option {
	return func(r *request) { r.wait = wait }
}

// Using picks a named connection from orm.Connections. Only WithConnection honours it.
func Using(name string) Option {
	return func(r *request) { r.using = name }
}

// TriggeredBy labels the acquire statement, which shows up in pg_stat_activity and logs.
func TriggeredBy(label string) Option {
	return func(r *request) { r.triggeredBy = label }
}

func (r *request) acquireFunc() string {
	name := "pg_"
	if !r.wait {
		name += "try_"
	}
	name += "advisory_lock"
	if r.shared {
		name += "_shared"
	}
	return name
}

func (r *request) releaseFunc() string {
	if r.shared {
		return "pg_advisory_unlock_shared"
	}
	return "pg_advisory_unlock"
}

func (r *request) acquireSQL() string {
	stmt := fmt.Sprintf("SELECT %s(%s)", r.acquireFunc(), r.key.args())
	note := strings.TrimSpace(strings.Join([]string{r.key.comment(), r.triggeredBy}, " "))
	if note == "" {
		return stmt
	}
	return stmt + " -- " + oneLine(note)
}

func (r *request) releaseSQL() string {
	return fmt.Sprintf("SELECT %s(%s)", r.releaseFunc(), r.key.args())
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ", "\x00", "")

// a line break would end the "--" comment and let the rest run as SQL, and postgres rejects
// the whole statement when the comment is not valid UTF-8 or carries a NUL.
func oneLine(s string) string {
	return lineBreaks.Replace(strings.ToValidUTF8(s, "?"))
}

// Statements returns the acquire and release statements for key without touching a database.
func Statements(key Key, opts ...Option) (acquire, release string, err error) {
	if key == nil {
		return "", "", invalidKey(key, "nil key")
	}
	r := newRequest(key, opts)
	return r.acquireSQL(), r.releaseSQL(), nil
}
