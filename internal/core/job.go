package core

import (
	"maps"
	"slices"
	"strconv"
	"time"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Terminal reports whether no further steps may mutate the job.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// OffsetKey is the context key holding the item cursor.
const OffsetKey = "offset"

// Values is handler-private resumption state. The dispatcher never reads it.
type Values map[string]string

// Int returns the integer stored under key, or 0.
func (v Values) Int(key string) int {
	n, err := strconv.Atoi(v[key])
	if err != nil {
		return 0
	}
	return n
}

// Int64 returns the int64 stored under key, or 0.
func (v Values) Int64(key string) int64 {
	n, err := strconv.ParseInt(v[key], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// SetInt stores n under key.
func (v Values) SetInt(key string, n int) {
	v[key] = strconv.Itoa(n)
}

// SetInt64 stores n under key.
func (v Values) SetInt64(key string, n int64) {
	v[key] = strconv.FormatInt(n, 10)
}

// Field maps a CSV header to an entity field.
type Field struct {
	Header string `json:"header"`
	Name   string `json:"field"`
}

// Options is the configuration captured when a job is created.
// It is never modified afterwards.
type Options struct {
	Entity    string            `json:"entity,omitempty"`
	Limit     int               `json:"limit"`
	Path      string            `json:"path,omitempty"`
	Fields    []Field           `json:"fields,omitempty"`
	Delimiter string            `json:"delimiter,omitempty"`
	Filter    map[string]string `json:"filter,omitempty"`
}

// Comma returns the CSV delimiter as a rune. "\t" and "tab" select a tab.
func (o Options) Comma() rune {
	switch o.Delimiter {
	case "":
		return ','
	case `\t`, "tab":
		return '\t'
	}
	return []rune(o.Delimiter)[0]
}

// ErrorLog counts per-item failures that did not abort the job and keeps
// a bounded sample of their messages.
type ErrorLog struct {
	Count  int      `json:"count"`
	Sample []string `json:"sample,omitempty"`
}

// Job is the persisted unit of work.
type Job struct {
	ID        string    `json:"id"`
	Operation string    `json:"operation"`
	Status    Status    `json:"status"`
	Total     int       `json:"total"`
	Done      int       `json:"done"`
	Context   Values    `json:"context"`
	Data      Options   `json:"data"`
	Errors    ErrorLog  `json:"errors"`
	Message   string    `json:"message,omitempty"`
	Revision  int64     `json:"revision"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Clone returns a deep copy so callers can mutate it without touching
// the original's maps and slices.
func (j *Job) Clone() *Job {
	cp := *j
	cp.Context = maps.Clone(j.Context)
	if cp.Context == nil {
		cp.Context = Values{}
	}
	cp.Data.Fields = slices.Clone(j.Data.Fields)
	cp.Data.Filter = maps.Clone(j.Data.Filter)
	cp.Errors.Sample = slices.Clone(j.Errors.Sample)
	return &cp
}

// Expired reports whether the record outlived its TTL at time now.
func (j *Job) Expired(now time.Time) bool {
	return !j.ExpiresAt.IsZero() && now.After(j.ExpiresAt)
}
