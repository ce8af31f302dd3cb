// Package server implements the msgstore HTTP and gRPC services
package server

import (
	"context"
	"time"

	"github.com/nainya/msgstore/internal/logger"
	"github.com/nainya/msgstore/internal/metrics"
	"github.com/nainya/msgstore/pkg/apierror"
	"github.com/nainya/msgstore/pkg/message"
	"github.com/nainya/msgstore/pkg/query"
)

// MessageStore is the persistence the server needs. *store.SQLiteStore
// implements it.
type MessageStore interface {
	Insert(ctx context.Context, msgs []*message.Message) ([]string, error)
	Get(ctx context.Context, id string) (*message.Message, error)
	Find(ctx context.Context, req *query.Request) ([]*message.Message, error)
	Update(ctx context.Context, id string, upd *message.Update) (int64, error)
	UpdateMany(ctx context.Context, filter *query.Filter, upd *message.Update) (int64, error)
	Delete(ctx context.Context, id string) (int64, error)
	DeleteMany(ctx context.Context, filter *query.Filter) (int64, error)
	Count(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}

// Server holds the message operations shared by the HTTP and gRPC front ends
type Server struct {
	store     MessageStore
	validator *message.Validator
	metrics   *metrics.Metrics
	log       *logger.Logger
	startTime time.Time
}

// Option configures a Server
type Option func(*Server)

// WithClock replaces the clock used to stamp created_at and last_modified
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.validator = message.NewValidator(now)
	}
}

// NewServer creates a server backed by store
func NewServer(store MessageStore, m *metrics.Metrics, log *logger.Logger, opts ...Option) *Server {
	s := &Server{
		store:     store,
		validator: message.NewValidator(nil),
		metrics:   m,
		log:       log,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ready reports whether the store can serve requests
func (s *Server) Ready(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Uptime returns how long the server has been running
func (s *Server) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// ========== Query Compilation ==========

// CompileRequest compiles a raw query string into filter, sort and limit
func (s *Server) CompileRequest(rawQuery string) (*query.Request, error) {
	params, err := query.ParseParams(rawQuery)
	if err != nil {
		return nil, err
	}
	req, err := query.Compile(params)
	if err != nil {
		return nil, err
	}
	s.metrics.QueriesCompiledTotal.Inc()
	return req, nil
}

// CompileFilter compiles only the filter part of a raw query string. sort
// and limit are accepted and ignored.
func (s *Server) CompileFilter(rawQuery string) (*query.Filter, error) {
	req, err := s.CompileRequest(rawQuery)
	if err != nil {
		return nil, err
	}
	return req.Filter, nil
}

// ========== Message Operations ==========

// FindMessages returns the messages selected by a raw query string
func (s *Server) FindMessages(ctx context.Context, rawQuery string) ([]*message.Message, error) {
	req, err := s.CompileRequest(rawQuery)
	if err != nil {
		return nil, err
	}

	var msgs []*message.Message
	err = s.observe(ctx, "find", func() (int, error) {
		var err error
		msgs, err = s.store.Find(ctx, req)
		return len(msgs), err
	})
	return msgs, err
}

// GetMessage returns one message by id
func (s *Server) GetMessage(ctx context.Context, id string) (*message.Message, error) {
	var msg *message.Message
	err := s.observe(ctx, "get", func() (int, error) {
		var err error
		msg, err = s.store.Get(ctx, id)
		if err != nil {
			return 0, err
		}
		return 1, nil
	})
	return msg, err
}

// CreateMessages validates every payload and stores them together. Nothing
// is stored when any payload is rejected.
func (s *Server) CreateMessages(ctx context.Context, payloads []map[string]any) ([]string, error) {
	if len(payloads) == 0 {
		return nil, apierror.New(apierror.InvalidMessage, "Message is not valid.")
	}
	msgs, err := s.validator.CreateMessages(payloads)
	if err != nil {
		return nil, err
	}

	var ids []string
	err = s.observe(ctx, "insert", func() (int, error) {
		var err error
		ids, err = s.store.Insert(ctx, msgs)
		return len(ids), err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.MessagesCreatedTotal.Add(float64(len(ids)))
	s.refreshStats(ctx)
	return ids, nil
}

// UpdateMessage applies a partial update to one message
func (s *Server) UpdateMessage(ctx context.Context, id string, fields map[string]any) (int64, error) {
	upd, err := s.validator.CreateMessageUpdate(fields)
	if err != nil {
		return 0, err
	}

	var n int64
	err = s.observe(ctx, "update", func() (int, error) {
		var err error
		n, err = s.store.Update(ctx, id, upd)
		return int(n), err
	})
	if err != nil {
		return 0, err
	}

	s.metrics.MessagesUpdatedTotal.Add(float64(n))
	return n, nil
}

// UpdateMessages applies a partial update to every message matched by a raw
// query string
func (s *Server) UpdateMessages(ctx context.Context, rawQuery string, fields map[string]any) (int64, error) {
	filter, err := s.CompileFilter(rawQuery)
	if err != nil {
		return 0, err
	}
	upd, err := s.validator.CreateMessageUpdate(fields)
	if err != nil {
		return 0, err
	}

	var n int64
	err = s.observe(ctx, "update_many", func() (int, error) {
		var err error
		n, err = s.store.UpdateMany(ctx, filter, upd)
		return int(n), err
	})
	if err != nil {
		return 0, err
	}

	s.metrics.MessagesUpdatedTotal.Add(float64(n))
	return n, nil
}

// DeleteMessage removes one message by id
func (s *Server) DeleteMessage(ctx context.Context, id string) (int64, error) {
	var n int64
	err := s.observe(ctx, "delete", func() (int, error) {
		var err error
		n, err = s.store.Delete(ctx, id)
		return int(n), err
	})
	if err != nil {
		return 0, err
	}

	s.metrics.MessagesDeletedTotal.Add(float64(n))
	s.refreshStats(ctx)
	return n, nil
}

// DeleteMessages removes every message matched by a raw query string
func (s *Server) DeleteMessages(ctx context.Context, rawQuery string) (int64, error) {
	filter, err := s.CompileFilter(rawQuery)
	if err != nil {
		return 0, err
	}

	var n int64
	err = s.observe(ctx, "delete_many", func() (int, error) {
		var err error
		n, err = s.store.DeleteMany(ctx, filter)
		return int(n), err
	})
	if err != nil {
		return 0, err
	}

	s.metrics.MessagesDeletedTotal.Add(float64(n))
	s.refreshStats(ctx)
	return n, nil
}

// observe times a store call and records it. Caller errors such as an
// unknown id are counted as rejected and logged at debug level.
func (s *Server) observe(ctx context.Context, operation string, fn func() (int, error)) error {
	start := time.Now()
	n, err := fn()
	duration := time.Since(start)

	status := "success"
	logErr := err
	if err != nil {
		status = "error"
		if apierror.IsClientError(err) {
			status = "rejected"
			logErr = nil
		}
	}

	s.metrics.RecordDbOperation(operation, status, duration)
	s.log.LogDbOperation(operation, duration, n, logErr)
	return err
}

// refreshStats updates the stored-message gauge after a write
func (s *Server) refreshStats(ctx context.Context) {
	n, err := s.store.Count(ctx)
	if err != nil {
		s.log.DbLogger("count").Warn("failed to refresh message count").Err(err).Send()
		return
	}
	s.metrics.UpdateDbStats(n)
}

// recordError counts a rejected or failed request by error kind
func (s *Server) recordError(err error) {
	kind, ok := apierror.KindOf(err)
	if !ok {
		kind = kindInternal
	}
	s.metrics.RecordQueryError(string(kind))
}
