package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nats-io/nats.go"
)

// Sink receives the finished report of a run.
type Sink interface {
	Publish(ctx context.Context, r *Report) error
}

// FileSink writes report JSON to Path, replacing any previous file
// atomically.
type FileSink struct {
	Path string
}

func (s FileSink) Publish(ctx context.Context, r *Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := WriteJSON(&buf, r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".report-*.json")
	if err != nil {
		return fmt.Errorf("create temp report: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// NATSSink publishes the report on Subject and each result on
// Subject.result.
type NATSSink struct {
	nc      *nats.Conn
	Subject string
}

// DialNATS connects to url and returns a sink publishing on subject.
func DialNATS(url, subject string) (*NATSSink, error) {
	if subject == "" {
		subject = "qaflow.reports"
	}
	nc, err := nats.Connect(url, nats.Name("qaflow"))
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return &NATSSink{nc: nc, Subject: subject}, nil
}

func (s *NATSSink) Publish(ctx context.Context, r *Report) error {
	for _, res := range r.Results {
		data, err := json.Marshal(res)
		if err != nil {
			return fmt.Errorf("encode result %s: %w", res.TestCaseName, err)
		}
		if err := s.nc.Publish(s.Subject+".result", data); err != nil {
			return fmt.Errorf("publish result %s: %w", res.TestCaseName, err)
		}
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := s.nc.Publish(s.Subject, data); err != nil {
		return fmt.Errorf("publish report: %w", err)
	}
	if _, ok := ctx.Deadline(); !ok {
		return s.nc.FlushTimeout(10 * time.Second)
	}
	return s.nc.FlushWithContext(ctx)
}

// Close drains and closes the connection.
func (s *NATSSink) Close() error {
	if s.nc == nil {
		return nil
	}
	return s.nc.Drain()
}
