// Package cxdb provides a sink that persists captured failures to cxdb as
// SystemMessage items, so they can be browsed next to the conversation or
// session that produced them.
package cxdb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	cxdbclient "github.com/strongdm/ai-cxdb/clients/go"
	cxdtypes "github.com/strongdm/ai-cxdb/clients/go/types"

	"github.com/strongdm/errtrap/pkg/errtrap"
)

// CXDBClient is the minimal interface for cxdb client operations.
// The real *cxdb.Client satisfies this interface.
type CXDBClient interface {
	CreateContext(ctx context.Context, baseTurnID uint64) (*cxdbclient.ContextHead, error)
	AppendTurn(ctx context.Context, req *cxdbclient.AppendRequest) (*cxdbclient.AppendResult, error)
}

type contextIDKey struct{}

// WithContextID links every record captured for the request in ctx to an
// existing cxdb context instead of a new orphan one.
func WithContextID(ctx context.Context, contextID uint64) context.Context {
	return context.WithValue(ctx, contextIDKey{}, contextID)
}

// ContextIDFromContext extracts the cxdb context ID from context.
// Returns 0 and false if not set.
func ContextIDFromContext(ctx context.Context) (uint64, bool) {
	id, ok := ctx.Value(contextIDKey{}).(uint64)
	return id, ok
}

// CXDBSinkOption configures the CXDB sink.
type CXDBSinkOption func(*cxdbSinkConfig)

type cxdbSinkConfig struct {
	orphanLabels []string
	clientTag    string
}

// WithOrphanLabels sets labels for orphan error contexts.
func WithOrphanLabels(labels []string) CXDBSinkOption {
	return func(c *cxdbSinkConfig) {
		c.orphanLabels = labels
	}
}

// WithClientTag sets the client tag for orphan contexts.
func WithClientTag(tag string) CXDBSinkOption {
	return func(c *cxdbSinkConfig) {
		c.clientTag = tag
	}
}

type cxdbSink struct {
	client       CXDBClient
	orphanLabels []string
	clientTag    string
}

// NewCXDBSink creates a sink that writes to cxdb.
func NewCXDBSink(client CXDBClient, opts ...CXDBSinkOption) errtrap.Sink {
	cfg := &cxdbSinkConfig{
		orphanLabels: []string{"error", "unlinked"},
		clientTag:    "errtrap",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &cxdbSink{
		client:       client,
		orphanLabels: cfg.orphanLabels,
		clientTag:    cfg.clientTag,
	}
}

// Write persists a record to cxdb. Records without a linked context go to a
// fresh orphan context.
func (s *cxdbSink) Write(ctx context.Context, rec errtrap.ErrorRecord) error {
	contextID, linked := ContextIDFromContext(ctx)
	if !linked {
		head, err := s.client.CreateContext(ctx, 0)
		if err != nil {
			return fmt.Errorf("create orphan context: %w", err)
		}
		contextID = head.ContextID
	}

	item := s.buildConversationItem(rec, !linked)

	payload, err := cxdbclient.EncodeMsgpack(item)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req := &cxdbclient.AppendRequest{
		ContextID:      contextID,
		ParentTurnID:   0,
		TypeID:         cxdtypes.TypeIDConversationItem,
		TypeVersion:    cxdtypes.TypeVersionConversationItem,
		Payload:        payload,
		IdempotencyKey: rec.CorrelationID,
	}

	if _, err := s.client.AppendTurn(ctx, req); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// buildConversationItem creates a canonical ConversationItem from a record.
func (s *cxdbSink) buildConversationItem(rec errtrap.ErrorRecord, isOrphan bool) *cxdtypes.ConversationItem {
	// Title: "<category>: <truncated message>"
	title := rec.Category
	if rec.Message != "" {
		const maxMsgLen = 80
		msg := rec.Message
		if len(msg) > maxMsgLen {
			msg = msg[:maxMsgLen] + "..."
		}
		title = rec.Category + ": " + msg
	}
	if len(title) > 100 {
		title = title[:97] + "..."
	}

	ts := rec.CapturedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	item := &cxdtypes.ConversationItem{
		ItemType:  cxdtypes.ItemTypeSystem,
		Status:    cxdtypes.ItemStatusComplete,
		Timestamp: ts.UnixMilli(),
		ID:        rec.CorrelationID,
		System: &cxdtypes.SystemMessage{
			Kind:    cxdtypes.SystemKindError,
			Title:   title,
			Content: buildErrorDetails(rec),
		},
	}

	// cxdb expects context metadata on the first turn of a context.
	if isOrphan {
		item.ContextMetadata = &cxdtypes.ContextMetadata{
			Labels:    s.orphanLabels,
			ClientTag: s.clientTag,
		}
	}
	return item
}

// buildErrorDetails encodes the record as JSON for SystemMessage.Content.
func buildErrorDetails(rec errtrap.ErrorRecord) string {
	details := map[string]any{
		"correlation_id": rec.CorrelationID,
		"category":       rec.Category,
		"code":           rec.Code,
		"message":        rec.Message,
		"file":           rec.File,
		"line":           rec.Line,
		"fingerprint":    errtrap.Fingerprint(rec),
		"handled":        rec.WasExplicitlyHandled,
		"runtime":        rec.RuntimeVersion,
		"os":             rec.OSName,
	}

	if len(rec.StackTrace) > 0 {
		details["stack_trace"] = rec.TraceString()
	}
	if rec.RequestURI != "" {
		details["request_uri"] = rec.RequestURI
	}
	if rec.RequestHost != "" {
		details["request_host"] = rec.RequestHost
	}
	if rec.ScriptPath != "" {
		details["script_path"] = rec.ScriptPath
	}
	if !rec.CapturedAt.IsZero() {
		details["captured_at"] = rec.CapturedAt.Format(time.RFC3339)
	}

	jsonBytes, err := json.Marshal(details)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to encode details: %s"}`, err)
	}
	return string(jsonBytes)
}

// Flush is a no-op for the cxdb sink (writes are synchronous).
func (s *cxdbSink) Flush(ctx context.Context) error {
	return nil
}

// Close is a no-op for the cxdb sink.
func (s *cxdbSink) Close() error {
	return nil
}
