// Package report turns a claim run into a readable summary and an archived
// JSON document.
package report

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"fabricclaim/pkg/render"
	"fabricclaim/services/claim"
	"fabricclaim/services/orchestrator"
)

const (
	// LinkTTL is how long archived report links stay valid.
	LinkTTL = 24 * time.Hour

	summaryTemplate = "summary.tmpl"
	contentType     = "application/zstd"
)

// Device is one line of a report.
type Device struct {
	Address string     `json:"address"`
	Outcome claim.Kind `json:"outcome"`
	Reason  string     `json:"reason,omitempty"`
	Moid    string     `json:"moid,omitempty"`
}

// Report is the archived record of a run.
type Report struct {
	RunID      uuid.UUID     `json:"run_id"`
	Account    string        `json:"account"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Summary    claim.Summary `json:"summary"`
	Devices    []Device      `json:"devices"`
}

// Build flattens an orchestrator result.
func Build(res orchestrator.Result) Report {
	devices := make([]Device, 0, len(res.Outcomes))
	for _, o := range res.Outcomes {
		devices = append(devices, Device{
			Address: o.Address,
			Outcome: o.Kind,
			Reason:  o.Reason,
			Moid:    o.Moid,
		})
	}
	return Report{
		RunID:      res.Run.ID,
		Account:    res.Run.Account,
		StartedAt:  res.Run.StartedAt,
		FinishedAt: res.Run.FinishedAt,
		Summary:    res.Summary,
		Devices:    devices,
	}
}

// Render writes the text summary of r.
func Render(w io.Writer, engine *render.Engine, r Report) error {
	return engine.Write(w, summaryTemplate, r)
}

// Store is the object storage used for archives; *s3.Client satisfies it.
type Store interface {
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, sha256, contentType string) error
	PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

// Archived locates an uploaded report.
type Archived struct {
	Bucket string
	Key    string
	URL    string
	SHA256 string
}

// Key returns the object key for a run.
func Key(runID uuid.UUID) string {
	return fmt.Sprintf("reports/%s.json.zst", runID)
}

// Archive uploads r as zstd-compressed JSON and returns a presigned link.
func Archive(ctx context.Context, store Store, bucket string, r Report) (Archived, error) {
	if store == nil {
		return Archived{}, errors.New("report store is required")
	}
	if bucket == "" {
		return Archived{}, errors.New("report bucket is required")
	}

	payload, err := Encode(r)
	if err != nil {
		return Archived{}, err
	}

	sum := sha256.Sum256(payload)
	digest := hex.EncodeToString(sum[:])
	key := Key(r.RunID)

	if err := store.PutObject(ctx, bucket, key, bytes.NewReader(payload), int64(len(payload)), digest, contentType); err != nil {
		return Archived{}, fmt.Errorf("upload report: %w", err)
	}

	url, err := store.PresignGet(ctx, bucket, key, LinkTTL)
	if err != nil {
		return Archived{}, fmt.Errorf("presign report: %w", err)
	}

	return Archived{Bucket: bucket, Key: key, URL: url, SHA256: digest}, nil
}

// Encode returns r as zstd-compressed JSON.
func Encode(r Report) ([]byte, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, err
	}
	defer enc.Close()

	return enc.EncodeAll(raw, nil), nil
}

// Decode reverses Encode.
func Decode(data []byte) (Report, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return Report{}, err
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return Report{}, fmt.Errorf("decompress report: %w", err)
	}

	var r Report
	if err := json.Unmarshal(raw, &r); err != nil {
		return Report{}, fmt.Errorf("decode report: %w", err)
	}
	return r, nil
}
