package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"flotta/internal/core"
)

type fakeJournal struct {
	next   int64
	err    error
	closed bool
}

func (j *fakeJournal) Insert(_ context.Context, rec core.VehicleUsageRecord) (int64, error) {
	if j.err != nil {
		return 0, j.err
	}
	j.next++
	return j.next, nil
}

func (j *fakeJournal) Close() error {
	j.closed = true
	return nil
}

type fakePublisher struct {
	published []int64
	err       error
}

func (p *fakePublisher) PublishRecordSync(_ context.Context, id, version int64) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, id)
	return nil
}

var record = core.VehicleUsageRecord{
	Date:   time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC),
	Driver: "MARIO",
	Plate:  "AB123CD",
}

func TestRecordServiceAppend(t *testing.T) {
	journal := &fakeJournal{}
	pub := &fakePublisher{}
	service := NewRecordService(journal, pub)

	ref, err := service.AppendRecord(context.Background(), record)
	if err != nil {
		t.Fatalf("AppendRecord: %v", err)
	}
	if ref != "sqlite:1" {
		t.Errorf("ref = %q", ref)
	}
	if len(pub.published) != 1 || pub.published[0] != 1 {
		t.Errorf("published = %v", pub.published)
	}
}

func TestRecordServicePublishFailureKeepsRecord(t *testing.T) {
	service := NewRecordService(&fakeJournal{}, &fakePublisher{err: errors.New("broker down")})

	if _, err := service.AppendRecord(context.Background(), record); err != nil {
		t.Fatalf("publish failure must not fail the append: %v", err)
	}
}

func TestRecordServiceWithoutPublisher(t *testing.T) {
	service := NewRecordService(&fakeJournal{}, nil)
	if _, err := service.AppendRecord(context.Background(), record); err != nil {
		t.Fatalf("AppendRecord: %v", err)
	}
}

func TestRecordServiceJournalFailure(t *testing.T) {
	cause := core.StoreUnavailable("insert record", errors.New("disk full"))
	service := NewRecordService(&fakeJournal{err: cause}, &fakePublisher{})

	if _, err := service.AppendRecord(context.Background(), record); !errors.Is(err, core.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestRecordServiceClose(t *testing.T) {
	journal := &fakeJournal{}
	service := NewRecordService(journal, nil)
	if err := service.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !journal.closed {
		t.Error("journal not closed")
	}
}
