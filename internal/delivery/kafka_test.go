package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kafka "github.com/segmentio/kafka-go"

	"github.com/ecofood/foodshare/internal/model"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaSender_Envelope(t *testing.T) {
	w := &fakeWriter{}
	s := &KafkaSender{writer: w, topic: "test"}

	phone := "+15550100"
	org := &model.Account{ID: "org-1", Name: "Food Bank", Email: "org@example.com", Phone: &phone}
	donor := &model.Account{ID: "donor-1", Name: "Cafe", Email: "cafe@example.com"}
	listing := &model.Listing{ID: "l-1", Name: "Hot Meals", Quantity: "10 units", ExpiresAt: time.Now().UTC()}

	if err := s.SendPostedAlert(context.Background(), org, listing, donor); err != nil {
		t.Fatalf("SendPostedAlert: %v", err)
	}
	if err := s.SendClaimedAlert(context.Background(), donor, listing, org); err != nil {
		t.Fatalf("SendClaimedAlert: %v", err)
	}

	if len(w.msgs) != 2 {
		t.Fatalf("wrote %d messages, want 2", len(w.msgs))
	}

	tests := []struct {
		key         string
		kind        string
		phone       string
		counterpart string
	}{
		{"org-1", AlertPosted, "+15550100", "Cafe"},
		{"donor-1", AlertClaimed, "", "Food Bank"},
	}
	for i, tt := range tests {
		msg := w.msgs[i]
		if string(msg.Key) != tt.key {
			t.Errorf("msg %d key = %q, want %q", i, msg.Key, tt.key)
		}
		var env Envelope
		if err := json.Unmarshal(msg.Value, &env); err != nil {
			t.Fatalf("msg %d: unmarshal: %v", i, err)
		}
		if env.Kind != tt.kind || env.Phone != tt.phone || env.Counterpart != tt.counterpart {
			t.Errorf("msg %d envelope = %+v", i, env)
		}
		if env.ID == "" || env.ListingID != "l-1" {
			t.Errorf("msg %d missing ids: %+v", i, env)
		}
	}
}

func TestKafkaSender_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	s := &KafkaSender{writer: w, topic: "test"}

	donor := &model.Account{ID: "donor-1", Name: "Cafe"}
	err := s.SendPickupCompletedAlert(context.Background(), &model.Account{ID: "org-1"}, &model.Listing{ID: "l-1"}, donor)
	if err == nil || !errors.Is(err, w.err) {
		t.Fatalf("err = %v, want wrapped broker error", err)
	}
}
