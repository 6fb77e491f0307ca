package domain

import (
	"errors"
	"testing"
)

func TestParseLegacyPayload(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    NotificationPayload
		wantErr bool
	}{
		{
			name:  "simple",
			input: "12|Drink water|health",
			want:  NotificationPayload{RecordID: 12, Title: "Drink water", Category: "health", Action: ActionFire},
		},
		{
			name:  "title containing pipes",
			input: "3|a|b|c|work",
			want:  NotificationPayload{RecordID: 3, Title: "a|b|c", Category: "work", Action: ActionFire},
		},
		{
			name:  "empty category",
			input: "5|Stretch|",
			want:  NotificationPayload{RecordID: 5, Title: "Stretch", Category: "", Action: ActionFire},
		},
		{name: "single segment", input: "12", wantErr: true},
		{name: "two segments", input: "12|title", wantErr: true},
		{name: "non numeric id", input: "x|title|cat", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLegacyPayload(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidLegacyPayload) {
					t.Errorf("expected ErrInvalidLegacyPayload, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNotificationPayload_LegacyIsParseable(t *testing.T) {
	p := NotificationPayload{RecordID: 8, Title: "Call | mom", Category: "family", Action: ActionFire}

	parsed, err := ParseLegacyPayload(p.Legacy())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.RecordID != p.RecordID || parsed.Title != p.Title || parsed.Category != p.Category {
		t.Errorf("got %+v, want %+v", parsed, p)
	}
}
