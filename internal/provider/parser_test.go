// Copyright (c) 2026 Nexsentia
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package provider

import (
	"encoding/json"
	"testing"
	"time"
)

// TestParseTimestamp covers the provider's "seconds.micros" form,
// including short and absent fractional parts.
func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"1700000000.000100", time.Unix(1700000000, 100*1000).UTC()},
		{"1700000000.123456", time.Unix(1700000000, 123456*1000).UTC()},
		{"1.1", time.Unix(1, 100000*1000).UTC()},
		{"1700000000", time.Unix(1700000000, 0).UTC()},
	}
	for _, tc := range tests {
		got, err := parseTimestamp(tc.in)
		if err != nil {
			t.Errorf("parseTimestamp(%q): %v", tc.in, err)
			continue
		}
		if !got.Equal(tc.want) {
			t.Errorf("parseTimestamp(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}

	for _, bad := range []string{"", "abc", "12.ab"} {
		if _, err := parseTimestamp(bad); err == nil {
			t.Errorf("parseTimestamp(%q): expected error", bad)
		}
	}
}

// TestFormatTimestamp verifies the round trip through the provider form.
func TestFormatTimestamp(t *testing.T) {
	in := time.Unix(1700000000, 123456*1000).UTC()
	got := formatTimestamp(in)
	if got != "1700000000.123456" {
		t.Errorf("formatTimestamp = %q, want 1700000000.123456", got)
	}
	back, err := parseTimestamp(got)
	if err != nil {
		t.Fatalf("parse back: %v", err)
	}
	if !back.Equal(in) {
		t.Errorf("round trip = %v, want %v", back, in)
	}
}

// TestMessagesPage_FailClosed verifies that a message without a ts is
// rejected rather than silently keyed on an empty string.
func TestMessagesPage_FailClosed(t *testing.T) {
	var page messagesPage
	body := `{
		"ok": true,
		"messages": [
			{"ts": "1700000000.000100", "user": "U1", "text": "fine"},
			{"user": "U2", "text": "no ts"}
		]
	}`
	if err := json.Unmarshal([]byte(body), &page); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, err := page.normalize(); err == nil {
		t.Error("expected error for a message without ts")
	}
}

// TestMessagesPage_Normalize verifies the wire-to-normalized mapping of
// threads, edits, pins, reactions and files.
func TestMessagesPage_Normalize(t *testing.T) {
	var page messagesPage
	body := `{
		"ok": true,
		"messages": [{
			"ts": "1700000000.000100",
			"thread_ts": "1699999999.000001",
			"user": "U1",
			"text": "hello",
			"edited": {"ts": "1700000050.000000"},
			"pinned_to": ["C1"],
			"reactions": [{"name": "thumbsup", "count": 2, "users": ["U2", "U3"]}],
			"files": [{"id": "F1", "name": "report.pdf", "mimetype": "application/pdf", "size": 1024, "url_private": "https://files.example/F1"}]
		}]
	}`
	if err := json.Unmarshal([]byte(body), &page); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	messages, err := page.normalize()
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	m := messages[0]
	if m.ID != "1700000000.000100" {
		t.Errorf("id = %q, want the ts", m.ID)
	}
	if m.ThreadID != "1699999999.000001" {
		t.Errorf("thread id = %q", m.ThreadID)
	}
	if !m.Edited {
		t.Error("edited = false, want true")
	}
	if !m.Pinned {
		t.Error("pinned = false, want true")
	}
	if len(m.Reactions) != 1 || m.Reactions[0].Name != "thumbsup" || m.Reactions[0].Count != 2 {
		t.Errorf("reactions = %+v", m.Reactions)
	}
	if len(m.Attachments) != 1 || m.Attachments[0].ExternalID != "F1" || m.Attachments[0].Size != 1024 {
		t.Errorf("attachments = %+v", m.Attachments)
	}
	if want := time.Unix(1700000000, 100*1000).UTC(); !m.PostedAt.Equal(want) {
		t.Errorf("postedAt = %v, want %v", m.PostedAt, want)
	}
}

// TestMembersPage_FailClosed verifies that a member without an id is
// rejected.
func TestMembersPage_FailClosed(t *testing.T) {
	page := membersPage{Members: []wireMember{{Name: "ghost"}}}
	if _, err := page.normalize(); err == nil {
		t.Error("expected error for a member without id")
	}
}
