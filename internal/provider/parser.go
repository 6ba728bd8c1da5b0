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
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Walter-bl/nexsentia-sub003/internal/models"
)

// Member is a normalized workspace member record.
type Member struct {
	ID          string
	DisplayName string
	RealName    string
	Email       string
	AvatarURL   string
	Deactivated bool
}

// Channel is a normalized channel record. PeerMemberID is set for direct
// channels and names the member on the other side of the conversation.
type Channel struct {
	ID           string
	Name         string
	Kind         models.ChannelKind
	Archived     bool
	PeerMemberID string
}

// Message is a normalized message record.
type Message struct {
	ID          string
	ThreadID    string
	AuthorID    string
	Text        string
	Reactions   []models.Reaction
	Attachments []models.Attachment
	Edited      bool
	Pinned      bool
	PostedAt    time.Time
}

// envelope is the provider's common response wrapper.
type envelope struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// envelopeChecker lets the transport layer reject non-ok responses
// before page-specific decoding is inspected.
type envelopeChecker interface {
	status() (ok bool, code string)
}

func (e envelope) status() (bool, string) { return e.OK, e.Error }

type responseMetadata struct {
	NextCursor string `json:"next_cursor"`
}

// --- users.list ---

type wireMember struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Deleted bool   `json:"deleted"`
	Profile struct {
		DisplayName string `json:"display_name"`
		RealName    string `json:"real_name"`
		Email       string `json:"email"`
		Image192    string `json:"image_192"`
	} `json:"profile"`
}

type membersPage struct {
	envelope
	Members          []wireMember     `json:"members"`
	ResponseMetadata responseMetadata `json:"response_metadata"`
}

// normalize maps wire members to normalized records. The member id is
// mandatory; records without one are rejected rather than defaulted.
func (p *membersPage) normalize() ([]Member, error) {
	members := make([]Member, 0, len(p.Members))
	for i, w := range p.Members {
		if w.ID == "" {
			return nil, fmt.Errorf("member %d: missing id", i)
		}
		display := w.Profile.DisplayName
		if display == "" {
			display = w.Name
		}
		members = append(members, Member{
			ID:          w.ID,
			DisplayName: display,
			RealName:    w.Profile.RealName,
			Email:       w.Profile.Email,
			AvatarURL:   w.Profile.Image192,
			Deactivated: w.Deleted,
		})
	}
	return members, nil
}

// --- conversations.list ---

type wireChannel struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsArchived bool   `json:"is_archived"`
	IsChannel  bool   `json:"is_channel"`
	IsGroup    bool   `json:"is_group"`
	IsPrivate  bool   `json:"is_private"`
	IsIM       bool   `json:"is_im"`
	IsMpim     bool   `json:"is_mpim"`
	User       string `json:"user"` // peer member for IMs
}

type channelsPage struct {
	envelope
	Channels         []wireChannel    `json:"channels"`
	ResponseMetadata responseMetadata `json:"response_metadata"`
}

func (p *channelsPage) normalize() ([]Channel, error) {
	channels := make([]Channel, 0, len(p.Channels))
	for i, w := range p.Channels {
		if w.ID == "" {
			return nil, fmt.Errorf("channel %d: missing id", i)
		}
		channels = append(channels, Channel{
			ID:           w.ID,
			Name:         w.Name,
			Kind:         channelKind(w),
			Archived:     w.IsArchived,
			PeerMemberID: w.User,
		})
	}
	return channels, nil
}

func channelKind(w wireChannel) models.ChannelKind {
	switch {
	case w.IsIM:
		return models.ChannelDirect
	case w.IsMpim:
		return models.ChannelGroupDirect
	case w.IsPrivate || w.IsGroup:
		return models.ChannelPrivate
	default:
		return models.ChannelPublic
	}
}

// --- conversations.history ---

type wireMessage struct {
	TS       string `json:"ts"`
	ThreadTS string `json:"thread_ts"`
	User     string `json:"user"`
	Text     string `json:"text"`
	Edited   *struct {
		TS string `json:"ts"`
	} `json:"edited"`
	PinnedTo  []string `json:"pinned_to"`
	Reactions []struct {
		Name  string   `json:"name"`
		Count int      `json:"count"`
		Users []string `json:"users"`
	} `json:"reactions"`
	Files []struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Mimetype string `json:"mimetype"`
		Size     int64  `json:"size"`
		URL      string `json:"url_private"`
	} `json:"files"`
}

type messagesPage struct {
	envelope
	Messages         []wireMessage    `json:"messages"`
	ResponseMetadata responseMetadata `json:"response_metadata"`
}

// normalize maps wire messages to normalized records. The ts field is
// both the natural key and the provider timestamp, so a message without
// a parseable ts is rejected.
func (p *messagesPage) normalize() ([]Message, error) {
	messages := make([]Message, 0, len(p.Messages))
	for i, w := range p.Messages {
		if w.TS == "" {
			return nil, fmt.Errorf("message %d: missing ts", i)
		}
		postedAt, err := parseTimestamp(w.TS)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}

		msg := Message{
			ID:       w.TS,
			ThreadID: w.ThreadTS,
			AuthorID: w.User,
			Text:     w.Text,
			Edited:   w.Edited != nil,
			Pinned:   len(w.PinnedTo) > 0,
			PostedAt: postedAt,
		}
		for _, r := range w.Reactions {
			msg.Reactions = append(msg.Reactions, models.Reaction{
				Name:  r.Name,
				Count: r.Count,
				Users: r.Users,
			})
		}
		for _, f := range w.Files {
			msg.Attachments = append(msg.Attachments, models.Attachment{
				ExternalID: f.ID,
				Name:       f.Name,
				MimeType:   f.Mimetype,
				Size:       f.Size,
				URL:        f.URL,
			})
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// formatTimestamp renders a time as the provider's "seconds.micros" form.
func formatTimestamp(t time.Time) string {
	return fmt.Sprintf("%d.%06d", t.Unix(), t.Nanosecond()/1000)
}

// parseTimestamp reads the provider's "seconds.micros" timestamp. The
// fractional part is optional ("1.1" and "1700000000.000100" both parse).
func parseTimestamp(ts string) (time.Time, error) {
	secPart, fracPart, _ := strings.Cut(ts, ".")
	secs, err := strconv.ParseInt(secPart, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q", ts)
	}

	var micros int64
	if fracPart != "" {
		// Right-pad to microsecond precision
		for len(fracPart) < 6 {
			fracPart += "0"
		}
		micros, err = strconv.ParseInt(fracPart[:6], 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("bad timestamp %q", ts)
		}
	}

	return time.Unix(secs, micros*1000).UTC(), nil
}
