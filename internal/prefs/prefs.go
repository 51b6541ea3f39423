// Package prefs loads and saves the user's briefing preferences through the
// backend API. Payload shapes mirror what the preferences backend accepts:
// a delivery mode plus a per-topic enable/cap list.
package prefs

import (
	"context"
	"fmt"
	"net/url"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/thenewspaper/newsroom-cli/internal/api"
)

// MaxStoriesCap is the largest per-topic story count the backend accepts.
const MaxStoriesCap = 10

// Delivery modes.
const (
	ModeTop10  = "top10"
	ModeCustom = "custom"
)

// Topic is a single briefing topic selection.
type Topic struct {
	Key        string `json:"key"`
	Enabled    bool   `json:"enabled"`
	MaxStories int    `json:"maxStories"`
}

// Preferences is the briefing configuration for one subscriber.
type Preferences struct {
	Email  string  `json:"email"`
	Mode   string  `json:"mode"`
	Topics []Topic `json:"topics"`
}

// Default returns the preferences applied to new users and to unusable
// stored payloads.
func Default(email string) Preferences {
	return Preferences{Email: email, Mode: ModeTop10, Topics: []Topic{}}
}

// Normalize clamps the preferences into the accepted range: unknown modes
// become top10, top10 drops per-topic config, and story caps are clamped to
// 0..MaxStoriesCap.
func Normalize(p Preferences) Preferences {
	if p.Mode != ModeCustom {
		p.Mode = ModeTop10
		p.Topics = []Topic{}
		return p
	}

	topics := make([]Topic, 0, len(p.Topics))
	for _, topic := range p.Topics {
		if topic.Key == "" {
			continue
		}
		if topic.MaxStories < 0 {
			topic.MaxStories = 0
		}
		if topic.MaxStories > MaxStoriesCap {
			topic.MaxStories = MaxStoriesCap
		}
		topics = append(topics, topic)
	}
	p.Topics = topics
	return p
}

// Service talks to the preferences endpoints with the authenticated client.
type Service struct {
	client *api.Client
}

// NewService creates a preferences service.
func NewService(client *api.Client) *Service {
	return &Service{client: client}
}

// Load fetches the stored preferences for the given email. A response with
// an unusable shape yields the defaults rather than an error; the backend
// answering at all means the user simply has nothing saved yet.
func (s *Service) Load(ctx context.Context, email string) (Preferences, error) {
	path := "/api/preferences?email=" + url.QueryEscape(email)
	payload, err := s.client.Get(ctx, path)
	if err != nil {
		return Preferences{}, err
	}
	if payload.NoContent {
		return Default(email), nil
	}

	body := payload.JSON()
	if !body.IsObject() {
		return Default(email), nil
	}

	loaded := Preferences{
		Email: email,
		Mode:  body.Get("mode").String(),
	}
	body.Get("topics").ForEach(func(_, value gjson.Result) bool {
		loaded.Topics = append(loaded.Topics, Topic{
			Key:        value.Get("key").String(),
			Enabled:    value.Get("enabled").Bool(),
			MaxStories: int(value.Get("maxStories").Int()),
		})
		return true
	})
	return Normalize(loaded), nil
}

// Save normalizes and persists the preferences.
func (s *Service) Save(ctx context.Context, p Preferences) error {
	if p.Email == "" {
		return fmt.Errorf("preferences require an email identity")
	}
	p = Normalize(p)

	body := []byte(`{}`)
	body, _ = sjson.SetBytes(body, "email", p.Email)
	body, _ = sjson.SetBytes(body, "mode", p.Mode)
	body, _ = sjson.SetBytes(body, "topics", p.Topics)

	_, err := s.client.Post(ctx, "/api/preferences", body)
	return err
}
