package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/dayflow/dayflow/internal/config"
	"github.com/dayflow/dayflow/internal/core"
)

// GoogleOAuth handles the OAuth2 flow for Google Calendar.
type GoogleOAuth struct {
	config *oauth2.Config
}

// NewGoogleOAuth creates an OAuth client from configuration.
func NewGoogleOAuth(cfg config.GoogleConfig) *GoogleOAuth {
	return &GoogleOAuth{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes: []string{
				calendar.CalendarReadonlyScope,
				calendar.CalendarEventsScope,
			},
			Endpoint: google.Endpoint,
		},
	}
}

// AuthURL returns the URL the user visits to authorize access.
func (g *GoogleOAuth) AuthURL(state string) string {
	return g.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token.
func (g *GoogleOAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return g.config.Exchange(ctx, code)
}

// Service builds a Calendar API service for a token. The underlying HTTP
// client refreshes the token transparently.
func (g *GoogleOAuth) Service(ctx context.Context, token *oauth2.Token) (*calendar.Service, error) {
	client := g.config.Client(ctx, token)
	return calendar.NewService(ctx, option.WithHTTPClient(client))
}

// Configured reports whether OAuth credentials are present.
func (g *GoogleOAuth) Configured() bool {
	return g.config.ClientID != "" && g.config.ClientSecret != ""
}

// TokenStore persists OAuth tokens as JSON files keyed by credential id.
type TokenStore struct {
	dir string
}

// NewTokenStore creates a token store under dir.
func NewTokenStore(dir string) (*TokenStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating token dir: %w", err)
	}
	return &TokenStore{dir: dir}, nil
}

// Save writes a token for a credential id.
func (s *TokenStore) Save(credentialID string, token *oauth2.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(credentialID), data, 0600)
}

// Load reads the token for a credential id.
func (s *TokenStore) Load(credentialID string) (*oauth2.Token, error) {
	data, err := os.ReadFile(s.path(credentialID))
	if err != nil {
		return nil, fmt.Errorf("loading token %s: %w", credentialID, err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("parsing token %s: %w", credentialID, err)
	}
	return &token, nil
}

func (s *TokenStore) path(credentialID string) string {
	return filepath.Join(s.dir, credentialID+".json")
}

// GoogleProvider syncs against the Google Calendar API.
type GoogleProvider struct {
	oauth  *GoogleOAuth
	tokens *TokenStore
}

// NewGoogleProvider creates a Google Calendar provider.
func NewGoogleProvider(oauth *GoogleOAuth, tokens *TokenStore) *GoogleProvider {
	return &GoogleProvider{oauth: oauth, tokens: tokens}
}

func (p *GoogleProvider) service(ctx context.Context, conn *core.CalendarConnection) (*calendar.Service, error) {
	token, err := p.tokens.Load(conn.CredentialID)
	if err != nil {
		return nil, err
	}
	return p.oauth.Service(ctx, token)
}

// ListEvents fetches events from the connection's calendar.
func (p *GoogleProvider) ListEvents(ctx context.Context, conn *core.CalendarConnection, start, end time.Time) ([]ProviderEvent, error) {
	svc, err := p.service(ctx, conn)
	if err != nil {
		return nil, err
	}

	calendarID := conn.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}

	list, err := svc.Events.List(calendarID).
		Context(ctx).
		TimeMin(start.Format(time.RFC3339)).
		TimeMax(end.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Do()
	if err != nil {
		return nil, fmt.Errorf("listing google events: %w", err)
	}

	events := make([]ProviderEvent, 0, len(list.Items))
	for _, item := range list.Items {
		events = append(events, convertGoogleEvent(item))
	}
	return events, nil
}

// CreateEvent pushes an event to the connection's calendar.
func (p *GoogleProvider) CreateEvent(ctx context.Context, conn *core.CalendarConnection, event ProviderEvent) (string, error) {
	svc, err := p.service(ctx, conn)
	if err != nil {
		return "", err
	}

	calendarID := conn.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}

	remote := &calendar.Event{
		Summary:  event.Title,
		Location: event.Location,
	}
	if event.AllDay {
		remote.Start = &calendar.EventDateTime{Date: event.Start.Format("2006-01-02")}
		remote.End = &calendar.EventDateTime{Date: event.End.Format("2006-01-02")}
	} else {
		remote.Start = &calendar.EventDateTime{DateTime: event.Start.Format(time.RFC3339)}
		remote.End = &calendar.EventDateTime{DateTime: event.End.Format(time.RFC3339)}
	}

	created, err := svc.Events.Insert(calendarID, remote).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("creating google event: %w", err)
	}
	return created.Id, nil
}

func convertGoogleEvent(item *calendar.Event) ProviderEvent {
	ev := ProviderEvent{
		ExternalID: item.Id,
		Title:      item.Summary,
		Location:   item.Location,
		Status:     core.EventConfirmed,
	}

	switch item.Status {
	case "tentative":
		ev.Status = core.EventTentative
	case "cancelled":
		ev.Status = core.EventCancelled
	}

	if item.Start != nil {
		if item.Start.DateTime != "" {
			ev.Start, _ = time.Parse(time.RFC3339, item.Start.DateTime)
		} else if item.Start.Date != "" {
			ev.Start, _ = time.Parse("2006-01-02", item.Start.Date)
			ev.AllDay = true
		}
	}
	if item.End != nil {
		if item.End.DateTime != "" {
			ev.End, _ = time.Parse(time.RFC3339, item.End.DateTime)
		} else if item.End.Date != "" {
			ev.End, _ = time.Parse("2006-01-02", item.End.Date)
		}
	}

	return ev
}
