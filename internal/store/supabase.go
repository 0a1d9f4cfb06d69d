// Package store is the persistence gateway: a thin client over the hosted
// Supabase REST interface recording media items, transcripts, conversations,
// and subscriptions. The service owns none of this data's schema; writes are
// best-effort from the orchestrator's point of view.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	supabase "github.com/supabase-community/supabase-go"

	"clipscribe/internal/domain"
)

// MediaItem is one saved knowledge-base entry.
type MediaItem struct {
	ID              string  `json:"id,omitempty"`
	UserID          string  `json:"user_id"`
	Title           string  `json:"title"`
	MediaType       string  `json:"media_type"`
	SourceURL       string  `json:"source_url"`
	FileURL         string  `json:"file_url"`
	DurationSeconds float64 `json:"duration_seconds"`
	ThumbnailURL    string  `json:"thumbnail_url,omitempty"`
}

// Transcript is the stored text for a media item.
type Transcript struct {
	ID          string `json:"id,omitempty"`
	MediaItemID string `json:"media_item_id,omitempty"`
	UserID      string `json:"user_id"`
	Content     string `json:"content"`
	Method      string `json:"method"`
}

// Message is one chat turn within a conversation.
type Message struct {
	ID             string `json:"id,omitempty"`
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Role           string `json:"role"`
	Content        string `json:"content"`
}

// Subscription records a user's billing tier.
type Subscription struct {
	UserID string `json:"user_id"`
	Tier   string `json:"tier"`
	Status string `json:"status"`
}

// Store wraps the Supabase SDK client.
type Store struct {
	client *supabase.Client
	logger *log.Logger
}

// New connects to the hosted store. Returns an error when the project URL or
// key is malformed; reachability is not probed here.
func New(projectURL, serviceKey string, logger *log.Logger) (*Store, error) {
	client, err := supabase.NewClient(projectURL, serviceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("initialize supabase client: %w", err)
	}
	return &Store{client: client, logger: logger}, nil
}

// VerifyToken resolves a bearer token to the authenticated user ID.
func (s *Store) VerifyToken(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", domain.E(domain.KindAuth, "missing bearer credential", nil)
	}

	user, err := s.client.Auth.WithToken(token).GetUser()
	if err != nil {
		return "", domain.E(domain.KindAuth, "invalid bearer credential", err)
	}
	return user.ID.String(), nil
}

// SaveMediaItem inserts a media item row and returns its generated ID.
func (s *Store) SaveMediaItem(ctx context.Context, item MediaItem) (string, error) {
	return s.insertReturningID(ctx, "media_items", item)
}

// SaveTranscript inserts a transcript row and returns its generated ID.
func (s *Store) SaveTranscript(ctx context.Context, t Transcript) (string, error) {
	return s.insertReturningID(ctx, "transcripts", t)
}

// SaveMessage appends one chat turn to a conversation.
func (s *Store) SaveMessage(ctx context.Context, m Message) error {
	_, err := s.insertReturningID(ctx, "messages", m)
	return err
}

// UpsertSubscription records the user's current billing tier.
func (s *Store) UpsertSubscription(ctx context.Context, sub Subscription) error {
	_, _, err := s.client.From("subscriptions").
		Insert(sub, true, "user_id", "minimal", "").
		Execute()
	if err != nil {
		return domain.E(domain.KindPersistence, "upsert subscription", err)
	}
	return nil
}

// MediaItemsByID fetches knowledge-base entries for chat context.
func (s *Store) MediaItemsByID(ctx context.Context, ids []string) ([]MediaItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	data, _, err := s.client.From("media_items").
		Select("id,user_id,title,media_type,source_url,file_url,duration_seconds,thumbnail_url", "", false).
		In("id", ids).
		Execute()
	if err != nil {
		return nil, domain.E(domain.KindPersistence, "fetch media items", err)
	}

	var items []MediaItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, domain.E(domain.KindPersistence, "decode media items", err)
	}
	return items, nil
}

// TranscriptsByID fetches transcripts for chat context.
func (s *Store) TranscriptsByID(ctx context.Context, ids []string) ([]Transcript, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	data, _, err := s.client.From("transcripts").
		Select("id,media_item_id,user_id,content,method", "", false).
		In("id", ids).
		Execute()
	if err != nil {
		return nil, domain.E(domain.KindPersistence, "fetch transcripts", err)
	}

	var transcripts []Transcript
	if err := json.Unmarshal(data, &transcripts); err != nil {
		return nil, domain.E(domain.KindPersistence, "decode transcripts", err)
	}
	return transcripts, nil
}

// insertReturningID inserts one row and decodes the generated primary key.
func (s *Store) insertReturningID(ctx context.Context, table string, row any) (string, error) {
	data, _, err := s.client.From(table).
		Insert(row, false, "", "representation", "").
		Execute()
	if err != nil {
		return "", domain.E(domain.KindPersistence, "insert into "+table, err)
	}

	var inserted []struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &inserted); err != nil || len(inserted) == 0 {
		return "", domain.E(domain.KindPersistence, "decode inserted row from "+table, err)
	}
	return inserted[0].ID, nil
}
