package shop

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"gameshop/internal/models"
	"gameshop/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrBroadcastUnavailable is returned when no Telegram client is configured.
var ErrBroadcastUnavailable = errors.New("broadcast: telegram is not configured")

const (
	BroadcastRunning   = "running"
	BroadcastDone      = "done"
	BroadcastCancelled = "cancelled"
)

// StartBroadcast snapshots every user chat and sends text (or photo with
// text as caption) to each of them in the background, one at a time.
func (s *Service) StartBroadcast(ctx context.Context, text, photo, createdBy string) (models.Broadcast, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Broadcast{}, fmt.Errorf("%w: message is required", ErrInvalidInput)
	}
	if s.sender == nil {
		return models.Broadcast{}, ErrBroadcastUnavailable
	}
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return models.Broadcast{}, err
	}
	chats := make([]int64, 0, len(users))
	for _, u := range users {
		id, err := strconv.ParseInt(u.TelegramID, 10, 64)
		if err != nil {
			continue
		}
		chats = append(chats, id)
	}

	b := &models.Broadcast{
		ID:        uuid.NewString(),
		Text:      text,
		Photo:     strings.TrimSpace(photo),
		Status:    BroadcastRunning,
		Total:     len(chats),
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.broadcasts[b.ID] = b
	snapshot := *b
	s.mu.Unlock()

	s.logger.Info("broadcast_started", zap.String("broadcast_id", b.ID), zap.Int("total", b.Total), zap.String("admin", createdBy))
	s.wg.Add(1)
	go s.runBroadcast(b.ID, b.Text, b.Photo, chats)
	return snapshot, nil
}

// runBroadcast sends without retries, pacing sends by the broadcast delay.
func (s *Service) runBroadcast(id, text, photo string, chats []int64) {
	defer s.wg.Done()
	limiter := rate.NewLimiter(rate.Every(s.delay), 1)
	status := BroadcastDone

	for _, chatID := range chats {
		if err := limiter.Wait(s.baseCtx); err != nil {
			status = BroadcastCancelled
			break
		}
		var err error
		if photo != "" {
			err = s.sender.SendPhoto(chatID, photo, text)
		} else {
			err = s.sender.SendMessage(chatID, text)
		}
		s.mu.Lock()
		if err != nil {
			s.broadcasts[id].Failed++
		} else {
			s.broadcasts[id].Sent++
		}
		s.mu.Unlock()
		if err != nil {
			s.logger.Debug("broadcast_send_failed", zap.String("broadcast_id", id), zap.Int64("chat_id", chatID), zap.Error(err))
		}
	}

	now := time.Now().UTC()
	s.mu.Lock()
	b := s.broadcasts[id]
	b.Status = status
	b.FinishedAt = &now
	sent, failed := b.Sent, b.Failed
	s.mu.Unlock()
	s.logger.Info("broadcast_done", zap.String("broadcast_id", id), zap.String("status", status), zap.Int("sent", sent), zap.Int("failed", failed))
}

// Broadcast reports the progress of one broadcast.
func (s *Service) Broadcast(id string) (models.Broadcast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.broadcasts[id]
	if !ok {
		return models.Broadcast{}, repository.ErrNotFound
	}
	return *b, nil
}

// ListBroadcasts returns broadcasts started by this process, newest first.
func (s *Service) ListBroadcasts() []models.Broadcast {
	s.mu.Lock()
	out := make([]models.Broadcast, 0, len(s.broadcasts))
	for _, b := range s.broadcasts {
		out = append(out, *b)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}
