package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"pingpay/internal/config"
	"pingpay/internal/models"
)

// ChannelStore is the persisted handle -> chat id mapping. Keeping it
// in the store means any service instance can deliver or register,
// with no in-process bot state.
type ChannelStore interface {
	GetChatChannel(ctx context.Context, handle string) (int64, bool, error)
	SaveChatChannel(ctx context.Context, handle string, chatID int64) error
}

// Telegram delivers claim notices through the Telegram Bot API and
// keeps the channel registry fresh by long-polling bot updates.
type Telegram struct {
	store        ChannelStore
	httpClient   *http.Client
	apiBaseURL   string
	botToken     string
	claimBaseURL string
	pollInterval time.Duration
	logger       zerolog.Logger
}

func NewTelegram(cfg config.TelegramConfig, store ChannelStore, logger zerolog.Logger) *Telegram {
	return &Telegram{
		store:        store,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		apiBaseURL:   strings.TrimRight(cfg.APIBaseURL, "/"),
		botToken:     cfg.BotToken,
		claimBaseURL: cfg.ClaimBaseURL,
		pollInterval: cfg.PollInterval,
		logger:       logger,
	}
}

// NotifyRecipient sends the claim notice when the handle has a
// registered channel. An unreachable recipient is a normal outcome.
func (t *Telegram) NotifyRecipient(ctx context.Context, handle, amount, claimToken, senderHandle string) Delivery {
	normalized := models.NormalizeHandle(handle)

	chatID, ok, err := t.store.GetChatChannel(ctx, normalized)
	if err != nil {
		t.logger.Error().Err(err).Str("handle", normalized).Msg("Channel lookup failed")
		return Delivery{Delivered: false, Reason: "channel lookup failed"}
	}
	if !ok {
		return Delivery{Delivered: false, Reason: "recipient not reachable"}
	}

	text := fmt.Sprintf("You received %s USDC", amount)
	if senderHandle != "" {
		text += fmt.Sprintf(" from @%s", senderHandle)
	}
	text += fmt.Sprintf("!\n\nClaim here: %s", t.claimBaseURL)

	if err := t.sendMessage(ctx, chatID, text); err != nil {
		t.logger.Error().Err(err).Str("handle", normalized).Msg("Failed to send notification")
		return Delivery{Delivered: false, Reason: err.Error()}
	}

	t.logger.Info().Str("handle", normalized).Msg("Claim notification sent")
	return Delivery{Delivered: true}
}

func (t *Telegram) sendMessage(ctx context.Context, chatID int64, text string) error {
	payload, err := json.Marshal(map[string]interface{}{
		"chat_id": chatID,
		"text":    text,
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBaseURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func(body io.ReadCloser) {
		_ = body.Close()
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API error: %d - %s", resp.StatusCode, resp.Status)
	}
	return nil
}

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		From struct {
			Username string `json:"username"`
		} `json:"from"`
	} `json:"message"`
}

// Run long-polls bot updates and registers handle -> chat id bindings
// so later notifications can be delivered. Blocks until ctx is done.
func (t *Telegram) Run(ctx context.Context) {
	t.logger.Info().Msg("Telegram update poller started")

	var offset int64
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info().Msg("Telegram update poller shutting down")
			return
		case <-ticker.C:
			updates, err := t.getUpdates(ctx, offset)
			if err != nil {
				t.logger.Warn().Err(err).Msg("Failed to fetch bot updates")
				continue
			}
			for _, u := range updates {
				if u.UpdateID >= offset {
					offset = u.UpdateID + 1
				}
				t.handleUpdate(ctx, u)
			}
		}
	}
}

func (t *Telegram) getUpdates(ctx context.Context, offset int64) ([]update, error) {
	url := fmt.Sprintf("%s/bot%s/getUpdates?offset=%d", t.apiBaseURL, t.botToken, offset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func(body io.ReadCloser) {
		_ = body.Close()
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram API error: %d - %s", resp.StatusCode, resp.Status)
	}

	var parsed struct {
		OK     bool     `json:"ok"`
		Result []update `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	if !parsed.OK {
		return nil, fmt.Errorf("telegram API returned not ok")
	}
	return parsed.Result, nil
}

func (t *Telegram) handleUpdate(ctx context.Context, u update) {
	if u.Message == nil || u.Message.From.Username == "" {
		return
	}
	handle := models.NormalizeHandle(u.Message.From.Username)

	if err := t.store.SaveChatChannel(ctx, handle, u.Message.Chat.ID); err != nil {
		t.logger.Error().Err(err).Str("handle", handle).Msg("Failed to save chat channel")
		return
	}

	if strings.HasPrefix(u.Message.Text, "/start") {
		welcome := fmt.Sprintf("Welcome, @%s! You're now registered to receive a notice when someone sends you USDC.", handle)
		if err := t.sendMessage(ctx, u.Message.Chat.ID, welcome); err != nil {
			t.logger.Warn().Err(err).Str("handle", handle).Msg("Failed to send welcome message")
		}
	}
}
