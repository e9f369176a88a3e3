package gmailclient

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// Client wraps the Gmail API client. Sends are throttled by a shared limiter so concurrent
// notifications stay under the Gmail sending quota.
type Client struct {
	service *gmail.Service
	userID  string
	sender  string
	limiter *rate.Limiter
}

// NewClient creates a Gmail client from an authorised OAuth config and token. userID is the
// mailbox to send as ("me" for the authorised account); sender, when set, becomes the From header.
func NewClient(ctx context.Context, oauthConfig *oauth2.Config, token *oauth2.Token, userID, sender string, perMinute int) (*Client, error) {
	httpClient := oauthConfig.Client(ctx, token)

	service, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}

	return &Client{
		service: service,
		userID:  userID,
		sender:  sender,
		limiter: NewLimiter(perMinute),
	}, nil
}

// NewLimiter allows perMinute sends per minute with no burst. Zero or less means one send
// every three seconds.
func NewLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Every(3*time.Second), 1)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
}
