package identity

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/pixelhotel/messenger/internal/config"
	"github.com/pixelhotel/messenger/internal/models"
)

// Directory resolves user IDs to display identities. Lookups are
// batched; IDs the directory no longer knows (deleted accounts) are
// simply absent from the result.
type Directory interface {
	Lookup(ctx context.Context, userIDs []string) (map[string]models.Identity, error)
}

type httpDirectory struct {
	client *resty.Client
}

func NewDirectory(conf *config.Config) Directory {
	client := resty.New().
		SetBaseURL(conf.Identity.BaseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond)
	if conf.Identity.Token != "" {
		client.SetAuthToken(conf.Identity.Token)
	}
	return &httpDirectory{client: client}
}

type batchLookupRequest struct {
	UserIDs []string `json:"user_ids"`
}

type batchLookupResponse struct {
	Users []models.Identity `json:"users"`
}

func (d *httpDirectory) Lookup(ctx context.Context, userIDs []string) (map[string]models.Identity, error) {
	if len(userIDs) == 0 {
		return map[string]models.Identity{}, nil
	}

	var body batchLookupResponse
	resp, err := d.client.R().
		SetContext(ctx).
		SetBody(batchLookupRequest{UserIDs: userIDs}).
		SetResult(&body).
		Post("/api/v1/users/batch")
	if err != nil {
		return nil, fmt.Errorf("identity lookup: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("identity lookup: unexpected status %d", resp.StatusCode())
	}

	result := make(map[string]models.Identity, len(body.Users))
	for _, id := range body.Users {
		result[id.UserID] = id
	}
	return result, nil
}
