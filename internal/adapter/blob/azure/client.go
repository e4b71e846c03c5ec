// Package azure fetches submission blobs (source code, test inputs,
// expected outputs) from Azure Blob Storage.
package azure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"unicode/utf8"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/cenkalti/backoff/v4"
	"github.com/gabriel-vasile/mimetype"

	metrics "github.com/fairyhunter13/code-eval-worker/internal/adapter/observability"
	"github.com/fairyhunter13/code-eval-worker/internal/config"
	"github.com/fairyhunter13/code-eval-worker/internal/domain"
)

// Client implements domain.SourceStore on top of an Azure Blob
// Storage container. Transient download failures are retried with
// exponential backoff; a missing blob is permanent and surfaces as
// domain.ErrNotFound.
type Client struct {
	cfg       config.Config
	ac        *azblob.Client
	container string
}

// New constructs the blob client from the configured connection string.
func New(cfg config.Config) (*Client, error) {
	ac, err := azblob.NewClientFromConnectionString(cfg.AzureStorageConnectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("op=blob.New: %w", err)
	}
	return &Client{cfg: cfg, ac: ac, container: cfg.AzureStorageContainer}, nil
}

// getBackoffConfig returns a configured ExponentialBackOff based on the current environment.
func (c *Client) getBackoffConfig() *backoff.ExponentialBackOff {
	expo := backoff.NewExponentialBackOff()

	maxElapsedTime, initialInterval, maxInterval, multiplier := c.cfg.GetBlobBackoffConfig()
	expo.MaxElapsedTime = maxElapsedTime
	expo.InitialInterval = initialInterval
	expo.MaxInterval = maxInterval
	expo.Multiplier = multiplier

	return expo
}

// FetchText downloads one blob and returns it as UTF-8 text.
func (c *Client) FetchText(ctx domain.Context, key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("op=blob.FetchText: empty key: %w", domain.ErrInvalidArgument)
	}

	var data []byte
	op := func() error {
		resp, err := c.ac.DownloadStream(ctx, c.container, key, nil)
		if err != nil {
			if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
				return backoff.Permanent(fmt.Errorf("blob %s: %w", key, domain.ErrNotFound))
			}
			slog.Warn("blob download failed",
				slog.String("container", c.container),
				slog.String("key", key),
				slog.Any("error", err))
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			slog.Warn("blob body read failed", slog.String("key", key), slog.Any("error", err))
			return err
		}
		data = b
		return nil
	}

	bo := backoff.WithContext(c.getBackoffConfig(), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.RecordBlobFetch("not_found")
		} else {
			metrics.RecordBlobFetch("error")
		}
		return "", fmt.Errorf("op=blob.FetchText: %w", err)
	}

	text, err := decodeText(key, data)
	if err != nil {
		metrics.RecordBlobFetch("error")
		return "", err
	}
	metrics.RecordBlobFetch("ok")
	return text, nil
}

// decodeText rejects blobs that are not valid UTF-8. The sniffed MIME
// type goes into the diagnostic so an accidentally uploaded binary is
// recognisable from the error alone.
func decodeText(key string, data []byte) (string, error) {
	if !utf8.Valid(data) {
		mt := mimetype.Detect(data)
		return "", fmt.Errorf("op=blob.decodeText: blob %s is not UTF-8 text (detected %s): %w", key, mt.String(), domain.ErrInvalidArgument)
	}
	return string(data), nil
}

// Ping checks the configured container answers. The readiness probe
// calls this with a short deadline.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.ac.ServiceClient().NewContainerClient(c.container).GetProperties(ctx, nil)
	if err != nil {
		return fmt.Errorf("op=blob.Ping: container %s: %w", c.container, err)
	}
	return nil
}
