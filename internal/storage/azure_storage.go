package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	apperrors "go-best-shot/internal/errors"
)

// blobDownloader is the part of *azblob.Client the asset source uses
type blobDownloader interface {
	DownloadStream(ctx context.Context, containerName string, blobName string, o *azblob.DownloadStreamOptions) (azblob.DownloadStreamResponse, error)
}

// AzureAssetSource reads previews from blobs named <prefix><assetID>
type AzureAssetSource struct {
	client    blobDownloader
	container string
	prefix    string
	maxBytes  int64
}

func NewAzureAssetSource(accountName, accountKey, container, prefix string, maxBytes int64) (*AzureAssetSource, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, err
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, err
	}

	return newAzureAssetSource(client, container, prefix, maxBytes), nil
}

func newAzureAssetSource(client blobDownloader, container, prefix string, maxBytes int64) *AzureAssetSource {
	if maxBytes <= 0 {
		maxBytes = defaultMaxPreviewBytes
	}
	return &AzureAssetSource{client: client, container: container, prefix: prefix, maxBytes: maxBytes}
}

// FetchPreview implements resolver.AssetSource
func (s *AzureAssetSource) FetchPreview(ctx context.Context, assetID string) ([]byte, error) {
	blobName := s.prefix + assetID

	downloadResponse, err := s.client.DownloadStream(ctx, s.container, blobName, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: blob %s not found (%s)", apperrors.ErrUnavailableInput, blobName, respErr.ErrorCode)
		}
		return nil, fmt.Errorf("%w: download failed: %v", apperrors.ErrUnavailableInput, err)
	}

	retryReader := downloadResponse.Body
	defer retryReader.Close()

	body, _, err := readBounded(retryReader, s.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: blob %s: %v", apperrors.ErrUnavailableInput, blobName, err)
	}
	return body, nil
}
