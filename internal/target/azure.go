package target

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
)

type azureTarget struct {
	client    *azblob.Client
	name      string
	container string
	prefix    string
}

// newAzureTarget authenticates with the default Azure credential chain.
func newAzureTarget(cfg Config) (Target, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("creating Azure credential: %w", err)
	}
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.StorageAccount)
	client, err := azblob.NewClient(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("creating Azure blob client: %w", err)
	}
	return &azureTarget{
		client:    client,
		name:      cfg.Name,
		container: cfg.ContainerName,
		prefix:    normalizePrefix(cfg.Prefix),
	}, nil
}

func (t *azureTarget) Name() string { return t.name }

func (t *azureTarget) Put(ctx context.Context, key string, body io.Reader, opts PutOptions) error {
	upload := &blockblob.UploadStreamOptions{}
	if opts.ContentType != "" {
		ct := opts.ContentType
		upload.HTTPHeaders = &blob.HTTPHeaders{BlobContentType: &ct}
	}
	if len(opts.Metadata) > 0 {
		upload.Metadata = make(map[string]*string, len(opts.Metadata))
		for k, v := range opts.Metadata {
			v := v
			upload.Metadata[k] = &v
		}
	}

	if _, err := t.client.UploadStream(ctx, t.container, t.prefix+key, body, upload); err != nil {
		return fmt.Errorf("azure upload %s/%s%s: %w", t.container, t.prefix, key, err)
	}
	return nil
}

func (t *azureTarget) Get(ctx context.Context, key string) (io.ReadCloser, ObjectMeta, error) {
	resp, err := t.client.DownloadStream(ctx, t.container, t.prefix+key, nil)
	if err != nil {
		if isAzureNotFound(err) {
			return nil, ObjectMeta{}, ErrNotFound
		}
		return nil, ObjectMeta{}, fmt.Errorf("azure download %s/%s%s: %w", t.container, t.prefix, key, err)
	}
	meta := ObjectMeta{}
	if resp.ETag != nil {
		meta.ETag = string(*resp.ETag)
	}
	if resp.ContentLength != nil {
		meta.Size = *resp.ContentLength
	}
	if resp.ContentType != nil {
		meta.ContentType = *resp.ContentType
	}
	return resp.Body, meta, nil
}

func (t *azureTarget) Head(ctx context.Context, key string) (ObjectMeta, error) {
	bc := t.client.ServiceClient().NewContainerClient(t.container).NewBlobClient(t.prefix + key)
	props, err := bc.GetProperties(ctx, nil)
	if err != nil {
		if isAzureNotFound(err) {
			return ObjectMeta{}, ErrNotFound
		}
		return ObjectMeta{}, fmt.Errorf("azure properties %s/%s%s: %w", t.container, t.prefix, key, err)
	}
	meta := ObjectMeta{}
	if props.ETag != nil {
		meta.ETag = string(*props.ETag)
	}
	if props.ContentLength != nil {
		meta.Size = *props.ContentLength
	}
	if props.ContentType != nil {
		meta.ContentType = *props.ContentType
	}
	return meta, nil
}

func (t *azureTarget) Delete(ctx context.Context, key string) error {
	if _, err := t.client.DeleteBlob(ctx, t.container, t.prefix+key, nil); err != nil && !isAzureNotFound(err) {
		return fmt.Errorf("azure delete %s/%s%s: %w", t.container, t.prefix, key, err)
	}
	return nil
}

func (t *azureTarget) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	full := t.prefix + prefix
	pager := t.client.NewListBlobsFlatPager(t.container, &container.ListBlobsFlatOptions{Prefix: &full})

	var out []ObjectInfo
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("azure list %s/%s: %w", t.container, full, err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			info := ObjectInfo{Key: strings.TrimPrefix(*item.Name, t.prefix)}
			if p := item.Properties; p != nil {
				if p.ContentLength != nil {
					info.Size = *p.ContentLength
				}
				if p.ETag != nil {
					info.ETag = string(*p.ETag)
				}
			}
			out = append(out, info)
		}
	}
	return out, nil
}

func isAzureNotFound(err error) bool {
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		return true
	}
	var re *azcore.ResponseError
	return errors.As(err, &re) && re.StatusCode == http.StatusNotFound
}
