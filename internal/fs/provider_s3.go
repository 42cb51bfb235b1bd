package fs

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/justyntemme/razorlist/internal/debug"
	"github.com/justyntemme/razorlist/internal/model"
)

// S3API is the subset of the S3 client used by the provider.
type S3API interface {
	s3.ListObjectsV2APIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Provider serves s3://bucket/prefix paths, treating "/" as the folder
// delimiter. Every entry is cloud-only.
type S3Provider struct {
	Region   string
	PageSize int32

	once   sync.Once
	client S3API
	err    error
}

// NewS3Provider creates a provider that loads the default AWS config on
// first use.
func NewS3Provider(region string) *S3Provider {
	return &S3Provider{Region: region, PageSize: 1000}
}

// NewS3ProviderWithClient creates a provider around an existing client.
func NewS3ProviderWithClient(client S3API) *S3Provider {
	p := &S3Provider{PageSize: 1000, client: client}
	p.once.Do(func() {})
	return p
}

func (p *S3Provider) api(ctx context.Context) (S3API, error) {
	p.once.Do(func() {
		var opts []func(*config.LoadOptions) error
		if p.Region != "" {
			opts = append(opts, config.WithRegion(p.Region))
		}
		cfg, err := config.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			p.err = fmt.Errorf("failed to load AWS config: %w", err)
			return
		}
		p.client = s3.NewFromConfig(cfg)
	})
	return p.client, p.err
}

// ParseS3 splits s3://bucket/key into bucket and key (no leading slash).
func ParseS3(raw string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(raw, "s3://")
	if !ok {
		return "", "", fmt.Errorf("expected s3:// scheme: %q", raw)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("S3 path must include a bucket: %q", raw)
	}
	return bucket, strings.Trim(key, "/"), nil
}

type s3Folder struct {
	path   string
	bucket string
	prefix string
	api    S3API
	size   int32
}

func (f *s3Folder) Path() string { return f.path }

// GetFolder resolves a prefix. The bucket root always exists; other
// prefixes must contain at least one object.
func (p *S3Provider) GetFolder(ctx context.Context, raw string) (Folder, error) {
	bucket, key, err := ParseS3(raw)
	if err != nil {
		return nil, NewError(UnsupportedPath, raw, err)
	}
	api, err := p.api(ctx)
	if err != nil {
		return nil, NewError(Unauthorized, raw, err)
	}

	prefix := ""
	if key != "" {
		prefix = key + "/"
		out, err := api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:  aws.String(bucket),
			Prefix:  aws.String(prefix),
			MaxKeys: aws.Int32(1),
		})
		if err != nil {
			return nil, mapS3Error(raw, err)
		}
		if len(out.Contents) == 0 && len(out.CommonPrefixes) == 0 {
			return nil, NewError(NotFound, raw, ErrNotFound)
		}
	}
	return &s3Folder{path: raw, bucket: bucket, prefix: prefix, api: api, size: p.PageSize}, nil
}

// Enumerate streams the prefix page by page.
func (f *s3Folder) Enumerate(ctx context.Context) (EntryStream, error) {
	pager := s3.NewListObjectsV2Paginator(f.api, &s3.ListObjectsV2Input{
		Bucket:    aws.String(f.bucket),
		Prefix:    aws.String(f.prefix),
		Delimiter: aws.String("/"),
		MaxKeys:   aws.Int32(f.size),
	})
	return &s3Stream{folder: f, pager: pager}, nil
}

type s3Stream struct {
	folder  *s3Folder
	pager   *s3.ListObjectsV2Paginator
	pending []model.RawEntry
	err     error
}

func (s *s3Stream) Next(ctx context.Context) (model.RawEntry, bool) {
	for len(s.pending) == 0 {
		if s.err != nil || !s.pager.HasMorePages() {
			return model.RawEntry{}, false
		}
		page, err := s.pager.NextPage(ctx)
		if err != nil {
			s.err = mapS3Error(s.folder.path, err)
			return model.RawEntry{}, false
		}
		debug.Log(debug.SOURCE_ENTRY, "s3: page of %d objects, %d prefixes under %q",
			len(page.Contents), len(page.CommonPrefixes), s.folder.prefix)
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), s.folder.prefix), "/")
			if name == "" {
				continue
			}
			s.pending = append(s.pending, model.RawEntry{
				Name:   name,
				Path:   s.folder.child(name),
				IsDir:  true,
				Source: model.SourceCloud,
			})
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), s.folder.prefix)
			if name == "" || strings.HasSuffix(name, "/") {
				// Folder marker object
				continue
			}
			s.pending = append(s.pending, model.RawEntry{
				Name:    name,
				Path:    s.folder.child(name),
				Size:    aws.ToInt64(obj.Size),
				ModTime: aws.ToTime(obj.LastModified),
				Source:  model.SourceCloud,
			})
		}
	}
	e := s.pending[0]
	s.pending = s.pending[1:]
	return e, true
}

func (s *s3Stream) Err() error   { return s.err }
func (s *s3Stream) Close() error { return nil }

func (f *s3Folder) child(name string) string {
	return "s3://" + f.bucket + "/" + path.Join(f.prefix, name)
}

// GetFile heads an object, or resolves a prefix as a directory.
func (p *S3Provider) GetFile(ctx context.Context, raw string) (model.RawEntry, error) {
	bucket, key, err := ParseS3(raw)
	if err != nil {
		return model.RawEntry{}, NewError(UnsupportedPath, raw, err)
	}
	api, err := p.api(ctx)
	if err != nil {
		return model.RawEntry{}, NewError(Unauthorized, raw, err)
	}
	if key == "" {
		return model.RawEntry{Name: bucket, Path: raw, IsDir: true, Source: model.SourceCloud}, nil
	}

	out, err := api.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err == nil {
		return model.RawEntry{
			Name:    path.Base(key),
			Path:    raw,
			Size:    aws.ToInt64(out.ContentLength),
			ModTime: aws.ToTime(out.LastModified),
			Source:  model.SourceCloud,
		}, nil
	}
	if KindOf(mapS3Error(raw, err)) != NotFound {
		return model.RawEntry{}, mapS3Error(raw, err)
	}
	if _, ferr := p.GetFolder(ctx, raw); ferr != nil {
		return model.RawEntry{}, ferr
	}
	return model.RawEntry{Name: path.Base(key), Path: raw, IsDir: true, Source: model.SourceCloud}, nil
}

// SyncStatus reports every S3 entry as cloud-only.
func (p *S3Provider) SyncStatus(ctx context.Context, raw string) (model.SyncStatus, error) {
	return model.SyncCloudOnly, nil
}

func mapS3Error(raw string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket":
			return NewError(NotFound, raw, err)
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return NewError(Unauthorized, raw, err)
		case "SlowDown", "ServiceUnavailable", "RequestTimeout":
			return NewError(Transient, raw, err)
		}
	}
	return MapError(raw, err)
}
