package services

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"maps"
	"mime"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pitchlab/stack-deployer/internal/errors"
	"github.com/pitchlab/stack-deployer/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// S3 DeleteObjects accepts at most 1000 keys per call
const deleteBatchSize = 1000

const defaultSyncWorkers = 8

// SiteBucketAPI defines the S3 operations used to publish a site build
type SiteBucketAPI interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// SiteSyncService mirrors a local build directory into an S3 bucket
type SiteSyncService struct {
	client  SiteBucketAPI
	workers int
}

// NewSiteSyncService creates a new SiteSyncService instance
func NewSiteSyncService(client SiteBucketAPI) *SiteSyncService {
	return &SiteSyncService{
		client:  client,
		workers: defaultSyncWorkers,
	}
}

// SyncObject is a local file scheduled for upload
type SyncObject struct {
	Path string // Local file path
	Key  string // Destination object key
	Size int64
}

// SyncPlan describes the changes needed to make the bucket match the build
// directory. Uploads and Deletes are in stable key order.
type SyncPlan struct {
	Uploads   []SyncObject
	Deletes   []string
	Unchanged int
}

// Empty reports whether the plan has no work to do
func (p *SyncPlan) Empty() bool {
	return len(p.Uploads) == 0 && len(p.Deletes) == 0
}

type remoteObject struct {
	etag string
	size int64
}

// BuildPlan compares the build directory against the bucket contents under
// prefix. Files whose size and ETag both match are left alone. When prune is
// set, remote objects with no local counterpart are scheduled for deletion.
func (s *SiteSyncService) BuildPlan(ctx context.Context, dir, bucket, prefix string, prune bool) (*SyncPlan, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", errors.ErrBuildOutputNotFound, dir)
		}
		return nil, fmt.Errorf("failed to read build directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", errors.ErrBuildOutputNotFound, dir)
	}

	locals, err := s.listLocal(dir, prefix)
	if err != nil {
		return nil, err
	}

	remotes, err := s.listRemote(ctx, bucket, prefix)
	if err != nil {
		return nil, err
	}

	plan := &SyncPlan{}
	for _, key := range slices.Sorted(maps.Keys(locals)) {
		local := locals[key]
		remote, ok := remotes[key]
		if ok && remote.size == local.Size {
			same, err := matchesETag(local.Path, remote.etag)
			if err != nil {
				return nil, fmt.Errorf("failed to checksum %s: %w", local.Path, err)
			}
			if same {
				plan.Unchanged++
				continue
			}
		}
		plan.Uploads = append(plan.Uploads, local)
	}

	if prune {
		for _, key := range slices.Sorted(maps.Keys(remotes)) {
			if _, ok := locals[key]; !ok {
				plan.Deletes = append(plan.Deletes, key)
			}
		}
	}

	return plan, nil
}

// Apply executes a sync plan: uploads run on a bounded worker pool, then
// stale objects are removed in batches. Nothing is retried and nothing is
// rolled back on failure.
func (s *SiteSyncService) Apply(ctx context.Context, bucket string, plan *SyncPlan) (*models.SyncSummary, error) {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.workers)
	for _, object := range plan.Uploads {
		group.Go(func() error {
			return s.upload(groupCtx, bucket, object)
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	deleted, err := s.deleteKeys(ctx, bucket, plan.Deletes)
	if err != nil {
		return nil, err
	}

	return &models.SyncSummary{
		Uploaded:  len(plan.Uploads),
		Deleted:   deleted,
		Unchanged: plan.Unchanged,
	}, nil
}

func (s *SiteSyncService) listLocal(dir, prefix string) (map[string]SyncObject, error) {
	locals := map[string]SyncObject{}
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}

		key := objectKey(prefix, filepath.ToSlash(rel))
		locals[key] = SyncObject{Path: p, Key: key, Size: info.Size()}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk build directory: %w", err)
	}

	return locals, nil
}

func (s *SiteSyncService) listRemote(ctx context.Context, bucket, prefix string) (map[string]remoteObject, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
	}
	if prefix != "" {
		input.Prefix = aws.String(strings.TrimSuffix(prefix, "/") + "/")
	}

	remotes := map[string]remoteObject{}
	for {
		result, err := s.client.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to list s3://%s: %w", bucket, err)
		}

		for _, object := range result.Contents {
			remotes[aws.ToString(object.Key)] = remoteObject{
				etag: strings.Trim(aws.ToString(object.ETag), `"`),
				size: aws.ToInt64(object.Size),
			}
		}

		if !aws.ToBool(result.IsTruncated) {
			break
		}
		input.ContinuationToken = result.NextContinuationToken
	}

	return remotes, nil
}

func (s *SiteSyncService) upload(ctx context.Context, bucket string, object SyncObject) error {
	f, err := os.Open(object.Path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", object.Path, err)
	}
	defer f.Close()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(object.Key),
		Body:        f,
		ContentType: aws.String(contentType(object.Key)),
	})
	if err != nil {
		return fmt.Errorf("failed to upload s3://%s/%s: %w", bucket, object.Key, err)
	}

	zerolog.Ctx(ctx).Debug().
		Str("bucket", bucket).
		Str("key", object.Key).
		Int64("size", object.Size).
		Msg("Uploaded object")

	return nil
}

func (s *SiteSyncService) deleteKeys(ctx context.Context, bucket string, keys []string) (int, error) {
	var deleted int
	for start := 0; start < len(keys); start += deleteBatchSize {
		end := start + deleteBatchSize
		if end > len(keys) {
			end = len(keys)
		}
		batch := keys[start:end]

		objects := make([]types.ObjectIdentifier, 0, len(batch))
		for _, key := range batch {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(key)})
		}

		result, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return deleted, fmt.Errorf("failed to delete %d objects from s3://%s: %w", len(batch), bucket, err)
		}
		if len(result.Errors) > 0 {
			first := result.Errors[0]
			return deleted, fmt.Errorf("failed to delete s3://%s/%s: %s",
				bucket, aws.ToString(first.Key), aws.ToString(first.Message))
		}

		deleted += len(batch)
	}

	return deleted, nil
}

// matchesETag compares a local file's MD5 against a remote ETag. Multipart
// uploads produce composite ETags that are not content digests; those always
// count as changed.
func matchesETag(p, etag string) (bool, error) {
	if strings.Contains(etag, "-") {
		return false, nil
	}

	f, err := os.Open(p)
	if err != nil {
		return false, err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return false, err
	}

	return hex.EncodeToString(h.Sum(nil)) == etag, nil
}

func objectKey(prefix, rel string) string {
	if prefix == "" {
		return rel
	}
	return strings.TrimSuffix(prefix, "/") + "/" + rel
}

func contentType(key string) string {
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
