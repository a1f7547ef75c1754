// Package publish copies the final outputs of a run to their destination:
// a local directory or an S3 prefix.
package publish

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/maxkimambo/xenopipe/internal/artifact"
	wferrors "github.com/maxkimambo/xenopipe/internal/errors"
	"github.com/maxkimambo/xenopipe/internal/logger"
)

// Published is one artifact copied to its destination
type Published struct {
	Ref         string `json:"ref"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
	SizeBytes   int64  `json:"size_bytes"`
}

type Publisher interface {
	// Publish copies one file to key, a slash separated path relative to
	// the destination root, and returns where it ended up
	Publish(ctx context.Context, localPath, key string) (string, error)
	String() string
}

// S3Options configures uploads to S3 compatible stores
type S3Options struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// New returns a publisher for dest: "s3://bucket/prefix" or a local path
func New(dest string, opts S3Options) (Publisher, error) {
	if dest == "" {
		return nil, wferrors.NewConfigurationError("publish", "destination must not be empty")
	}
	if strings.HasPrefix(dest, "s3://") {
		bucket, prefix, err := ParseS3URI(dest)
		if err != nil {
			return nil, err
		}
		return NewS3Publisher(bucket, prefix, opts)
	}
	return NewLocalPublisher(dest), nil
}

// ParseS3URI splits s3://bucket/prefix into its parts
func ParseS3URI(uri string) (bucket, prefix string, err error) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "s3" || u.Host == "" {
		return "", "", wferrors.NewConfigurationError("publish", fmt.Sprintf("invalid s3 destination %q", uri))
	}
	return u.Host, strings.Trim(u.Path, "/"), nil
}

// Outputs publishes every final output artifact. Keys are
// <ref>/<file name>, so each final output gets its own folder.
func Outputs(ctx context.Context, p Publisher, finals map[string][]artifact.Artifact) ([]Published, error) {
	refs := make([]string, 0, len(finals))
	for ref := range finals {
		refs = append(refs, ref)
	}
	sort.Strings(refs)

	var published []Published
	for _, ref := range refs {
		for _, art := range finals[ref] {
			key := path.Join(ref, filepath.Base(art.Path))
			dest, err := p.Publish(ctx, art.Path, key)
			if err != nil {
				return published, fmt.Errorf("failed to publish %s: %w", ref, err)
			}
			logger.User.Publishf("Published %s -> %s", ref, dest)
			published = append(published, Published{
				Ref:         ref,
				Source:      art.Path,
				Destination: dest,
				SizeBytes:   art.SizeBytes,
			})
		}
	}
	return published, nil
}
