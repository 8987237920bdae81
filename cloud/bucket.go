/*
Copyright © 2024 the mixmodels authors.
This file is part of mixmodels.

mixmodels is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

mixmodels is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with mixmodels.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package cloud reads and writes files in local directories and cloud
// blob storage buckets.
package cloud

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/blob/gcsblob"
	"gocloud.dev/blob/memblob"
	"gocloud.dev/blob/s3blob"
	"gocloud.dev/gcp"
)

// OpenBucket returns the blob storage bucket specified by bucketName,
// where bucketName must be in the format 'provider://name' where provider
// is the name of the storage provider and name is the name of the bucket.
// The accepted storage providers are "file" for a local directory
// (e.g., file:///tmp/reports), "mem" for a new in-memory bucket, "gs" for
// Google Cloud Storage, and "s3" for AWS S3.
func OpenBucket(ctx context.Context, bucketName string) (*blob.Bucket, error) {
	u, err := url.Parse(bucketName)
	if err != nil {
		return nil, fmt.Errorf("cloud: opening bucket: %v", err)
	}
	switch u.Scheme {
	case "file":
		dir := filepath.FromSlash(path.Join(u.Host, u.Path))
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("cloud: opening bucket: %v", err)
		}
		return fileblob.OpenBucket(dir, nil)
	case "mem":
		return memblob.OpenBucket(nil), nil
	case "gs":
		return gsBucket(ctx, u.Hostname())
	case "s3":
		return s3Bucket(ctx, u.Hostname())
	default:
		return nil, fmt.Errorf("cloud: opening bucket %s: invalid provider %q", bucketName, u.Scheme)
	}
}

func gsBucket(ctx context.Context, name string) (*blob.Bucket, error) {
	// See here for information on credentials:
	// https://cloud.google.com/docs/authentication/getting-started
	creds, err := gcp.DefaultCredentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("cloud: gs://%s: %v", name, err)
	}
	c, err := gcp.NewHTTPClient(gcp.DefaultTransport(), gcp.CredentialsTokenSource(creds))
	if err != nil {
		return nil, fmt.Errorf("cloud: gs://%s: %v", name, err)
	}
	return gcsblob.OpenBucket(ctx, c, name, nil)
}

// s3Bucket opens an s3 storage bucket. It assumes the following
// environment variables are set: AWS_REGION, AWS_ACCESS_KEY_ID, and
// AWS_SECRET_ACCESS_KEY.
func s3Bucket(ctx context.Context, name string) (*blob.Bucket, error) {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "eu-central-1"
	}
	c := &aws.Config{
		Region:      aws.String(region),
		Credentials: credentials.NewEnvCredentials(),
	}
	s, err := session.NewSession(c)
	if err != nil {
		return nil, fmt.Errorf("cloud: s3://%s: %v", name, err)
	}
	return s3blob.OpenBucket(ctx, s, name, nil)
}

// Split splits the location of a file into the name of the bucket that
// holds it and its key within the bucket. A location without a provider
// is a local path.
//
//	reports/out.csv               → file:///abs/reports, out.csv
//	file:///tmp/reports/out.csv   → file:///tmp/reports, out.csv
//	gs://results/ssp2/out.csv     → gs://results, ssp2/out.csv
func Split(location string) (bucketName, key string, err error) {
	if !strings.Contains(location, "://") {
		abs, err := filepath.Abs(location)
		if err != nil {
			return "", "", fmt.Errorf("cloud: %v", err)
		}
		dir, file := filepath.Split(abs)
		return "file://" + filepath.ToSlash(filepath.Clean(dir)), file, nil
	}
	u, err := url.Parse(location)
	if err != nil {
		return "", "", fmt.Errorf("cloud: %v", err)
	}
	if u.Scheme == "file" {
		dir, file := path.Split(path.Join(u.Host, u.Path))
		if file == "" {
			return "", "", fmt.Errorf("cloud: %s does not name a file", location)
		}
		return "file://" + path.Clean(dir), file, nil
	}
	key = strings.TrimLeft(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("cloud: %s does not name a file", location)
	}
	return u.Scheme + "://" + u.Host, key, nil
}
