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

package cloud

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"gocloud.dev/blob"
)

// ReadBlob reads the given blob from the given bucket.
func ReadBlob(ctx context.Context, bucket *blob.Bucket, key string) ([]byte, error) {
	var b bytes.Buffer
	r, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		return nil, fmt.Errorf("cloud: reading blob %s: %v", key, err)
	}
	defer r.Close()
	if _, err = io.Copy(&b, r); err != nil {
		return nil, fmt.Errorf("cloud: reading blob %s: %v", key, err)
	}
	return b.Bytes(), nil
}

// WriteBlob writes the given data to the given bucket.
func WriteBlob(ctx context.Context, bucket *blob.Bucket, key string, data []byte) error {
	w, err := bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return fmt.Errorf("cloud: creating writer for blob %s: %v", key, err)
	}
	if _, err = io.Copy(w, bytes.NewReader(data)); err != nil {
		w.Close()
		return fmt.Errorf("cloud: copying blob %s: %v", key, err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("cloud: writing blob %s: %v", key, err)
	}
	return nil
}

// WriteFile writes data to location, which is either a local path or a
// bucket URL followed by the key, such as gs://results/ssp2/out.csv.
func WriteFile(ctx context.Context, location string, data []byte) error {
	name, key, err := Split(location)
	if err != nil {
		return err
	}
	bucket, err := OpenBucket(ctx, name)
	if err != nil {
		return err
	}
	defer bucket.Close()
	return WriteBlob(ctx, bucket, key, data)
}

// ReadFile reads the file at location, which is either a local path or a
// bucket URL followed by the key.
func ReadFile(ctx context.Context, location string) ([]byte, error) {
	name, key, err := Split(location)
	if err != nil {
		return nil, err
	}
	bucket, err := OpenBucket(ctx, name)
	if err != nil {
		return nil, err
	}
	defer bucket.Close()
	return ReadBlob(ctx, bucket, key)
}
