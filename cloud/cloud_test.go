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
	"context"
	"os"
	"path/filepath"
	"testing"

	"gocloud.dev/blob/memblob"
)

func TestSplit(t *testing.T) {
	abs, err := filepath.Abs("reports")
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		in, bucket, key string
		err             bool
	}{
		{in: "reports/out.csv", bucket: "file://" + filepath.ToSlash(abs), key: "out.csv"},
		{in: "file:///tmp/reports/out.csv", bucket: "file:///tmp/reports", key: "out.csv"},
		{in: "gs://results/ssp2/out.csv", bucket: "gs://results", key: "ssp2/out.csv"},
		{in: "s3://results/out.xlsx", bucket: "s3://results", key: "out.xlsx"},
		{in: "mem://x/out.csv", bucket: "mem://x", key: "out.csv"},
		{in: "gs://results/", err: true},
		{in: "file:///", err: true},
	}
	for _, test := range tests {
		t.Run(test.in, func(t *testing.T) {
			b, k, err := Split(test.in)
			if test.err {
				if err == nil {
					t.Errorf("no error: %s, %s", b, k)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if b != test.bucket || k != test.key {
				t.Errorf("have %s, %s; want %s, %s", b, k, test.bucket, test.key)
			}
		})
	}
}

func TestFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	loc := filepath.Join(dir, "sub", "out.csv")
	if err := WriteFile(ctx, loc, []byte("a,b\n")); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(loc)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "a,b\n" {
		t.Errorf("have %q", b)
	}
	b, err = ReadFile(ctx, "file://"+filepath.ToSlash(loc))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "a,b\n" {
		t.Errorf("have %q", b)
	}
}

func TestBlob(t *testing.T) {
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()
	if err := WriteBlob(ctx, bucket, "x/y.txt", []byte("hello")); err != nil {
		t.Fatal(err)
	}
	b, err := ReadBlob(ctx, bucket, "x/y.txt")
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "hello" {
		t.Errorf("have %q", b)
	}
	if _, err := ReadBlob(ctx, bucket, "missing"); err == nil {
		t.Error("no error for missing blob")
	}
}

func TestOpenBucketInvalid(t *testing.T) {
	if _, err := OpenBucket(context.Background(), "ftp://x"); err == nil {
		t.Error("no error")
	}
}
