package fs

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/justyntemme/razorlist/internal/model"
)

func TestParseSFTP(t *testing.T) {
	testCases := []struct {
		raw     string
		want    SFTPLocation
		wantErr bool
	}{
		{"sftp://me@host/data/logs", SFTPLocation{User: "me", Host: "host", Port: 22, Path: "data/logs"}, false},
		{"sftp://me@host//var/log", SFTPLocation{User: "me", Host: "host", Port: 22, Path: "/var/log"}, false},
		{"sftp://me@host", SFTPLocation{User: "me", Host: "host", Port: 22, Path: "."}, false},
		{"sftp://me@host:2222/x/", SFTPLocation{User: "me", Host: "host", Port: 2222, Path: "x"}, false},
		{"sftp://host/x", SFTPLocation{}, true},
		{"sftp://me@:22/x", SFTPLocation{}, true},
		{"ftp://me@host/x", SFTPLocation{}, true},
		{"sftp://me@host:abc/x", SFTPLocation{}, true},
	}

	for _, tc := range testCases {
		got, err := ParseSFTP(tc.raw, 0)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseSFTP(%q): expected error, got %+v", tc.raw, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseSFTP(%q): unexpected error: %v", tc.raw, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseSFTP(%q): expected %+v, got %+v", tc.raw, tc.want, got)
		}
	}
}

func TestSFTPLocation_URLRoundTrip(t *testing.T) {
	for _, raw := range []string{"sftp://me@host/data/logs", "sftp://me@host//var/log", "sftp://me@host:2222/x"} {
		loc, err := ParseSFTP(raw, 22)
		if err != nil {
			t.Fatalf("ParseSFTP(%q): %v", raw, err)
		}
		if got := loc.URL(loc.Path); got != raw {
			t.Errorf("URL round trip: expected %q, got %q", raw, got)
		}
	}
	loc := SFTPLocation{User: "me", Host: "host", Port: 22, Path: "."}
	if got := loc.URL("."); got != "sftp://me@host" {
		t.Errorf("expected login directory URL, got %q", got)
	}
}

func TestParseS3(t *testing.T) {
	testCases := []struct {
		raw    string
		bucket string
		key    string
		ok     bool
	}{
		{"s3://photos", "photos", "", true},
		{"s3://photos/", "photos", "", true},
		{"s3://photos/2024/trip/", "photos", "2024/trip", true},
		{"s3:///nobucket", "", "", false},
		{"http://photos", "", "", false},
	}
	for _, tc := range testCases {
		bucket, key, err := ParseS3(tc.raw)
		if (err == nil) != tc.ok {
			t.Errorf("ParseS3(%q): expected ok=%v, got err=%v", tc.raw, tc.ok, err)
			continue
		}
		if bucket != tc.bucket || key != tc.key {
			t.Errorf("ParseS3(%q): expected %q/%q, got %q/%q", tc.raw, tc.bucket, tc.key, bucket, key)
		}
	}
}

// fakeS3 serves a flat key space with delimiter listing and small pages.
type fakeS3 struct {
	objects  map[string]int64
	pageSize int
	calls    int
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.calls++
	prefix := aws.ToString(in.Prefix)
	delim := aws.ToString(in.Delimiter)

	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	type result struct {
		key    string
		prefix bool
	}
	var all []result
	seen := map[string]bool{}
	for _, k := range keys {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		rest := k[len(prefix):]
		if delim != "" {
			if i := strings.Index(rest, delim); i >= 0 {
				cp := prefix + rest[:i+1]
				if !seen[cp] {
					seen[cp] = true
					all = append(all, result{key: cp, prefix: true})
				}
				continue
			}
		}
		all = append(all, result{key: k})
	}

	start, _ := strconv.Atoi(aws.ToString(in.ContinuationToken))
	size := f.pageSize
	if in.MaxKeys != nil && int(*in.MaxKeys) < size {
		size = int(*in.MaxKeys)
	}
	end := min(start+size, len(all))

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(all))}
	if end < len(all) {
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}
	for _, r := range all[start:end] {
		if r.prefix {
			out.CommonPrefixes = append(out.CommonPrefixes, types.CommonPrefix{Prefix: aws.String(r.key)})
			continue
		}
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(r.key),
			Size:         aws.Int64(f.objects[r.key]),
			LastModified: aws.Time(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)),
		})
	}
	return out, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	size, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NotFound", Message: "not found"}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(size)}, nil
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		pageSize: 2,
		objects: map[string]int64{
			"readme.md":          10,
			"photos/":            0,
			"photos/a.jpg":       100,
			"photos/b.jpg":       200,
			"photos/c.jpg":       300,
			"photos/2024/x.jpg":  400,
			"photos/2025/y.jpg":  500,
			"archive/old.tar.gz": 600,
		},
	}
}

func TestS3Provider_ListsPrefixAcrossPages(t *testing.T) {
	fake := newFakeS3()
	src := NewItemSource(NewPolicy(nil, time.Second))
	src.Register(SchemeS3, NewS3ProviderWithClient(fake))

	h, err := src.Open(context.Background(), "s3://bucket/photos")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	entries, err := drain(t, h)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}

	want := []string{"2024", "2025", "a.jpg", "b.jpg", "c.jpg"}
	if got := names(entries); !equalStrings(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	for _, e := range entries {
		if e.Source != model.SourceCloud {
			t.Errorf("%s: expected cloud source", e.Name)
		}
		if e.Name == "2024" && (!e.IsDir || e.Path != "s3://bucket/photos/2024") {
			t.Errorf("unexpected prefix entry %+v", e)
		}
		if e.Name == "b.jpg" && (e.Size != 200 || e.Path != "s3://bucket/photos/b.jpg") {
			t.Errorf("unexpected object entry %+v", e)
		}
	}
	if fake.calls < 3 {
		t.Errorf("expected paginated listing, got %d calls", fake.calls)
	}

	status, err := src.SyncStatus(context.Background(), "s3://bucket/photos/a.jpg")
	if err != nil || status != model.SyncCloudOnly {
		t.Errorf("expected SyncCloudOnly, got %v, %v", status, err)
	}
}

func TestS3Provider_GetFolderAndFile(t *testing.T) {
	p := NewS3ProviderWithClient(newFakeS3())
	ctx := context.Background()

	if _, err := p.GetFolder(ctx, "s3://bucket/missing"); KindOf(err) != NotFound {
		t.Errorf("expected NotFound for empty prefix, got %v", err)
	}

	e, err := p.GetFile(ctx, "s3://bucket/photos/c.jpg")
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if e.Name != "c.jpg" || e.Size != 300 || e.IsDir {
		t.Errorf("unexpected file entry %+v", e)
	}

	e, err = p.GetFile(ctx, "s3://bucket/photos/2024")
	if err != nil {
		t.Fatalf("GetFile(prefix): %v", err)
	}
	if !e.IsDir {
		t.Errorf("expected prefix to resolve as a directory, got %+v", e)
	}

	if _, err := p.GetFile(ctx, "s3://bucket/nothing-here"); KindOf(err) != NotFound {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestMapS3Error(t *testing.T) {
	testCases := []struct {
		code     string
		expected ErrorKind
	}{
		{"NoSuchBucket", NotFound},
		{"AccessDenied", Unauthorized},
		{"SlowDown", Transient},
		{"Weird", Unknown},
	}
	for _, tc := range testCases {
		err := mapS3Error("s3://b", &smithy.GenericAPIError{Code: tc.code})
		if KindOf(err) != tc.expected {
			t.Errorf("code %s: expected %s, got %s", tc.code, tc.expected, KindOf(err))
		}
	}
}
