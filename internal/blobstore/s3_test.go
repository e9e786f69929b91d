package blobstore

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObject struct {
	data        []byte
	contentType string
}

// fakeS3 is an in-memory bucket serving one page of at most pageSize keys per call.
type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string]fakeObject
	pageSize int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string]fakeObject{}, pageSize: 2}
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if token := aws.ToString(in.ContinuationToken); token != "" {
		start = sort.SearchStrings(keys, token)
	}
	end := start + f.pageSize
	out := &s3.ListObjectsV2Output{}
	if end < len(keys) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[end])
	} else {
		end = len(keys)
		out.IsTruncated = aws.Bool(false)
	}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k), Size: aws.Int64(int64(len(f.objects[k].data)))})
	}
	return out, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = fakeObject{data: data, contentType: aws.ToString(in.ContentType)}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(obj.data))}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.data))),
		ContentType:   aws.String(obj.contentType),
	}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3StoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	st, err := NewS3Store(fake, "bucket", "prod", 7, nil)
	require.NoError(t, err)

	var ids []string
	for _, body := range []string{"a", "bb", "ccc"} {
		id, err := st.Save(ctx, strings.NewReader(body))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for key := range fake.objects {
		assert.True(t, strings.HasPrefix(key, "prod/7_ctx_store/"), key)
	}

	listed, err := st.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, ids, listed, "listing follows continuation tokens")

	size, err := st.Size(ctx, ids[2])
	require.NoError(t, err)
	assert.Equal(t, int64(3), size)

	mt, err := st.MediaType(ctx, ids[0])
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(mt, "text/plain"), mt)

	used, err := st.RecalculateUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(6), used)

	require.NoError(t, st.Delete(ctx, ids[1]))
	require.NoError(t, st.Rebuild(ctx))
	listed, err = st.List(ctx)
	require.NoError(t, err)
	assert.Len(t, listed, 2)

	_, err = st.Size(ctx, ids[1])
	require.ErrorIs(t, err, ErrNotFound)
	_, err = st.Open(ctx, ids[1])
	require.ErrorIs(t, err, ErrNotFound)
}

func TestS3StoreKeepsContextsApart(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	seven, err := NewS3Store(fake, "bucket", "", 7, nil)
	require.NoError(t, err)
	seventy, err := NewS3Store(fake, "bucket", "", 70, nil)
	require.NoError(t, err)

	_, err = seventy.Save(ctx, strings.NewReader("x"))
	require.NoError(t, err)

	ids, err := seven.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
