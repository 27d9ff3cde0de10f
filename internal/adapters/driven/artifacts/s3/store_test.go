package s3

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/umlgen/internal/core/domain"
)

// fakeS3 is an in-memory bucket implementing ObjectAPI.
type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string][]byte
	types    map[string]string
	pageSize int
	putErr   error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}, pageSize: 1000}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	f.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(string(data)))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
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
	if in.ContinuationToken != nil {
		for i, k := range keys {
			if k == *in.ContinuationToken {
				start = i
				break
			}
		}
	}
	end := start + f.pageSize
	out := &s3.ListObjectsV2Output{}
	if end < len(keys) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[end])
	} else {
		end = len(keys)
	}
	modified := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(k),
			Size:         aws.Int64(int64(len(f.objects[k]))),
			LastModified: &modified,
		})
	}
	return out, nil
}

func TestNewStore_RequiresBucket(t *testing.T) {
	_, err := NewStore(context.Background(), Config{})

	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestStore_PutGet(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	store := NewStoreWithClient(fake, "bucket", "/umlgen/")

	loc, err := store.Put(ctx, "req-1", "class_diagram.png", []byte{0x89, 'P', 'N', 'G'})
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/umlgen/req-1/class_diagram.png", loc)
	assert.Equal(t, "image/png", fake.types["umlgen/req-1/class_diagram.png"])

	data, err := store.Get(ctx, "req-1", "class_diagram.png")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data)
}

func TestStore_GetMissing(t *testing.T) {
	store := NewStoreWithClient(newFakeS3(), "bucket", "")

	_, err := store.Get(context.Background(), "req", "missing.puml")

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_PutError(t *testing.T) {
	fake := newFakeS3()
	fake.putErr = errors.New("access denied")
	store := NewStoreWithClient(fake, "bucket", "")

	_, err := store.Put(context.Background(), "req", "a.txt", []byte("a"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestStore_RejectsUnsafeNames(t *testing.T) {
	store := NewStoreWithClient(newFakeS3(), "bucket", "")

	_, err := store.Put(context.Background(), "req", "../x.txt", []byte("x"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = store.List(context.Background(), "a/b")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestStore_ListAcrossPages(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	fake.pageSize = 2
	store := NewStoreWithClient(fake, "bucket", "")

	for _, name := range []string{"scenario.txt", "a.puml", "a.png", "llm_response.txt", "b.puml"} {
		_, err := store.Put(ctx, "req", name, []byte(name))
		require.NoError(t, err)
	}
	_, err := store.Put(ctx, "req-other", "x.txt", []byte("x"))
	require.NoError(t, err)

	infos, err := store.List(ctx, "req")
	require.NoError(t, err)

	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	assert.Equal(t, []string{"a.png", "a.puml", "b.puml", "llm_response.txt", "scenario.txt"}, names)
	assert.Equal(t, domain.ArtifactKindImage, infos[0].Kind)
	assert.Equal(t, int64(len("a.png")), infos[0].Size)
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	store := NewStoreWithClient(fake, "bucket", "p")

	_, err := store.Put(ctx, "req", "a.txt", []byte("a"))
	require.NoError(t, err)
	_, err = store.Put(ctx, "keep", "b.txt", []byte("b"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "req"))

	_, err = store.List(ctx, "req")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.Get(ctx, "keep", "b.txt")
	assert.NoError(t, err)
}
