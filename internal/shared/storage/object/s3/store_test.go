package s3

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	puts map[string]string
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.puts[aws.ToString(params.Key)] = string(body)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.puts[aws.ToString(params.Key)]))}, nil
}

func TestApplyPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prefix string
		key    string
		want   string
	}{
		{name: "no prefix", prefix: "", key: "cand/app/vpr.en.md", want: "cand/app/vpr.en.md"},
		{name: "prefix trailing slash", prefix: "artifacts/", key: "cand/app/vpr.en.md", want: "artifacts/cand/app/vpr.en.md"},
		{name: "prefix and key slashes", prefix: "/artifacts/", key: "/cand/app/vpr.en.md", want: "artifacts/cand/app/vpr.en.md"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, applyPrefix(tt.prefix, tt.key))
		})
	}
}

func TestPutUsesPrefixedKey(t *testing.T) {
	fake := &fakeS3{puts: map[string]string{}}
	store := &Store{client: fake, bucket: "b", prefix: "artifacts"}

	n, err := store.Put(context.Background(), "cand/app/cover_letter.he.md", "text/markdown", strings.NewReader("shalom"))
	require.NoError(t, err)
	assert.EqualValues(t, 6, n)
	assert.Equal(t, "shalom", fake.puts["artifacts/cand/app/cover_letter.he.md"])

	rc, err := store.Open(context.Background(), "cand/app/cover_letter.he.md")
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	assert.Equal(t, "shalom", string(body))
}
