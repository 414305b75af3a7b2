package lock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKey_Object(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		key    Key
		want   string
	}{
		{
			name:   "with prefix",
			prefix: "tmp/flowreaper",
			key:    Key{ClusterID: "j-123", StepNum: 3},
			want:   "tmp/flowreaper/locks/j-123/3",
		},
		{
			name:   "trailing slash trimmed",
			prefix: "tmp/",
			key:    Key{ClusterID: "j-123", StepNum: 1},
			want:   "tmp/locks/j-123/1",
		},
		{
			name: "empty prefix",
			key:  Key{ClusterID: "j-9", StepNum: 2},
			want: "locks/j-9/2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.key.Object(tt.prefix))
		})
	}
}

func TestParseScratchURI(t *testing.T) {
	tests := []struct {
		name       string
		uri        string
		wantBucket string
		wantPrefix string
		wantErr    bool
	}{
		{name: "bucket and prefix", uri: "s3://my-bucket/tmp/locks", wantBucket: "my-bucket", wantPrefix: "tmp/locks"},
		{name: "bucket only", uri: "s3://my-bucket", wantBucket: "my-bucket"},
		{name: "trailing slash", uri: "s3://my-bucket/tmp/", wantBucket: "my-bucket", wantPrefix: "tmp"},
		{name: "wrong scheme", uri: "gs://my-bucket/tmp", wantErr: true},
		{name: "no bucket", uri: "s3:///tmp", wantErr: true},
		{name: "not a uri", uri: "://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, prefix, err := ParseScratchURI(tt.uri)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantBucket, bucket)
			require.Equal(t, tt.wantPrefix, prefix)
		})
	}
}

func TestNoop_AlwaysAcquires(t *testing.T) {
	s := Noop()
	err := s.Acquire(context.Background(), Key{ClusterID: "j-1", StepNum: 1}, "h")
	require.NoError(t, err)
}
