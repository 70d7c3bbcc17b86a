package storage_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/absmach/flcore/pkg/storage"
	"github.com/absmach/flcore/pkg/storage/testutil"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRepositories(t *testing.T) {
	dir := t.TempDir()
	mr := miniredis.RunT(t)

	cases := []struct {
		desc   string
		cfg    storage.Config
		closer bool
		err    error
	}{
		{
			desc: "memory backend",
			cfg:  storage.Config{Type: storage.TypeMemory},
		},
		{
			desc: "file backend",
			cfg:  storage.Config{Type: storage.TypeFile, CheckpointDir: filepath.Join(dir, "files")},
		},
		{
			desc:   "badger backend",
			cfg:    storage.Config{Type: storage.TypeBadger, BadgerPath: filepath.Join(dir, "badger")},
			closer: true,
		},
		{
			desc:   "sqlite backend",
			cfg:    storage.Config{Type: storage.TypeSQLite, SQLitePath: filepath.Join(dir, "fl.db")},
			closer: true,
		},
		{
			desc:   "redis backend",
			cfg:    storage.Config{Type: storage.TypeRedis, RedisURL: "redis://" + mr.Addr(), RedisPrefix: "test"},
			closer: true,
		},
		{
			desc: "redis backend unreachable",
			cfg:  storage.Config{Type: storage.TypeRedis, RedisURL: "redis://127.0.0.1:1"},
			err:  storage.ErrDBConnection,
		},
		{
			desc: "unknown backend",
			cfg:  storage.Config{Type: "etcd"},
			err:  storage.ErrUnsupportedType,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			ctx := context.Background()
			repos, err := storage.NewRepositories(ctx, tc.cfg)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			require.NoError(t, err)
			if tc.closer {
				require.NotNil(t, repos.Closer)
				defer repos.Closer.Close()
			} else {
				assert.Nil(t, repos.Closer)
			}

			id, err := repos.Checkpoints.Save(ctx, testutil.TestCheckpoint(1))
			require.NoError(t, err)
			latest, err := repos.Checkpoints.Latest(ctx)
			require.NoError(t, err)
			assert.Equal(t, id, latest.ID)
		})
	}
}
