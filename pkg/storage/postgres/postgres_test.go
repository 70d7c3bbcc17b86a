package postgres_test

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/absmach/flcore/pkg/fl"
	"github.com/absmach/flcore/pkg/storage/postgres"
	"github.com/absmach/flcore/pkg/storage/testutil"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/require"
)

var (
	testDB     *postgres.Database
	skipReason string
)

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	pool, err := dockertest.NewPool("")
	if err == nil {
		err = pool.Client.Ping()
	}
	if err != nil {
		skipReason = fmt.Sprintf("docker is not available: %s", err)

		return m.Run()
	}

	container, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16.2-alpine",
		Env: []string{
			"POSTGRES_USER=test",
			"POSTGRES_PASSWORD=test",
			"POSTGRES_DB=test",
			"listen_addresses = '*'",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		log.Fatalf("Could not start container: %s", err)
	}
	defer func() {
		if err := pool.Purge(container); err != nil {
			log.Printf("Could not purge container: %s", err)
		}
	}()

	port := container.GetPort("5432/tcp")

	pool.MaxWait = 120 * time.Second
	if err := pool.Retry(func() error {
		url := fmt.Sprintf("host=localhost port=%s user=test dbname=test password=test sslmode=disable", port)
		db, err := sql.Open("pgx", url)
		if err != nil {
			return err
		}
		defer db.Close()

		return db.Ping()
	}); err != nil {
		log.Fatalf("Could not connect to docker: %s", err)
	}

	testDB, err = postgres.NewDatabase("localhost", port, "test", "test", "test", "disable")
	if err != nil {
		log.Fatalf("Could not setup test DB connection: %s", err)
	}
	defer testDB.Close()

	return m.Run()
}

func TestCheckpointRepository(t *testing.T) {
	if skipReason != "" {
		t.Skip(skipReason)
	}

	testutil.RunCheckpointStoreTests(t, func(t *testing.T) fl.CheckpointStore {
		_, err := testDB.Exec(`TRUNCATE TABLE checkpoints RESTART IDENTITY`)
		require.NoError(t, err)

		return postgres.NewCheckpointRepository(testDB)
	})
}
