//go:build integration

package sqlstore_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"

	"spotcheck/internal/storage/sqlstore"
)

func TestStore_MySQL_PutGetDelete(t *testing.T) {
	// Start isolated MySQL; let Docker pick a free host port.
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("dockertest: %v", err)
	}

	runOpts := &dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0.36",
		Env: []string{
			"MYSQL_ROOT_PASSWORD=root",
			"MYSQL_DATABASE=spotcheck",
		},
	}
	resource, err := pool.RunWithOptions(runOpts, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("run mysql: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	dsn := fmt.Sprintf("root:root@tcp(127.0.0.1:%s)/spotcheck?parseTime=true&charset=utf8mb4&loc=UTC",
		resource.GetPort("3306/tcp"))

	ctx := context.Background()
	var s *sqlstore.Store
	if err := pool.Retry(func() error {
		var e error
		s, e = sqlstore.OpenMySQL(ctx, dsn)
		return e
	}); err != nil {
		t.Fatalf("connect mysql: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	// idempotent schema
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate twice: %v", err)
	}

	if err := s.Put(ctx, "auth", []byte(`{"token":"t","user":{"id":1}}`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(ctx, "auth", []byte(`{"token":"t2","user":{"id":1}}`)); err != nil {
		t.Fatalf("replace: %v", err)
	}
	v, ok, err := s.Get(ctx, "auth")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(v) != `{"token":"t2","user":{"id":1}}` {
		t.Fatalf("got %s", v)
	}
	if err := s.Delete(ctx, "auth"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "auth"); ok {
		t.Fatalf("expected key to be gone")
	}
}
