//go:build integration

package diag

// go test -tags=integration ./internal/diag -run Postgres -count=1

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"

	"github.com/hamed0406/pgdiag/internal/domain"
	"github.com/hamed0406/pgdiag/internal/probe"
)

func startPostgres(t *testing.T) domain.ConnectionTarget {
	t.Helper()
	ctx := context.Background()
	container, err := func() (c *postgres.PostgresContainer, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%v", r)
			}
		}()
		return postgres.Run(ctx, "postgres:16",
			postgres.WithDatabase("dda"),
			postgres.WithUsername("reader"),
			postgres.WithPassword("pass"),
			postgres.BasicWaitStrategies(),
		)
	}()
	if err != nil {
		t.Skipf("container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)
	p, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	return domain.ConnectionTarget{
		Host:     host,
		Port:     p,
		Database: "dda",
		Username: "reader",
		Password: "pass",
		TLSMode:  domain.TLSDisable,
	}
}

func TestPostgres_AllStepsSucceed(t *testing.T) {
	tgt := startPostgres(t)

	for _, driver := range []string{probe.DriverPgx, probe.DriverPQ} {
		t.Run(driver, func(t *testing.T) {
			o := New(zap.NewNop(), nil, driver, 5*time.Second, 10*time.Second)
			rep := o.Run(context.Background(), tgt, Options{})

			require.Len(t, rep.Results, 4)
			for _, r := range rep.Results {
				assert.True(t, r.Success, "%s: %s", r.Step, r.Message)
			}
			db, _ := rep.Result(domain.StepDBAuth)
			assert.Contains(t, db.Detail, "PostgreSQL")
		})
	}
}

func TestPostgres_WrongPasswordOnlyFailsAuth(t *testing.T) {
	tgt := startPostgres(t)
	tgt.Password = "wrong"

	o := New(zap.NewNop(), nil, probe.DriverPgx, 5*time.Second, 10*time.Second)
	rep := o.Run(context.Background(), tgt, Options{})

	require.Len(t, rep.Results, 4)
	failed := rep.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, domain.StepDBAuth, failed[0].Step)
	assert.Contains(t, failed[0].Message, "Connection failed")
}
