package dashboard

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingDB struct{ queries []string }

func (c *capturingDB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	c.queries = append(c.queries, sql)
	return pgconn.CommandTag{}, nil
}

func (c *capturingDB) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	c.queries = append(c.queries, sql)
	return nil, pgx.ErrNoRows
}

func (c *capturingDB) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	c.queries = append(c.queries, sql)
	return zeroRow{}
}

type zeroRow struct{}

func (zeroRow) Scan(...any) error { return nil }

func TestFinanceSkipsArchivedAndDeletedLeads(t *testing.T) {
	capture := &capturingDB{}
	repo := &repository{db: capture}

	_, err := repo.Finance(context.Background())
	require.NoError(t, err)
	require.Len(t, capture.queries, 2)

	invoices, bills := capture.queries[0], capture.queries[1]
	// Invoice totals and the payments subquery each filter on their lead.
	assert.Equal(t, 2, strings.Count(invoices, "archived_at IS NULL"))
	assert.Equal(t, 2, strings.Count(invoices, "deleted_at IS NULL"))
	assert.Contains(t, invoices, "JOIN leads l ON l.id = i.lead_id")
	assert.Contains(t, invoices, "JOIN leads pl ON pl.id = pi.lead_id")

	assert.Contains(t, bills, "JOIN leads l ON l.id = i.lead_id")
	assert.Equal(t, 1, strings.Count(bills, "archived_at IS NULL"))
	assert.Equal(t, 1, strings.Count(bills, "deleted_at IS NULL"))
}
