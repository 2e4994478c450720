package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"geounity/internal/authz"
	"geounity/internal/model"
	"geounity/internal/pkg"
	"geounity/internal/testing/fixtures"
	"geounity/internal/testing/testdb"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMail struct{ to, subject, body string }

type fakeMailer struct {
	mu    sync.Mutex
	sent  []sentMail
	err   error
	block chan struct{}
}

func (m *fakeMailer) Enabled() bool { return true }

func (m *fakeMailer) Send(to, subject, body string) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to, subject, body})
	return m.err
}

func (m *fakeMailer) outbox() []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMail(nil), m.sent...)
}

func TestReportLifecycle(t *testing.T) {
	db := testdb.New(t)
	mailer := &fakeMailer{}
	svc := NewReportService(db, authz.MustNew(), mailer)
	alice := fixtures.SeedUser(t, db, "alice", model.RoleUser)
	bob := fixtures.SeedUser(t, db, "bob", model.RoleUser)
	carla := fixtures.SeedUser(t, db, "carla", model.RoleUser)
	mod := fixtures.SeedUser(t, db, "mod", model.RoleModerator)
	ctx := context.Background()

	in := ReportCreate{Type: model.ReportUser, Reason: model.ReasonSpam, ItemID: bob.ID, Details: "publica links"}
	rep, err := svc.Create(ctx, alice, in)
	require.NoError(t, err)
	assert.Equal(t, model.ReportPending, rep.Status)

	_, err = svc.Create(ctx, alice, in)
	assert.True(t, pkg.IsKind(err, pkg.KindValidation), "a second open report on the same item")

	_, err = svc.Create(ctx, alice, ReportCreate{Type: model.ReportPoll, Reason: model.ReasonSpam, ItemID: 404})
	assert.True(t, pkg.IsKind(err, pkg.KindNotFound))
	_, err = svc.Create(ctx, alice, ReportCreate{Type: "POST", Reason: model.ReasonSpam, ItemID: bob.ID})
	assert.True(t, pkg.IsKind(err, pkg.KindValidation))
	_, err = svc.Create(ctx, alice, ReportCreate{Type: model.ReportUser, Reason: "BORING", ItemID: bob.ID})
	assert.True(t, pkg.IsKind(err, pkg.KindValidation))

	_, err = svc.Get(ctx, carla, rep.ID)
	assert.True(t, pkg.IsKind(err, pkg.KindForbidden))
	_, err = svc.Get(ctx, alice, rep.ID)
	require.NoError(t, err)
	_, err = svc.List(ctx, alice, ReportQuery{Page: pkg.NewPage(1, 10)})
	assert.True(t, pkg.IsKind(err, pkg.KindForbidden))

	_, err = svc.UpdateStatus(ctx, alice, rep.ID, model.ReportResolved, "")
	assert.True(t, pkg.IsKind(err, pkg.KindForbidden))

	rep, err = svc.UpdateStatus(ctx, mod, rep.ID, model.ReportUnderReview, "")
	require.NoError(t, err)
	assert.Nil(t, rep.ResolvedAt)
	svc.Wait()
	assert.Empty(t, mailer.outbox())

	mailer.err = errors.New("smtp down")
	rep, err = svc.UpdateStatus(ctx, mod, rep.ID, model.ReportResolved, "cuenta suspendida")
	require.NoError(t, err, "mail failures do not fail the update")
	require.NotNil(t, rep.ResolvedAt)
	assert.Equal(t, mod.ID, *rep.ResolvedByID)
	svc.Wait()
	sent := mailer.outbox()
	require.Len(t, sent, 1)
	assert.Equal(t, alice.Email, sent[0].to)
	assert.Contains(t, sent[0].body, "cuenta suspendida")

	// once closed, the same user may report again
	_, err = svc.Create(ctx, alice, in)
	require.NoError(t, err)

	page, err := svc.List(ctx, mod, ReportQuery{Status: model.ReportResolved, Page: pkg.NewPage(1, 10)})
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)
}

func TestSlowMailDoesNotBlockStatusUpdate(t *testing.T) {
	db := testdb.New(t)
	mailer := &fakeMailer{block: make(chan struct{})}
	svc := NewReportService(db, authz.MustNew(), mailer)
	alice := fixtures.SeedUser(t, db, "alice", model.RoleUser)
	bob := fixtures.SeedUser(t, db, "bob", model.RoleUser)
	mod := fixtures.SeedUser(t, db, "mod", model.RoleModerator)
	ctx := context.Background()

	rep, err := svc.Create(ctx, alice, ReportCreate{Type: model.ReportUser, Reason: model.ReasonSpam, ItemID: bob.ID})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := svc.UpdateStatus(ctx, mod, rep.ID, model.ReportRejected, "")
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("status update waited for the mail server")
	}
	assert.Empty(t, mailer.outbox())

	close(mailer.block)
	svc.Wait()
	assert.Len(t, mailer.outbox(), 1)
}
