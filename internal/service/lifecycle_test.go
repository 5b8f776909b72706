package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/whatsapp-inbox/internal/model"
)

func TestLifecycleConfirmation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conf, err := f.ctrl.RequestLifecycle(ctx, tenantID, convHuman, model.LifecycleResolve)
	require.NoError(t, err)
	assert.NotEmpty(t, conf.Token)
	assert.True(t, conf.ExpiresAt.Equal(f.now.Add(DefaultConfirmationTTL)))

	assert.Equal(t, model.StatusActive, f.storedConversation(t, convHuman).Status, "nothing changes before confirming")

	conv, err := f.ctrl.ConfirmLifecycle(ctx, tenantID, operatorID, convHuman, conf.Token)
	require.NoError(t, err)
	assert.Equal(t, model.StatusResolved, conv.Status)

	_, err = f.ctrl.ConfirmLifecycle(ctx, tenantID, operatorID, convHuman, conf.Token)
	assert.ErrorIs(t, err, ErrNotFound, "tokens are single use")
}

func TestLifecycleConfirmationArchive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conf, err := f.ctrl.RequestLifecycle(ctx, tenantID, convAI, model.LifecycleArchive)
	require.NoError(t, err)

	conv, err := f.ctrl.ConfirmLifecycle(ctx, tenantID, operatorID, convAI, conf.Token)
	require.NoError(t, err)
	assert.Equal(t, model.StatusArchived, conv.Status)

	_, err = f.ctrl.RequestLifecycle(ctx, tenantID, convAI, model.LifecycleResolve)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestLifecycleConfirmationExpires(t *testing.T) {
	f := newFixture(t, WithConfirmationTTL(30*time.Second))
	ctx := context.Background()

	conf, err := f.ctrl.RequestLifecycle(ctx, tenantID, convHuman, model.LifecycleResolve)
	require.NoError(t, err)

	f.advance(30 * time.Second)
	_, err = f.ctrl.ConfirmLifecycle(ctx, tenantID, operatorID, convHuman, conf.Token)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, model.StatusActive, f.storedConversation(t, convHuman).Status)
}

func TestLifecycleConfirmationTenantBound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conf, err := f.ctrl.RequestLifecycle(ctx, tenantID, convHuman, model.LifecycleResolve)
	require.NoError(t, err)

	_, err = f.ctrl.ConfirmLifecycle(ctx, "tenant-2", operatorID, convHuman, conf.Token)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.ctrl.ConfirmLifecycle(ctx, tenantID, operatorID, convHuman, conf.Token)
	assert.NoError(t, err, "a foreign attempt does not burn the token")
}

func TestLifecycleCancelAndValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conf, err := f.ctrl.RequestLifecycle(ctx, tenantID, convHuman, model.LifecycleResolve)
	require.NoError(t, err)
	f.ctrl.CancelLifecycle(tenantID, convHuman, conf.Token)

	_, err = f.ctrl.ConfirmLifecycle(ctx, tenantID, operatorID, convHuman, conf.Token)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.ctrl.RequestLifecycle(ctx, tenantID, convHuman, "delete")
	assert.ErrorIs(t, err, ErrMissingField)

	_, err = f.ctrl.RequestLifecycle(ctx, tenantID, "missing", model.LifecycleResolve)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.ctrl.ConfirmLifecycle(ctx, tenantID, operatorID, convHuman, "bogus")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLifecycleConfirmationConversationBound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conf, err := f.ctrl.RequestLifecycle(ctx, tenantID, convHuman, model.LifecycleArchive)
	require.NoError(t, err)

	_, err = f.ctrl.ConfirmLifecycle(ctx, tenantID, operatorID, convAI, conf.Token)
	assert.ErrorIs(t, err, ErrNotFound)
	f.ctrl.CancelLifecycle(tenantID, convAI, conf.Token)
	assert.Equal(t, model.StatusActive, f.storedConversation(t, convAI).Status)

	conv, err := f.ctrl.ConfirmLifecycle(ctx, tenantID, operatorID, convHuman, conf.Token)
	require.NoError(t, err, "the token survives attempts on another conversation")
	assert.Equal(t, model.StatusArchived, conv.Status)
}

func TestLifecycleConfirmationConcurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conf, err := f.ctrl.RequestLifecycle(ctx, tenantID, convHuman, model.LifecycleResolve)
	require.NoError(t, err)

	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.ctrl.ConfirmLifecycle(ctx, tenantID, operatorID, convHuman, conf.Token)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, []model.EventType{model.EventTypeResolved}, f.notifier.types())
}
