package service_test

import (
	"testing"

	"github.com/rongwang/leave-roster-server/internal/models"
	"github.com/rongwang/leave-roster-server/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func strPtr(s string) *string { return &s }

func TestPilots_CreateListUpdate(t *testing.T) {
	env := newTestEnv(t, service.Options{})

	kari, err := env.svc.CreatePilot(env.ctx, env.rc, models.CreatePilotRequest{DisplayName: " Kari "})
	require.NoError(t, err)
	assert.Equal(t, "Kari", kari.DisplayName)
	assert.True(t, kari.Active)
	assert.NotEmpty(t, kari.ID)

	_, err = env.svc.CreatePilot(env.ctx, env.rc, models.CreatePilotRequest{DisplayName: "anders", Active: boolPtr(false)})
	require.NoError(t, err)

	all, err := env.svc.ListPilots(env.ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "anders", all[0].DisplayName)
	assert.Equal(t, "Kari", all[1].DisplayName)

	active, err := env.svc.ListPilots(env.ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, kari.ID, active[0].ID)

	updated, err := env.svc.UpdatePilot(env.ctx, env.rc, kari.ID, models.UpdatePilotRequest{DisplayName: strPtr("Kari N")})
	require.NoError(t, err)
	assert.Equal(t, "Kari N", updated.DisplayName)
	assert.True(t, updated.Active)

	entries := env.ledger(t, models.PilotTarget(kari.ID))
	require.Len(t, entries, 2)
	assert.Equal(t, "Ana made an update to pilot Kari.", entries[0].HumanLine)
	assert.Equal(t, []string{models.FieldDisplayName}, entries[1].ChangedFields)
	assert.Equal(t, "Kari", entries[1].PrevSnapshot[models.FieldDisplayName])
	assert.Equal(t, "Ana made an update to pilot Kari N.", entries[1].HumanLine)
}

func TestPilots_InvalidUpdates(t *testing.T) {
	env := newTestEnv(t, service.Options{})

	_, err := env.svc.CreatePilot(env.ctx, env.rc, models.CreatePilotRequest{DisplayName: "  "})
	assert.ErrorIs(t, err, service.ErrInvalidArgument)

	_, err = env.svc.UpdatePilot(env.ctx, env.rc, "nobody", models.UpdatePilotRequest{Active: boolPtr(false)})
	assert.ErrorIs(t, err, service.ErrNotFound)

	pilot, err := env.svc.CreatePilot(env.ctx, env.rc, models.CreatePilotRequest{DisplayName: "Kari"})
	require.NoError(t, err)

	_, err = env.svc.UpdatePilot(env.ctx, env.rc, pilot.ID, models.UpdatePilotRequest{})
	assert.ErrorIs(t, err, service.ErrInvalidArgument)

	_, err = env.svc.UpdatePilot(env.ctx, env.rc, pilot.ID, models.UpdatePilotRequest{DisplayName: strPtr(" ")})
	assert.ErrorIs(t, err, service.ErrInvalidArgument)
}

func TestFeed_NewestFirstAcrossDocuments(t *testing.T) {
	env := newTestEnv(t, service.Options{})

	_, err := env.svc.CreatePilot(env.ctx, env.rc, models.CreatePilotRequest{DisplayName: "Kari"})
	require.NoError(t, err)
	_, err = env.save(t, models.LeaveAnnual, 35, []string{"Kari"}, nil)
	require.NoError(t, err)
	_, err = env.save(t, models.LeaveAnnual, 35, []string{"Kari", "Ola"}, []string{"Kari"})
	require.NoError(t, err)

	entries, err := env.svc.Feed(env.ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, models.KindLeave, entries[0].Target.Kind)
	assert.Equal(t, models.ChangeUpdate, entries[0].ChangeType)
	assert.Equal(t, models.KindPilot, entries[2].Target.Kind)
	for i := 1; i < len(entries); i++ {
		assert.True(t, entries[i-1].Seq > entries[i].Seq)
	}

	limited, err := env.svc.Feed(env.ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, entries[0].ID, limited[0].ID)
}
