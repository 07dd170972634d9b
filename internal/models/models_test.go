package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleAfterAccept(t *testing.T) {
	tests := []struct {
		name    string
		current Role
		invited Role
		want    Role
	}{
		{"guest invited as guest still joins as team member", RoleGuest, RoleGuest, RoleTeamMember},
		{"guest invited as team member", RoleGuest, RoleTeamMember, RoleTeamMember},
		{"team member keeps role on guest invite", RoleTeamMember, RoleGuest, RoleTeamMember},
		{"organizer is never demoted", RoleOrganizer, RoleTeamMember, RoleOrganizer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RoleAfterAccept(tt.current, tt.invited))
		})
	}
}

func TestRoleLevel(t *testing.T) {
	assert.Less(t, RoleGuest.Level(), RoleTeamMember.Level())
	assert.Less(t, RoleTeamMember.Level(), RoleOrganizer.Level())
	assert.Equal(t, 1, Role("bogus").Level())
	assert.False(t, RoleAdmin.OrgRole())
	assert.True(t, RoleTeamMember.OrgRole())
	assert.False(t, Role("bogus").Valid())
}

func TestInvitation_ActiveAndExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	inv := Invitation{ExpiresAt: now.Add(InvitationTTL)}

	assert.True(t, inv.Active(now))
	assert.True(t, inv.Active(now.Add(InvitationTTL-time.Second)))
	assert.False(t, inv.Active(now.Add(InvitationTTL)), "expiry instant is already expired")

	inv.IsAccepted = true
	assert.False(t, inv.Active(now))
	assert.False(t, inv.Expired(now))
}

func TestInvitableRole(t *testing.T) {
	assert.True(t, InvitableRole(RoleGuest))
	assert.True(t, InvitableRole(RoleTeamMember))
	assert.False(t, InvitableRole(RoleOrganizer))
	assert.False(t, InvitableRole(RoleAdmin))
}

func TestNextRSVPStatus(t *testing.T) {
	next, answered, err := NextRSVPStatus(RSVPPending, ResponseAccept)
	require.NoError(t, err)
	assert.Equal(t, RSVPAccepted, next)
	assert.False(t, answered)

	next, answered, err = NextRSVPStatus(RSVPPending, ResponseDecline)
	require.NoError(t, err)
	assert.Equal(t, RSVPDeclined, next)
	assert.False(t, answered)

	next, answered, err = NextRSVPStatus(RSVPAccepted, ResponseDecline)
	require.NoError(t, err)
	assert.Equal(t, RSVPAccepted, next)
	assert.True(t, answered)

	_, _, err = NextRSVPStatus(RSVPPending, "maybe")
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestCountGuests(t *testing.T) {
	c := CountGuests([]Guest{
		{Status: RSVPPending}, {Status: RSVPAccepted}, {Status: RSVPAccepted}, {Status: RSVPDeclined},
	})
	assert.Equal(t, GuestCounts{Pending: 1, Accepted: 2, Declined: 1, Total: 4}, c)
}

func TestEvent_StartsAt(t *testing.T) {
	e := Event{Date: "2026-05-04", Time: "18:30"}
	ts, err := e.StartsAt(time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 5, 4, 18, 30, 0, 0, time.UTC), ts)
}

func TestValidCategory(t *testing.T) {
	assert.True(t, ValidCategory("workshop"))
	assert.False(t, ValidCategory("party"))
	assert.Len(t, Categories, 7)
}

func TestMemberSortRank(t *testing.T) {
	assert.Less(t, MemberSortRank(RoleOrganizer), MemberSortRank(RoleTeamMember))
	assert.Less(t, MemberSortRank(RoleTeamMember), MemberSortRank(RoleGuest))
	assert.Equal(t, 4, MemberSortRank(RoleAdmin))
}
